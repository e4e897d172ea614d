package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/gazemap-backend-go/internal/gaze"
	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/repository"
	"github.com/jengzang/gazemap-backend-go/internal/service"
	"github.com/jengzang/gazemap-backend-go/pkg/response"
)

const writeWait = 10 * time.Second

// Stream message types
const (
	msgReady    = "ready"
	msgStart    = "start"
	msgGaze     = "gaze"
	msgScroll   = "scroll"
	msgStarted  = "started"
	msgTick     = "tick"
	msgComplete = "complete"
	msgError    = "error"
)

// StreamOptions configures live collection over websocket.
type StreamOptions struct {
	Clock         gaze.Clock
	TickInterval  time.Duration
	PollInterval  time.Duration
	QueueSize     int
	ReadyDeadline time.Duration
}

// StreamHandler runs a gaze Collector fed by a websocket client
type StreamHandler struct {
	service  *service.SessionService
	opts     StreamOptions
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(service *service.SessionService, opts StreamOptions, logger logrus.FieldLogger) *StreamHandler {
	if opts.Clock == nil {
		opts.Clock = gaze.RealClock()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &StreamHandler{
		service: service,
		opts:    opts,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the extension connects from arbitrary page origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type streamMessage struct {
	Type       string   `json:"type"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	ScrollY    *float64 `json:"scrollY"`
	Duration   int      `json:"duration"`
	PageHeight int      `json:"pageHeight"`
}

// streamSource is the GazeSource of one websocket client. Points that do
// not fit in the queue are dropped.
type streamSource struct {
	ready   atomic.Bool
	points  chan gaze.Point
	dropped atomic.Int64
}

func newStreamSource(size int) *streamSource {
	return &streamSource{points: make(chan gaze.Point, size)}
}

func (s *streamSource) Ready() bool                { return s.ready.Load() }
func (s *streamSource) Samples() <-chan gaze.Point { return s.points }

func (s *streamSource) push(p gaze.Point) {
	select {
	case s.points <- p:
	default:
		s.dropped.Add(1)
	}
}

type stream struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  logrus.FieldLogger

	source     *streamSource
	scroll     *gaze.ScrollTracker // read by the collector
	reported   *gaze.ScrollTracker // last offset of any frame, polled into scroll
	pageHeight atomic.Int64
}

// observeScroll records an offset reported by the client. reported mirrors
// scroll so the poll never replays an older value.
func (s *stream) observeScroll(y float64) {
	s.reported.Observe(y)
	s.scroll.Observe(y)
}

func (s *stream) send(v gin.H) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *stream) sendError(err error) {
	if werr := s.send(gin.H{"type": msgError, "error": err.Error()}); werr != nil {
		s.logger.WithError(werr).Debug("failed to send error frame")
	}
}

// Stream handles GET /api/v1/sessions/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.service.Get(id)
	if err != nil {
		fail(c, err, "Failed to get session")
		return
	}
	if rec.Frozen() {
		response.Conflict(c, "Session is completed", repository.ErrFrozen)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).WithField("session", id).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &stream{
		id:       id,
		conn:     conn,
		logger:   h.logger.WithField("session", id),
		source:   newStreamSource(h.opts.QueueSize),
		scroll:   &gaze.ScrollTracker{},
		reported: &gaze.ScrollTracker{},
	}
	s.pageHeight.Store(int64(rec.PageHeight))
	h.run(c.Request.Context(), s, rec)
}

func (h *StreamHandler) run(parent context.Context, s *stream, rec *models.SessionRecord) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if h.opts.PollInterval > 0 {
		go s.scroll.Poll(ctx, s.reported, h.opts.PollInterval, h.opts.Clock)
	}

	collector := gaze.NewCollector(s.source, s.scroll, gaze.Options{
		Clock:        h.opts.Clock,
		TickInterval: h.opts.TickInterval,
		OnTick: func(remaining int) {
			if err := s.send(gin.H{"type": msgTick, "remaining": remaining}); err != nil {
				s.logger.WithError(err).Debug("failed to send tick")
			}
		},
		Logger: s.logger,
	})
	defer collector.Close()
	go func() { _ = collector.Consume(ctx) }()

	if h.opts.ReadyDeadline > 0 {
		timer := time.AfterFunc(h.opts.ReadyDeadline, func() {
			if !s.source.Ready() {
				s.sendError(gaze.ErrSourceNotReady)
				cancel()
			}
		})
		defer timer.Stop()
	}

	readDone := make(chan error, 1)
	go func() { readDone <- h.readLoop(ctx, s, collector, rec) }()

	select {
	case <-collector.Done():
	case err := <-readDone:
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			s.logger.WithError(err).Info("stream closed before completion")
		}
		return
	case <-ctx.Done():
		return
	}

	samples, _ := collector.Snapshot()
	done, err := h.persist(s, samples)
	if err != nil {
		s.logger.WithError(err).Error("failed to persist streamed session")
		s.sendError(err)
		return
	}
	s.logger.WithField("dropped", s.source.dropped.Load()).Debug("stream complete")

	if err := s.send(gin.H{"type": msgComplete, "sessionId": done.ID, "samples": samples}); err != nil {
		s.logger.WithError(err).Debug("failed to send complete frame")
	}
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete"),
		time.Now().Add(writeWait))
	s.writeMu.Unlock()
}

// persist stores the frozen samples in batches and freezes the session.
func (h *StreamHandler) persist(s *stream, samples []models.GazeSample) (*models.SessionRecord, error) {
	batch := h.service.MaxBatch()
	if batch <= 0 {
		batch = len(samples)
	}
	for start := 0; start < len(samples); start += batch {
		end := start + batch
		if end > len(samples) {
			end = len(samples)
		}
		if _, err := h.service.AppendSamples(s.id, samples[start:end]); err != nil {
			return nil, err
		}
	}
	return h.service.Complete(s.id, int(s.pageHeight.Load()))
}

func (h *StreamHandler) readLoop(ctx context.Context, s *stream, collector *gaze.Collector, rec *models.SessionRecord) error {
	for {
		var msg streamMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch msg.Type {
		case msgReady:
			if msg.PageHeight > 0 {
				s.pageHeight.Store(int64(msg.PageHeight))
			}
			s.source.ready.Store(true)

		case msgStart:
			duration := msg.Duration
			if duration <= 0 {
				duration = rec.AnalysisTime
			}
			if limit := h.service.MaxDuration(); limit > 0 && duration > limit {
				s.sendError(service.ErrInvalidSession)
				continue
			}
			if !collector.Start(duration) {
				if !s.source.Ready() {
					s.sendError(gaze.ErrSourceNotReady)
				} else {
					s.sendError(errors.New("session already running"))
				}
				continue
			}
			if err := s.send(gin.H{"type": msgStarted, "remaining": duration}); err != nil {
				return err
			}

		case msgGaze:
			if msg.ScrollY != nil {
				s.observeScroll(*msg.ScrollY)
			}
			s.source.push(gaze.Point{X: msg.X, Y: msg.Y, ScrollY: msg.ScrollY})

		case msgScroll:
			if msg.ScrollY != nil {
				s.observeScroll(*msg.ScrollY)
			}
			if msg.PageHeight > 0 {
				s.pageHeight.Store(int64(msg.PageHeight))
			}

		default:
			s.sendError(errors.New("unknown message type " + msg.Type))
		}
	}
}
