package service

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"github.com/jengzang/gazemap-backend-go/internal/events"
	"github.com/jengzang/gazemap-backend-go/internal/heatmap"
	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/repository"
)

// ErrInvalidSession is returned for malformed session input.
var ErrInvalidSession = errors.New("invalid session")

// MaxCoordinate bounds sample coordinates, scroll offsets and page
// dimensions in CSS pixels.
const MaxCoordinate = 1 << 20

// StartRequest opens a recording session.
type StartRequest struct {
	URL            string   `json:"url" binding:"required"`
	AnalysisTime   int      `json:"analysisTime"`
	PageHeight     int      `json:"pageHeight"`
	ViewportWidth  null.Int `json:"viewportWidth"`
	ViewportHeight null.Int `json:"viewportHeight"`
}

// SessionService handles gaze session business logic
type SessionService struct {
	repo        *repository.SessionRepository
	publisher   events.Publisher
	maxDuration int
	maxBatch    int
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewSessionService creates a new session service
func NewSessionService(repo *repository.SessionRepository, publisher events.Publisher, maxDuration, maxBatch int, logger logrus.FieldLogger) *SessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SessionService{
		repo:        repo,
		publisher:   publisher,
		maxDuration: maxDuration,
		maxBatch:    maxBatch,
		logger:      logger,
		now:         time.Now,
	}
}

// MaxDuration is the longest session the service accepts, in seconds.
func (s *SessionService) MaxDuration() int {
	return s.maxDuration
}

// MaxBatch is the largest sample batch AppendSamples accepts. Zero means
// unlimited.
func (s *SessionService) MaxBatch() int {
	return s.maxBatch
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) url", ErrInvalidSession)
	}
	return nil
}

func (s *SessionService) validateDuration(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: analysisTime must be positive", ErrInvalidSession)
	}
	if s.maxDuration > 0 && seconds > s.maxDuration {
		return fmt.Errorf("%w: analysisTime exceeds %d seconds", ErrInvalidSession, s.maxDuration)
	}
	return nil
}

func validateSamples(samples []models.GazeSample) error {
	for i, smp := range samples {
		for _, v := range []float64{smp.X, smp.Y, smp.ScrollY} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: sample %d is not finite", ErrInvalidSession, i)
			}
			if math.Abs(v) > MaxCoordinate {
				return fmt.Errorf("%w: sample %d exceeds %d px", ErrInvalidSession, i, MaxCoordinate)
			}
		}
	}
	return nil
}

func validateGeometry(pageHeight int, viewportWidth, viewportHeight null.Int) error {
	if pageHeight < 0 || pageHeight > MaxCoordinate {
		return fmt.Errorf("%w: pageHeight must be in [0, %d]", ErrInvalidSession, MaxCoordinate)
	}
	for _, v := range []null.Int{viewportWidth, viewportHeight} {
		if v.Valid && (v.Int64 < 0 || v.Int64 > MaxCoordinate) {
			return fmt.Errorf("%w: viewport must be in [0, %d]", ErrInvalidSession, MaxCoordinate)
		}
	}
	return nil
}

// Start creates an empty recording session.
func (s *SessionService) Start(req StartRequest) (*models.SessionRecord, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}
	if err := s.validateDuration(req.AnalysisTime); err != nil {
		return nil, err
	}
	if err := validateGeometry(req.PageHeight, req.ViewportWidth, req.ViewportHeight); err != nil {
		return nil, err
	}

	rec := &models.SessionRecord{
		ID:             uuid.NewString(),
		URL:            req.URL,
		AnalysisTime:   req.AnalysisTime,
		Timestamp:      s.now().UnixMilli(),
		PageHeight:     req.PageHeight,
		ViewportWidth:  req.ViewportWidth,
		ViewportHeight: req.ViewportHeight,
		Status:         models.SessionStatusRecording,
	}
	if err := s.repo.Create(rec); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"session": rec.ID, "url": rec.URL}).Info("session started")
	return rec, nil
}

// Import stores a record collected entirely by the client. It is frozen
// on arrival.
func (s *SessionService) Import(rec *models.SessionRecord) (*models.SessionRecord, error) {
	if err := ValidateURL(rec.URL); err != nil {
		return nil, err
	}
	if rec.AnalysisTime < 0 {
		return nil, fmt.Errorf("%w: analysisTime must not be negative", ErrInvalidSession)
	}
	if s.maxBatch > 0 && len(rec.Samples) > s.maxBatch*10 {
		return nil, fmt.Errorf("%w: too many samples", ErrInvalidSession)
	}
	if err := validateSamples(rec.Samples); err != nil {
		return nil, err
	}
	if err := validateGeometry(rec.PageHeight, rec.ViewportWidth, rec.ViewportHeight); err != nil {
		return nil, err
	}

	imported := rec.Clone()
	imported.ID = uuid.NewString()
	imported.Status = models.SessionStatusCompleted
	if imported.Timestamp == 0 {
		imported.Timestamp = s.now().UnixMilli()
	}
	if err := s.repo.Create(imported); err != nil {
		return nil, err
	}
	s.publishCompleted(imported)
	return imported, nil
}

// AppendSamples adds a batch to a recording session and returns the new
// sample count.
func (s *SessionService) AppendSamples(id string, samples []models.GazeSample) (int, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrInvalidSession)
	}
	if s.maxBatch > 0 && len(samples) > s.maxBatch {
		return 0, fmt.Errorf("%w: batch exceeds %d samples", ErrInvalidSession, s.maxBatch)
	}
	if err := validateSamples(samples); err != nil {
		return 0, err
	}
	return s.repo.AppendSamples(id, samples)
}

// Complete freezes a session and announces it.
func (s *SessionService) Complete(id string, pageHeight int) (*models.SessionRecord, error) {
	if err := validateGeometry(pageHeight, null.Int{}, null.Int{}); err != nil {
		return nil, err
	}
	if err := s.repo.Complete(id, pageHeight); err != nil {
		return nil, err
	}
	rec, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	s.publishCompleted(rec)
	return rec, nil
}

func (s *SessionService) publishCompleted(rec *models.SessionRecord) {
	evt := events.SessionCompleted{
		SessionID:    rec.ID,
		URL:          rec.URL,
		SampleCount:  len(rec.Samples),
		AnalysisTime: rec.AnalysisTime,
		CompletedAt:  s.now().UnixMilli(),
	}
	if err := s.publisher.Publish(events.SubjectSessionCompleted, evt); err != nil {
		s.logger.WithError(err).WithField("session", rec.ID).Warn("failed to publish session completed")
	}
	s.logger.WithFields(logrus.Fields{"session": rec.ID, "samples": evt.SampleCount}).Info("session completed")
}

// Get returns a session with its samples.
func (s *SessionService) Get(id string) (*models.SessionRecord, error) {
	return s.repo.GetByID(id)
}

// List returns sessions without samples.
func (s *SessionService) List(filter models.SessionFilter) ([]models.SessionRecord, int64, error) {
	return s.repo.List(filter)
}

// Delete removes a session and everything attached to it.
func (s *SessionService) Delete(id string) error {
	return s.repo.Delete(id)
}

// Stats computes the results panel statistics of a session.
func (s *SessionService) Stats(id string, bandHeight int) (*models.HeatmapStats, error) {
	rec, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	stats := heatmap.Summarize(rec, bandHeight)
	if stats == nil {
		stats = &models.HeatmapStats{TotalTime: rec.AnalysisTime}
	}
	return stats, nil
}
