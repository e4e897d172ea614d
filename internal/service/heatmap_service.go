package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/jengzang/gazemap-backend-go/internal/events"
	"github.com/jengzang/gazemap-backend-go/internal/export"
	"github.com/jengzang/gazemap-backend-go/internal/heatmap"
	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/repository"
	"github.com/jengzang/gazemap-backend-go/internal/screenshot"
	"github.com/jengzang/gazemap-backend-go/internal/storage"
)

var (
	// ErrNotFrozen is returned when rendering a session that is still recording.
	ErrNotFrozen = errors.New("session is still recording")
	// ErrNoProvider is returned when capture is requested without a browser.
	ErrNoProvider = errors.New("no screenshot provider configured")
	// ErrCapture wraps screenshot provider failures.
	ErrCapture = errors.New("screenshot capture failed")
)

// HeatmapOptions configures a HeatmapService.
type HeatmapOptions struct {
	Renderer    heatmap.Config
	JPEGQuality int
	// Viewport used for captures that do not name one.
	CaptureWidth  int
	CaptureHeight int
	CaptureScale  float64
}

// CaptureRequest overrides the capture viewport.
type CaptureRequest struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

// ExportOptions selects the output of Export.
type ExportOptions struct {
	Format export.Format
	Params models.RenderParams
	// Save also writes the file through the persister.
	Save bool
}

// ExportResult is an encoded heatmap.
type ExportResult struct {
	Data      []byte
	MIMEType  string
	FileName  string
	Width     int
	Height    int
	SavedPath string
}

// HeatmapService renders and exports heatmaps of frozen sessions
type HeatmapService struct {
	sessions  *repository.SessionRepository
	shots     *repository.ScreenshotRepository
	provider  screenshot.Provider
	persister storage.FilePersister
	publisher events.Publisher
	opts      HeatmapOptions
	logger    logrus.FieldLogger
	now       func() time.Time

	// identical concurrent requests share one render pass
	group singleflight.Group
}

// NewHeatmapService creates a new heatmap service. provider and persister
// may be nil.
func NewHeatmapService(
	sessions *repository.SessionRepository,
	shots *repository.ScreenshotRepository,
	provider screenshot.Provider,
	persister storage.FilePersister,
	publisher events.Publisher,
	opts HeatmapOptions,
	logger logrus.FieldLogger,
) *HeatmapService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &HeatmapService{
		sessions:  sessions,
		shots:     shots,
		provider:  provider,
		persister: persister,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyParams overlays per-request render parameters on base.
func ApplyParams(base heatmap.Config, p models.RenderParams) (heatmap.Config, error) {
	cfg := base
	if p.Radius > 0 {
		cfg.Radius = p.Radius
	}
	if p.Intensity > 0 {
		cfg.Intensity = p.Intensity
	}
	if p.Opacity > 0 {
		cfg.Opacity = p.Opacity
	}
	if p.Blend != "" {
		mode, err := heatmap.ParseBlendMode(p.Blend)
		if err != nil {
			return cfg, err
		}
		cfg.Blend = mode
	}
	return cfg, cfg.Validate()
}

// background loads and decodes the stored screenshot. A session without
// one renders on white.
func (s *HeatmapService) background(id string) (image.Image, int, error) {
	shot, err := s.shots.Get(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	img, _, err := screenshot.Decode(shot.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode stored screenshot: %w", err)
	}
	return img, shot.DocumentHeight, nil
}

// Render draws the heatmap of a frozen session into a new image.
func (s *HeatmapService) Render(ctx context.Context, id string, params models.RenderParams) (*image.NRGBA, *models.SessionRecord, error) {
	cfg, err := ApplyParams(s.opts.Renderer, params)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.sessions.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	if !rec.Frozen() {
		return nil, nil, ErrNotFrozen
	}

	bg, docHeight, err := s.background(id)
	if err != nil {
		return nil, nil, err
	}
	img, err := RenderRecord(ctx, cfg, rec, bg, docHeight, params.Caption, s.logger)
	if err != nil {
		return nil, nil, err
	}
	return img, rec, nil
}

// RenderRecord renders rec over bg. docHeight sizes the canvas when the
// record carries no page height. bg may be nil.
func RenderRecord(ctx context.Context, cfg heatmap.Config, rec *models.SessionRecord, bg image.Image, docHeight int, caption bool, logger logrus.FieldLogger) (*image.NRGBA, error) {
	sizing := rec
	if rec.PageHeight <= 0 && docHeight > 0 {
		sizing = rec.Clone()
		sizing.PageHeight = docHeight
	}
	frame, err := heatmap.FrameFor(sizing, bg)
	if err != nil {
		return nil, err
	}

	renderer, err := heatmap.NewRenderer(cfg, logger)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	img, err := renderer.Render(ctx, rec.Samples, bg, frame)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"session": rec.ID,
			"samples": len(rec.Samples),
			"size":    fmt.Sprintf("%dx%d", frame.Width, frame.Height),
			"took":    time.Since(start).String(),
		}).Info("heatmap rendered")
	}

	if caption {
		img = export.Caption(img, captionText(rec))
	}
	return img, nil
}

func captionText(rec *models.SessionRecord) string {
	return fmt.Sprintf("%s | %s gaze points | %s",
		rec.URL, humanize.Comma(int64(len(rec.Samples))), rec.CapturedAt().UTC().Format("2006-01-02 15:04"))
}

// EncodeRecord encodes a rendered heatmap of rec in format f.
func EncodeRecord(f export.Format, rec *models.SessionRecord, img image.Image, quality int) ([]byte, error) {
	switch f {
	case export.FormatPNG:
		return export.EncodePNG(img)
	case export.FormatJPEG:
		return export.EncodeJPEG(img, quality)
	case export.FormatPDF:
		var buf bytes.Buffer
		if err := export.WritePDF(&buf, rec, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", f)
}

// Export renders and encodes a session. Identical concurrent requests are
// coalesced into a single render, which outlives the caller that started
// it. Each caller stops waiting when its own ctx is done.
func (s *HeatmapService) Export(ctx context.Context, id string, opts ExportOptions) (*ExportResult, error) {
	key := fmt.Sprintf("%s|%s|%+v", id, opts.Format, opts.Params)
	flight := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.export(flight, id, opts)
	})

	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return nil, r.Err
	}
	res := *r.Val.(*ExportResult)
	if r.Shared {
		s.logger.WithField("session", id).Debug("export shared with concurrent request")
	}

	if opts.Save && s.persister != nil {
		path, err := s.persister.Persist(ctx, id+"/"+res.FileName, res.MIMEType, bytes.NewReader(res.Data))
		if err != nil {
			return nil, fmt.Errorf("save export: %w", err)
		}
		res.SavedPath = path
	}
	return &res, nil
}

func (s *HeatmapService) export(ctx context.Context, id string, opts ExportOptions) (*ExportResult, error) {
	img, rec, err := s.Render(ctx, id, opts.Params)
	if err != nil {
		return nil, err
	}

	quality := opts.Params.Quality
	if quality == 0 {
		quality = s.opts.JPEGQuality
	}
	data, err := EncodeRecord(opts.Format, rec, img, quality)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{
		Data:     data,
		MIMEType: opts.Format.MIMEType(),
		FileName: export.FileName(opts.Format, rec.CapturedAt()),
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
	}
	if err := s.publisher.Publish(events.SubjectHeatmapRendered, events.HeatmapRendered{
		SessionID:  id,
		Format:     string(opts.Format),
		Width:      res.Width,
		Height:     res.Height,
		Bytes:      len(data),
		RenderedAt: s.now().UnixMilli(),
	}); err != nil {
		s.logger.WithError(err).Warn("failed to publish heatmap rendered")
	}
	s.logger.WithFields(logrus.Fields{
		"session": id,
		"format":  opts.Format,
		"bytes":   humanize.Bytes(uint64(len(data))),
	}).Debug("heatmap exported")
	return res, nil
}

// DepthChart renders the scroll-depth histogram of a session as PNG.
func (s *HeatmapService) DepthChart(id string, bandHeight, width, height int) ([]byte, error) {
	rec, err := s.sessions.GetByID(id)
	if err != nil {
		return nil, err
	}
	return export.DepthChart(heatmap.DepthHistogram(rec.Samples, rec.PageHeight, bandHeight), width, height)
}

// UploadScreenshot stores a client-provided background. documentHeight
// defaults to the image height.
func (s *HeatmapService) UploadScreenshot(id string, data []byte, documentHeight int) (*models.Screenshot, error) {
	if _, err := s.sessions.GetByID(id); err != nil {
		return nil, err
	}
	img, mime, err := screenshot.Decode(data)
	if err != nil {
		return nil, err
	}
	if documentHeight <= 0 {
		documentHeight = img.Bounds().Dy()
	}
	shot := &models.Screenshot{
		SessionID:      id,
		MIMEType:       mime,
		Width:          img.Bounds().Dx(),
		Height:         img.Bounds().Dy(),
		DocumentHeight: documentHeight,
		Data:           data,
		CapturedAt:     s.now().UnixMilli(),
	}
	if err := s.shots.Save(shot); err != nil {
		return nil, err
	}
	return shot, nil
}

// CaptureScreenshot asks the provider for a full-page screenshot of the
// session URL and stores it. The viewport defaults to the session's
// capture viewport, then to the configured one.
func (s *HeatmapService) CaptureScreenshot(ctx context.Context, id string, req CaptureRequest) (*models.Screenshot, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	rec, err := s.sessions.GetByID(id)
	if err != nil {
		return nil, err
	}

	creq := screenshot.Request{URL: rec.URL, Width: req.Width, Height: req.Height, Scale: req.Scale}
	if creq.Width <= 0 && rec.ViewportWidth.Valid {
		creq.Width = int(rec.ViewportWidth.Int64)
	}
	if creq.Height <= 0 && rec.ViewportHeight.Valid {
		creq.Height = int(rec.ViewportHeight.Int64)
	}
	if creq.Width <= 0 {
		creq.Width = s.opts.CaptureWidth
	}
	if creq.Height <= 0 {
		creq.Height = s.opts.CaptureHeight
	}
	if creq.Scale <= 0 {
		creq.Scale = s.opts.CaptureScale
	}

	res, err := s.provider.Capture(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	shot := &models.Screenshot{
		SessionID:      id,
		MIMEType:       res.MIMEType,
		Width:          res.Width,
		Height:         res.Height,
		DocumentHeight: res.DocumentHeight,
		Data:           res.Data,
		CapturedAt:     s.now().UnixMilli(),
	}
	if err := s.shots.Save(shot); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"session": id,
		"size":    humanize.Bytes(uint64(len(res.Data))),
	}).Info("screenshot captured")
	return shot, nil
}
