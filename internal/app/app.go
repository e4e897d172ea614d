// Package app wires configuration into the database, services and
// publisher shared by the server and the CLI.
package app

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"github.com/jengzang/gazemap-backend-go/internal/config"
	"github.com/jengzang/gazemap-backend-go/internal/database"
	"github.com/jengzang/gazemap-backend-go/internal/events"
	"github.com/jengzang/gazemap-backend-go/internal/heatmap"
	applog "github.com/jengzang/gazemap-backend-go/internal/logger"
	"github.com/jengzang/gazemap-backend-go/internal/repository"
	"github.com/jengzang/gazemap-backend-go/internal/screenshot"
	"github.com/jengzang/gazemap-backend-go/internal/service"
	"github.com/jengzang/gazemap-backend-go/internal/storage"
)

// App holds the long-lived dependencies of a process.
type App struct {
	DB        *sql.DB
	Publisher events.Publisher
	Provider  screenshot.Provider
	Sessions  *service.SessionService
	Heatmaps  *service.HeatmapService
}

// RendererConfig converts the renderer section of cfg, bounding canvas
// size by MaxMemory.
func RendererConfig(cfg *config.Config) (heatmap.Config, error) {
	blend, err := heatmap.ParseBlendMode(cfg.Renderer.Blend)
	if err != nil {
		return heatmap.Config{}, err
	}
	rc := heatmap.DefaultConfig()
	rc.Radius = cfg.Renderer.Radius
	if cfg.Renderer.MaxRadius > 0 {
		rc.MaxRadius = cfg.Renderer.MaxRadius
	}
	rc.Intensity = cfg.Renderer.Intensity
	rc.Opacity = cfg.Renderer.Opacity
	rc.Blend = blend
	rc.MaxPixels = heatmap.MaxPixelsForMemory(cfg.MaxMemory)
	return rc, rc.Validate()
}

// New opens the database and builds the services. The NATS publisher is
// used when an URL is configured, the CDP provider when an endpoint is.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	rc, err := RendererConfig(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := database.Open(database.Config{
		Path:   cfg.DBPath,
		Logger: applog.Component(log, "database"),
	})
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.NatsURL != "" {
		p, err := events.NewNATSPublisher(ctx, cfg.Events.NatsURL, cfg.Events.NatsToken, applog.Component(log, "events"))
		if err != nil {
			conn.Close()
			return nil, err
		}
		publisher = p
	}

	var provider screenshot.Provider
	if cfg.Screenshot.Endpoint != "" {
		provider = screenshot.NewCDPProvider(cfg.Screenshot.Endpoint, cfg.Screenshot.Timeout, applog.Component(log, "screenshot"))
	}

	var persister storage.FilePersister
	if cfg.Export.OutputDir != "" {
		persister = &storage.LocalFilePersister{Dir: cfg.Export.OutputDir}
	}

	sessionRepo := repository.NewSessionRepository(conn)
	a := &App{
		DB:        conn,
		Publisher: publisher,
		Provider:  provider,
		Sessions: service.NewSessionService(sessionRepo, publisher,
			cfg.Collector.MaxDuration, cfg.Collector.MaxBatchSize, applog.Component(log, "sessions")),
		Heatmaps: service.NewHeatmapService(
			sessionRepo,
			repository.NewScreenshotRepository(conn),
			provider,
			persister,
			publisher,
			service.HeatmapOptions{
				Renderer:      rc,
				JPEGQuality:   cfg.Export.JPEGQuality,
				CaptureWidth:  cfg.Screenshot.ViewportWidth,
				CaptureHeight: cfg.Screenshot.ViewportHeight,
				CaptureScale:  cfg.Screenshot.Scale,
			},
			applog.Component(log, "heatmaps"),
		),
	}
	return a, nil
}

// Close flushes the publisher and closes the database.
func (a *App) Close() error {
	a.Publisher.Close()
	return a.DB.Close()
}
