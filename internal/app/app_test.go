package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/gazemap-backend-go/internal/config"
	"github.com/jengzang/gazemap-backend-go/internal/events"
	"github.com/jengzang/gazemap-backend-go/internal/heatmap"
	"github.com/jengzang/gazemap-backend-go/internal/logger"
)

func TestRendererConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Blend = "screen"
	cfg.MaxMemory = 1200

	rc, err := RendererConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, heatmap.BlendScreen, rc.Blend)
	assert.Equal(t, 100, rc.MaxPixels)
	assert.Equal(t, 40, rc.Radius)
	assert.Equal(t, 512, rc.MaxRadius)

	cfg.Renderer.Blend = "overlay"
	_, err = RendererConfig(cfg)
	assert.ErrorIs(t, err, heatmap.ErrInvalidConfig)
}

func TestNew_Defaults(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "app.db")
	cfg.Export.OutputDir = t.TempDir()

	a, err := New(context.Background(), cfg, logger.NullLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, events.NopPublisher{}, a.Publisher)
	assert.Nil(t, a.Provider)
	assert.Equal(t, cfg.Collector.MaxDuration, a.Sessions.MaxDuration())
}
