package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/jengzang/gazemap-backend-go/internal/app"
	"github.com/jengzang/gazemap-backend-go/internal/config"
	"github.com/jengzang/gazemap-backend-go/internal/export"
	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/screenshot"
	"github.com/jengzang/gazemap-backend-go/internal/service"
)

type renderJSON struct {
	Output  string `json:"output"`
	Format  string `json:"format"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Samples int    `json:"samples"`
	Bytes   int64  `json:"bytes"`
}

// Execute implements the go-flags Commander interface for RenderCommand.
func (c *RenderCommand) Execute(args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	return c.render(context.Background(), cfg)
}

func (c *RenderCommand) format() (export.Format, error) {
	switch {
	case c.Format != "":
		return export.ParseFormat(c.Format)
	case c.Out != "":
		return export.ParseFormat(filepath.Ext(c.Out))
	}
	return export.FormatPNG, nil
}

func (c *RenderCommand) render(ctx context.Context, cfg *config.Config) error {
	format, err := c.format()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.Record)
	if err != nil {
		return fmt.Errorf("read record: %w", err)
	}
	var rec models.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parse record %s: %w", c.Record, err)
	}

	base, err := app.RendererConfig(cfg)
	if err != nil {
		return err
	}
	rc, err := service.ApplyParams(base, models.RenderParams{
		Radius:    c.Radius,
		Intensity: c.Intensity,
		Opacity:   c.Opacity,
		Blend:     c.Blend,
	})
	if err != nil {
		return err
	}

	var bg image.Image
	docHeight := c.DocumentHeight
	if c.Background != "" {
		raw, err := os.ReadFile(c.Background)
		if err != nil {
			return fmt.Errorf("read background: %w", err)
		}
		if bg, _, err = screenshot.Decode(raw); err != nil {
			return fmt.Errorf("decode background %s: %w", c.Background, err)
		}
		if docHeight <= 0 {
			docHeight = bg.Bounds().Dy()
		}
	}

	img, err := service.RenderRecord(ctx, rc, &rec, bg, docHeight, c.Caption, c.logger(cfg))
	if err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		captured := rec.CapturedAt()
		if rec.Timestamp == 0 {
			captured = time.Now()
		}
		out = export.FileName(format, captured)
	}
	size, err := c.write(out, format, &rec, img, cfg.Export.JPEGQuality)
	if err != nil {
		return err
	}

	if c.jsonOutput() {
		return c.printJSON(renderJSON{
			Output:  out,
			Format:  string(format),
			Width:   img.Bounds().Dx(),
			Height:  img.Bounds().Dy(),
			Samples: len(rec.Samples),
			Bytes:   size,
		})
	}
	ok := c.paint(color.FgGreen, color.Bold)
	c.printf("%s %s gaze points -> %s (%dx%d, %s)\n",
		ok("rendered"), humanize.Comma(int64(len(rec.Samples))), out,
		img.Bounds().Dx(), img.Bounds().Dy(), humanize.Bytes(uint64(size)))
	return nil
}

func (c *RenderCommand) write(path string, format export.Format, rec *models.SessionRecord, img image.Image, defaultQuality int) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if format == export.FormatPDF {
		err = export.WritePDF(f, rec, img)
	} else {
		quality := c.Quality
		if quality == 0 {
			quality = defaultQuality
		}
		err = export.Encode(f, format, img, quality)
	}
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), f.Close()
}
