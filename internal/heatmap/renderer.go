package heatmap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/sirupsen/logrus"

	applog "github.com/jengzang/gazemap-backend-go/internal/logger"
	"github.com/jengzang/gazemap-backend-go/internal/models"
)

var (
	// ErrInvalidCanvas is returned for a zero sized or oversized canvas.
	ErrInvalidCanvas = errors.New("invalid canvas dimensions")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid renderer config")
)

// BlendMode selects how the heat layer is composited onto the background.
type BlendMode string

const (
	BlendMultiply   BlendMode = "multiply"
	BlendSourceOver BlendMode = "source-over"
	BlendScreen     BlendMode = "screen"
)

// ParseBlendMode validates a blend mode name. Empty means multiply.
func ParseBlendMode(s string) (BlendMode, error) {
	switch BlendMode(s) {
	case "":
		return BlendMultiply, nil
	case BlendMultiply, BlendSourceOver, BlendScreen:
		return BlendMode(s), nil
	}
	return "", fmt.Errorf("%w: unknown blend mode %q", ErrInvalidConfig, s)
}

const (
	DefaultRadius    = 40
	DefaultIntensity = 0.4
	DefaultOpacity   = 0.7
	// DefaultMaxRadius bounds the splat kernel, which holds (2R+1)² taps.
	DefaultMaxRadius = 512
	// DefaultViewportWidth is used when neither a background nor the
	// capture viewport width is known.
	DefaultViewportWidth = 1280

	// canvas, heat layer and accumulation field
	bytesPerPixel = 12
)

// Config parameterises the renderer.
type Config struct {
	Radius    int
	Intensity float64
	Opacity   float64
	Blend     BlendMode
	Ramp      Ramp
	// MaxRadius caps Radius. Zero means DefaultMaxRadius.
	MaxRadius int
	// MaxPixels bounds width*height of a single render pass. Zero means no limit.
	MaxPixels int
}

// DefaultConfig returns radius 40, intensity 0.4, multiply at 70%.
func DefaultConfig() Config {
	return Config{
		Radius:    DefaultRadius,
		MaxRadius: DefaultMaxRadius,
		Intensity: DefaultIntensity,
		Opacity:   DefaultOpacity,
		Blend:     BlendMultiply,
		Ramp:      DefaultRamp(),
	}
}

// MaxPixelsForMemory converts a byte budget to a pixel limit.
func MaxPixelsForMemory(bytes int64) int {
	if bytes <= 0 {
		return 0
	}
	return int(bytes / bytesPerPixel)
}

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	if c.Radius <= 0 {
		return fmt.Errorf("%w: radius must be positive, got %d", ErrInvalidConfig, c.Radius)
	}
	maxRadius := c.MaxRadius
	if maxRadius <= 0 {
		maxRadius = DefaultMaxRadius
	}
	if c.Radius > maxRadius {
		return fmt.Errorf("%w: radius must not exceed %d, got %d", ErrInvalidConfig, maxRadius, c.Radius)
	}
	if c.Intensity <= 0 || c.Intensity > 1 {
		return fmt.Errorf("%w: intensity must be in (0, 1], got %v", ErrInvalidConfig, c.Intensity)
	}
	if c.Opacity < 0 || c.Opacity > 1 {
		return fmt.Errorf("%w: opacity must be in [0, 1], got %v", ErrInvalidConfig, c.Opacity)
	}
	if _, err := ParseBlendMode(string(c.Blend)); err != nil {
		return err
	}
	if len(c.Ramp) == 0 || !c.Ramp.sorted() {
		return fmt.Errorf("%w: ramp stops must be non-empty and sorted", ErrInvalidConfig)
	}
	return nil
}

// Frame is the target canvas of one render pass.
type Frame struct {
	Width  int
	Height int
	// ScaleX maps capture viewport X to canvas X.
	ScaleX float64
	// ScaleY maps document Y to canvas Y. Zero means ScaleX.
	ScaleY float64
}

func (f Frame) scaleY() float64 {
	if f.ScaleY == 0 {
		return f.ScaleX
	}
	return f.ScaleY
}

// FrameFor sizes the canvas for a record. The width follows the background
// (or the capture viewport), the height covers the whole document and is
// at least the background height. Without a page height the canvas falls
// back to two viewports.
func FrameFor(rec *models.SessionRecord, bg image.Image) (Frame, error) {
	viewportWidth := 0
	if rec.ViewportWidth.Valid {
		viewportWidth = int(rec.ViewportWidth.Int64)
	}

	var bgW, bgH int
	if bg != nil {
		bgW, bgH = bg.Bounds().Dx(), bg.Bounds().Dy()
	}

	width := bgW
	if width == 0 {
		width = viewportWidth
	}
	if width == 0 {
		width = DefaultViewportWidth
	}

	scale := 1.0
	if viewportWidth > 0 {
		scale = float64(width) / float64(viewportWidth)
	}

	height := int(math.Round(float64(rec.PageHeight) * scale))
	if rec.PageHeight <= 0 && rec.ViewportHeight.Valid {
		height = int(math.Round(float64(rec.ViewportHeight.Int64) * 2 * scale))
	}
	if bgH > height {
		height = bgH
	}
	if height <= 0 {
		return Frame{}, fmt.Errorf("%w: no page height, viewport height or background", ErrInvalidCanvas)
	}

	return Frame{Width: width, Height: height, ScaleX: scale, ScaleY: scale}, nil
}

// Renderer turns gaze samples into a heat overlay composited on a background.
type Renderer struct {
	cfg    Config
	taps   []tap
	logger logrus.FieldLogger
}

// NewRenderer validates cfg and precomputes the splat disc.
func NewRenderer(cfg Config, logger logrus.FieldLogger) (*Renderer, error) {
	if cfg.Ramp == nil {
		cfg.Ramp = DefaultRamp()
	}
	if cfg.Blend == "" {
		cfg.Blend = BlendMultiply
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = applog.NullLogger()
	}
	return &Renderer{
		cfg:    cfg,
		taps:   kernel(cfg.Radius, cfg.Intensity),
		logger: logger,
	}, nil
}

func (r *Renderer) checkFrame(f Frame) error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidCanvas, f.Width, f.Height)
	}
	if r.cfg.MaxPixels > 0 && f.Width*f.Height > r.cfg.MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidCanvas, f.Width, f.Height, r.cfg.MaxPixels)
	}
	if f.ScaleX <= 0 || math.IsNaN(f.ScaleX) || math.IsInf(f.ScaleX, 0) {
		return fmt.Errorf("%w: scale %v", ErrInvalidCanvas, f.ScaleX)
	}
	return nil
}

// round matches the browser's Math.round: halves go up.
func round(v float64) float64 {
	return math.Floor(v + 0.5)
}

// Accumulate splats every sample into a fresh alpha field.
func (r *Renderer) Accumulate(ctx context.Context, samples []models.GazeSample, f Frame) (*Field, error) {
	if err := r.checkFrame(f); err != nil {
		return nil, err
	}
	field := NewField(f.Width, f.Height)
	sy := f.scaleY()
	rad := float64(r.cfg.Radius)

	skipped := 0
	for i, s := range samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cx := round(s.X * f.ScaleX)
		cy := round(s.DocumentY() * sy)
		// the disc cannot touch the canvas, also filters NaN and Inf
		if !(cx > -rad-1 && cx < float64(f.Width)+rad && cy > -rad-1 && cy < float64(f.Height)+rad) {
			skipped++
			continue
		}
		px, py := int(cx), int(cy)
		for _, t := range r.taps {
			field.add(px+t.dx, py+t.dy, t.w)
		}
	}
	if skipped > 0 {
		r.logger.WithField("skipped", skipped).Debug("samples outside canvas")
	}
	return field, nil
}

// Colorize maps every accumulated alpha through the ramp. Untouched pixels
// stay fully transparent.
func (r *Renderer) Colorize(field *Field) *image.NRGBA {
	heat := image.NewNRGBA(image.Rect(0, 0, field.Width, field.Height))
	for i, v := range field.acc {
		if v == 0 {
			continue
		}
		a := fromFixed(v)
		a8 := math.RoundToEven(a * 255)
		if a8 > 255 {
			a8 = 255
		}
		if a8 == 0 {
			continue
		}
		c := r.cfg.Ramp.Color(a)
		p := heat.Pix[i*4 : i*4+4 : i*4+4]
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, uint8(a8)
	}
	return heat
}

// Canvas returns a white canvas with bg drawn at the origin. A nil bg
// leaves the canvas white.
func Canvas(f Frame, bg image.Image) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if bg != nil {
		draw.Draw(canvas, bg.Bounds().Sub(bg.Bounds().Min), bg, bg.Bounds().Min, draw.Over)
	}
	return canvas
}

// Render draws the background and the heat layer into a new canvas. The
// inputs are never modified.
func (r *Renderer) Render(ctx context.Context, samples []models.GazeSample, bg image.Image, f Frame) (*image.NRGBA, error) {
	field, err := r.Accumulate(ctx, samples, f)
	if err != nil {
		return nil, err
	}
	heat := r.Colorize(field)
	canvas := Canvas(f, bg)
	Composite(canvas, heat, r.cfg.Blend, r.cfg.Opacity)

	r.logger.WithFields(logrus.Fields{
		"samples": len(samples),
		"width":   f.Width,
		"height":  f.Height,
	}).Debug("heatmap rendered")
	return canvas, nil
}

// Composite draws src over dst with the given separable blend mode and a
// global opacity, following the W3C compositing model. Both images share
// the origin; pixels outside the overlap are left alone.
func Composite(dst, src *image.NRGBA, mode BlendMode, opacity float64) {
	if opacity <= 0 {
		return
	}
	if opacity > 1 {
		opacity = 1
	}
	blend := blendFunc(mode)
	area := dst.Bounds().Intersect(src.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			si := src.PixOffset(x, y)
			sp := src.Pix[si : si+4 : si+4]
			if sp[3] == 0 {
				continue
			}
			as := float64(sp[3]) / 255 * opacity
			di := dst.PixOffset(x, y)
			dp := dst.Pix[di : di+4 : di+4]
			ab := float64(dp[3]) / 255
			ao := as + ab*(1-as)
			if ao == 0 {
				continue
			}
			for c := 0; c < 3; c++ {
				cs := float64(sp[c]) / 255
				cb := float64(dp[c]) / 255
				mixed := (1-ab)*cs + ab*blend(cb, cs)
				co := as*mixed + ab*cb*(1-as)
				dp[c] = to8(co / ao)
			}
			dp[3] = to8(ao)
		}
	}
}

func blendFunc(mode BlendMode) func(cb, cs float64) float64 {
	switch mode {
	case BlendSourceOver:
		return func(_, cs float64) float64 { return cs }
	case BlendScreen:
		return func(cb, cs float64) float64 { return cb + cs - cb*cs }
	default:
		return func(cb, cs float64) float64 { return cb * cs }
	}
}

func to8(v float64) uint8 {
	v = math.Round(v * 255)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
