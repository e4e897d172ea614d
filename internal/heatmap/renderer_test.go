package heatmap

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/jengzang/gazemap-backend-go/internal/models"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(DefaultConfig(), nil)
	require.NoError(t, err)
	return r
}

func unitFrame(w, h int) Frame {
	return Frame{Width: w, Height: h, ScaleX: 1}
}

func opaqueBackground(w, h int) *image.NRGBA {
	bg := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bg.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return bg
}

func TestRender_ThreeSampleScenario(t *testing.T) {
	r := newTestRenderer(t)
	samples := []models.GazeSample{
		{X: 100, Y: 100},
		{X: 100, Y: 100},
		{X: 500, Y: 500},
	}
	field, err := r.Accumulate(context.Background(), samples, unitFrame(1000, 1000))
	require.NoError(t, err)

	assert.InDelta(t, 0.8, field.Alpha(100, 100), 1e-6)
	assert.InDelta(t, 0.4, field.Alpha(500, 500), 1e-6)

	heat := r.Colorize(field)
	c := heat.NRGBAAt(100, 100)
	assert.Equal(t, color.NRGBA{R: 255, G: 0, B: 0, A: 204}, c)
	c = heat.NRGBAAt(500, 500)
	assert.Equal(t, color.NRGBA{R: 0, G: 255, B: 0, A: 102}, c)

	// farther than R from both centers
	for _, p := range []image.Point{{100, 141}, {141, 100}, {0, 0}, {999, 999}, {300, 300}, {500, 541}} {
		assert.Equal(t, 0.0, field.Alpha(p.X, p.Y), "pixel %v", p)
		assert.Equal(t, color.NRGBA{}, heat.NRGBAAt(p.X, p.Y), "pixel %v", p)
	}
}

func TestRender_NoSamplesLeavesBackground(t *testing.T) {
	r := newTestRenderer(t)
	bg := opaqueBackground(64, 48)

	out, err := r.Render(context.Background(), nil, bg, unitFrame(64, 48))
	require.NoError(t, err)
	assert.Equal(t, bg.Pix, out.Pix)
}

func TestRender_DoesNotModifyBackground(t *testing.T) {
	r := newTestRenderer(t)
	bg := opaqueBackground(64, 64)
	before := append([]uint8(nil), bg.Pix...)

	out, err := r.Render(context.Background(), []models.GazeSample{{X: 32, Y: 32}}, bg, unitFrame(64, 64))
	require.NoError(t, err)
	assert.Equal(t, before, bg.Pix)
	assert.NotEqual(t, bg.Pix, out.Pix)
}

func TestRender_OutOfBoundsSamplesContributeNothing(t *testing.T) {
	r := newTestRenderer(t)
	samples := []models.GazeSample{
		{X: -500, Y: 10},
		{X: 10, Y: 5000},
		{X: 10, Y: 10, ScrollY: -1000},
		{X: 1e300, Y: 1e300},
	}
	field, err := r.Accumulate(context.Background(), samples, unitFrame(200, 200))
	require.NoError(t, err)
	for _, v := range field.acc {
		require.Zero(t, v)
	}
}

func TestRender_PartiallyClippedDisc(t *testing.T) {
	r := newTestRenderer(t)
	field, err := r.Accumulate(context.Background(), []models.GazeSample{{X: 0, Y: 0}}, unitFrame(100, 100))
	require.NoError(t, err)

	assert.InDelta(t, 0.4, field.Alpha(0, 0), 1e-6)
	assert.InDelta(t, 0.4*(1-10.0/40), field.Alpha(10, 0), 1e-6)
}

func TestRender_ScrollProjectsIntoDocument(t *testing.T) {
	r := newTestRenderer(t)
	// the viewport position alone would land outside a 100px viewport
	field, err := r.Accumulate(context.Background(),
		[]models.GazeSample{{X: 50, Y: 20, ScrollY: 800}}, unitFrame(100, 1000))
	require.NoError(t, err)

	assert.InDelta(t, 0.4, field.Alpha(50, 820), 1e-6)
	assert.Zero(t, field.Alpha(50, 20))
}

func TestRender_OrderIndependent(t *testing.T) {
	r := newTestRenderer(t)
	rng := rand.New(rand.NewSource(7))
	samples := make([]models.GazeSample, 200)
	for i := range samples {
		samples[i] = models.GazeSample{
			X:       rng.Float64() * 300,
			Y:       rng.Float64() * 200,
			ScrollY: float64(rng.Intn(3)) * 50,
		}
	}
	bg := opaqueBackground(300, 300)
	frame := unitFrame(300, 300)

	want, err := r.Render(context.Background(), samples, bg, frame)
	require.NoError(t, err)

	for round := 0; round < 3; round++ {
		shuffled := append([]models.GazeSample(nil), samples...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := r.Render(context.Background(), shuffled, bg, frame)
		require.NoError(t, err)
		require.Equal(t, want.Pix, got.Pix)
	}
}

func TestRender_SingleDiscFalloff(t *testing.T) {
	r := newTestRenderer(t)
	field, err := r.Accumulate(context.Background(), []models.GazeSample{{X: 100, Y: 100}}, unitFrame(200, 200))
	require.NoError(t, err)

	prev := field.Alpha(100, 100)
	assert.Greater(t, prev, 0.0)
	for d := 1; d < DefaultRadius; d++ {
		a := field.Alpha(100+d, 100)
		assert.Less(t, a, prev, "distance %d", d)
		assert.Equal(t, a, field.Alpha(100, 100-d), "symmetry at %d", d)
		prev = a
	}
	assert.Zero(t, field.Alpha(100+DefaultRadius, 100))
	assert.Zero(t, field.Alpha(100+DefaultRadius+1, 100))
	// diagonal just outside the disc: 29²+29² > 40²
	assert.Zero(t, field.Alpha(129, 129))
}

func TestRender_TwoSamplesClampedSum(t *testing.T) {
	r := newTestRenderer(t)
	frame := unitFrame(200, 200)
	a := models.GazeSample{X: 90, Y: 100}
	b := models.GazeSample{X: 110, Y: 100}

	fa, err := r.Accumulate(context.Background(), []models.GazeSample{a}, frame)
	require.NoError(t, err)
	fb, err := r.Accumulate(context.Background(), []models.GazeSample{b}, frame)
	require.NoError(t, err)
	fab, err := r.Accumulate(context.Background(), []models.GazeSample{a, b}, frame)
	require.NoError(t, err)

	for x := 60; x < 140; x++ {
		a1, a2 := fa.Alpha(x, 100), fb.Alpha(x, 100)
		got := fab.Alpha(x, 100)
		want := a1 + a2
		if want > 1 {
			want = 1
		}
		assert.InDelta(t, want, got, 1e-7)
		assert.LessOrEqual(t, got, 1.0)
		assert.GreaterOrEqual(t, got, a1)
		assert.GreaterOrEqual(t, got, a2)
	}

	// many samples on one pixel saturate at exactly 1
	stack := make([]models.GazeSample, 10)
	for i := range stack {
		stack[i] = a
	}
	fs, err := r.Accumulate(context.Background(), stack, frame)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fs.Alpha(90, 100))
	assert.Equal(t, uint8(255), r.Colorize(fs).NRGBAAt(90, 100).A)
}

func TestRender_ScaleX(t *testing.T) {
	r := newTestRenderer(t)
	frame := Frame{Width: 400, Height: 400, ScaleX: 2}
	field, err := r.Accumulate(context.Background(), []models.GazeSample{{X: 50.3, Y: 40, ScrollY: 10}}, frame)
	require.NoError(t, err)

	// scaleY defaults to scaleX, 100.6 rounds to 101
	assert.InDelta(t, 0.4, field.Alpha(101, 100), 1e-6)
}

func TestRender_InvalidCanvas(t *testing.T) {
	r := newTestRenderer(t)
	_, err := r.Render(context.Background(), nil, nil, unitFrame(0, 10))
	assert.ErrorIs(t, err, ErrInvalidCanvas)

	_, err = r.Render(context.Background(), nil, nil, Frame{Width: 10, Height: 10})
	assert.ErrorIs(t, err, ErrInvalidCanvas)

	cfg := DefaultConfig()
	cfg.MaxPixels = 100
	small, err := NewRenderer(cfg, nil)
	require.NoError(t, err)
	_, err = small.Render(context.Background(), nil, nil, unitFrame(20, 20))
	assert.ErrorIs(t, err, ErrInvalidCanvas)
}

func TestRender_Cancelled(t *testing.T) {
	r := newTestRenderer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Render(ctx, []models.GazeSample{{X: 1, Y: 1}}, nil, unitFrame(10, 10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRenderer_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"radius":    func(c *Config) { c.Radius = 0 },
		"huge":      func(c *Config) { c.Radius = 1 << 30 },
		"maxRadius": func(c *Config) { c.MaxRadius = 16; c.Radius = 17 },
		"intensity": func(c *Config) { c.Intensity = 1.5 },
		"opacity":   func(c *Config) { c.Opacity = -0.1 },
		"blend":     func(c *Config) { c.Blend = "overlay" },
		"ramp": func(c *Config) {
			c.Ramp = Ramp{{At: 0.5, Color: Red}, {At: 0.1, Color: Blue}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewRenderer(cfg, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_RadiusAtLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = DefaultMaxRadius
	assert.NoError(t, cfg.Validate())

	cfg.Radius = DefaultMaxRadius + 1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.MaxRadius = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestComposite_MultiplyOverWhite(t *testing.T) {
	dst := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	dst.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	Composite(dst, src, BlendMultiply, 0.7)

	// red * white = red, mixed at 70%: G and B drop to 0.3
	got := dst.NRGBAAt(0, 0)
	assert.Equal(t, uint8(255), got.R)
	assert.InDelta(t, 76.5, float64(got.G), 0.5)
	assert.Equal(t, got.G, got.B)
	assert.Equal(t, uint8(255), got.A)
}

func TestComposite_MultiplyDarkens(t *testing.T) {
	dst := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	dst.SetNRGBA(0, 0, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})

	Composite(dst, src, BlendMultiply, 1)

	assert.Equal(t, color.NRGBA{R: 0, G: 128, B: 0, A: 255}, dst.NRGBAAt(0, 0))
}

func TestComposite_ZeroOpacityIsIdentity(t *testing.T) {
	dst := opaqueBackground(4, 4)
	before := append([]uint8(nil), dst.Pix...)
	src := opaqueBackground(4, 4)

	Composite(dst, src, BlendSourceOver, 0)
	assert.Equal(t, before, dst.Pix)
}

func TestComposite_Screen(t *testing.T) {
	dst := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	dst.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 255, A: 255})

	Composite(dst, src, BlendScreen, 1)
	assert.Equal(t, color.NRGBA{R: 0, G: 0, B: 255, A: 255}, dst.NRGBAAt(0, 0))
}

func TestFrameFor(t *testing.T) {
	t.Run("background wider than viewport", func(t *testing.T) {
		rec := &models.SessionRecord{PageHeight: 3000, ViewportWidth: null.IntFrom(1000)}
		f, err := FrameFor(rec, image.NewNRGBA(image.Rect(0, 0, 2000, 1200)))
		require.NoError(t, err)
		assert.Equal(t, Frame{Width: 2000, Height: 6000, ScaleX: 2, ScaleY: 2}, f)
	})

	t.Run("background taller than document", func(t *testing.T) {
		rec := &models.SessionRecord{PageHeight: 500}
		f, err := FrameFor(rec, image.NewNRGBA(image.Rect(0, 0, 800, 900)))
		require.NoError(t, err)
		assert.Equal(t, Frame{Width: 800, Height: 900, ScaleX: 1, ScaleY: 1}, f)
	})

	t.Run("no background falls back to viewport", func(t *testing.T) {
		rec := &models.SessionRecord{ViewportWidth: null.IntFrom(1440), ViewportHeight: null.IntFrom(900)}
		f, err := FrameFor(rec, nil)
		require.NoError(t, err)
		assert.Equal(t, Frame{Width: 1440, Height: 1800, ScaleX: 1, ScaleY: 1}, f)
	})

	t.Run("nothing known", func(t *testing.T) {
		_, err := FrameFor(&models.SessionRecord{}, nil)
		assert.ErrorIs(t, err, ErrInvalidCanvas)
	})
}

func TestParseBlendMode(t *testing.T) {
	m, err := ParseBlendMode("")
	require.NoError(t, err)
	assert.Equal(t, BlendMultiply, m)

	m, err = ParseBlendMode("screen")
	require.NoError(t, err)
	assert.Equal(t, BlendScreen, m)

	_, err = ParseBlendMode("darken")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
