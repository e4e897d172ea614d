package export

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/gazemap-backend-go/internal/models"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 3), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func TestEncodePNG_RoundTripIsPixelIdentical(t *testing.T) {
	img := testImage(90, 60)
	// a translucent pixel must survive as well
	img.SetNRGBA(3, 4, color.NRGBA{R: 255, G: 0, B: 0, A: 102})

	data, err := EncodePNG(img)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), decoded.Bounds())

	nrgba, ok := decoded.(*image.NRGBA)
	require.True(t, ok, "decoded as %T", decoded)
	assert.Equal(t, img.Pix, nrgba.Pix)
}

func TestEncodePNG_BuffersAreNotShared(t *testing.T) {
	a, err := EncodePNG(testImage(10, 10))
	require.NoError(t, err)
	snapshot := append([]byte(nil), a...)

	_, err = EncodePNG(testImage(20, 20))
	require.NoError(t, err)
	assert.Equal(t, snapshot, a)
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(testImage(32, 32), 0)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
}

func TestEncode_RejectsPDF(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, FormatPDF, testImage(1, 1), 0))
}

func TestWritePDF(t *testing.T) {
	rec := &models.SessionRecord{
		URL:          "https://example.com/страница",
		AnalysisTime: 30,
		Timestamp:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		Samples:      []models.GazeSample{{X: 1, Y: 2}},
	}
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, rec, testImage(200, 300)))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, buf.String(), "%%EOF")
}

func TestWritePDF_EmptyImage(t *testing.T) {
	var buf bytes.Buffer
	err := WritePDF(&buf, &models.SessionRecord{}, image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)
}

func TestPageLayout(t *testing.T) {
	pageW, pageH, drawW, drawH := pageLayout(1280, 4000)
	assert.Equal(t, 1280.0, pageW)
	assert.Equal(t, 4000.0+headerHeight, pageH)
	assert.Equal(t, 1280.0, drawW)
	assert.Equal(t, 4000.0, drawH)

	// very tall pages are scaled to fit
	pageW, pageH, drawW, drawH = pageLayout(500, 30000)
	assert.LessOrEqual(t, pageH, maxPageSide)
	assert.InDelta(t, 500.0/30000.0, drawW/drawH, 1e-9)
	// narrow rasters still get room for the header text
	assert.Equal(t, minPageWidth, pageW)
}

func TestCaption(t *testing.T) {
	img := testImage(300, 80)
	before := append([]uint8(nil), img.Pix...)

	out := Caption(img, "https://example.com · 42 points")
	assert.Equal(t, img.Bounds(), out.Bounds())
	assert.Equal(t, before, img.Pix)
	assert.NotEqual(t, img.Pix, out.Pix)
	// top-left corner is outside the band
	assert.Equal(t, img.NRGBAAt(0, 0), out.NRGBAAt(0, 0))

	plain := Caption(img, "  ")
	assert.Equal(t, img.Pix, plain.Pix)
}

func TestDepthChart(t *testing.T) {
	bands := []models.DepthBand{
		{From: 0, To: 500, Count: 12},
		{From: 500, To: 1000, Count: 4},
		{From: 1000, To: 1500, Count: 0},
	}
	data, err := DepthChart(bands, 640, 320)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 320, cfg.Height)
}

func TestDepthChart_SizeIsCapped(t *testing.T) {
	data, err := DepthChart([]models.DepthBand{{From: 0, To: 500, Count: 3}}, MaxChartSide+1, 1<<30)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, MaxChartSide, cfg.Width)
	assert.Equal(t, MaxChartSide, cfg.Height)
}

func TestDepthChart_NoData(t *testing.T) {
	_, err := DepthChart(nil, 0, 0)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = DepthChart([]models.DepthBand{{From: 0, To: 500}}, 0, 0)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFormats(t *testing.T) {
	f, err := ParseFormat("JPEG")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)
	assert.Equal(t, "image/jpeg", f.MIMEType())

	f, err = ParseFormat(".pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.MIMEType())

	_, err = ParseFormat("gif")
	assert.Error(t, err)

	day := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "heatmap-2024-03-09.png", FileName(FormatPNG, day))
	assert.Equal(t, "heatmap-2024-03-09.pdf", FileName(FormatPDF, day))
}
