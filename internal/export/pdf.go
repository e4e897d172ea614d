package export

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/jengzang/gazemap-backend-go/internal/models"
)

const (
	// maxPageSide is the largest page dimension PDF readers accept, in points.
	maxPageSide  = 14400.0
	headerHeight = 110.0
	minPageWidth = 420.0
)

// pageLayout places the raster below the header at one point per pixel,
// scaled down uniformly when the page would exceed maxPageSide.
func pageLayout(imgW, imgH int) (pageW, pageH, drawW, drawH float64) {
	drawW, drawH = float64(imgW), float64(imgH)
	scale := math.Min(1, math.Min(maxPageSide/drawW, (maxPageSide-headerHeight)/drawH))
	drawW *= scale
	drawH *= scale

	pageW = math.Max(drawW, minPageWidth)
	pageH = headerHeight + drawH
	return pageW, pageH, drawW, drawH
}

// WritePDF writes a single-page document to w: a text header with the
// session URL, capture time, duration and sample count above the raster.
func WritePDF(w io.Writer, rec *models.SessionRecord, img image.Image) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("write pdf: empty image")
	}
	pageW, pageH, drawW, drawH := pageLayout(b.Dx(), b.Dy())

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Gaze heatmap", true)
	pdf.SetCreator("gazemap", true)
	pdf.AddPage()

	// core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Text(16, 28, "Gaze heatmap")
	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		"URL: " + rec.URL,
		"Captured: " + rec.CapturedAt().UTC().Format(time.RFC1123),
		fmt.Sprintf("Duration: %d s", rec.AnalysisTime),
		fmt.Sprintf("Gaze points: %d", len(rec.Samples)),
	}
	for i, line := range lines {
		pdf.Text(16, 50+float64(i)*15, tr(line))
	}

	data, err := EncodePNG(img)
	if err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	opt := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("heatmap", opt, bytes.NewReader(data))
	pdf.ImageOptions("heatmap", (pageW-drawW)/2, headerHeight, drawW, drawH, false, opt, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
