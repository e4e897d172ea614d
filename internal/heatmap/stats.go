package heatmap

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/stats"
)

// DefaultBandHeight is the document height covered by one depth band.
const DefaultBandHeight = 500

const (
	// MinBandHeight is the narrowest band DepthHistogram accepts.
	MinBandHeight = 10
	// MaxDepthBands caps the number of bands of one histogram.
	MaxDepthBands = 1000

	maxHistogramDepth = 1 << 30
)

// Summarize computes the results panel statistics of a record. Positions
// are in document coordinates. Returns nil when the record has no samples.
func Summarize(rec *models.SessionRecord, bandHeight int) *models.HeatmapStats {
	n := len(rec.Samples)
	if n == 0 {
		return nil
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	scrolls := make([]float64, n)
	points := make([]r2.Point, n)
	for i, s := range rec.Samples {
		xs[i] = s.X
		ys[i] = s.DocumentY()
		scrolls[i] = s.ScrollY
		points[i] = r2.Point{X: xs[i], Y: ys[i]}
	}

	bounds := r2.RectFromPoints(points...)
	p := stats.Percentiles(scrolls, []float64{50, 90})

	result := &models.HeatmapStats{
		TotalPoints:     n,
		TotalTime:       rec.AnalysisTime,
		AveragePosition: models.Point2D{X: stats.Mean(xs), Y: stats.Mean(ys)},
		MaxScroll:       stats.Max(scrolls),
		AvgScroll:       stats.Mean(scrolls),
		ScrollP50:       p[0],
		ScrollP90:       p[1],
		Bounds: &models.AttentionBounds{
			MinX: bounds.X.Lo,
			MinY: bounds.Y.Lo,
			MaxX: bounds.X.Hi,
			MaxY: bounds.Y.Hi,
		},
		Spread:     models.Point2D{X: stats.StdDev(xs), Y: stats.StdDev(ys)},
		DepthBands: DepthHistogram(rec.Samples, rec.PageHeight, bandHeight),
	}
	if rec.AnalysisTime > 0 {
		result.Frequency = float64(n) / float64(rec.AnalysisTime)
	}
	return result
}

// DepthHistogram counts samples per document band of bandHeight pixels.
// Bands cover the page height, or the deepest sample when that is further.
// Samples above the top go into the first band, a sample exactly on the
// bottom edge into the last.
func DepthHistogram(samples []models.GazeSample, pageHeight, bandHeight int) []models.DepthBand {
	if bandHeight <= 0 {
		bandHeight = DefaultBandHeight
	}
	if bandHeight < MinBandHeight {
		bandHeight = MinBandHeight
	}
	if len(samples) == 0 {
		return nil
	}

	deepest := float64(pageHeight)
	for _, s := range samples {
		if y := s.DocumentY(); y > deepest && !math.IsInf(y, 1) {
			deepest = y
		}
	}
	if deepest > maxHistogramDepth {
		deepest = maxHistogramDepth
	}
	// widen the bands rather than allocate more than MaxDepthBands
	if deepest > float64(bandHeight)*MaxDepthBands {
		bandHeight = int(math.Ceil(deepest / MaxDepthBands))
	}
	count := int(math.Ceil(deepest / float64(bandHeight)))
	if count < 1 {
		count = 1
	}
	if count > MaxDepthBands {
		count = MaxDepthBands
	}

	bands := make([]models.DepthBand, count)
	for i := range bands {
		bands[i] = models.DepthBand{From: i * bandHeight, To: (i + 1) * bandHeight}
	}
	for _, s := range samples {
		y := s.DocumentY()
		if math.IsNaN(y) {
			continue
		}
		f := math.Floor(y / float64(bandHeight))
		i := 0
		switch {
		case f >= float64(count):
			i = count - 1
		case f > 0:
			i = int(f)
		}
		bands[i].Count++
	}
	return bands
}
