package export

import (
	"bytes"
	"errors"
	"fmt"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/jengzang/gazemap-backend-go/internal/models"
)

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("no data to chart")

// MaxChartSide caps the width and height of a depth chart.
const MaxChartSide = 2048

var barStyle = chart.Style{
	FillColor:   drawing.ColorFromHex("e4572e"),
	StrokeColor: drawing.ColorFromHex("a33a1d"),
	StrokeWidth: 1,
}

// DepthChart renders a PNG bar chart of gaze samples per document band.
func DepthChart(bands []models.DepthBand, width, height int) ([]byte, error) {
	maxCount := 0
	bars := make([]chart.Value, 0, len(bands))
	for _, b := range bands {
		if b.Count > maxCount {
			maxCount = b.Count
		}
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%d", b.From),
			Value: float64(b.Count),
			Style: barStyle,
		})
	}
	if maxCount == 0 {
		return nil, ErrNoData
	}
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 400
	}
	width = min(width, MaxChartSide)
	height = min(height, MaxChartSide)

	barWidth := width / (2 * len(bars))
	if barWidth < 4 {
		barWidth = 4
	}
	bc := chart.BarChart{
		Title:      "Gaze points by page depth (px)",
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(maxCount)},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render depth chart: %w", err)
	}
	return buf.Bytes(), nil
}
