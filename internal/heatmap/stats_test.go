package heatmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/gazemap-backend-go/internal/models"
)

func TestSummarize(t *testing.T) {
	rec := &models.SessionRecord{
		AnalysisTime: 2,
		PageHeight:   1200,
		Samples: []models.GazeSample{
			{X: 100, Y: 100, ScrollY: 0},
			{X: 300, Y: 200, ScrollY: 400},
			{X: 200, Y: 300, ScrollY: 800},
			{X: 200, Y: 0, ScrollY: 800},
		},
	}

	s := Summarize(rec, 500)
	require.NotNil(t, s)

	assert.Equal(t, 4, s.TotalPoints)
	assert.Equal(t, 2, s.TotalTime)
	assert.Equal(t, 2.0, s.Frequency)
	assert.Equal(t, models.Point2D{X: 200, Y: 650}, s.AveragePosition)
	assert.Equal(t, 800.0, s.MaxScroll)
	assert.Equal(t, 500.0, s.AvgScroll)
	assert.Equal(t, 600.0, s.ScrollP50)
	assert.Equal(t, &models.AttentionBounds{MinX: 100, MinY: 100, MaxX: 300, MaxY: 1100}, s.Bounds)

	require.Len(t, s.DepthBands, 3)
	assert.Equal(t, []int{1, 2, 1}, []int{s.DepthBands[0].Count, s.DepthBands[1].Count, s.DepthBands[2].Count})
	assert.Equal(t, 1000, s.DepthBands[2].From)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Nil(t, Summarize(&models.SessionRecord{AnalysisTime: 10}, 0))
}

func TestSummarize_ZeroDuration(t *testing.T) {
	s := Summarize(&models.SessionRecord{Samples: []models.GazeSample{{X: 1, Y: 1}}}, 0)
	require.NotNil(t, s)
	assert.Zero(t, s.Frequency)
}

func TestDepthHistogram_SampleBelowPage(t *testing.T) {
	bands := DepthHistogram([]models.GazeSample{{Y: 50}, {Y: 100, ScrollY: 1300}, {Y: -20}}, 1000, 500)

	require.Len(t, bands, 3)
	assert.Equal(t, 2, bands[0].Count)
	assert.Equal(t, 0, bands[1].Count)
	assert.Equal(t, 1, bands[2].Count)
}

func TestDepthHistogram_NarrowBandIsClamped(t *testing.T) {
	bands := DepthHistogram([]models.GazeSample{{Y: 5}, {Y: 95}}, 100, 1)

	require.Len(t, bands, 100/MinBandHeight)
	assert.Equal(t, MinBandHeight, bands[0].To)
	assert.Equal(t, 1, bands[0].Count)
	assert.Equal(t, 1, bands[len(bands)-1].Count)
}

func TestDepthHistogram_HugeDepthIsBounded(t *testing.T) {
	samples := []models.GazeSample{{Y: 10}, {Y: 1e18}, {Y: math.MaxFloat64}}
	bands := DepthHistogram(samples, 1000, 1)

	require.NotEmpty(t, bands)
	assert.LessOrEqual(t, len(bands), MaxDepthBands)
	assert.Equal(t, 1, bands[0].Count)
	assert.Equal(t, 2, bands[len(bands)-1].Count)
}
