package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGazeSample_DocumentY(t *testing.T) {
	s := GazeSample{X: 10, Y: 120.5, ScrollY: 800}
	assert.Equal(t, 920.5, s.DocumentY())
}

func TestSessionRecord_DecodeClientBlob(t *testing.T) {
	blob := `{
		"url": "https://example.com",
		"gazeData": [{"x": 1.5, "y": 2, "timestamp": 1700000000000, "scrollY": 40}],
		"analysisTime": 30,
		"timestamp": 1700000030000,
		"viewportWidth": 1440,
		"pageHeight": 4200
	}`

	var rec SessionRecord
	require.NoError(t, json.Unmarshal([]byte(blob), &rec))

	assert.Equal(t, "https://example.com", rec.URL)
	require.Len(t, rec.Samples, 1)
	assert.Equal(t, 42.0, rec.Samples[0].DocumentY())
	assert.Equal(t, 30, rec.AnalysisTime)
	assert.Equal(t, 4200, rec.PageHeight)
	assert.True(t, rec.ViewportWidth.Valid)
	assert.Equal(t, int64(1440), rec.ViewportWidth.Int64)
	assert.False(t, rec.ViewportHeight.Valid)
}

func TestSessionRecord_CloneDoesNotShareSamples(t *testing.T) {
	rec := &SessionRecord{Samples: []GazeSample{{X: 1}}}
	c := rec.Clone()
	c.Samples[0].X = 99

	assert.Equal(t, 1.0, rec.Samples[0].X)
}

func TestSessionRecord_Frozen(t *testing.T) {
	rec := &SessionRecord{Status: SessionStatusRecording}
	assert.False(t, rec.Frozen())
	rec.Status = SessionStatusCompleted
	assert.True(t, rec.Frozen())
}
