package models

import (
	"time"

	"gopkg.in/guregu/null.v3"
)

// GazeSample is one observation from the eye tracker.
// X and Y are viewport-relative; ScrollY is the page offset at capture time.
type GazeSample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds
	ScrollY   float64 `json:"scrollY"`
}

// DocumentY projects the sample into full-document coordinates.
func (s GazeSample) DocumentY() float64 {
	return s.Y + s.ScrollY
}

// Session status constants
const (
	SessionStatusRecording = "recording"
	SessionStatusCompleted = "completed"
)

// SessionRecord is the artifact handed from collection to rendering.
// JSON field names follow the browser client's stored analysis blob.
type SessionRecord struct {
	ID             string       `json:"id"`
	URL            string       `json:"url"`
	Samples        []GazeSample `json:"gazeData"`
	SampleCount    int          `json:"sampleCount"`
	AnalysisTime   int          `json:"analysisTime"` // nominal duration, seconds
	Timestamp      int64        `json:"timestamp"`    // capture instant, Unix milliseconds
	PageHeight     int          `json:"pageHeight"`   // document height in CSS pixels
	ViewportWidth  null.Int     `json:"viewportWidth"`
	ViewportHeight null.Int     `json:"viewportHeight"`
	Status         string       `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Frozen reports whether the record no longer accepts samples.
func (r *SessionRecord) Frozen() bool {
	return r.Status == SessionStatusCompleted
}

// CapturedAt returns the capture instant as a time.Time.
func (r *SessionRecord) CapturedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Clone returns a deep copy so readers never share the sample slice.
func (r *SessionRecord) Clone() *SessionRecord {
	c := *r
	c.Samples = append([]GazeSample(nil), r.Samples...)
	return &c
}
