package models

// Point2D is a position in document pixels.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AttentionBounds is the document-space box enclosing all gaze samples.
type AttentionBounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// DepthBand counts samples whose document Y falls in [From, To).
type DepthBand struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Count int `json:"count"`
}

// HeatmapStats is the statistics panel shown next to a rendered heatmap.
type HeatmapStats struct {
	TotalPoints     int              `json:"totalPoints"`
	TotalTime       int              `json:"totalTime"`       // seconds
	AveragePosition Point2D          `json:"avgPosition"`     // document coordinates
	Frequency       float64          `json:"frequency"`       // samples per second
	MaxScroll       float64          `json:"maxScroll"`
	AvgScroll       float64          `json:"avgScroll"`
	ScrollP50       float64          `json:"scrollP50"`
	ScrollP90       float64          `json:"scrollP90"`
	Bounds          *AttentionBounds `json:"bounds,omitempty"`
	Spread          Point2D          `json:"spread"` // standard deviation per axis
	DepthBands      []DepthBand      `json:"depthBands,omitempty"`
}
