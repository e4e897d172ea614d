package models

// SessionFilter represents filter parameters for listing sessions
type SessionFilter struct {
	Status   string `form:"status"` // recording, completed
	URL      string `form:"url"`    // substring match
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// RenderParams are the per-request heatmap overrides. Zero values mean
// "use the configured default".
type RenderParams struct {
	Radius    int     `form:"radius"`
	Intensity float64 `form:"intensity"`
	Opacity   float64 `form:"opacity"`
	Blend     string  `form:"blend"`   // multiply, source-over, screen
	Caption   bool    `form:"caption"` // burn URL and sample count into exported rasters
	Quality   int     `form:"quality"` // JPEG only
}
