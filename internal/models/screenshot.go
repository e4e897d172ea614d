package models

// Screenshot is the stored background image of an analysed page.
type Screenshot struct {
	SessionID      string `json:"sessionId"`
	MIMEType       string `json:"mimeType"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	DocumentHeight int    `json:"documentHeight"` // CSS pixels reported by the page
	Data           []byte `json:"-"`
	CapturedAt     int64  `json:"capturedAt"` // Unix milliseconds
}
