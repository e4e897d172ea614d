package heatmap

import (
	"image/color"
	"sort"
)

// Stop is the lower bound of one ramp bucket.
type Stop struct {
	At    float64
	Color color.NRGBA
}

// Ramp maps accumulated alpha to a discrete color. Stops are sorted by At;
// a value belongs to the last stop whose At is <= value.
type Ramp []Stop

var (
	Blue   = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	Green  = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow = color.NRGBA{R: 255, G: 255, B: 0, A: 255}
	Red    = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
)

// DefaultRamp is the blue, green, yellow, red ramp in quarter steps.
func DefaultRamp() Ramp {
	return Ramp{
		{At: 0, Color: Blue},
		{At: 0.25, Color: Green},
		{At: 0.5, Color: Yellow},
		{At: 0.75, Color: Red},
	}
}

// Color returns the bucket color for alpha. Values below the first stop use
// the first stop's color.
func (r Ramp) Color(alpha float64) color.NRGBA {
	if len(r) == 0 {
		return color.NRGBA{}
	}
	// first stop strictly greater than alpha, the bucket is the one before it
	i := sort.Search(len(r), func(i int) bool { return r[i].At > alpha })
	if i == 0 {
		return r[0].Color
	}
	return r[i-1].Color
}

func (r Ramp) sorted() bool {
	return sort.SliceIsSorted(r, func(i, j int) bool { return r[i].At < r[j].At })
}
