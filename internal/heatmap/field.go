package heatmap

import "math"

// Alpha is accumulated in 8.24 fixed point so that the clamped running sum
// is exactly the same for every sample order.
const (
	fixedShift = 24
	fixedOne   = uint32(1) << fixedShift
)

func toFixed(v float64) uint32 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return fixedOne
	}
	return uint32(math.Round(v * float64(fixedOne)))
}

func fromFixed(v uint32) float64 {
	return float64(v) / float64(fixedOne)
}

// Field is the per-pixel alpha accumulation buffer of one render pass.
type Field struct {
	Width  int
	Height int
	acc    []uint32
}

// NewField returns a cleared field.
func NewField(width, height int) *Field {
	return &Field{Width: width, Height: height, acc: make([]uint32, width*height)}
}

// add accumulates v at (x, y), clamping at 1. Out of range pixels are ignored.
func (f *Field) add(x, y int, v uint32) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := y*f.Width + x
	sum := f.acc[i] + v // both <= 1<<24, cannot overflow
	if sum > fixedOne {
		sum = fixedOne
	}
	f.acc[i] = sum
}

// Alpha returns the accumulated alpha at (x, y) in [0, 1].
func (f *Field) Alpha(x, y int) float64 {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0
	}
	return fromFixed(f.acc[y*f.Width+x])
}

// tap is one integer offset of the splat disc with its falloff weight.
type tap struct {
	dx, dy int
	w      uint32
}

// kernel lists the disc offsets dx²+dy² <= R² with weight I*(1-d/R).
// Offsets on the rim have zero weight and are omitted.
func kernel(radius int, intensity float64) []tap {
	taps := make([]tap, 0, (2*radius+1)*(2*radius+1))
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			d := math.Sqrt(float64(dx*dx + dy*dy))
			w := toFixed(intensity * (1 - d/float64(radius)))
			if w == 0 {
				continue
			}
			taps = append(taps, tap{dx: dx, dy: dy, w: w})
		}
	}
	return taps
}
