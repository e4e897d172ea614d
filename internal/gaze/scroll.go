package gaze

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// ScrollPositionSource reports the current vertical scroll offset of a page.
type ScrollPositionSource interface {
	Current() float64
}

// ScrollTracker keeps only the most recent scroll offset. It is fed by
// scroll events (Observe) and by a periodic poll of a source that may miss
// events (Poll). Safe for concurrent use.
type ScrollTracker struct {
	bits atomic.Uint64
}

// Observe records y as the latest offset.
func (t *ScrollTracker) Observe(y float64) {
	t.bits.Store(math.Float64bits(y))
}

// Current returns the latest offset, 0 before anything was observed.
func (t *ScrollTracker) Current() float64 {
	return math.Float64frombits(t.bits.Load())
}

// Poll reads src every interval and records the value whenever it differs
// from the previous poll, so a stale poll never overwrites a newer event.
// Blocks until ctx is done.
func (t *ScrollTracker) Poll(ctx context.Context, src ScrollPositionSource, interval time.Duration, clock Clock) {
	if clock == nil {
		clock = RealClock()
	}
	last := src.Current()
	t.Observe(last)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if y := src.Current(); y != last {
				last = y
				t.Observe(y)
			}
		}
	}
}
