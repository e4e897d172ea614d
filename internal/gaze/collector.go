package gaze

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	applog "github.com/jengzang/gazemap-backend-go/internal/logger"
	"github.com/jengzang/gazemap-backend-go/internal/models"
)

// ErrSourceNotReady is reported to users when a session cannot start
// because the gaze source has not initialised.
var ErrSourceNotReady = errors.New("gaze source not ready")

// Point is a viewport-relative gaze coordinate. ScrollY, when set, is the
// page offset the point was seen at and wins over the scroll source.
type Point struct {
	X       float64
	Y       float64
	ScrollY *float64
}

// GazeSource pushes gaze coordinates at irregular intervals once ready.
type GazeSource interface {
	Ready() bool
	Samples() <-chan Point
}

// Options configures a Collector. Zero values are valid.
type Options struct {
	Clock Clock
	// TickInterval is the countdown granularity, one second by default.
	TickInterval time.Duration
	// OnTick is called after every countdown step with the seconds left.
	OnTick func(remaining int)
	// OnComplete is called once with the frozen samples when the countdown ends.
	OnComplete func(samples []models.GazeSample)
	Logger     logrus.FieldLogger
}

// Collector records gaze samples into a session for a fixed duration.
// Samples arriving outside an active session are dropped.
type Collector struct {
	source GazeSource
	scroll ScrollPositionSource
	clock  Clock
	tick   time.Duration
	logger logrus.FieldLogger

	onTick     func(int)
	onComplete func([]models.GazeSample)

	mu        sync.Mutex
	samples   []models.GazeSample
	active    bool
	complete  bool
	remaining int
	ticker    Ticker
	stop      chan struct{}
	done      chan struct{}
	dropped   int
}

// NewCollector wires a collector to its gaze and scroll sources.
func NewCollector(source GazeSource, scroll ScrollPositionSource, opts Options) *Collector {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = applog.NullLogger()
	}
	return &Collector{
		source:     source,
		scroll:     scroll,
		clock:      opts.Clock,
		tick:       opts.TickInterval,
		logger:     opts.Logger,
		onTick:     opts.OnTick,
		onComplete: opts.OnComplete,
		done:       make(chan struct{}),
	}
}

// Start clears previous samples and opens a session of durationSeconds.
// It returns false and does nothing when the source is not ready, a
// session is already running, or the duration is not positive.
func (c *Collector) Start(durationSeconds int) bool {
	if durationSeconds <= 0 || !c.source.Ready() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return false
	}

	c.samples = nil
	c.dropped = 0
	c.active = true
	c.complete = false
	c.remaining = durationSeconds
	c.ticker = c.clock.NewTicker(c.tick)
	c.stop = make(chan struct{})
	// Done of a completed session stays closed until the next start
	select {
	case <-c.done:
		c.done = make(chan struct{})
	default:
	}

	go c.countdown(c.ticker, c.stop)

	c.logger.WithField("duration", durationSeconds).Info("gaze session started")
	return true
}

func (c *Collector) countdown(t Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if c.step(stop) {
				return
			}
		}
	}
}

// step decrements the countdown of the session identified by stop and
// reports whether that session ended.
func (c *Collector) step(stop chan struct{}) bool {
	c.mu.Lock()
	if !c.active || c.stop != stop {
		c.mu.Unlock()
		return true
	}
	c.remaining--
	remaining := c.remaining
	finished := remaining <= 0

	var frozen []models.GazeSample
	var done chan struct{}
	if finished {
		c.active = false
		c.complete = true
		c.ticker.Stop()
		frozen = append([]models.GazeSample(nil), c.samples...)
		done = c.done
		c.logger.WithFields(logrus.Fields{
			"samples": len(frozen),
			"dropped": c.dropped,
		}).Info("gaze session complete")
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if finished {
		if c.onComplete != nil {
			c.onComplete(frozen)
		}
		close(done)
	}
	return finished
}

// OnSample appends a sample stamped with the current time and the latest
// scroll offset. Returns false when no session is active.
func (c *Collector) OnSample(x, y float64) bool {
	return c.record(x, y, c.scroll.Current())
}

func (c *Collector) record(x, y, scrollY float64) bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		c.dropped++
		return false
	}
	c.samples = append(c.samples, models.GazeSample{
		X:         x,
		Y:         y,
		Timestamp: now.UnixMilli(),
		ScrollY:   scrollY,
	})
	return true
}

// Consume drains the gaze source into the collector until ctx is done or
// the source channel is closed.
func (c *Collector) Consume(ctx context.Context) error {
	points := c.source.Samples()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-points:
			if !ok {
				return nil
			}
			if p.ScrollY != nil {
				c.record(p.X, p.Y, *p.ScrollY)
			} else {
				c.OnSample(p.X, p.Y)
			}
		}
	}
}

// Done is closed when the current session completes.
func (c *Collector) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Active reports whether samples are being accepted.
func (c *Collector) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Remaining returns the seconds left in the countdown.
func (c *Collector) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Samples returns a copy of the samples collected so far.
func (c *Collector) Samples() []models.GazeSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.GazeSample(nil), c.samples...)
}

// Snapshot returns the frozen samples of a completed session.
func (c *Collector) Snapshot() ([]models.GazeSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete {
		return nil, false
	}
	return append([]models.GazeSample(nil), c.samples...), true
}

// Close stops a running countdown without completing the session. The
// collected samples are kept but never reported as complete.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.active = false
	c.ticker.Stop()
	close(c.stop)
}
