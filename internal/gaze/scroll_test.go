package gaze

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrollTracker_LastValueWins(t *testing.T) {
	var tr ScrollTracker
	assert.Equal(t, 0.0, tr.Current())

	tr.Observe(120)
	tr.Observe(80.5)
	assert.Equal(t, 80.5, tr.Current())
}

func TestScrollTracker_Poll(t *testing.T) {
	var tr ScrollTracker
	src := &fixedScroll{y: 40}
	clock := newFakeClock()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		tr.Poll(ctx, src, 100*time.Millisecond, clock)
		close(finished)
	}()

	require.Eventually(t, func() bool {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		return len(clock.tickers) == 1
	}, time.Second, time.Millisecond)
	ticker := clock.ticker(0)
	assert.Equal(t, 40.0, tr.Current())

	// an event newer than the last poll survives an unchanged poll
	tr.Observe(75)
	ticker.c <- clock.Now()
	ticker.c <- clock.Now()
	assert.Equal(t, 75.0, tr.Current())

	src.Set(300)
	ticker.c <- clock.Now()
	require.Eventually(t, func() bool { return tr.Current() == 300 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("poll did not stop")
	}
	assert.True(t, ticker.Stopped())
}
