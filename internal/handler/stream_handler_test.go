package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/gazemap-backend-go/internal/gaze"
	"github.com/jengzang/gazemap-backend-go/internal/models"
)

// manualClock hands out tickers that fire only when tick is called.
type manualClock struct {
	c chan time.Time
}

type manualTicker struct {
	c chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               {}

func newManualClock() *manualClock {
	return &manualClock{c: make(chan time.Time)}
}

func (m *manualClock) Now() time.Time { return time.Now() }

func (m *manualClock) NewTicker(time.Duration) gaze.Ticker {
	return &manualTicker{c: m.c}
}

func (m *manualClock) tick(t *testing.T) {
	t.Helper()
	select {
	case m.c <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("ticker not being read")
	}
}

func dialStream(t *testing.T, f *fixture, id string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func startSession(t *testing.T, f *fixture) *models.SessionRecord {
	t.Helper()
	w := f.do(t, http.MethodPost, "/sessions", gin.H{"url": "https://example.com", "analysisTime": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec models.SessionRecord
	decode(t, w, &rec)
	return &rec
}

func TestStreamHandler_CollectsAndPersists(t *testing.T) {
	clk := newManualClock()
	f := newFixture(t, StreamOptions{Clock: clk, QueueSize: 16})
	rec := startSession(t, f)

	conn, _, err := dialStream(t, f, rec.ID)
	require.NoError(t, err)

	// start before the source is ready is refused
	require.NoError(t, conn.WriteJSON(gin.H{"type": "start"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, gaze.ErrSourceNotReady.Error(), frame["error"])

	require.NoError(t, conn.WriteJSON(gin.H{"type": "ready", "pageHeight": 2400}))
	require.NoError(t, conn.WriteJSON(gin.H{"type": "scroll", "scrollY": 300}))
	require.NoError(t, conn.WriteJSON(gin.H{"type": "start"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "started", frame["type"])
	assert.Equal(t, 2.0, frame["remaining"])

	for i := 0; i < 4; i++ {
		require.NoError(t, conn.WriteJSON(gin.H{"type": "gaze", "x": 10 * i, "y": 20}))
	}
	// let the collector drain the queue
	time.Sleep(100 * time.Millisecond)

	clk.tick(t)
	frame = readFrame(t, conn)
	assert.Equal(t, "tick", frame["type"])
	assert.Equal(t, 1.0, frame["remaining"])

	clk.tick(t)
	frame = readFrame(t, conn)
	assert.Equal(t, "tick", frame["type"])
	assert.Equal(t, 0.0, frame["remaining"])

	frame = readFrame(t, conn)
	require.Equal(t, "complete", frame["type"], frame)
	assert.Equal(t, rec.ID, frame["sessionId"])
	assert.Len(t, frame["samples"], 4)

	var closeErr error
	for closeErr == nil {
		_, _, closeErr = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(closeErr, websocket.CloseNormalClosure), closeErr)

	// 4 samples persisted in batches of at most 3
	got, err := f.sessions.Get(rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Frozen())
	assert.Equal(t, 2400, got.PageHeight)
	require.Len(t, got.Samples, 4)
	for _, s := range got.Samples {
		assert.Equal(t, 300.0, s.ScrollY)
	}
}

func TestStreamHandler_GazeFramesKeepTheirScrollOffset(t *testing.T) {
	clk := newManualClock()
	f := newFixture(t, StreamOptions{Clock: clk, QueueSize: 16})
	rec := startSession(t, f)

	conn, _, err := dialStream(t, f, rec.ID)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "ready"}))
	require.NoError(t, conn.WriteJSON(gin.H{"type": "start"}))
	frame := readFrame(t, conn)
	require.Equal(t, "started", frame["type"], frame)

	offsets := []float64{0, 500, 1000, 250}
	for i, y := range offsets {
		require.NoError(t, conn.WriteJSON(gin.H{"type": "gaze", "x": i, "y": 10, "scrollY": y}))
	}
	// no offset of its own: the latest one applies
	require.NoError(t, conn.WriteJSON(gin.H{"type": "gaze", "x": 9, "y": 10}))
	time.Sleep(100 * time.Millisecond)

	clk.tick(t)
	readFrame(t, conn)
	clk.tick(t)
	readFrame(t, conn)
	frame = readFrame(t, conn)
	require.Equal(t, "complete", frame["type"], frame)

	got, err := f.sessions.Get(rec.ID)
	require.NoError(t, err)
	require.Len(t, got.Samples, 5)
	for i, y := range offsets {
		assert.Equal(t, y, got.Samples[i].ScrollY, "sample %d", i)
		assert.Equal(t, 10+y, got.Samples[i].DocumentY(), "sample %d", i)
	}
	assert.Equal(t, 250.0, got.Samples[4].ScrollY)
}

func TestStreamHandler_ReadyDeadline(t *testing.T) {
	f := newFixture(t, StreamOptions{ReadyDeadline: 20 * time.Millisecond})
	rec := startSession(t, f)

	conn, _, err := dialStream(t, f, rec.ID)
	require.NoError(t, err)

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, gaze.ErrSourceNotReady.Error(), frame["error"])
}

func TestStreamHandler_RejectsFrozenSession(t *testing.T) {
	f := newFixture(t, StreamOptions{})
	rec := importRecord(t, f, nil)

	_, resp, err := dialStream(t, f, rec.ID)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, resp, err = dialStream(t, f, "missing")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
