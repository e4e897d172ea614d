package screenshot

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrConnClosed is returned for commands pending when the browser
// connection goes away.
var ErrConnClosed = errors.New("cdp connection closed")

// conn is a CDP websocket connection that matches replies to commands by
// message ID. Events are ignored.
type conn struct {
	ws     *websocket.Conn
	logger logrus.FieldLogger
	msgID  int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *cdproto.Message
	closed  chan struct{}
	err     error
}

func dial(ctx context.Context, wsURL string, logger logrus.FieldLogger) (*conn, error) {
	wd := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1 << 20,
		WriteBufferSize:  1 << 20,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %q", wsURL)
	}
	// screenshots of long pages arrive as one large base64 message
	ws.SetReadLimit(256 << 20)

	c := &conn{
		ws:      ws,
		logger:  logger,
		pending: make(map[int64]chan *cdproto.Message),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *conn) readLoop() {
	for {
		_, buf, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		var msg cdproto.Message
		if err := easyjson.Unmarshal(buf, &msg); err != nil {
			c.logger.WithError(err).Debug("ignoring malformed cdp message")
			continue
		}
		if msg.ID == 0 {
			// event
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- &msg
		}
	}
}

func (c *conn) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return
	default:
	}
	c.err = err
	close(c.closed)
}

// execute sends one command and waits for its reply. An empty session
// addresses the browser target.
func (c *conn) execute(ctx context.Context, session target.SessionID, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return errors.Wrapf(err, "marshalling %s params", method)
		}
	}

	id := atomic.AddInt64(&c.msgID, 1)
	msg := &cdproto.Message{
		ID:        id,
		SessionID: session,
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}
	payload, err := easyjson.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "marshalling %s", method)
	}

	reply := make(chan *cdproto.Message, 1)
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return errors.Wrap(ErrConnClosed, method)
	default:
	}
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "sending %s", method)
	}

	select {
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting for %s", method)
	case <-c.closed:
		return errors.Wrapf(ErrConnClosed, "waiting for %s: %v", method, c.err)
	case m := <-reply:
		if m.Error != nil {
			return errors.Wrapf(m.Error, "%s", method)
		}
		if res != nil {
			if err := easyjson.Unmarshal(m.Result, res); err != nil {
				return errors.Wrapf(err, "decoding %s result", method)
			}
		}
		return nil
	}
}

func (c *conn) Close() error {
	c.shutdown(ErrConnClosed)
	return c.ws.Close()
}

// executor routes commands of one attached target through the connection.
type executor struct {
	c       *conn
	session target.SessionID
}

var _ cdp.Executor = (*executor)(nil)

func (e *executor) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return e.c.execute(ctx, e.session, method, params, res)
}
