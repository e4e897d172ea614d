package screenshot

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/jpeg" // background uploads may be JPEG
	_ "image/png"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNavigation is returned when the page could not be loaded.
	ErrNavigation = errors.New("navigation failed")
	// ErrUnsupportedImage is returned by Decode for anything but PNG or JPEG.
	ErrUnsupportedImage = errors.New("unsupported image format")
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 800
	// MaxCaptureHeight bounds the captured height in CSS pixels. The
	// reported document height is not capped.
	MaxCaptureHeight = 16384
)

// Request describes a page to capture.
type Request struct {
	URL    string
	Width  int
	Height int
	Scale  float64
}

// Result is a captured page.
type Result struct {
	Data           []byte
	MIMEType       string
	Width          int // pixels
	Height         int // pixels
	DocumentHeight int // CSS pixels
}

// Provider captures full-page screenshots.
type Provider interface {
	Capture(ctx context.Context, req Request) (*Result, error)
}

// CDPProvider drives a running Chrome through the DevTools protocol.
// Endpoint is either the browser websocket URL or the HTTP debugging
// address, in which case /json/version is used to find the websocket.
type CDPProvider struct {
	Endpoint string
	Timeout  time.Duration
	// PollInterval is how often document.readyState is checked.
	PollInterval time.Duration

	logger logrus.FieldLogger
	client *http.Client
}

// NewCDPProvider returns a provider for the browser at endpoint.
func NewCDPProvider(endpoint string, timeout time.Duration, logger logrus.FieldLogger) *CDPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CDPProvider{
		Endpoint:     endpoint,
		Timeout:      timeout,
		PollInterval: 100 * time.Millisecond,
		logger:       logger,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *CDPProvider) websocketURL(ctx context.Context) (string, error) {
	u, err := url.Parse(p.Endpoint)
	if err != nil {
		return "", errors.Wrapf(err, "parsing cdp endpoint %q", p.Endpoint)
	}
	switch u.Scheme {
	case "ws", "wss":
		return p.Endpoint, nil
	case "http", "https":
	default:
		return "", errors.Errorf("unsupported cdp endpoint scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(p.Endpoint, "/")+"/json/version", nil)
	if err != nil {
		return "", errors.Wrap(err, "building version request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "querying browser version")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("browser version endpoint returned %s", resp.Status)
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", errors.Wrap(err, "decoding browser version")
	}
	if version.WebSocketDebuggerURL == "" {
		return "", errors.New("browser did not report a websocket debugger url")
	}
	return version.WebSocketDebuggerURL, nil
}

// Capture opens a fresh tab, loads req.URL at the requested viewport and
// captures the whole document.
func (p *CDPProvider) Capture(ctx context.Context, req Request) (*Result, error) {
	if req.Width <= 0 {
		req.Width = DefaultWidth
	}
	if req.Height <= 0 {
		req.Height = DefaultHeight
	}
	if req.Scale <= 0 {
		req.Scale = 1
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	log := p.logger.WithField("url", req.URL)

	wsURL, err := p.websocketURL(ctx)
	if err != nil {
		return nil, err
	}
	c, err := dial(ctx, wsURL, p.logger)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	browser := &executor{c: c}
	bctx := cdp.WithExecutor(ctx, browser)

	targetID, err := target.CreateTarget("about:blank").Do(bctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating target")
	}
	defer func() {
		// the capture context may already be done
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.execute(closeCtx, "", target.CommandCloseTarget, target.CloseTarget(targetID), nil); err != nil {
			log.WithError(err).Debug("closing target")
		}
	}()

	sessionID, err := target.AttachToTarget(targetID).WithFlatten(true).Do(bctx)
	if err != nil {
		return nil, errors.Wrap(err, "attaching to target")
	}
	tctx := cdp.WithExecutor(ctx, &executor{c: c, session: sessionID})

	if err := page.Enable().Do(tctx); err != nil {
		return nil, errors.Wrap(err, "enabling page domain")
	}
	if err := setViewport(tctx, req.Width, req.Height, req.Scale); err != nil {
		return nil, err
	}

	_, _, errorText, err := page.Navigate(req.URL).Do(tctx)
	if err != nil {
		return nil, errors.Wrapf(err, "navigating to %q", req.URL)
	}
	if errorText != "" {
		return nil, errors.Wrapf(ErrNavigation, "%s at %q", errorText, req.URL)
	}
	if err := p.waitLoaded(tctx); err != nil {
		return nil, err
	}

	docW, docH, err := documentSize(tctx)
	if err != nil {
		return nil, err
	}
	captureH := docH
	if captureH < req.Height {
		captureH = req.Height
	}
	if captureH > MaxCaptureHeight {
		captureH = MaxCaptureHeight
	}
	if err := setViewport(tctx, req.Width, captureH, req.Scale); err != nil {
		return nil, err
	}

	data, err := page.CaptureScreenshot().
		WithFormat(page.CaptureScreenshotFormatPng).
		WithClip(&page.Viewport{
			X:      0,
			Y:      0,
			Width:  float64(req.Width),
			Height: float64(captureH),
			Scale:  1,
		}).
		Do(tctx)
	if err != nil {
		return nil, errors.Wrap(err, "capturing screenshot")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding captured screenshot")
	}
	log.WithFields(logrus.Fields{
		"width":          cfg.Width,
		"height":         cfg.Height,
		"documentWidth":  docW,
		"documentHeight": docH,
	}).Info("page captured")

	return &Result{
		Data:           data,
		MIMEType:       "image/png",
		Width:          cfg.Width,
		Height:         cfg.Height,
		DocumentHeight: docH,
	}, nil
}

func setViewport(ctx context.Context, width, height int, scale float64) error {
	err := emulation.SetDeviceMetricsOverride(int64(width), int64(height), scale, false).Do(ctx)
	return errors.Wrapf(err, "setting viewport %dx%d", width, height)
}

func (p *CDPProvider) waitLoaded(ctx context.Context) error {
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()
	for {
		var state string
		if err := evaluate(ctx, "document.readyState", &state); err != nil {
			return err
		}
		if state == "complete" {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for page load (readyState %q)", state)
		case <-ticker.C:
		}
	}
}

const documentSizeScript = `({
	width: Math.max(document.documentElement.scrollWidth, document.body ? document.body.scrollWidth : 0),
	height: Math.max(document.documentElement.scrollHeight, document.body ? document.body.scrollHeight : 0)
})`

func documentSize(ctx context.Context) (int, int, error) {
	var size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := evaluate(ctx, documentSizeScript, &size); err != nil {
		return 0, 0, err
	}
	return int(size.Width), int(size.Height), nil
}

// evaluate runs expression in the page and decodes its JSON value into v.
func evaluate(ctx context.Context, expression string, v any) error {
	res, exc, err := cdpruntime.Evaluate(expression).WithReturnByValue(true).Do(ctx)
	if err != nil {
		return errors.Wrap(err, "evaluating script")
	}
	if exc != nil {
		return errors.Errorf("script exception: %s", exc.Text)
	}
	if res == nil || len(res.Value) == 0 {
		return errors.New("script returned no value")
	}
	return errors.Wrap(json.Unmarshal(res.Value, v), "decoding script result")
}

// Decode decodes an uploaded or stored background and reports its MIME type.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrap(ErrUnsupportedImage, err.Error())
	}
	switch format {
	case "png":
		return img, "image/png", nil
	case "jpeg":
		return img, "image/jpeg", nil
	}
	return nil, "", errors.Wrap(ErrUnsupportedImage, format)
}
