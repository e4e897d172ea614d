package cli

import (
	"context"
	"errors"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/jengzang/gazemap-backend-go/internal/config"
	"github.com/jengzang/gazemap-backend-go/internal/screenshot"
	"github.com/jengzang/gazemap-backend-go/internal/service"
)

var errNoEndpoint = errors.New("no DevTools endpoint: pass --endpoint or set CDP_ENDPOINT")

// Execute implements the go-flags Commander interface for CaptureCommand.
func (c *CaptureCommand) Execute(args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = cfg.Screenshot.Endpoint
	}
	if endpoint == "" {
		return errNoEndpoint
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = cfg.Screenshot.Timeout
	}
	provider := screenshot.NewCDPProvider(endpoint, timeout, c.logger(cfg))
	return c.capture(context.Background(), provider, cfg)
}

func (c *CaptureCommand) capture(ctx context.Context, p screenshot.Provider, cfg *config.Config) error {
	if err := service.ValidateURL(c.URL); err != nil {
		return err
	}
	req := screenshot.Request{URL: c.URL, Width: c.Width, Height: c.Height, Scale: c.Scale}
	if req.Width <= 0 {
		req.Width = cfg.Screenshot.ViewportWidth
	}
	if req.Height <= 0 {
		req.Height = cfg.Screenshot.ViewportHeight
	}
	if req.Scale <= 0 {
		req.Scale = cfg.Screenshot.Scale
	}

	res, err := p.Capture(ctx, req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, res.Data, 0o644); err != nil {
		return err
	}

	if c.jsonOutput() {
		return c.printJSON(map[string]interface{}{
			"output":         c.Out,
			"width":          res.Width,
			"height":         res.Height,
			"documentHeight": res.DocumentHeight,
			"bytes":          len(res.Data),
		})
	}
	ok := c.paint(color.FgGreen, color.Bold)
	c.printf("%s %s -> %s (%dx%d, document height %d, %s)\n",
		ok("captured"), c.URL, c.Out, res.Width, res.Height, res.DocumentHeight,
		humanize.Bytes(uint64(len(res.Data))))
	return nil
}
