package cli

import (
	"io"
	"time"
)

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to YAML config file (default: GAZEMAP_CONFIG and env)"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	NoColor bool   `long:"no-color" description:"Disable colored output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// command is embedded by every subcommand.
type command struct {
	globals *GlobalFlags
	version string
	out     io.Writer
}

// RenderCommand is the command to render a session record to an image or PDF.
type RenderCommand struct {
	Record         string  `long:"record" description:"Session record JSON file (required)" required:"true"`
	Background     string  `long:"background" description:"PNG or JPEG screenshot of the page"`
	DocumentHeight int     `long:"document-height" description:"Page height in CSS pixels when the record has none"`
	Out            string  `short:"o" long:"out" description:"Output file (default: heatmap-<date>.<format>)"`
	Format         string  `long:"format" description:"png | jpg | pdf (default: from --out, else png)"`
	Radius         int     `long:"radius" description:"Splat radius in pixels"`
	Intensity      float64 `long:"intensity" description:"Peak alpha of one sample, (0, 1]"`
	Opacity        float64 `long:"opacity" description:"Heat layer opacity, [0, 1]"`
	Blend          string  `long:"blend" description:"multiply | source-over | screen"`
	Caption        bool    `long:"caption" description:"Burn URL and sample count into the image"`
	Quality        int     `long:"quality" description:"JPEG quality 1-100"`

	command
}

// CaptureCommand is the command to capture a full-page screenshot.
type CaptureCommand struct {
	URL      string        `long:"url" description:"Page to capture (required)" required:"true"`
	Out      string        `short:"o" long:"out" description:"Output PNG file" default:"screenshot.png"`
	Endpoint string        `long:"endpoint" description:"DevTools endpoint (default: config)"`
	Width    int           `long:"width" description:"Viewport width"`
	Height   int           `long:"height" description:"Viewport height"`
	Scale    float64       `long:"scale" description:"Device scale factor"`
	Timeout  time.Duration `long:"timeout" description:"Capture timeout"`

	command
}

// SessionsCommand is the command to list stored sessions.
type SessionsCommand struct {
	Status   string `long:"status" description:"recording | completed"`
	URL      string `long:"url" description:"Filter by URL substring"`
	Page     int    `long:"page" description:"Page number" default:"1"`
	PageSize int    `long:"page-size" description:"Sessions per page" default:"20"`

	command
}

// StatsCommand is the command to print statistics of a stored session.
type StatsCommand struct {
	ID         string `long:"id" description:"Session ID (required)" required:"true"`
	BandHeight int    `long:"band-height" description:"Depth band height in pixels" default:"500"`

	command
}
