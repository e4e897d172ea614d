package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/gazemap-backend-go/internal/app"
	"github.com/jengzang/gazemap-backend-go/internal/config"
	"github.com/jengzang/gazemap-backend-go/internal/logger"
)

// loadConfig reads --config when given, otherwise GAZEMAP_CONFIG and env.
func (c *command) loadConfig() (*config.Config, error) {
	if c.globals != nil && c.globals.Config != "" {
		return config.LoadFile(c.globals.Config)
	}
	return config.Load()
}

// logger writes to stderr at debug with --verbose and is silent otherwise.
func (c *command) logger(cfg *config.Config) logrus.FieldLogger {
	if c.globals == nil || !c.globals.Verbose {
		return logger.NullLogger()
	}
	lc := cfg.Logging
	lc.Level = "debug"
	return logger.New(lc)
}

func (c *command) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, c.logger(cfg))
}

func (c *command) jsonOutput() bool {
	return c.globals != nil && c.globals.JSON
}

func (c *command) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// paint returns a sprint func honoring --no-color. Output that is not
// stdout is never colored.
func (c *command) paint(attrs ...color.Attribute) func(a ...interface{}) string {
	col := color.New(attrs...)
	if c.out != io.Writer(os.Stdout) || (c.globals != nil && c.globals.NoColor) {
		col.DisableColor()
	}
	return col.SprintFunc()
}

func (c *command) printf(format string, a ...interface{}) {
	fmt.Fprintf(c.out, format, a...)
}
