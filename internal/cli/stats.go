package cli

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/service"
)

const histogramWidth = 40

// Execute implements the go-flags Commander interface for StatsCommand.
func (c *StatsCommand) Execute(args []string) error {
	a, err := c.openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()
	return c.stats(a.Sessions)
}

func (c *StatsCommand) stats(svc *service.SessionService) error {
	st, err := svc.Stats(c.ID, c.BandHeight)
	if err != nil {
		return err
	}
	if c.jsonOutput() {
		return c.printJSON(st)
	}
	c.printHuman(st)
	return nil
}

func (c *StatsCommand) printHuman(st *models.HeatmapStats) {
	bold := c.paint(color.Bold)

	c.printf("%s\n", bold("Session "+c.ID))
	c.printf("Total points:  %s\n", humanize.Comma(int64(st.TotalPoints)))
	c.printf("Total time:    %ds\n", st.TotalTime)
	c.printf("Frequency:     %.1f points/s\n", st.Frequency)
	if st.TotalPoints == 0 {
		return
	}
	c.printf("Avg position:  (%.0f, %.0f)\n", st.AveragePosition.X, st.AveragePosition.Y)
	c.printf("Spread:        (%.0f, %.0f)\n", st.Spread.X, st.Spread.Y)
	c.printf("Max scroll:    %.0fpx\n", st.MaxScroll)
	c.printf("Avg scroll:    %.0fpx (p50 %.0f, p90 %.0f)\n", st.AvgScroll, st.ScrollP50, st.ScrollP90)
	if b := st.Bounds; b != nil {
		c.printf("Bounds:        (%.0f, %.0f) - (%.0f, %.0f)\n", b.MinX, b.MinY, b.MaxX, b.MaxY)
	}

	if len(st.DepthBands) == 0 {
		return
	}
	maxCount := 0
	for _, b := range st.DepthBands {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}
	bar := c.paint(color.FgRed)
	c.printf("\n%s\n", bold("Depth"))
	for _, b := range st.DepthBands {
		n := 0
		if maxCount > 0 {
			n = b.Count * histogramWidth / maxCount
		}
		c.printf("  %6d-%-6d %s %d\n", b.From, b.To, bar(strings.Repeat("#", n)), b.Count)
	}
}
