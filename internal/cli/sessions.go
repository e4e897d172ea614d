package cli

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/service"
	"github.com/jengzang/gazemap-backend-go/pkg/response"
)

// Execute implements the go-flags Commander interface for SessionsCommand.
func (c *SessionsCommand) Execute(args []string) error {
	a, err := c.openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()
	return c.list(a.Sessions)
}

func (c *SessionsCommand) list(svc *service.SessionService) error {
	sessions, total, err := svc.List(models.SessionFilter{
		Status:   c.Status,
		URL:      c.URL,
		Page:     c.Page,
		PageSize: c.PageSize,
	})
	if err != nil {
		return err
	}
	page := response.NewPage(sessions, total, c.Page, c.PageSize)

	if c.jsonOutput() {
		if sessions == nil {
			page.Items = []models.SessionRecord{}
		}
		return c.printJSON(page)
	}

	if total == 0 {
		c.printf("No sessions.\n")
		return nil
	}

	bold := c.paint(color.Bold)
	recording := c.paint(color.FgYellow)
	completed := c.paint(color.FgGreen)

	c.printf("%s\n", bold("ID                                    STATUS     SAMPLES  CREATED         URL"))
	for _, s := range sessions {
		status := completed(s.Status)
		if !s.Frozen() {
			status = recording(s.Status)
		}
		c.printf("%-36s  %-9s  %7s  %-14s  %s\n",
			s.ID, status, humanize.Comma(int64(s.SampleCount)), humanize.Time(s.CreatedAt), s.URL)
	}
	c.printf("\npage %d of %d (%s sessions)\n", page.Page, page.TotalPages, humanize.Comma(total))
	return nil
}
