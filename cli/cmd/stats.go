package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/cli/render"
	"github.com/pithecene-io/warnwin/cli/tui"
)

// StatsCommand returns the stats command.
// Stats reports the server's counters and active count.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show counters from a running server",
		Flags:  append(ReadOnlyFlags(), AdminFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	rd, err := dialReader(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	resp, err := rd.Stats(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("stats failed: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStats, resp)
	}
	return r.Render(resp)
}
