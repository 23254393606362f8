package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/cli/reader"
	"github.com/pithecene-io/warnwin/cli/render"
)

// ListCommand returns the list command.
// List shows the active set as of the server's latest frame.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List active notifications on a running server",
		Flags:  append(ReadOnlyFlags(), AdminFlags()...),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list; the server's own display is live.
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list command", 1)
	}

	rd, err := dialReader(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	resp, err := rd.List(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list failed: %v", err), 1)
	}
	return r.Render(resp)
}

// dialReader connects a reader to --admin. History is not available
// through it.
func dialReader(c *cli.Context) (*reader.ServerReader, error) {
	rd, err := reader.Dial(c.String("admin"), c.Duration("timeout"), nil)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return rd, nil
}
