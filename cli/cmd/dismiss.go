package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/admin"
	"github.com/pithecene-io/warnwin/cli/render"
)

// DismissResponse is the response for the dismiss command.
type DismissResponse struct {
	// ID is the dismissed notification, zero with --all.
	ID uint64 `json:"id,omitempty" yaml:"id,omitempty"`
	// Dismissed counts notifications that started leaving.
	Dismissed int `json:"dismissed" yaml:"dismissed"`
}

// DismissCommand returns the dismiss command.
// Dismissed notifications play their exit animation rather than
// vanishing.
func DismissCommand() *cli.Command {
	return &cli.Command{
		Name:      "dismiss",
		Usage:     "Dismiss one notification, or all with --all",
		ArgsUsage: "[<id>]",
		Flags: append([]cli.Flag{
			FormatFlag,
			NoColorFlag,
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Dismiss every active notification",
			},
		}, AdminFlags()...),
		Action: dismissAction,
	}
}

func dismissAction(c *cli.Context) error {
	all := c.Bool("all")
	id, err := dismissTarget(c.Args().Slice(), all)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	client, err := admin.NewClient(c.String("admin"), c.Duration("timeout"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	if all {
		n, err := client.Clear(ctx)
		if err != nil {
			return cli.Exit(fmt.Sprintf("dismiss failed: %v", err), 1)
		}
		return r.Render(DismissResponse{Dismissed: n})
	}

	if err := client.Dismiss(ctx, id); err != nil {
		return cli.Exit(fmt.Sprintf("dismiss %d failed: %v", id, err), 1)
	}
	return r.Render(DismissResponse{ID: id, Dismissed: 1})
}

// dismissTarget parses the positional id. Exactly one of an id or
// --all is required.
func dismissTarget(args []string, all bool) (uint64, error) {
	switch {
	case all && len(args) > 0:
		return 0, fmt.Errorf("--all takes no id")
	case all:
		return 0, nil
	case len(args) != 1:
		return 0, fmt.Errorf("notification id required (or --all)")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid notification id %q", args[0])
	}
	return id, nil
}
