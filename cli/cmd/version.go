package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/cli/render"
	"github.com/pithecene-io/warnwin/types"
	"github.com/pithecene-io/warnwin/wire"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Protocol uint8  `json:"protocol" yaml:"protocol"`
}

// VersionCommand returns the version command.
// It must not contact a server.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		resp := VersionResponse{
			Version:  types.Version,
			Commit:   commit,
			Protocol: wire.ProtocolVersion,
		}

		return r.Render(resp)
	}
}
