// Package cmd provides CLI commands for the warnwin binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/admin"
	"github.com/pithecene-io/warnwin/cli/config"
)

// defaultAdminTimeout bounds one admin round trip from the CLI.
const defaultAdminTimeout = 5 * time.Second

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats only)",
	}

	// ConfigFlag points at a warnwin.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to warnwin.yaml",
		EnvVars: []string{"WARNWIN_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// AdminFlags returns the flags for commands that talk to a running server.
func AdminFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "admin",
			Usage:   "Admin socket path or tcp://host:port",
			Value:   admin.DefaultAddress(),
			EnvVars: []string{"WARNWIN_ADMIN"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Admin request timeout",
			Value: defaultAdminTimeout,
		},
	}
}

// loadConfig reads --config when given and returns an empty config
// otherwise, so flag defaults apply.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}
