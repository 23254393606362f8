package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/archive"
	"github.com/pithecene-io/warnwin/cli/config"
	"github.com/pithecene-io/warnwin/cli/reader"
	"github.com/pithecene-io/warnwin/cli/render"
	"github.com/pithecene-io/warnwin/types"
)

// historyTimeout bounds one archive query.
const historyTimeout = 30 * time.Second

// HistoryCommand returns the history command.
// History reads the archive directly; no server needs to be running.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show archived notifications, newest first",
		Flags: append(ReadOnlyFlags(),
			ConfigFlag,
			&cli.StringFlag{Name: "day", Usage: "Only this day (YYYY-MM-DD, UTC)"},
			&cli.StringFlag{Name: "urgency", Usage: "Only this urgency: low, normal, high, critical"},
			&cli.StringFlag{Name: "sender", Usage: "Only this sender"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of records", Value: archive.DefaultQueryLimit},
			&cli.StringFlag{Name: "archive-dataset", Usage: "Archive dataset ID (overrides config)"},
			&cli.StringFlag{Name: "archive-backend", Usage: "Archive backend: fs or s3 (overrides config)"},
			&cli.StringFlag{Name: "archive-path", Usage: "Archive path (fs: directory, s3: bucket/prefix)"},
			&cli.StringFlag{Name: "archive-region", Usage: "AWS region for the s3 backend"},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for history command", 1)
	}

	opts, err := historyOptions(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	applyArchiveFlags(c, cfg)
	store, err := cfg.ArchiveStore()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if store == nil {
		return cli.Exit(reader.ErrNoArchive.Error(), 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, historyTimeout)
	defer cancel()

	ds, err := archive.Open(ctx, *store)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open archive: %v", err), 1)
	}
	items, err := reader.NewServerReader(nil, ds).History(ctx, opts)
	if err != nil {
		if errors.Is(err, archive.ErrTimeout) {
			return cli.Exit("archive query timed out", 1)
		}
		return cli.Exit(fmt.Sprintf("history failed: %v", err), 1)
	}
	return r.Render(items)
}

// historyOptions validates the filter flags.
func historyOptions(c *cli.Context) (reader.HistoryOptions, error) {
	opts := reader.HistoryOptions{
		Day:    c.String("day"),
		Sender: c.String("sender"),
		Limit:  c.Int("limit"),
	}
	if opts.Day != "" {
		if _, err := time.Parse(time.DateOnly, opts.Day); err != nil {
			return opts, fmt.Errorf("invalid --day %q (want YYYY-MM-DD)", opts.Day)
		}
	}
	if u := c.String("urgency"); u != "" {
		parsed, err := types.ParseUrgency(u)
		if err != nil {
			return opts, err
		}
		opts.Urgency = parsed.String()
	}
	if opts.Limit < 0 {
		return opts, fmt.Errorf("--limit must not be negative")
	}
	return opts, nil
}

func applyArchiveFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("archive-dataset") {
		cfg.Archive.Dataset = c.String("archive-dataset")
	}
	if c.IsSet("archive-backend") {
		cfg.Archive.Backend = c.String("archive-backend")
	}
	if c.IsSet("archive-path") {
		cfg.Archive.Path = c.String("archive-path")
	}
	if c.IsSet("archive-region") {
		cfg.Archive.Region = c.String("archive-region")
	}
}
