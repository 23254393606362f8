package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/warnwin/adapter"
	"github.com/pithecene-io/warnwin/adapter/redis"
	"github.com/pithecene-io/warnwin/adapter/webhook"
	"github.com/pithecene-io/warnwin/admin"
	"github.com/pithecene-io/warnwin/archive"
	"github.com/pithecene-io/warnwin/cli/config"
	"github.com/pithecene-io/warnwin/cli/tui"
	"github.com/pithecene-io/warnwin/feed"
	"github.com/pithecene-io/warnwin/ingest"
	"github.com/pithecene-io/warnwin/iox"
	"github.com/pithecene-io/warnwin/log"
	"github.com/pithecene-io/warnwin/metrics"
	"github.com/pithecene-io/warnwin/policy"
	"github.com/pithecene-io/warnwin/scheduler"
)

// drainTimeout bounds how long queued adapter events may take to
// publish on shutdown.
const drainTimeout = 10 * time.Second

// ServeCommand returns the serve command.
// Serve is the only long-running command; everything else is a client.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Accept notifications and present them",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:  "listen",
				Usage: fmt.Sprintf("Notification listen address (default %s)", ingest.DefaultAddress),
			},
			&cli.StringFlag{
				Name:  "admin",
				Usage: "Admin socket path or tcp://host:port",
			},
			&cli.StringFlag{
				Name:  "feed",
				Usage: "Enable the live feed on this address",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "Run without the terminal display",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Panic on a scheduler invariant violation instead of repairing it",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "instance-id",
				Usage: "Instance identifier stamped on logs and events (default: random)",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	applyServeFlags(c, cfg)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The display owns the terminal, so logs are only written headless.
	var logOut io.Writer = os.Stderr
	if !cfg.Headless {
		logOut = io.Discard
	}
	logger := log.NewLogger(log.Options{
		InstanceID: cfg.InstanceID,
		Level:      cfg.Log.Level,
		Output:     logOut,
	})
	defer iox.DiscardErr(logger.Sync)

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := st.listen(ctx); err != nil {
		st.shutdown()
		return cli.Exit(err.Error(), 1)
	}

	var display func(context.Context) error
	if !cfg.Headless {
		display = func(ctx context.Context) error {
			return tui.RunDisplay(ctx, st.sched)
		}
	}
	if err := st.run(ctx, display); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// applyServeFlags lets flags override config values.
func applyServeFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("admin") {
		cfg.Admin = c.String("admin")
	}
	if c.IsSet("feed") {
		cfg.Feed.Enabled = true
		cfg.Feed.Address = c.String("feed")
	}
	if c.IsSet("headless") {
		cfg.Headless = c.Bool("headless")
	}
	if c.IsSet("strict") {
		cfg.Scheduler.Strict = c.Bool("strict")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("instance-id") {
		cfg.InstanceID = c.String("instance-id")
	}
}

// stack is one assembled server: listener, scheduler, admin socket,
// optional feed and optional adapter dispatcher.
type stack struct {
	logger     *log.Logger
	metrics    *metrics.Collector
	policy     *policy.Policy
	inbox      *scheduler.Inbox
	sched      *scheduler.Scheduler
	ingest     *ingest.Server
	admin      *admin.Server
	feed       *feed.Server
	dispatcher *adapter.Dispatcher
}

// buildStack wires every component from cfg. Nothing is bound yet.
func buildStack(ctx context.Context, cfg *config.Config, logger *log.Logger) (*stack, error) {
	ingestCfg := cfg.IngestServer()
	if ingestCfg.Address == "" {
		ingestCfg.Address = ingest.DefaultAddress
	}

	st := &stack{
		logger:  logger,
		metrics: metrics.NewCollector(logger.InstanceID(), ingestCfg.Address),
		policy:  policy.New(cfg.PolicyBounds()),
		inbox:   scheduler.NewInbox(cfg.Ingest.InboxCapacity),
	}

	schedCfg := cfg.SchedulerTiming()
	schedCfg.Logger = logger
	schedCfg.Metrics = st.metrics
	st.sched = scheduler.New(st.inbox, schedCfg)

	adapters, err := buildAdapters(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(adapters) > 0 {
		st.dispatcher = adapter.NewDispatcher(adapters, adapter.DispatcherConfig{
			QueueSize: cfg.Adapters.QueueSize,
			Logger:    logger,
			Metrics:   st.metrics,
		})
	}

	opts := ingest.Options{
		Inbox:      st.inbox,
		Policy:     st.policy,
		Logger:     logger,
		Metrics:    st.metrics,
		InstanceID: logger.InstanceID(),
	}
	if st.dispatcher != nil {
		opts.Dispatcher = st.dispatcher
	}
	if st.ingest, err = ingest.New(ingestCfg, opts); err != nil {
		st.shutdown()
		return nil, err
	}

	st.admin, err = admin.New(admin.Config{Address: cfg.Admin}, admin.Options{
		Controller: st.sched,
		Metrics:    st.metrics,
		Policy:     st.policy,
		Logger:     logger,
	})
	if err != nil {
		st.shutdown()
		return nil, err
	}

	if cfg.Feed.Enabled {
		st.feed, err = feed.New(cfg.FeedServer(), feed.Options{
			Source:  st.sched,
			Logger:  logger,
			Metrics: st.metrics,
		})
		if err != nil {
			st.shutdown()
			return nil, err
		}
	}
	return st, nil
}

// buildAdapters opens every configured downstream publisher. On error
// the ones already opened are closed.
func buildAdapters(ctx context.Context, cfg *config.Config, logger *log.Logger) ([]adapter.NamedAdapter, error) {
	var adapters []adapter.NamedAdapter
	fail := func(err error) ([]adapter.NamedAdapter, error) {
		opened := make([]io.Closer, 0, len(adapters))
		for _, na := range adapters {
			opened = append(opened, na.Adapter)
		}
		_ = iox.CloseAll(opened...)
		return nil, err
	}

	if rc := cfg.RedisAdapter(); rc != nil {
		a, err := redis.New(*rc)
		if err != nil {
			return fail(fmt.Errorf("redis adapter: %w", err))
		}
		adapters = append(adapters, adapter.NamedAdapter{Name: "redis", Adapter: a})
	}
	if wc := cfg.WebhookAdapter(); wc != nil {
		a, err := webhook.New(*wc)
		if err != nil {
			return fail(fmt.Errorf("webhook adapter: %w", err))
		}
		adapters = append(adapters, adapter.NamedAdapter{Name: "webhook", Adapter: a})
	}

	ac, err := cfg.ArchiveStore()
	if err != nil {
		return fail(err)
	}
	if ac != nil {
		a, err := archive.New(ctx, *ac, logger)
		if err != nil {
			return fail(fmt.Errorf("archive: %w", err))
		}
		adapters = append(adapters, adapter.NamedAdapter{Name: "archive", Adapter: a})
	}
	return adapters, nil
}

// listen binds every socket so address errors surface before anything
// starts serving.
func (st *stack) listen(ctx context.Context) error {
	if err := st.ingest.Listen(ctx); err != nil {
		return err
	}
	if err := st.admin.Listen(ctx); err != nil {
		iox.DiscardClose(st.ingest)
		return err
	}
	if st.feed != nil {
		if err := st.feed.Listen(ctx); err != nil {
			_ = iox.CloseAll(st.ingest, st.admin)
			return err
		}
	}
	st.logger.Info("serving", map[string]any{
		"listen": st.ingest.Addr().String(),
		"admin":  st.admin.Addr(),
		"feed":   st.feedAddr(),
	})
	return nil
}

func (st *stack) feedAddr() string {
	if st.feed == nil {
		return ""
	}
	return st.feed.Addr()
}

// run serves until ctx is done, any component fails, or display
// returns. display may be nil.
func (st *stack) run(ctx context.Context, display func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.sched.Run(gctx) })
	g.Go(func() error { return st.ingest.Serve(gctx) })
	g.Go(func() error { return st.admin.Serve(gctx) })
	if st.feed != nil {
		g.Go(func() error { return st.feed.Serve(gctx) })
	}
	if display != nil {
		g.Go(func() error {
			// Quitting the display stops the server.
			defer cancel()
			return display(gctx)
		})
	}

	err := g.Wait()
	st.shutdown()
	st.logger.Info("stopped", map[string]any{"frame": st.sched.Snapshot().Frame})
	return err
}

// shutdown drains the dispatcher and closes adapters.
func (st *stack) shutdown() {
	if st.dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := st.dispatcher.Close(ctx); err != nil {
		st.logger.Warn("dispatcher shutdown", map[string]any{"error": err.Error()})
	}
}
