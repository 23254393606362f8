// Package feed serves the live notification set over HTTP.
//
// GET /v1/snapshot returns the latest published snapshot as JSON.
// GET /v1/feed upgrades to a websocket and pushes every snapshot the
// scheduler publishes. Feed subscriptions are latest-wins: a slow
// client skips intermediate frames and never delays the tick.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/pithecene-io/warnwin/log"
	"github.com/pithecene-io/warnwin/metrics"
	"github.com/pithecene-io/warnwin/types"
)

// Defaults for Config fields left zero.
const (
	DefaultAddress         = "127.0.0.1:7879"
	DefaultWriteTimeout    = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultPingInterval    = 30 * time.Second
)

// Source publishes snapshots. *scheduler.Scheduler satisfies it.
type Source interface {
	Snapshot() *types.Snapshot
	Subscribe(ctx context.Context) <-chan *types.Snapshot
}

// Config holds feed server settings.
type Config struct {
	Address         string
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	PingInterval    time.Duration
	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty allows any origin.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	return c
}

// Options carries the server's collaborators.
type Options struct {
	// Source is required.
	Source  Source
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Server is the feed HTTP server.
type Server struct {
	cfg      Config
	source   Source
	logger   *log.Logger
	metrics  *metrics.Collector
	upgrader websocket.Upgrader
	handler  http.Handler

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

// New creates a feed server. Call Listen then Serve, or mount Handler
// on an existing router.
func New(cfg Config, opts Options) (*Server, error) {
	if opts.Source == nil {
		return nil, errors.New("feed server requires a snapshot source")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	s := &Server{
		cfg:     cfg.withDefaults(),
		source:  opts.Source,
		logger:  logger.With("feed"),
		metrics: opts.Metrics,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.handler = s.routes()
	return s, nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Handler returns the feed router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	})
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/snapshot", s.handleSnapshot)
		v1.Get("/feed", s.handleFeed)
	})
	return r
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Snapshot()
	if snap == nil {
		snap = &types.Snapshot{}
	}
	if snap.Notifications == nil {
		// Encode an empty list rather than null.
		cp := *snap
		cp.Notifications = []types.Notification{}
		snap = &cp
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("snapshot encode failed", map[string]any{"error": err.Error()})
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	defer func() { _ = ws.Close() }()

	s.metrics.IncFeedClient()
	defer s.metrics.DecFeedClient()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close and pong control frames are handled.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	remote := r.RemoteAddr
	s.logger.Debug("feed client connected", map[string]any{"remote": remote})

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	snaps := s.source.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			s.writeClose(ws)
			return
		case snap, ok := <-snaps:
			if !ok {
				s.writeClose(ws)
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := ws.WriteJSON(snap); err != nil {
				s.logger.Debug("feed client write failed", map[string]any{
					"remote": remote,
					"error":  err.Error(),
				})
				return
			}
			s.metrics.IncFeedFrameSent()
		case <-ping.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeClose(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Listen binds the configured address.
func (s *Server) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("feed listen %s: %w", s.cfg.Address, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve handles HTTP requests until ctx is done, then shuts down
// gracefully. Open websocket handlers observe ctx through their
// request context and close.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	if ln == nil {
		s.mu.Unlock()
		return errors.New("feed server is not listening")
	}
	if s.srv != nil {
		s.mu.Unlock()
		return errors.New("feed server already running")
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("feed listening", map[string]any{"address": ln.Addr().String()})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			_ = srv.Close()
		}
		err = <-errCh
	case err = <-errCh:
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("feed serve: %w", err)
	}
	return nil
}
