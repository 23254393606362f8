// Package ingest accepts notification frames over TCP.
//
// Each connection is served by its own goroutine: frames are decoded with
// a bounded wire.Decoder, normalised by the validation policy and handed
// to the scheduler inbox, which assigns the id. A bad connection only
// ever closes itself.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pithecene-io/warnwin/adapter"
	"github.com/pithecene-io/warnwin/iox"
	"github.com/pithecene-io/warnwin/log"
	"github.com/pithecene-io/warnwin/metrics"
	"github.com/pithecene-io/warnwin/policy"
	"github.com/pithecene-io/warnwin/scheduler"
	"github.com/pithecene-io/warnwin/wire"
)

// Server defaults.
const (
	DefaultAddress                = "127.0.0.1:7878"
	DefaultIdleTimeout            = 5 * time.Second
	DefaultMaxConnections         = 256
	DefaultMaxFramesPerConnection = 1
)

// Accept retry backoff after a failed Accept.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Config configures the ingest server.
type Config struct {
	// Address is the TCP listen address (default 127.0.0.1:7878).
	Address string
	// IdleTimeout bounds the wait for each frame (default 5s).
	IdleTimeout time.Duration
	// MaxConnections caps concurrently served connections (default 256).
	MaxConnections int
	// MaxFramesPerConnection closes a connection after this many accepted
	// frames (default 1). Negative means unlimited.
	MaxFramesPerConnection int
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxFramesPerConnection == 0 {
		c.MaxFramesPerConnection = DefaultMaxFramesPerConnection
	}
	return c
}

// Dispatcher receives accepted notifications for fan-out.
// Enqueue must not block.
type Dispatcher interface {
	Enqueue(event *adapter.NotificationEvent) bool
}

// Options are the collaborators of a Server.
type Options struct {
	// Inbox receives accepted notifications (required).
	Inbox *scheduler.Inbox
	// Policy normalises payloads (default: policy.DefaultBounds()).
	Policy *policy.Policy
	// Dispatcher, if set, is handed every accepted notification.
	Dispatcher Dispatcher
	Logger     *log.Logger
	Metrics    *metrics.Collector
	// InstanceID is stamped on dispatched events.
	InstanceID string
}

// Server is the TCP connection ingestor.
type Server struct {
	cfg    Config
	opts   Options
	logger *log.Logger

	// slots bounds concurrent connections.
	slots chan struct{}

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	done   chan struct{}

	wg sync.WaitGroup
}

// New creates a server. Listen must be called before Serve.
func New(cfg Config, opts Options) (*Server, error) {
	if opts.Inbox == nil {
		return nil, errors.New("ingest server requires an inbox")
	}
	if opts.Policy == nil {
		opts.Policy = policy.New(policy.DefaultBounds())
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	cfg = cfg.withDefaults()

	return &Server{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("ingest"),
		slots:  make(chan struct{}, cfg.MaxConnections),
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Listen binds the configured TCP address.
func (s *Server) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Address, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.logger.Info("ingest listener started", map[string]any{
		"address":         ln.Addr().String(),
		"idle_timeout":    s.cfg.IdleTimeout.String(),
		"max_connections": s.cfg.MaxConnections,
	})
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called,
// then waits for every connection goroutine to return. A shutdown
// returns nil.
//
// A failed Accept (descriptor exhaustion, aborted handshakes) is counted
// as a refused connection and retried with backoff; it never stops the
// server.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.wg.Wait()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			backoff = nextBackoff(backoff)
			s.opts.Metrics.IncConnectionRefused()
			s.logger.Warn("accept failed, retrying", map[string]any{
				"error":   err.Error(),
				"backoff": backoff.String(),
			})
			if !s.sleep(backoff) {
				return nil
			}
			continue
		}
		backoff = 0

		select {
		case s.slots <- struct{}{}:
		default:
			s.refuse(conn)
			continue
		}

		if !s.track(conn) {
			<-s.slots
			iox.DiscardClose(conn)
			continue
		}

		s.opts.Metrics.IncConnectionAccepted()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			defer s.opts.Metrics.DecConnectionActive()
			defer s.untrack(conn)
			_ = s.ServeConn(ctx, conn)
		}()
	}
}

// Close stops the listener and closes every open connection.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for conn := range s.conns {
		iox.DiscardClose(conn)
	}
	return err
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(2*d, maxAcceptBackoff)
}

// sleep waits for d and reports false if the server closed meanwhile.
func (s *Server) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) refuse(conn net.Conn) {
	s.opts.Metrics.IncConnectionRefused()
	s.logger.Warn("connection refused", map[string]any{
		"remote":          remoteAddr(conn),
		"error":           ErrTooManyConnections.Error(),
		"max_connections": s.cfg.MaxConnections,
	})
	iox.DiscardClose(conn)
}

// ServeConn serves one connection and closes it. It returns nil when the
// peer finished normally (clean close, frame limit reached, shutdown) and
// a *ConnError otherwise.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	defer iox.DiscardClose(conn)

	remote := remoteAddr(conn)
	dec := wire.NewDecoder(conn)
	frames := 0

	for s.cfg.MaxFramesPerConnection < 0 || frames < s.cfg.MaxFramesPerConnection {
		if ctx.Err() != nil {
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return s.transportFailed(remote, err)
		}

		frame, err := dec.ReadFrame()
		if err != nil {
			return s.readFailed(ctx, remote, frames, err)
		}
		s.opts.Metrics.IncFrameDecoded()
		frames++

		if err := s.accept(remote, frame.Notify); err != nil {
			return err
		}
	}

	s.logger.Debug("frame limit reached, closing connection", map[string]any{
		"remote": remote,
		"frames": frames,
	})
	return nil
}

func (s *Server) accept(remote string, payload wire.NotifyPayload) error {
	notice := s.opts.Policy.Apply(payload)

	sub, err := s.opts.Inbox.Push(notice)
	if err != nil {
		s.opts.Metrics.IncInboxFull()
		s.logger.Warn("notification refused", map[string]any{
			"remote":   remote,
			"error":    err.Error(),
			"capacity": s.opts.Inbox.Capacity(),
		})
		return &ConnError{Kind: ConnErrorExhausted, Remote: remote, Err: err}
	}

	s.opts.Metrics.IncNotificationAccepted()
	fields := map[string]any{
		"remote":      remote,
		"id":          sub.ID,
		"urgency":     notice.Urgency.String(),
		"duration_ms": notice.Duration.Milliseconds(),
		"text_runes":  utf8.RuneCountInString(notice.Text),
	}
	if kinds := notice.ViolationKinds(); kinds != nil {
		fields["violations"] = kinds
	}
	s.logger.Info("notification accepted", fields)

	if s.opts.Dispatcher != nil {
		s.opts.Dispatcher.Enqueue(s.event(remote, sub))
	}
	return nil
}

func (s *Server) event(remote string, sub scheduler.Submission) *adapter.NotificationEvent {
	return &adapter.NotificationEvent{
		ContractVersion: adapter.ContractVersion,
		EventType:       adapter.EventType,
		InstanceID:      s.opts.InstanceID,
		ID:              sub.ID,
		Text:            sub.Notice.Text,
		Sender:          sub.Notice.Sender,
		Urgency:         sub.Notice.Urgency.String(),
		DurationMs:      sub.Notice.Duration.Milliseconds(),
		AcceptedAt:      sub.AcceptedAt,
		Remote:          remote,
		Violations:      sub.Notice.ViolationKinds(),
	}
}

// readFailed classifies a ReadFrame error.
func (s *Server) readFailed(ctx context.Context, remote string, frames int, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Debug("connection closed by peer", map[string]any{
			"remote": remote,
			"frames": frames,
		})
		return nil

	case wire.IsProtocolError(err):
		kind, _ := wire.ProtocolErrorKind(err)
		s.opts.Metrics.IncProtocolError(kind.String())
		s.logger.Warn("protocol error, closing connection", map[string]any{
			"remote": remote,
			"kind":   kind.String(),
			"error":  err.Error(),
		})
		return &ConnError{Kind: ConnErrorProtocol, Remote: remote, Err: err}

	case isTimeout(err):
		s.opts.Metrics.IncConnectionTimedOut()
		s.logger.Info("idle connection reclaimed", map[string]any{
			"remote":       remote,
			"frames":       frames,
			"idle_timeout": s.cfg.IdleTimeout.String(),
		})
		return &ConnError{Kind: ConnErrorTimeout, Remote: remote, Err: err}

	case errors.Is(err, net.ErrClosed) && (ctx.Err() != nil || s.isClosed()):
		s.logger.Debug("connection closed on shutdown", map[string]any{"remote": remote})
		return nil

	default:
		return s.transportFailed(remote, err)
	}
}

func (s *Server) transportFailed(remote string, err error) error {
	s.logger.Warn("connection error", map[string]any{
		"remote": remote,
		"error":  err.Error(),
	})
	return &ConnError{Kind: ConnErrorTransport, Remote: remote, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
