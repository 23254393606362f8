// Package admin serves the local administrative socket.
//
// Each connection carries exactly one msgpack request frame and receives
// one response frame. The socket is a unix socket by default; a
// "tcp://host:port" address serves the same protocol over TCP.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/warnwin/iox"
	"github.com/pithecene-io/warnwin/ipc"
	"github.com/pithecene-io/warnwin/log"
	"github.com/pithecene-io/warnwin/metrics"
	"github.com/pithecene-io/warnwin/policy"
	"github.com/pithecene-io/warnwin/types"
)

// DefaultSocketName is the socket file created in the temp dir.
const DefaultSocketName = "warnwin.sock"

// DefaultTimeout bounds one request/response exchange.
const DefaultTimeout = 5 * time.Second

// DefaultAddress returns the default admin socket path.
func DefaultAddress() string {
	return filepath.Join(os.TempDir(), DefaultSocketName)
}

// ParseAddress splits an admin address into a network and an address.
// "tcp://host:port" selects TCP, "unix://path" or a bare path a unix
// socket.
func ParseAddress(addr string) (network, address string, err error) {
	switch {
	case addr == "":
		return "unix", DefaultAddress(), nil
	case strings.HasPrefix(addr, "tcp://"):
		address = strings.TrimPrefix(addr, "tcp://")
		if _, _, err := net.SplitHostPort(address); err != nil {
			return "", "", fmt.Errorf("invalid admin address %q: %w", addr, err)
		}
		return "tcp", address, nil
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://"), nil
	case strings.Contains(addr, "://"):
		return "", "", fmt.Errorf("invalid admin address %q: unsupported scheme", addr)
	default:
		return "unix", addr, nil
	}
}

// Controller is the scheduler surface the admin server drives.
type Controller interface {
	Snapshot() *types.Snapshot
	Dismiss(id uint64) bool
	DismissAll()
}

// Config configures the admin server.
type Config struct {
	// Address is a socket path or tcp://host:port (default DefaultAddress()).
	Address string
	// Timeout bounds each exchange (default 5s).
	Timeout time.Duration
}

// Options are the collaborators of a Server.
type Options struct {
	// Controller answers list, dismiss and clear (required).
	Controller Controller
	Metrics    *metrics.Collector
	// Policy, if set, has its counters folded into stats.
	Policy *policy.Policy
	Logger *log.Logger
}

// Server is the admin socket server.
type Server struct {
	cfg     Config
	opts    Options
	logger  *log.Logger
	network string
	address string

	mu     sync.Mutex
	ln     net.Listener
	closed bool

	wg sync.WaitGroup
}

// New creates an admin server.
func New(cfg Config, opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("admin server requires a controller")
	}
	network, address, err := ParseAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		cfg:     cfg,
		opts:    opts,
		logger:  logger.With("admin"),
		network: network,
		address: address,
	}, nil
}

// Listen creates the socket. A stale unix socket from a previous run is
// removed first.
func (s *Server) Listen(ctx context.Context) error {
	if s.network == "unix" {
		if err := os.MkdirAll(filepath.Dir(s.address), 0o755); err != nil {
			return fmt.Errorf("creating admin socket directory: %w", err)
		}
		if err := os.Remove(s.address); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing existing admin socket: %w", err)
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, s.network, s.address)
	if err != nil {
		return fmt.Errorf("creating admin socket at %s: %w", s.address, err)
	}

	if s.network == "unix" {
		if err := os.Chmod(s.address, 0o660); err != nil {
			iox.DiscardClose(ln)
			return fmt.Errorf("setting admin socket permissions: %w", err)
		}
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("admin listener started", map[string]any{
		"network": s.network,
		"address": ln.Addr().String(),
	})
	return nil
}

// Addr returns the listen address in the form accepted by ParseAddress.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.network == "tcp" && s.ln != nil {
		return "tcp://" + s.ln.Addr().String()
	}
	if s.network == "tcp" {
		return "tcp://" + s.address
	}
	return s.address
}

// Serve accepts admin connections until ctx is cancelled or Close is
// called. Each connection is handled in its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("admin server is not listening")
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("accepting admin connection: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops the listener and removes the unix socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	if s.network == "unix" {
		_ = os.Remove(s.address)
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) handleConn(conn net.Conn) {
	defer iox.DiscardClose(conn)
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))

	resp := s.readAndHandle(conn)
	if err := ipc.WriteFrame(conn, resp); err != nil {
		s.logger.Warn("admin response write failed", map[string]any{"error": err.Error()})
	}
}

func (s *Server) readAndHandle(conn net.Conn) *ipc.Response {
	payload, err := ipc.NewFrameDecoder(conn).ReadFrame()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Warn("admin request read failed", map[string]any{"error": err.Error()})
		}
		return ipc.ErrorResponse("read request: " + err.Error())
	}

	frame, err := ipc.DecodeFrame(payload)
	if err != nil {
		return ipc.ErrorResponse(err.Error())
	}
	req, ok := frame.(*ipc.Request)
	if !ok {
		return ipc.ErrorResponse(fmt.Sprintf("expected request frame, got %T", frame))
	}
	return s.Handle(req)
}

// Handle executes one request.
func (s *Server) Handle(req *ipc.Request) *ipc.Response {
	s.logger.Debug("admin request", map[string]any{"op": string(req.Op), "id": req.ID})

	switch req.Op {
	case ipc.OpList:
		return &ipc.Response{Type: ipc.ResponseType, OK: true, Snapshot: s.opts.Controller.Snapshot()}

	case ipc.OpStats:
		s.absorbPolicyStats()
		snap := s.opts.Metrics.Snapshot()
		return &ipc.Response{
			Type:   ipc.ResponseType,
			OK:     true,
			Stats:  &snap,
			Active: s.opts.Controller.Snapshot().Len(),
		}

	case ipc.OpDismiss:
		if req.ID == 0 {
			return ipc.ErrorResponse("dismiss requires a notification id")
		}
		if !s.opts.Controller.Dismiss(req.ID) {
			return ipc.ErrorResponse(fmt.Sprintf("notification %d is not active", req.ID))
		}
		s.logger.Info("notification dismissed", map[string]any{"id": req.ID})
		return &ipc.Response{Type: ipc.ResponseType, OK: true, Dismissed: 1}

	case ipc.OpClear:
		n := 0
		for _, note := range s.opts.Controller.Snapshot().Notifications {
			if note.State == types.StateEntering || note.State == types.StateVisible {
				n++
			}
		}
		s.opts.Controller.DismissAll()
		s.logger.Info("all notifications dismissed", map[string]any{"count": n})
		return &ipc.Response{Type: ipc.ResponseType, OK: true, Dismissed: n}

	default:
		return ipc.ErrorResponse(fmt.Sprintf("unknown op %q", req.Op))
	}
}

func (s *Server) absorbPolicyStats() {
	if s.opts.Policy == nil {
		return
	}
	st := s.opts.Policy.Stats()
	byKind := make(map[string]int64, len(st.ViolationsByKind))
	for k, v := range st.ViolationsByKind {
		byKind[string(k)] = v
	}
	s.opts.Metrics.AbsorbPolicyStats(st.Adjusted, byKind)
}
