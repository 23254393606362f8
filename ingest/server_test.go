package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/pithecene-io/warnwin/adapter"
	"github.com/pithecene-io/warnwin/metrics"
	"github.com/pithecene-io/warnwin/scheduler"
	"github.com/pithecene-io/warnwin/types"
	"github.com/pithecene-io/warnwin/wire"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []*adapter.NotificationEvent
}

func (f *fakeDispatcher) Enqueue(event *adapter.NotificationEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return true
}

func (f *fakeDispatcher) received() []*adapter.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

type harness struct {
	server     *Server
	inbox      *scheduler.Inbox
	metrics    *metrics.Collector
	dispatcher *fakeDispatcher
}

func newHarness(t *testing.T, cfg Config, inboxCapacity int) *harness {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	h := &harness{
		inbox:      scheduler.NewInbox(inboxCapacity),
		metrics:    metrics.NewCollector("test", cfg.Address),
		dispatcher: &fakeDispatcher{},
	}
	srv, err := New(cfg, Options{
		Inbox:      h.inbox,
		Dispatcher: h.dispatcher,
		Metrics:    h.metrics,
		InstanceID: "inst-test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.server = srv
	return h
}

func frame(t *testing.T, text string, durationMs uint32) []byte {
	t.Helper()
	b, err := wire.Encode(wire.NotifyPayload{
		Text:       text,
		DurationMs: durationMs,
		Urgency:    types.UrgencyHigh,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

// servePipe runs ServeConn on one end of a pipe while write feeds the other.
func (h *harness) servePipe(t *testing.T, write func(c net.Conn)) error {
	t.Helper()
	server, client := net.Pipe()
	go func() {
		write(client)
	}()
	err := h.server.ServeConn(t.Context(), server)
	_ = client.Close()
	return err
}

func TestServeConn_AcceptsFrame(t *testing.T) {
	h := newHarness(t, Config{}, 0)

	data := frame(t, "build failed", 3000)
	err := h.servePipe(t, func(c net.Conn) {
		_, _ = c.Write(data)
	})
	if err != nil {
		t.Fatalf("ServeConn: %v", err)
	}

	subs := h.inbox.Drain(0)
	if len(subs) != 1 {
		t.Fatalf("inbox holds %d submissions, want 1", len(subs))
	}
	if subs[0].ID != 1 || subs[0].Notice.Text != "build failed" || subs[0].Notice.Duration != 3*time.Second {
		t.Errorf("unexpected submission %+v", subs[0])
	}

	events := h.dispatcher.received()
	if len(events) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.ID != 1 || ev.Urgency != "high" || ev.InstanceID != "inst-test" || ev.EventType != adapter.EventType {
		t.Errorf("unexpected event %+v", ev)
	}
	if !ev.AcceptedAt.Equal(subs[0].AcceptedAt) {
		t.Errorf("event AcceptedAt %v, submission %v", ev.AcceptedAt, subs[0].AcceptedAt)
	}

	snap := h.metrics.Snapshot()
	if snap.FramesDecoded != 1 || snap.NotificationsAccepted != 1 {
		t.Errorf("frames=%d accepted=%d, want 1/1", snap.FramesDecoded, snap.NotificationsAccepted)
	}
}

func TestServeConn_PolicyAdjustsPayload(t *testing.T) {
	h := newHarness(t, Config{}, 0)

	data := frame(t, "disk\x07 full", 0)
	err := h.servePipe(t, func(c net.Conn) {
		_, _ = c.Write(data)
	})
	if err != nil {
		t.Fatalf("ServeConn: %v", err)
	}

	sub := h.inbox.Drain(0)[0]
	if sub.Notice.Duration != time.Second {
		t.Errorf("duration = %v, want clamped to 1s", sub.Notice.Duration)
	}
	if sub.Notice.Text != "disk full" {
		t.Errorf("text = %q, want control character stripped", sub.Notice.Text)
	}

	violations := h.dispatcher.received()[0].Violations
	if !slices.Contains(violations, "duration_below_min") || !slices.Contains(violations, "text_sanitized") {
		t.Errorf("event violations = %v", violations)
	}
}

func TestServeConn_TruncatedFrameHasNoEffect(t *testing.T) {
	h := newHarness(t, Config{}, 0)

	// Five bytes of a valid header, then disconnect.
	data := frame(t, "never", 1000)[:5]
	err := h.servePipe(t, func(c net.Conn) {
		_, _ = c.Write(data)
		_ = c.Close()
	})
	if !IsProtocolError(err) {
		t.Fatalf("ServeConn = %v, want protocol error", err)
	}
	if kind, _ := wire.ProtocolErrorKind(err); kind != wire.ErrorTruncated {
		t.Errorf("kind = %s, want truncated", kind)
	}
	if h.inbox.Len() != 0 || h.inbox.LastID() != 0 {
		t.Error("truncated frame reached the inbox")
	}
	if len(h.dispatcher.received()) != 0 {
		t.Error("truncated frame was dispatched")
	}
	if got := h.metrics.Snapshot().ProtocolErrorsByKind["truncated"]; got != 1 {
		t.Errorf("truncated protocol errors = %d, want 1", got)
	}
}

func TestServeConn_RejectsOversizedLengthFromHeader(t *testing.T) {
	h := newHarness(t, Config{IdleTimeout: 10 * time.Second}, 0)

	hdr := append([]byte{}, wire.Magic[:]...)
	hdr = append(hdr, wire.ProtocolVersion, byte(wire.KindNotify))
	hdr = binary.BigEndian.AppendUint32(hdr, wire.MaxPayloadSize+1)

	start := time.Now()
	// Header only: the error must not wait for payload bytes.
	err := h.servePipe(t, func(c net.Conn) {
		_, _ = c.Write(hdr)
	})
	if kind, ok := wire.ProtocolErrorKind(err); !ok || kind != wire.ErrorPayloadTooLarge {
		t.Fatalf("ServeConn = %v, want payload_too_large", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("rejection took %v", elapsed)
	}
}

func TestServeConn_BadMagic(t *testing.T) {
	h := newHarness(t, Config{}, 0)

	err := h.servePipe(t, func(c net.Conn) {
		_, _ = c.Write([]byte("GET / HTTP/1.1\r\n"))
	})
	if kind, ok := wire.ProtocolErrorKind(err); !ok || kind != wire.ErrorBadMagic {
		t.Fatalf("ServeConn = %v, want bad_magic", err)
	}
}

func TestServeConn_IdleTimeout(t *testing.T) {
	h := newHarness(t, Config{IdleTimeout: 50 * time.Millisecond}, 0)
	partial := frame(t, "stall", 1000)[:8]

	tests := []struct {
		name  string
		write func(c net.Conn)
	}{
		{"silent", func(net.Conn) {}},
		{"partial frame", func(c net.Conn) { _, _ = c.Write(partial) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.servePipe(t, tt.write)
			if !IsTimeoutError(err) {
				t.Fatalf("ServeConn = %v, want timeout", err)
			}
		})
	}
	if got := h.metrics.Snapshot().ConnectionsTimedOut; got != 2 {
		t.Errorf("ConnectionsTimedOut = %d, want 2", got)
	}
	if h.inbox.Len() != 0 {
		t.Error("timed-out connection reached the inbox")
	}
}

func TestServeConn_FrameLimit(t *testing.T) {
	h := newHarness(t, Config{}, 0)

	two := append(frame(t, "first", 1000), frame(t, "second", 1000)...)
	err := h.servePipe(t, func(c net.Conn) {
		_, _ = c.Write(two)
	})
	if err != nil {
		t.Fatalf("ServeConn: %v", err)
	}
	if got := h.inbox.Len(); got != 1 {
		t.Errorf("inbox holds %d, want 1 (fire and forget)", got)
	}
}

func TestServeConn_UnlimitedFrames(t *testing.T) {
	h := newHarness(t, Config{MaxFramesPerConnection: -1}, 0)

	var frames [][]byte
	for _, text := range []string{"a", "b", "c"} {
		frames = append(frames, frame(t, text, 1000))
	}
	err := h.servePipe(t, func(c net.Conn) {
		for _, f := range frames {
			_, _ = c.Write(f)
		}
		_ = c.Close()
	})
	if err != nil {
		t.Fatalf("ServeConn: %v", err)
	}

	subs := h.inbox.Drain(0)
	if len(subs) != 3 {
		t.Fatalf("inbox holds %d, want 3", len(subs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if subs[i].Notice.Text != want || subs[i].ID != uint64(i+1) {
			t.Errorf("subs[%d] = id %d text %q", i, subs[i].ID, subs[i].Notice.Text)
		}
	}
}

func TestServeConn_InboxFull(t *testing.T) {
	h := newHarness(t, Config{}, 1)
	if _, err := h.inbox.Submit(h.server.opts.Policy.Apply(wire.NotifyPayload{Text: "x", DurationMs: 1000})); err != nil {
		t.Fatalf("prefill: %v", err)
	}

	data := frame(t, "refused", 1000)
	err := h.servePipe(t, func(c net.Conn) {
		_, _ = c.Write(data)
	})
	if !IsExhaustedError(err) || !errors.Is(err, scheduler.ErrInboxFull) {
		t.Fatalf("ServeConn = %v, want exhausted inbox", err)
	}
	if got := h.metrics.Snapshot().InboxFull; got != 1 {
		t.Errorf("InboxFull = %d, want 1", got)
	}
	if len(h.dispatcher.received()) != 0 {
		t.Error("refused notification was dispatched")
	}
}

func TestServeConn_CleanCloseWithoutFrame(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	err := h.servePipe(t, func(c net.Conn) { _ = c.Close() })
	if err != nil {
		t.Fatalf("ServeConn = %v, want nil on clean close", err)
	}
}

// startTCP listens on a loopback port and serves until the test ends.
func startTCP(t *testing.T, h *harness) (addr string, stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	if err := h.server.Listen(ctx); err != nil {
		cancel()
		t.Fatalf("Listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- h.server.Serve(ctx) }()

	stopped := false
	stop = func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return errors.New("serve did not return")
		}
	}
	t.Cleanup(func() { _ = stop() })
	return h.server.Addr().String(), stop
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServe_MalformedConnectionIsIsolated(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	addr, _ := startTCP(t, h)

	bad := dial(t, addr)
	good := dial(t, addr)

	if _, err := bad.Write([]byte("XXXXXXXXXX")); err != nil {
		t.Fatalf("bad write: %v", err)
	}
	if _, err := good.Write(frame(t, "still here", 2000)); err != nil {
		t.Fatalf("good write: %v", err)
	}

	waitFor(t, "good notification", func() bool { return h.inbox.Len() == 1 })
	waitFor(t, "bad connection error", func() bool {
		return h.metrics.Snapshot().ProtocolErrorsByKind["bad_magic"] == 1
	})

	// The server closed the bad connection.
	_ = bad.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := bad.Read(make([]byte, 1)); !errors.Is(err, io.EOF) && !isReset(err) {
		t.Errorf("bad connection read = %v, want EOF", err)
	}

	if sub := h.inbox.Drain(0)[0]; sub.Notice.Text != "still here" {
		t.Errorf("text = %q", sub.Notice.Text)
	}
}

func TestServe_RefusesBeyondMaxConnections(t *testing.T) {
	h := newHarness(t, Config{MaxConnections: 1, IdleTimeout: 10 * time.Second}, 0)
	addr, _ := startTCP(t, h)

	_ = dial(t, addr)
	waitFor(t, "first connection active", func() bool {
		return h.metrics.Snapshot().ConnectionsActive == 1
	})

	refused := dial(t, addr)
	_ = refused.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := refused.Read(make([]byte, 1)); !errors.Is(err, io.EOF) && !isReset(err) {
		t.Errorf("refused connection read = %v, want EOF", err)
	}
	waitFor(t, "refusal counted", func() bool {
		return h.metrics.Snapshot().ConnectionsRefused == 1
	})
}

func TestServe_TwoClientsOrderedByArrival(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	addr, _ := startTCP(t, h)

	first := dial(t, addr)
	if _, err := first.Write(frame(t, "one", 1000)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "first notification", func() bool { return h.inbox.Len() == 1 })

	second := dial(t, addr)
	if _, err := second.Write(frame(t, "two", 1000)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "second notification", func() bool { return h.inbox.Len() == 2 })

	subs := h.inbox.Drain(0)
	if subs[0].Notice.Text != "one" || subs[1].Notice.Text != "two" || subs[0].ID >= subs[1].ID {
		t.Errorf("inbox order = %q(%d), %q(%d)", subs[0].Notice.Text, subs[0].ID, subs[1].Notice.Text, subs[1].ID)
	}
}

func TestServe_ShutdownClosesIdleConnections(t *testing.T) {
	h := newHarness(t, Config{IdleTimeout: time.Minute}, 0)
	addr, stop := startTCP(t, h)

	_ = dial(t, addr)
	waitFor(t, "connection active", func() bool {
		return h.metrics.Snapshot().ConnectionsActive == 1
	})

	if err := stop(); err != nil {
		t.Fatalf("Serve returned %v on shutdown", err)
	}
	if got := h.metrics.Snapshot().ConnectionsActive; got != 0 {
		t.Errorf("ConnectionsActive = %d after shutdown", got)
	}
}

// flakyListener fails the first failures Accept calls with EMFILE.
type flakyListener struct {
	net.Listener

	mu       sync.Mutex
	failures int
	calls    int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	l.calls++
	fail := l.calls <= l.failures
	l.mu.Unlock()
	if fail {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	return l.Listener.Accept()
}

func TestServe_AcceptErrorsDoNotStopServer(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	if err := h.server.Listen(ctx); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	h.server.mu.Lock()
	h.server.ln = &flakyListener{Listener: h.server.ln, failures: 3}
	h.server.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- h.server.Serve(ctx) }()

	conn := dial(t, h.server.Addr().String())
	if _, err := conn.Write(frame(t, "after exhaustion", 1000)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "notification after accept errors", func() bool { return h.inbox.Len() == 1 })

	if got := h.metrics.Snapshot().ConnectionsRefused; got != 3 {
		t.Errorf("ConnectionsRefused = %d, want 3", got)
	}
	select {
	case err := <-done:
		t.Fatalf("Serve returned %v while still open", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v on shutdown, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNextBackoff(t *testing.T) {
	var d time.Duration
	var got []time.Duration
	for range 10 {
		d = nextBackoff(d)
		got = append(got, d)
	}
	if got[0] != 5*time.Millisecond || got[1] != 10*time.Millisecond {
		t.Errorf("backoff starts %v, %v", got[0], got[1])
	}
	if got[len(got)-1] != time.Second {
		t.Errorf("backoff caps at %v, want 1s", got[len(got)-1])
	}
}

func TestServe_RequiresListen(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	if err := h.server.Serve(t.Context()); !errors.Is(err, ErrNotListening) {
		t.Fatalf("Serve = %v, want ErrNotListening", err)
	}
}

func TestNew_RequiresInbox(t *testing.T) {
	if _, err := New(Config{}, Options{}); err == nil {
		t.Fatal("expected error without inbox")
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.IdleTimeout != DefaultIdleTimeout || cfg.MaxConnections != DefaultMaxConnections ||
		cfg.MaxFramesPerConnection != 1 || cfg.Address != DefaultAddress {
		t.Errorf("defaults = %+v", cfg)
	}
	if got := (Config{MaxFramesPerConnection: -1}).withDefaults().MaxFramesPerConnection; got != -1 {
		t.Errorf("unlimited frames overridden to %d", got)
	}
}

func TestConnError_Classification(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		kind ConnErrorKind
		is   func(error) bool
	}{
		{ConnErrorProtocol, IsProtocolError},
		{ConnErrorTimeout, IsTimeoutError},
		{ConnErrorExhausted, IsExhaustedError},
		{ConnErrorTransport, IsTransportError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := error(&ConnError{Kind: tt.kind, Remote: "1.2.3.4:5", Err: cause})
			if !tt.is(err) {
				t.Error("classifier did not match its own kind")
			}
			if !errors.Is(err, cause) {
				t.Error("ConnError does not unwrap to its cause")
			}
			for _, other := range tests {
				if other.kind != tt.kind && other.is(err) {
					t.Errorf("classifier for %s matched %s", other.kind, tt.kind)
				}
			}
		})
	}
	if IsProtocolError(cause) {
		t.Error("plain error classified as protocol error")
	}
}

func isReset(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
