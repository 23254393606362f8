package reader

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/warnwin/adapter"
	"github.com/pithecene-io/warnwin/archive"
	"github.com/pithecene-io/warnwin/ipc"
	"github.com/pithecene-io/warnwin/metrics"
	"github.com/pithecene-io/warnwin/types"
)

type fakeAdmin struct {
	snap  *types.Snapshot
	stats *ipc.Response
	err   error
}

func (f *fakeAdmin) List(context.Context) (*types.Snapshot, error) { return f.snap, f.err }

func (f *fakeAdmin) Stats(context.Context) (*ipc.Response, error) { return f.stats, f.err }

func TestServerReader_List(t *testing.T) {
	snap := &types.Snapshot{
		Frame:   12,
		TakenAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		Notifications: []types.Notification{
			{ID: 3, Slot: 0, State: types.StateVisible, Urgency: types.UrgencyCritical,
				Text: "build\nfailed", AgeMs: 1250, Progress: 1},
			{ID: 4, Slot: 1, State: types.StateEntering, Urgency: types.UrgencyNormal,
				Text: strings.Repeat("x", 100), Progress: 0.5, Sender: "ci"},
		},
	}
	r := NewServerReader(&fakeAdmin{snap: snap}, nil)

	resp, err := r.List(t.Context())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Frame != 12 || len(resp.Items) != 2 {
		t.Fatalf("resp = %+v", resp)
	}

	first := resp.Items[0]
	if first.State != "visible" || first.Urgency != "critical" || first.Text != "build failed" {
		t.Errorf("first = %+v", first)
	}
	if first.Age != "1.3s" || first.Progress != "100%" {
		t.Errorf("age/progress = %s/%s", first.Age, first.Progress)
	}

	second := resp.Items[1]
	if n := len([]rune(second.Text)); n != maxListText {
		t.Errorf("clipped text has %d runes, want %d", n, maxListText)
	}
	if !strings.HasSuffix(second.Text, "…") || second.Progress != "50%" || second.Sender != "ci" {
		t.Errorf("second = %+v", second)
	}
}

func TestParseSnapshot_Alert(t *testing.T) {
	if got := ParseSnapshot(&types.Snapshot{Alert: types.UrgencyHigh}).Alert; got != "" {
		t.Errorf("Alert = %q without alerting, want empty", got)
	}
	if got := ParseSnapshot(&types.Snapshot{Alerting: true, Alert: types.UrgencyCritical}).Alert; got != "critical" {
		t.Errorf("Alert = %q, want critical", got)
	}
}

func TestServerReader_ListEmpty(t *testing.T) {
	r := NewServerReader(&fakeAdmin{snap: &types.Snapshot{}}, nil)
	resp, err := r.List(t.Context())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Items == nil || len(resp.Items) != 0 {
		t.Errorf("Items = %v, want empty non-nil", resp.Items)
	}
}

func TestServerReader_Stats(t *testing.T) {
	started := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	r := NewServerReader(&fakeAdmin{stats: &ipc.Response{
		OK:     true,
		Active: 2,
		Stats:  &metrics.Snapshot{Ticks: 300, StartedAt: started, InstanceID: "inst"},
	}}, nil)
	r.now = func() time.Time { return started.Add(90 * time.Second) }

	resp, err := r.Stats(t.Context())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if resp.Active != 2 || resp.Stats.Ticks != 300 || resp.Uptime != "1m30s" {
		t.Errorf("resp = %+v", resp)
	}

	r = NewServerReader(&fakeAdmin{stats: &ipc.Response{OK: true}}, nil)
	if _, err := r.Stats(t.Context()); err == nil {
		t.Error("expected error for response without counters")
	}
}

func TestServerReader_AdminErrors(t *testing.T) {
	boom := errors.New("connection refused")
	r := NewServerReader(&fakeAdmin{err: boom}, nil)
	if _, err := r.List(t.Context()); !errors.Is(err, boom) {
		t.Errorf("List err = %v", err)
	}
	if _, err := r.Stats(t.Context()); !errors.Is(err, boom) {
		t.Errorf("Stats err = %v", err)
	}

	r = NewServerReader(nil, nil)
	if _, err := r.List(t.Context()); err == nil {
		t.Error("List without client should fail")
	}
}

func TestServerReader_History(t *testing.T) {
	store := lode.NewMemory()
	factory := func() (lode.Store, error) { return store, nil }
	ds, err := archive.NewDataset("warnwin", factory)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}

	a := archive.NewWithDataset("warnwin", ds, nil)
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	for i, u := range []string{"low", "high"} {
		err := a.Publish(t.Context(), &adapter.NotificationEvent{
			ContractVersion: adapter.ContractVersion,
			ID:              uint64(i + 1),
			Text:            "n",
			Urgency:         u,
			DurationMs:      1500,
			AcceptedAt:      at,
			Violations:      []string{"duration_below_min"}[:i],
		})
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	r := NewServerReader(nil, ds)
	items, err := r.History(t.Context(), HistoryOptions{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(items) != 2 || items[0].ID != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Duration != "1.5s" || !items[0].Adjusted || items[1].Adjusted {
		t.Errorf("items = %+v", items)
	}

	items, err = r.History(t.Context(), HistoryOptions{Urgency: "critical"})
	if err != nil || len(items) != 0 || items == nil {
		t.Errorf("unmatched filter = %v, %v; want empty slice", items, err)
	}
}

func TestServerReader_HistoryWithoutArchive(t *testing.T) {
	r := NewServerReader(nil, nil)
	if _, err := r.History(t.Context(), HistoryOptions{}); !errors.Is(err, ErrNoArchive) {
		t.Errorf("err = %v, want ErrNoArchive", err)
	}
}

func TestDial_RejectsBadAddress(t *testing.T) {
	if _, err := Dial("http://nope", time.Second, nil); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{1249 * time.Millisecond, "1.2s"},
		{61 * time.Second, "1m1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
