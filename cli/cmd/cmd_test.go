package cmd

import (
	"encoding/hex"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/cli/config"
	"github.com/pithecene-io/warnwin/types"
	"github.com/pithecene-io/warnwin/wire"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestAdminFlags_Names(t *testing.T) {
	var names []string
	for _, f := range AdminFlags() {
		names = append(names, f.Names()[0])
	}
	if strings.Join(names, ",") != "admin,timeout" {
		t.Errorf("AdminFlags names = %v", names)
	}
}

// newTestCLIContext builds a context where only the flags in set are
// explicitly set, so c.IsSet reports them and nothing else.
func newTestCLIContext(t *testing.T, flags []cli.Flag, set map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	app.Flags = flags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags {
		if err := f.Apply(fs); err != nil {
			t.Fatalf("apply flag %v: %v", f.Names(), err)
		}
	}
	for name, val := range set {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}
	return cli.NewContext(app, fs, nil)
}

func TestApplyServeFlags_CLIWins(t *testing.T) {
	cfg := &config.Config{
		Listen: "0.0.0.0:1",
		Admin:  "/tmp/from-config.sock",
		Log:    config.LogConfig{Level: "warn"},
	}
	c := newTestCLIContext(t, ServeCommand().Flags, map[string]string{
		"listen":   "127.0.0.1:9999",
		"feed":     "127.0.0.1:8080",
		"headless": "true",
		"strict":   "true",
	})

	applyServeFlags(c, cfg)

	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("Listen = %q, want CLI value", cfg.Listen)
	}
	if cfg.Admin != "/tmp/from-config.sock" {
		t.Errorf("Admin = %q, want config value kept", cfg.Admin)
	}
	if !cfg.Feed.Enabled || cfg.Feed.Address != "127.0.0.1:8080" {
		t.Errorf("Feed = %+v, want enabled on CLI address", cfg.Feed)
	}
	if !cfg.Headless || !cfg.Scheduler.Strict {
		t.Error("headless and strict should be set from flags")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want config value kept", cfg.Log.Level)
	}
}

func TestApplyServeFlags_ConfigFallback(t *testing.T) {
	cfg := &config.Config{Headless: true, Feed: config.FeedConfig{Enabled: true, Address: ":7000"}}
	c := newTestCLIContext(t, ServeCommand().Flags, nil)

	applyServeFlags(c, cfg)

	if !cfg.Headless {
		t.Error("unset --headless should not clear config headless")
	}
	if cfg.Feed.Address != ":7000" {
		t.Errorf("Feed.Address = %q, want config value", cfg.Feed.Address)
	}
}

func TestApplyArchiveFlags(t *testing.T) {
	cfg := &config.Config{Archive: config.ArchiveConfig{Backend: "s3", Path: "bucket/prefix"}}
	c := newTestCLIContext(t, HistoryCommand().Flags, map[string]string{
		"archive-backend": "fs",
		"archive-path":    "/var/lib/warnwin",
	})

	applyArchiveFlags(c, cfg)

	if cfg.Archive.Backend != "fs" || cfg.Archive.Path != "/var/lib/warnwin" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
}

func TestHistoryOptions(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]string
		want    string
		wantErr string
	}{
		{"defaults", nil, "", ""},
		{"alias urgency", map[string]string{"urgency": "warn"}, "high", ""},
		{"bad urgency", map[string]string{"urgency": "loud"}, "", "invalid urgency"},
		{"bad day", map[string]string{"day": "16/10/2026"}, "", "invalid --day"},
		{"negative limit", map[string]string{"limit": "-1"}, "", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCLIContext(t, HistoryCommand().Flags, tt.set)
			opts, err := historyOptions(c)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts.Urgency != tt.want {
				t.Errorf("Urgency = %q, want %q", opts.Urgency, tt.want)
			}
		})
	}
}

func TestDismissTarget(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		all     bool
		want    uint64
		wantErr bool
	}{
		{"id", []string{"42"}, false, 42, false},
		{"all", nil, true, 0, false},
		{"all with id", []string{"1"}, true, 0, true},
		{"missing id", nil, false, 0, true},
		{"two ids", []string{"1", "2"}, false, 0, true},
		{"zero id", []string{"0"}, false, 0, true},
		{"not a number", []string{"abc"}, false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dismissTarget(tt.args, tt.all)
			if (err != nil) != tt.wantErr {
				t.Fatalf("dismissTarget(%v, %v) error = %v, wantErr %v", tt.args, tt.all, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("dismissTarget = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSendText(t *testing.T) {
	got, err := sendText([]string{"build", "failed"}, nil)
	if err != nil || got != "build failed" {
		t.Errorf("sendText(args) = %q, %v", got, err)
	}

	got, err = sendText([]string{"-"}, strings.NewReader("from stdin\n"))
	if err != nil || got != "from stdin" {
		t.Errorf("sendText(stdin) = %q, %v", got, err)
	}

	if _, err := sendText(nil, nil); err == nil {
		t.Error("expected error for missing text")
	}
}

func TestBuildPayload(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		duration time.Duration
		urgency  string
		wantMs   uint32
		wantU    types.Urgency
		wantErr  bool
	}{
		{"defaults", "hi", 3 * time.Second, "normal", 3000, types.UrgencyNormal, false},
		{"alias", "hi", time.Second, "alert", 1000, types.UrgencyCritical, false},
		{"sub-millisecond truncates", "hi", 1500 * time.Microsecond, "low", 1, types.UrgencyLow, false},
		{"saturates", "hi", 2000 * time.Hour, "high", ^uint32(0), types.UrgencyHigh, false},
		{"negative", "hi", -time.Second, "normal", 0, 0, true},
		{"bad urgency", "hi", time.Second, "loud", 0, 0, true},
		{"text too long", strings.Repeat("x", wire.MaxTextBytes+1), time.Second, "normal", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := buildPayload(tt.text, tt.duration, tt.urgency, "ci")
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildPayload error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.DurationMs != tt.wantMs || p.Urgency != tt.wantU || p.Sender != "ci" {
				t.Errorf("payload = %+v", p)
			}
		})
	}
}

func TestDecodeHexFrame(t *testing.T) {
	frame, err := wire.Encode(wire.NotifyPayload{
		Text:       "build failed",
		DurationMs: 3000,
		Urgency:    types.UrgencyHigh,
		Sender:     "ci",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Spaced hex with a trailing byte.
	h := hex.EncodeToString(frame)
	spaced := h[:8] + " " + h[8:] + "\n00"
	got, err := decodeHexFrame(spaced)
	if err != nil {
		t.Fatalf("decodeHexFrame: %v", err)
	}
	if got.Text != "build failed" || got.DurationMs != 3000 || got.Urgency != "high" || got.Sender != "ci" {
		t.Errorf("decoded = %+v", got)
	}
	if got.Kind != "notify" || got.Version != wire.ProtocolVersion {
		t.Errorf("header = %+v", got)
	}
	if got.Consumed != len(frame) || got.Trailing != 1 {
		t.Errorf("consumed=%d trailing=%d, want %d and 1", got.Consumed, got.Trailing, len(frame))
	}
}

func TestDecodeHexFrame_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"not hex", "zz", "invalid hex"},
		{"bad magic", "5741524f01010000000000", "bad_magic"},
		{"incomplete", "5741524e01", "incomplete frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeHexFrame(tt.input)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
