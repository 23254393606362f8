// Package reader provides the read-side data access layer for the warnwin CLI.
//
// Live views (list, stats) come from a running server over the admin
// socket. History comes from the archive dataset. Commands render the
// response types here and never touch ipc or lode directly.
package reader

import (
	"time"

	"github.com/pithecene-io/warnwin/metrics"
)

// ListItem is one active notification in `warnwin list`.
type ListItem struct {
	ID       uint64 `json:"id" yaml:"id"`
	Slot     int    `json:"slot" yaml:"slot"`
	State    string `json:"state" yaml:"state"`
	Urgency  string `json:"urgency" yaml:"urgency"`
	Age      string `json:"age" yaml:"age"`
	Progress string `json:"progress" yaml:"progress"`
	Sender   string `json:"sender" yaml:"sender"`
	Text     string `json:"text" yaml:"text"`
}

// ListResponse is the active set as of one frame.
type ListResponse struct {
	Frame   uint64     `json:"frame" yaml:"frame"`
	TakenAt time.Time  `json:"taken_at" yaml:"taken_at"`
	Alert   string     `json:"alert,omitempty" yaml:"alert,omitempty"`
	Items   []ListItem `json:"items" yaml:"items"`
}

// StatsResponse is the server's counters plus the active count.
type StatsResponse struct {
	Active int              `json:"active" yaml:"active"`
	Uptime string           `json:"uptime" yaml:"uptime"`
	Stats  metrics.Snapshot `json:"stats" yaml:"stats"`
}

// HistoryItem is one archived notification in `warnwin history`.
type HistoryItem struct {
	ID         uint64    `json:"id" yaml:"id"`
	AcceptedAt time.Time `json:"accepted_at" yaml:"accepted_at"`
	Urgency    string    `json:"urgency" yaml:"urgency"`
	Duration   string    `json:"duration" yaml:"duration"`
	Sender     string    `json:"sender" yaml:"sender"`
	Text       string    `json:"text" yaml:"text"`
	Adjusted   bool      `json:"adjusted" yaml:"adjusted"`
}

// HistoryOptions filters `warnwin history`.
type HistoryOptions struct {
	Day     string
	Urgency string
	Sender  string
	Limit   int
}
