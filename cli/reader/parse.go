package reader

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pithecene-io/warnwin/archive"
	"github.com/pithecene-io/warnwin/ipc"
	"github.com/pithecene-io/warnwin/types"
)

// maxListText bounds the text column of list output, in runes.
const maxListText = 60

// ParseSnapshot converts a scheduler snapshot to a ListResponse.
func ParseSnapshot(snap *types.Snapshot) *ListResponse {
	resp := &ListResponse{Items: []ListItem{}}
	if snap == nil {
		return resp
	}
	resp.Frame = snap.Frame
	resp.TakenAt = snap.TakenAt
	if snap.Alerting {
		resp.Alert = snap.Alert.String()
	}
	for _, n := range snap.Notifications {
		resp.Items = append(resp.Items, ListItem{
			ID:       n.ID,
			Slot:     n.Slot,
			State:    string(n.State),
			Urgency:  n.Urgency.String(),
			Age:      formatDuration(n.Age()),
			Progress: fmt.Sprintf("%.0f%%", n.Progress*100),
			Sender:   n.Sender,
			Text:     clip(oneLine(n.Text), maxListText),
		})
	}
	return resp
}

// ParseStats converts an admin stats response to a StatsResponse.
func ParseStats(resp *ipc.Response, now time.Time) (*StatsResponse, error) {
	if resp == nil || resp.Stats == nil {
		return nil, errors.New("stats response missing counters")
	}
	return &StatsResponse{
		Active: resp.Active,
		Uptime: formatDuration(resp.Stats.Uptime(now)),
		Stats:  *resp.Stats,
	}, nil
}

// ParseRecords converts archived records to history items, preserving order.
func ParseRecords(records []archive.Record) []HistoryItem {
	items := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, HistoryItem{
			ID:         r.ID,
			AcceptedAt: r.AcceptedAt,
			Urgency:    r.Urgency,
			Duration:   formatDuration(time.Duration(r.DurationMs) * time.Millisecond),
			Sender:     r.Sender,
			Text:       r.Text,
			Adjusted:   len(r.Violations) > 0,
		})
	}
	return items
}

// formatDuration renders d rounded to a tenth of a second.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(100 * time.Millisecond).String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
