package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/warnwin/adapter"
)

// RecordKindNotification is the record_kind of archived notifications.
const RecordKindNotification = "notification"

// Partition keys of the Hive layout, outermost first.
const (
	PartitionDay     = "day"
	PartitionUrgency = "urgency"
)

// Record is the storage format of one accepted notification.
type Record struct {
	RecordKind      string    `json:"record_kind"`
	ContractVersion string    `json:"contract_version"`
	InstanceID      string    `json:"instance_id,omitempty"`
	ID              uint64    `json:"id"`
	Text            string    `json:"text"`
	Sender          string    `json:"sender,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	AcceptedAt      time.Time `json:"accepted_at"`
	Remote          string    `json:"remote,omitempty"`
	Violations      []string  `json:"violations,omitempty"`

	// Partition keys
	Day     string `json:"day"`
	Urgency string `json:"urgency"`
}

// toRecordMap converts an event to the map form the Hive layout needs.
func toRecordMap(e *adapter.NotificationEvent) map[string]any {
	m := map[string]any{
		"record_kind":      RecordKindNotification,
		"contract_version": e.ContractVersion,
		"id":               e.ID,
		"text":             e.Text,
		"duration_ms":      e.DurationMs,
		"accepted_at":      e.AcceptedAt.UTC().Format(time.RFC3339Nano),
		PartitionDay:       e.Day(),
		PartitionUrgency:   e.Urgency,
	}
	if e.InstanceID != "" {
		m["instance_id"] = e.InstanceID
	}
	if e.Sender != "" {
		m["sender"] = e.Sender
	}
	if e.Remote != "" {
		m["remote"] = e.Remote
	}
	if len(e.Violations) > 0 {
		m["violations"] = e.Violations
	}
	return m
}

// recordFromItem converts a decoded JSONL item back into a Record.
func recordFromItem(item any) (Record, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return Record{}, fmt.Errorf("re-encode archived item: %w", err)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("decode archived record: %w", err)
	}
	return r, nil
}

// Event returns the record as the event it was archived from.
func (r Record) Event() *adapter.NotificationEvent {
	return &adapter.NotificationEvent{
		ContractVersion: r.ContractVersion,
		EventType:       adapter.EventType,
		InstanceID:      r.InstanceID,
		ID:              r.ID,
		Text:            r.Text,
		Sender:          r.Sender,
		Urgency:         r.Urgency,
		DurationMs:      r.DurationMs,
		AcceptedAt:      r.AcceptedAt,
		Remote:          r.Remote,
		Violations:      r.Violations,
	}
}
