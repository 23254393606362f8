// Package adapter defines the boundary for publishing accepted
// notifications to downstream systems.
//
// The server owns adapter lifecycle; users provide configuration only.
// Adapters are fed by a Dispatcher so a slow downstream never delays
// ingestion.
package adapter

import (
	"context"
	"time"
)

// EventType is the value of NotificationEvent.EventType.
const EventType = "notification_accepted"

// ContractVersion is the version of the NotificationEvent shape.
const ContractVersion = "1"

// NotificationEvent is the payload published for each accepted notification.
type NotificationEvent struct {
	ContractVersion string    `json:"contract_version"`
	EventType       string    `json:"event_type"` // always "notification_accepted"
	InstanceID      string    `json:"instance_id,omitempty"`
	ID              uint64    `json:"id"`
	Text            string    `json:"text"`
	Sender          string    `json:"sender,omitempty"`
	Urgency         string    `json:"urgency"`
	DurationMs      int64     `json:"duration_ms"`
	AcceptedAt      time.Time `json:"accepted_at"`
	Remote          string    `json:"remote,omitempty"`
	Violations      []string  `json:"violations,omitempty"`
}

// Day returns the UTC acceptance day as YYYY-MM-DD.
func (e *NotificationEvent) Day() string {
	return e.AcceptedAt.UTC().Format(time.DateOnly)
}

// Adapter publishes notification events to a downstream system.
type Adapter interface {
	// Publish sends one event downstream.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *NotificationEvent) error

	// Close releases adapter resources.
	Close() error
}
