// Package metrics provides server-lifetime counters.
//
// The Collector accumulates counters for one server process. It is a leaf
// package with no internal dependencies, so kind-labelled counters take
// plain strings. Policy counters are absorbed from policy.Stats when a
// snapshot is requested rather than recorded twice.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of all counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Connections
	ConnectionsAccepted int64 `json:"connections_accepted" msgpack:"connections_accepted" yaml:"connections_accepted"`
	ConnectionsRefused  int64 `json:"connections_refused" msgpack:"connections_refused" yaml:"connections_refused"`
	ConnectionsTimedOut int64 `json:"connections_timed_out" msgpack:"connections_timed_out" yaml:"connections_timed_out"`
	ConnectionsActive   int64 `json:"connections_active" msgpack:"connections_active" yaml:"connections_active"`

	// Frames
	FramesDecoded        int64            `json:"frames_decoded" msgpack:"frames_decoded" yaml:"frames_decoded"`
	ProtocolErrors       int64            `json:"protocol_errors" msgpack:"protocol_errors" yaml:"protocol_errors"`
	ProtocolErrorsByKind map[string]int64 `json:"protocol_errors_by_kind" msgpack:"protocol_errors_by_kind" yaml:"protocol_errors_by_kind"`

	// Admission (policy counters absorbed from policy.Stats)
	NotificationsAccepted int64            `json:"notifications_accepted" msgpack:"notifications_accepted" yaml:"notifications_accepted"`
	InboxFull             int64            `json:"inbox_full" msgpack:"inbox_full" yaml:"inbox_full"`
	PolicyAdjusted        int64            `json:"policy_adjusted" msgpack:"policy_adjusted" yaml:"policy_adjusted"`
	ViolationsByKind      map[string]int64 `json:"violations_by_kind" msgpack:"violations_by_kind" yaml:"violations_by_kind"`

	// Scheduler
	Ticks                  int64 `json:"ticks" msgpack:"ticks" yaml:"ticks"`
	NotificationsRetired   int64 `json:"notifications_retired" msgpack:"notifications_retired" yaml:"notifications_retired"`
	NotificationsDismissed int64 `json:"notifications_dismissed" msgpack:"notifications_dismissed" yaml:"notifications_dismissed"`
	InvariantRepairs       int64 `json:"invariant_repairs" msgpack:"invariant_repairs" yaml:"invariant_repairs"`

	// Adapters
	AdapterPublishSuccess int64 `json:"adapter_publish_success" msgpack:"adapter_publish_success" yaml:"adapter_publish_success"`
	AdapterPublishFailure int64 `json:"adapter_publish_failure" msgpack:"adapter_publish_failure" yaml:"adapter_publish_failure"`
	DispatchDropped       int64 `json:"dispatch_dropped" msgpack:"dispatch_dropped" yaml:"dispatch_dropped"`

	// Feed
	FeedClients    int64 `json:"feed_clients" msgpack:"feed_clients" yaml:"feed_clients"`
	FeedFramesSent int64 `json:"feed_frames_sent" msgpack:"feed_frames_sent" yaml:"feed_frames_sent"`

	// Dimensions (informational, set at construction)
	InstanceID string    `json:"instance_id" msgpack:"instance_id" yaml:"instance_id"`
	Listen     string    `json:"listen" msgpack:"listen" yaml:"listen"`
	StartedAt  time.Time `json:"started_at" msgpack:"started_at" yaml:"started_at"`
}

// Uptime returns the time since the collector was created.
func (s Snapshot) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// Collector accumulates server counters.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	connectionsAccepted int64
	connectionsRefused  int64
	connectionsTimedOut int64
	connectionsActive   int64

	framesDecoded        int64
	protocolErrors       int64
	protocolErrorsByKind map[string]int64

	notificationsAccepted int64
	inboxFull             int64

	// Set via AbsorbPolicyStats
	policyAdjusted   int64
	violationsByKind map[string]int64

	ticks                  int64
	notificationsRetired   int64
	notificationsDismissed int64
	invariantRepairs       int64

	adapterPublishSuccess int64
	adapterPublishFailure int64
	dispatchDropped       int64

	feedClients    int64
	feedFramesSent int64

	instanceID string
	listen     string
	startedAt  time.Time
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(instanceID, listen string) *Collector {
	return &Collector{
		protocolErrorsByKind: make(map[string]int64),
		violationsByKind:     make(map[string]int64),
		instanceID:           instanceID,
		listen:               listen,
		startedAt:            time.Now().UTC(),
	}
}

func (c *Collector) add(counter *int64, n int64) {
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Connections ---

// IncConnectionAccepted records an accepted connection and marks it active.
func (c *Collector) IncConnectionAccepted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connectionsAccepted++
	c.connectionsActive++
	c.mu.Unlock()
}

// DecConnectionActive marks an accepted connection as closed.
func (c *Collector) DecConnectionActive() {
	if c == nil {
		return
	}
	c.add(&c.connectionsActive, -1)
}

// IncConnectionRefused records a connection refused at the limit.
func (c *Collector) IncConnectionRefused() {
	if c == nil {
		return
	}
	c.add(&c.connectionsRefused, 1)
}

// IncConnectionTimedOut records a connection reclaimed by the idle timeout.
func (c *Collector) IncConnectionTimedOut() {
	if c == nil {
		return
	}
	c.add(&c.connectionsTimedOut, 1)
}

// --- Frames ---

// IncFrameDecoded records a successfully decoded frame.
func (c *Collector) IncFrameDecoded() {
	if c == nil {
		return
	}
	c.add(&c.framesDecoded, 1)
}

// IncProtocolError records a protocol error of the given kind.
func (c *Collector) IncProtocolError(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.protocolErrors++
	c.protocolErrorsByKind[kind]++
	c.mu.Unlock()
}

// --- Admission ---

// IncNotificationAccepted records a notification handed to the inbox.
func (c *Collector) IncNotificationAccepted() {
	if c == nil {
		return
	}
	c.add(&c.notificationsAccepted, 1)
}

// IncInboxFull records a notification refused because the inbox was full.
func (c *Collector) IncInboxFull() {
	if c == nil {
		return
	}
	c.add(&c.inboxFull, 1)
}

// AbsorbPolicyStats copies policy counters into the collector.
// Values replace earlier ones; policy.Stats is cumulative.
func (c *Collector) AbsorbPolicyStats(adjusted int64, byKind map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.policyAdjusted = adjusted
	c.violationsByKind = make(map[string]int64, len(byKind))
	for k, v := range byKind {
		c.violationsByKind[k] = v
	}
	c.mu.Unlock()
}

// --- Scheduler ---

// IncTick records one scheduler tick.
func (c *Collector) IncTick() {
	if c == nil {
		return
	}
	c.add(&c.ticks, 1)
}

// AddRetired records notifications removed after expiring.
func (c *Collector) AddRetired(n int) {
	if c == nil || n == 0 {
		return
	}
	c.add(&c.notificationsRetired, int64(n))
}

// AddDismissed records notifications moved to leaving by a dismiss request.
func (c *Collector) AddDismissed(n int) {
	if c == nil || n == 0 {
		return
	}
	c.add(&c.notificationsDismissed, int64(n))
}

// IncInvariantRepair records a repaired slot invariant violation.
func (c *Collector) IncInvariantRepair() {
	if c == nil {
		return
	}
	c.add(&c.invariantRepairs, 1)
}

// --- Adapters ---

// IncAdapterPublishSuccess records a successful adapter publish.
func (c *Collector) IncAdapterPublishSuccess() {
	if c == nil {
		return
	}
	c.add(&c.adapterPublishSuccess, 1)
}

// IncAdapterPublishFailure records a failed adapter publish.
func (c *Collector) IncAdapterPublishFailure() {
	if c == nil {
		return
	}
	c.add(&c.adapterPublishFailure, 1)
}

// IncDispatchDropped records an event dropped because the dispatch queue
// was full or the dispatcher shut down before publishing it.
func (c *Collector) IncDispatchDropped() {
	if c == nil {
		return
	}
	c.add(&c.dispatchDropped, 1)
}

// --- Feed ---

// IncFeedClient records a connected feed client.
func (c *Collector) IncFeedClient() {
	if c == nil {
		return
	}
	c.add(&c.feedClients, 1)
}

// DecFeedClient records a disconnected feed client.
func (c *Collector) DecFeedClient() {
	if c == nil {
		return
	}
	c.add(&c.feedClients, -1)
}

// IncFeedFrameSent records one snapshot written to a feed client.
func (c *Collector) IncFeedFrameSent() {
	if c == nil {
		return
	}
	c.add(&c.feedFramesSent, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ConnectionsAccepted: c.connectionsAccepted,
		ConnectionsRefused:  c.connectionsRefused,
		ConnectionsTimedOut: c.connectionsTimedOut,
		ConnectionsActive:   c.connectionsActive,

		FramesDecoded:        c.framesDecoded,
		ProtocolErrors:       c.protocolErrors,
		ProtocolErrorsByKind: copyCounts(c.protocolErrorsByKind),

		NotificationsAccepted: c.notificationsAccepted,
		InboxFull:             c.inboxFull,
		PolicyAdjusted:        c.policyAdjusted,
		ViolationsByKind:      copyCounts(c.violationsByKind),

		Ticks:                  c.ticks,
		NotificationsRetired:   c.notificationsRetired,
		NotificationsDismissed: c.notificationsDismissed,
		InvariantRepairs:       c.invariantRepairs,

		AdapterPublishSuccess: c.adapterPublishSuccess,
		AdapterPublishFailure: c.adapterPublishFailure,
		DispatchDropped:       c.dispatchDropped,

		FeedClients:    c.feedClients,
		FeedFramesSent: c.feedFramesSent,

		InstanceID: c.instanceID,
		Listen:     c.listen,
		StartedAt:  c.startedAt,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
