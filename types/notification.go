package types

import "time"

// State is the presentation state of a notification.
// States only ever advance: entering -> visible -> leaving -> expired.
type State string

// Presentation states.
const (
	StateEntering State = "entering"
	StateVisible  State = "visible"
	StateLeaving  State = "leaving"
	StateExpired  State = "expired"
)

// Rank returns the position of s in the lifecycle, or -1 if s is unknown.
func (s State) Rank() int {
	switch s {
	case StateEntering:
		return 0
	case StateVisible:
		return 1
	case StateLeaving:
		return 2
	case StateExpired:
		return 3
	default:
		return -1
	}
}

// IsTerminal returns true for the expired state.
func (s State) IsTerminal() bool {
	return s == StateExpired
}

// Notification is a read-only view of one active notification as of a
// published frame.
type Notification struct {
	ID         uint64    `json:"id" msgpack:"id" yaml:"id"`
	Slot       int       `json:"slot" msgpack:"slot" yaml:"slot"`
	State      State     `json:"state" msgpack:"state" yaml:"state"`
	Urgency    Urgency   `json:"urgency" msgpack:"urgency" yaml:"urgency"`
	Text       string    `json:"text" msgpack:"text" yaml:"text"`
	Sender     string    `json:"sender,omitempty" msgpack:"sender,omitempty" yaml:"sender,omitempty"`
	AgeMs      int64     `json:"age_ms" msgpack:"age_ms" yaml:"age_ms"`
	DurationMs int64     `json:"duration_ms" msgpack:"duration_ms" yaml:"duration_ms"`
	Progress   float64   `json:"progress" msgpack:"progress" yaml:"progress"`
	AcceptedAt time.Time `json:"accepted_at" msgpack:"accepted_at" yaml:"accepted_at"`
}

// Age returns the time the notification has been active.
func (n Notification) Age() time.Duration {
	return time.Duration(n.AgeMs) * time.Millisecond
}

// Snapshot is an immutable view of the active set after one tick.
// Notifications are ordered by slot, which is also ascending id order.
type Snapshot struct {
	Frame         uint64         `json:"frame" msgpack:"frame" yaml:"frame"`
	TakenAt       time.Time      `json:"taken_at" msgpack:"taken_at" yaml:"taken_at"`
	Notifications []Notification `json:"notifications" msgpack:"notifications" yaml:"notifications"`
	// Alerting is set once a high or critical notification arrives and
	// stays set, through expiry, until a dismiss-all. Alert is the
	// highest urgency seen meanwhile.
	Alerting bool    `json:"alerting" msgpack:"alerting" yaml:"alerting"`
	Alert    Urgency `json:"alert" msgpack:"alert" yaml:"alert"`
}

// Len returns the number of active notifications.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Notifications)
}

// Lookup returns the notification with the given id, if present.
func (s *Snapshot) Lookup(id uint64) (Notification, bool) {
	if s == nil {
		return Notification{}, false
	}
	for _, n := range s.Notifications {
		if n.ID == id {
			return n, true
		}
	}
	return Notification{}, false
}
