package scheduler

import (
	"math"
	"time"

	"github.com/pithecene-io/warnwin/types"
)

// next is the transition table. Expired has no successor.
var next = map[types.State]types.State{
	types.StateEntering: types.StateVisible,
	types.StateVisible:  types.StateLeaving,
	types.StateLeaving:  types.StateExpired,
}

// entry is the scheduler's mutable record of one active notification.
// Only the tick goroutine touches entries.
type entry struct {
	id         uint64
	text       string
	sender     string
	urgency    types.Urgency
	duration   time.Duration
	acceptedAt time.Time

	state   types.State
	age     time.Duration
	inState time.Duration
	slot    int
}

func newEntry(sub Submission, slot int) *entry {
	return &entry{
		id:         sub.ID,
		text:       sub.Notice.Text,
		sender:     sub.Notice.Sender,
		urgency:    sub.Notice.Urgency,
		duration:   sub.Notice.Duration,
		acceptedAt: sub.AcceptedAt,
		state:      types.StateEntering,
		slot:       slot,
	}
}

// due reports whether e has satisfied the condition for leaving its
// current state.
func (e *entry) due(cfg Config) bool {
	switch e.state {
	case types.StateEntering:
		return e.inState >= cfg.EntryDuration
	case types.StateVisible:
		return e.age >= e.duration
	case types.StateLeaving:
		return e.inState >= cfg.ExitDuration
	default:
		return false
	}
}

// transition moves e one step forward through the table.
func (e *entry) transition() {
	to, ok := next[e.state]
	if !ok {
		return
	}
	e.state = to
	e.inState = 0
}

// dismiss moves an entering or visible entry straight to leaving. The
// exit animation starts from the entry's current progress so the
// renderer sees no jump.
func (e *entry) dismiss(cfg Config) bool {
	switch e.state {
	case types.StateEntering, types.StateVisible:
	default:
		return false
	}
	p := e.progress(cfg)
	e.state = types.StateLeaving
	// Solve 1 - easeIn(x) = p for x.
	e.inState = time.Duration(math.Cbrt(1-p) * float64(cfg.ExitDuration))
	return true
}

// progress returns how far e is on screen, 0 hidden to 1 fully shown.
func (e *entry) progress(cfg Config) float64 {
	switch e.state {
	case types.StateEntering:
		return easeOutCubic(fraction(e.inState, cfg.EntryDuration))
	case types.StateVisible:
		return 1
	case types.StateLeaving:
		return 1 - easeInCubic(fraction(e.inState, cfg.ExitDuration))
	default:
		return 0
	}
}

func (e *entry) view(cfg Config) types.Notification {
	return types.Notification{
		ID:         e.id,
		Slot:       e.slot,
		State:      e.state,
		Urgency:    e.urgency,
		Text:       e.text,
		Sender:     e.sender,
		AgeMs:      e.age.Milliseconds(),
		DurationMs: e.duration.Milliseconds(),
		Progress:   e.progress(cfg),
		AcceptedAt: e.acceptedAt,
	}
}

func fraction(elapsed, total time.Duration) float64 {
	if total <= 0 {
		return 1
	}
	f := float64(elapsed) / float64(total)
	return math.Max(0, math.Min(1, f))
}

func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

func easeInCubic(t float64) float64 {
	return t * t * t
}
