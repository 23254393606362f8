// Package scheduler owns the active notification set.
//
// A single tick advances every notification through
// entering -> visible -> leaving -> expired, keeps slots dense and in id
// order, and publishes an immutable snapshot. Only the tick mutates the
// active set; other goroutines submit to the Inbox or queue dismiss
// requests and read published snapshots.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/warnwin/log"
	"github.com/pithecene-io/warnwin/metrics"
	"github.com/pithecene-io/warnwin/types"
)

// Defaults.
const (
	DefaultTickRate      = 60
	DefaultEntryDuration = 250 * time.Millisecond
	DefaultExitDuration  = 300 * time.Millisecond
	DefaultDrainPerTick  = 64

	// maxCatchUpTicks caps the elapsed time of one tick so a stalled
	// process does not skip whole states.
	maxCatchUpTicks = 10
)

// Config configures a Scheduler. Zero values take defaults.
type Config struct {
	// TickRate is the number of ticks per second Run drives.
	TickRate int
	// EntryDuration is the time spent entering.
	EntryDuration time.Duration
	// ExitDuration is the time spent leaving.
	ExitDuration time.Duration
	// DrainPerTick bounds how many inbox items one tick admits.
	DrainPerTick int
	// Strict panics on an invariant violation instead of repairing it.
	Strict bool

	Logger  *log.Logger
	Metrics *metrics.Collector
	// Now stamps snapshots. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TickRate <= 0 {
		c.TickRate = DefaultTickRate
	}
	if c.EntryDuration <= 0 {
		c.EntryDuration = DefaultEntryDuration
	}
	if c.ExitDuration <= 0 {
		c.ExitDuration = DefaultExitDuration
	}
	if c.DrainPerTick <= 0 {
		c.DrainPerTick = DefaultDrainPerTick
	}
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Interval returns the time between ticks.
func (c Config) Interval() time.Duration {
	return time.Second / time.Duration(c.withDefaults().TickRate)
}

// InvariantError describes a broken active-set invariant.
type InvariantError struct {
	Frame uint64
	Msg   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("scheduler invariant violated at frame %d: %s", e.Frame, e.Msg)
}

// dismissRequest asks the tick to move notifications to leaving.
// A zero id means all.
type dismissRequest struct {
	id uint64
}

// Scheduler drives the presentation state machine.
type Scheduler struct {
	cfg    Config
	inbox  *Inbox
	logger *log.Logger

	// tickMu serializes Tick so Run and direct callers cannot interleave.
	tickMu sync.Mutex
	active []*entry
	frame  uint64
	// alert is the sticky window-level urgency; see types.Snapshot.
	alerting bool
	alert    types.Urgency

	dismissMu sync.Mutex
	dismisses []dismissRequest

	latest atomic.Pointer[types.Snapshot]
	subs   subscribers
}

// New creates a scheduler draining inbox.
func New(inbox *Inbox, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:    cfg,
		inbox:  inbox,
		logger: cfg.Logger,
	}
	s.latest.Store(&types.Snapshot{
		TakenAt:       cfg.Now().UTC(),
		Notifications: []types.Notification{},
	})
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Snapshot returns the latest published snapshot. Never nil.
func (s *Scheduler) Snapshot() *types.Snapshot {
	return s.latest.Load()
}

// Dismiss queues id to start leaving on the next tick. It reports
// whether id was active in the latest snapshot; unknown ids are ignored
// by the tick.
func (s *Scheduler) Dismiss(id uint64) bool {
	if id == 0 {
		return false
	}
	_, ok := s.Snapshot().Lookup(id)
	if ok {
		s.queueDismiss(dismissRequest{id: id})
	}
	return ok
}

// DismissAll queues every active notification to start leaving on the
// next tick and clears the alert level. Notifications still in the inbox
// are unaffected.
func (s *Scheduler) DismissAll() {
	s.queueDismiss(dismissRequest{})
}

func (s *Scheduler) queueDismiss(r dismissRequest) {
	s.dismissMu.Lock()
	s.dismisses = append(s.dismisses, r)
	s.dismissMu.Unlock()
}

func (s *Scheduler) takeDismisses() []dismissRequest {
	s.dismissMu.Lock()
	defer s.dismissMu.Unlock()
	reqs := s.dismisses
	s.dismisses = nil
	return reqs
}

// Tick advances the active set by elapsed and publishes a snapshot.
//
// The inbox is drained before ages advance, so a notification admitted
// by this tick is aged by elapsed like every other. Dismiss requests
// apply to the entries active before the drain. Within one tick a
// notification changes state at most once, and entries that were
// already expired when the tick began are removed.
func (s *Scheduler) Tick(elapsed time.Duration) *types.Snapshot {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if elapsed < 0 {
		elapsed = 0
	}
	s.frame++

	changed, reset := s.applyDismisses()
	dismissed := len(changed)
	if reset {
		s.alerting = false
		s.alert = types.UrgencyLow
	}

	for _, sub := range s.inbox.Drain(s.cfg.DrainPerTick) {
		s.active = append(s.active, newEntry(sub, len(s.active)))
		s.raiseAlert(sub.Notice.Urgency)
	}

	retired := 0
	kept := s.active[:0]
	for _, e := range s.active {
		if e.state == types.StateExpired {
			retired++
			continue
		}
		e.age += elapsed
		e.inState += elapsed
		if !changed[e.id] && e.due(s.cfg) {
			e.transition()
		}
		kept = append(kept, e)
	}
	clear(s.active[len(kept):])
	s.active = kept

	s.recomputeSlots()
	s.checkInvariants()

	s.cfg.Metrics.IncTick()
	s.cfg.Metrics.AddRetired(retired)
	s.cfg.Metrics.AddDismissed(dismissed)

	snap := s.publish()
	if retired > 0 || dismissed > 0 {
		s.logger.Debug("active set changed", map[string]any{
			"frame":     s.frame,
			"retired":   retired,
			"dismissed": dismissed,
			"active":    len(s.active),
		})
	}
	return snap
}

// applyDismisses returns the ids moved to leaving and whether a
// dismiss-all was requested.
func (s *Scheduler) applyDismisses() (map[uint64]bool, bool) {
	reqs := s.takeDismisses()
	if len(reqs) == 0 {
		return nil, false
	}
	reset := false
	changed := make(map[uint64]bool)
	for _, r := range reqs {
		if r.id == 0 {
			reset = true
		}
		for _, e := range s.active {
			if r.id != 0 && e.id != r.id {
				continue
			}
			if !changed[e.id] && e.dismiss(s.cfg) {
				changed[e.id] = true
			}
		}
	}
	return changed, reset
}

// raiseAlert latches the window alert for high and critical arrivals.
func (s *Scheduler) raiseAlert(u types.Urgency) {
	if u < types.UrgencyHigh {
		return
	}
	if !s.alerting || u > s.alert {
		s.alerting = true
		s.alert = u
	}
}

// recomputeSlots assigns slots 0..count-1 in id order.
func (s *Scheduler) recomputeSlots() {
	for i, e := range s.active {
		e.slot = i
	}
}

// checkInvariants verifies dense slots and ascending ids. A violation
// panics in strict mode; otherwise it is logged, counted and repaired.
func (s *Scheduler) checkInvariants() {
	err := s.verify()
	if err == nil {
		return
	}
	if s.cfg.Strict {
		panic(err)
	}
	s.logger.Error("scheduler invariant violated, repairing", map[string]any{
		"frame": s.frame,
		"error": err.Error(),
	})
	s.cfg.Metrics.IncInvariantRepair()
	s.repair()
}

func (s *Scheduler) verify() error {
	for i, e := range s.active {
		if e.slot != i {
			return &InvariantError{Frame: s.frame, Msg: fmt.Sprintf("id %d has slot %d at position %d", e.id, e.slot, i)}
		}
		if i > 0 && s.active[i-1].id >= e.id {
			return &InvariantError{Frame: s.frame, Msg: fmt.Sprintf("id %d follows id %d", e.id, s.active[i-1].id)}
		}
		if e.state.Rank() < 0 {
			return &InvariantError{Frame: s.frame, Msg: fmt.Sprintf("id %d has unknown state %q", e.id, e.state)}
		}
	}
	return nil
}

// repair restores id order and dense slots from scratch.
func (s *Scheduler) repair() {
	sort.SliceStable(s.active, func(i, j int) bool {
		return s.active[i].id < s.active[j].id
	})
	for _, e := range s.active {
		if e.state.Rank() < 0 {
			e.state = types.StateLeaving
		}
	}
	s.recomputeSlots()
}

func (s *Scheduler) publish() *types.Snapshot {
	snap := &types.Snapshot{
		Frame:         s.frame,
		TakenAt:       s.cfg.Now().UTC(),
		Notifications: make([]types.Notification, len(s.active)),
		Alerting:      s.alerting,
		Alert:         s.alert,
	}
	for i, e := range s.active {
		snap.Notifications[i] = e.view(s.cfg)
	}
	s.latest.Store(snap)
	s.subs.broadcast(snap)
	return snap
}

// Run ticks at the configured rate until ctx is cancelled.
// Elapsed time is measured on the wall clock and capped.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", map[string]any{
		"tick_rate":      s.cfg.TickRate,
		"entry_duration": s.cfg.EntryDuration.String(),
		"exit_duration":  s.cfg.ExitDuration.String(),
	})

	maxElapsed := interval * maxCatchUpTicks
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", map[string]any{"frame": s.Snapshot().Frame})
			return nil
		case now := <-ticker.C:
			elapsed := min(now.Sub(last), maxElapsed)
			last = now
			s.Tick(elapsed)
		}
	}
}
