package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/warnwin/policy"
)

// DefaultInboxCapacity is the inbox size used when none is configured.
const DefaultInboxCapacity = 1024

// ErrInboxFull is returned by Submit when the inbox is at capacity.
var ErrInboxFull = errors.New("inbox full")

// Submission is an accepted notification waiting for the next tick.
type Submission struct {
	ID         uint64
	AcceptedAt time.Time
	Notice     policy.Accepted
}

// Inbox is the hand-off between connection goroutines and the tick.
//
// Submit assigns the id and enqueues under one lock, so inbox order is
// id order no matter how many connections submit at once.
type Inbox struct {
	mu       sync.Mutex
	queue    []Submission
	capacity int
	lastID   uint64
	now      func() time.Time
}

// NewInbox creates an inbox holding at most capacity submissions.
// A capacity <= 0 uses DefaultInboxCapacity.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	return &Inbox{
		capacity: capacity,
		now:      time.Now,
	}
}

// Submit assigns the next id to a and enqueues it.
// A full inbox returns ErrInboxFull and does not consume an id.
func (in *Inbox) Submit(a policy.Accepted) (uint64, error) {
	sub, err := in.Push(a)
	return sub.ID, err
}

// Push is Submit returning the whole queued submission, including its
// acceptance time.
func (in *Inbox) Push(a policy.Accepted) (Submission, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(in.queue) >= in.capacity {
		return Submission{}, ErrInboxFull
	}

	in.lastID++
	sub := Submission{
		ID:         in.lastID,
		AcceptedAt: in.now().UTC(),
		Notice:     a,
	}
	in.queue = append(in.queue, sub)
	return sub, nil
}

// Drain removes and returns up to limit submissions in id order.
// A limit <= 0 drains everything.
func (in *Inbox) Drain(limit int) []Submission {
	in.mu.Lock()
	defer in.mu.Unlock()

	n := len(in.queue)
	if n == 0 {
		return nil
	}
	if limit > 0 && limit < n {
		n = limit
	}

	batch := make([]Submission, n)
	copy(batch, in.queue[:n])

	remaining := copy(in.queue, in.queue[n:])
	clear(in.queue[remaining:])
	in.queue = in.queue[:remaining]
	return batch
}

// Len returns the number of queued submissions.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// Capacity returns the maximum number of queued submissions.
func (in *Inbox) Capacity() int {
	return in.capacity
}

// LastID returns the most recently assigned id, or 0 if none.
func (in *Inbox) LastID() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastID
}
