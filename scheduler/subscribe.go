package scheduler

import (
	"context"
	"sync"

	"github.com/pithecene-io/warnwin/types"
)

// subscribers fans snapshots out to latest-wins channels.
type subscribers struct {
	mu     sync.Mutex
	nextID uint64
	chans  map[uint64]chan *types.Snapshot
}

// Subscribe returns a channel that receives published snapshots until
// ctx is done, at which point the channel is closed. The channel holds
// one snapshot; a slow reader skips intermediate frames and never
// delays the tick.
func (s *Scheduler) Subscribe(ctx context.Context) <-chan *types.Snapshot {
	ch := make(chan *types.Snapshot, 1)
	ch <- s.Snapshot()

	id := s.subs.add(ch)
	go func() {
		<-ctx.Done()
		s.subs.remove(id)
	}()
	return ch
}

// Subscribers returns the number of live subscriptions.
func (s *Scheduler) Subscribers() int {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()
	return len(s.subs.chans)
}

func (b *subscribers) add(ch chan *types.Snapshot) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chans == nil {
		b.chans = make(map[uint64]chan *types.Snapshot)
	}
	b.nextID++
	b.chans[b.nextID] = ch
	return b.nextID
}

func (b *subscribers) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.chans[id]; ok {
		delete(b.chans, id)
		close(ch)
	}
}

func (b *subscribers) broadcast(snap *types.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.chans {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the stale snapshot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
