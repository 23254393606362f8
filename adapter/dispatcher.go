package adapter

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pithecene-io/warnwin/iox"
	"github.com/pithecene-io/warnwin/log"
	"github.com/pithecene-io/warnwin/metrics"
)

// Dispatcher defaults.
const (
	DefaultQueueSize      = 256
	DefaultPublishTimeout = 15 * time.Second
	DefaultStopTimeout    = 5 * time.Second
)

// ErrWorkerStuck is returned by Close when an adapter ignored
// cancellation. The adapters are left open in that case.
var ErrWorkerStuck = errors.New("dispatcher worker did not stop")

// NamedAdapter pairs an adapter with the name used in logs.
type NamedAdapter struct {
	Name    string
	Adapter Adapter
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds pending events (default 256).
	QueueSize int
	// PublishTimeout bounds one Publish call, retries included (default 15s).
	PublishTimeout time.Duration
	// StopTimeout bounds the wait for an in-flight Publish to return
	// once Close has cancelled it (default 5s).
	StopTimeout time.Duration

	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Dispatcher publishes events to every adapter from one worker
// goroutine. Enqueue never blocks; when the queue is full the event is
// dropped and counted.
type Dispatcher struct {
	adapters []NamedAdapter
	cfg      DispatcherConfig
	logger   *log.Logger

	queue chan *NotificationEvent

	// stop cancels in-flight publishes when Close gives up draining.
	stop   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	done chan struct{}
	once sync.Once
}

// NewDispatcher creates a dispatcher and starts its worker.
func NewDispatcher(adapters []NamedAdapter, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	stop, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		stop:     stop,
		cancel:   cancel,
		adapters: adapters,
		cfg:      cfg,
		logger:   cfg.Logger,
		queue:    make(chan *NotificationEvent, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Len returns the number of configured adapters.
func (d *Dispatcher) Len() int {
	return len(d.adapters)
}

// Enqueue queues event for publishing. It reports false when the event
// was dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(event *NotificationEvent) bool {
	if d == nil || len(d.adapters) == 0 {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		d.cfg.Metrics.IncDispatchDropped()
		d.logger.Warn("dispatch queue full, dropping event", map[string]any{
			"id":         event.ID,
			"queue_size": d.cfg.QueueSize,
		})
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		if d.stop.Err() != nil {
			d.cfg.Metrics.IncDispatchDropped()
			continue
		}
		d.publish(event)
	}
}

func (d *Dispatcher) publish(event *NotificationEvent) {
	for _, na := range d.adapters {
		if d.stop.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(d.stop, d.cfg.PublishTimeout)
		err := na.Adapter.Publish(ctx, event)
		cancel()

		if err != nil {
			d.cfg.Metrics.IncAdapterPublishFailure()
			d.logger.Warn("adapter publish failed", map[string]any{
				"adapter": na.Name,
				"id":      event.ID,
				"error":   err.Error(),
			})
			continue
		}
		d.cfg.Metrics.IncAdapterPublishSuccess()
		d.logger.Debug("adapter published", map[string]any{
			"adapter": na.Name,
			"id":      event.ID,
		})
	}
}

// Close stops accepting events, publishes those already queued, then
// closes every adapter. When ctx is done before the queue drains, the
// in-flight publish is cancelled, the rest of the queue is dropped, and
// the adapters are closed only after the worker has returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	var err error
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		select {
		case <-d.done:
		case <-ctx.Done():
			err = ctx.Err()
			d.logger.Warn("dispatcher closed before queue drained", map[string]any{
				"pending": len(d.queue),
			})
			d.cancel()

			timer := time.NewTimer(d.cfg.StopTimeout)
			defer timer.Stop()
			select {
			case <-d.done:
			case <-timer.C:
				d.logger.Error("dispatcher worker still publishing, adapters left open", map[string]any{
					"stop_timeout": d.cfg.StopTimeout.String(),
				})
				err = errors.Join(err, ErrWorkerStuck)
				return
			}
		}
		d.cancel()

		closers := make([]io.Closer, len(d.adapters))
		for i, na := range d.adapters {
			closers[i] = na.Adapter
		}
		err = errors.Join(err, iox.CloseAll(closers...))
	})
	return err
}
