// Package redis implements a Redis pub/sub adapter.
//
// Publishes each accepted notification as JSON to a configurable channel,
// optionally keeping the most recent notifications in a capped list.
// Retries with exponential backoff on connection errors.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/warnwin/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "warnwin:notifications"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultRecentLimit is the default length of the recent list.
const DefaultRecentLimit = 100

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: warnwin:notifications).
	Channel string
	// RecentKey, when set, names a list that keeps the newest events.
	RecentKey string
	// RecentLimit caps the recent list (default 100).
	RecentLimit int
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// Adapter publishes notification events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event as JSON to the configured channel and, when
// RecentKey is set, pushes it onto the capped recent list in the same
// transaction. Retries with exponential backoff on failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	var lastErr error
	// attempts = 1 initial + retries
	attempts := 1 + a.config.Retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("redis: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		lastErr = a.send(publishCtx, body)
		cancel()

		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

func (a *Adapter) send(ctx context.Context, body []byte) error {
	if a.config.RecentKey == "" {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	}
	_, err := a.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, a.config.RecentKey, body)
		pipe.LTrim(ctx, a.config.RecentKey, 0, int64(a.config.RecentLimit-1))
		pipe.Publish(ctx, a.config.Channel, body)
		return nil
	})
	return err
}

// Recent returns up to n of the newest events from the recent list.
func (a *Adapter) Recent(ctx context.Context, n int) ([]adapter.NotificationEvent, error) {
	if a.config.RecentKey == "" {
		return nil, errors.New("redis: recent list not configured")
	}
	if n <= 0 {
		n = a.config.RecentLimit
	}
	raw, err := a.client.LRange(ctx, a.config.RecentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read recent: %w", err)
	}
	events := make([]adapter.NotificationEvent, 0, len(raw))
	for _, r := range raw {
		var ev adapter.NotificationEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("redis: decode recent entry: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
