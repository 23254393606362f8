package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/warnwin/adapter/redis"
	"github.com/pithecene-io/warnwin/adapter/webhook"
	"github.com/pithecene-io/warnwin/archive"
	"github.com/pithecene-io/warnwin/feed"
	"github.com/pithecene-io/warnwin/ingest"
	"github.com/pithecene-io/warnwin/policy"
	"github.com/pithecene-io/warnwin/scheduler"
)

// Config represents a warnwin.yaml configuration file.
// All values are optional and act as defaults for warnwin serve flags.
// CLI flags always override config values.
type Config struct {
	InstanceID string          `yaml:"instance_id"`
	Listen     string          `yaml:"listen"`
	Admin      string          `yaml:"admin"`
	Headless   bool            `yaml:"headless"`
	Ingest     IngestConfig    `yaml:"ingest"`
	Policy     PolicyConfig    `yaml:"policy"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Feed       FeedConfig      `yaml:"feed"`
	Adapters   AdaptersConfig  `yaml:"adapters"`
	Archive    ArchiveConfig   `yaml:"archive"`
	Log        LogConfig       `yaml:"log"`
}

// IngestConfig holds listener limits.
type IngestConfig struct {
	MaxConnections         int      `yaml:"max_connections"`
	IdleTimeout            Duration `yaml:"idle_timeout"`
	MaxFramesPerConnection int      `yaml:"max_frames_per_connection"`
	InboxCapacity          int      `yaml:"inbox_capacity"`
}

// PolicyConfig holds admission bounds.
type PolicyConfig struct {
	MinDuration  Duration `yaml:"min_duration"`
	MaxDuration  Duration `yaml:"max_duration"`
	MaxTextChars int      `yaml:"max_text_chars"`
}

// SchedulerConfig holds presentation timing.
type SchedulerConfig struct {
	TickRate      int      `yaml:"tick_rate"`
	EntryDuration Duration `yaml:"entry_duration"`
	ExitDuration  Duration `yaml:"exit_duration"`
	Strict        bool     `yaml:"strict"`
}

// FeedConfig holds the live feed server settings.
type FeedConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// AdaptersConfig holds downstream publishers.
type AdaptersConfig struct {
	QueueSize int            `yaml:"queue_size"`
	Redis     *RedisConfig   `yaml:"redis,omitempty"`
	Webhook   *WebhookConfig `yaml:"webhook,omitempty"`
}

// RedisConfig configures the redis adapter.
type RedisConfig struct {
	URL         string   `yaml:"url"`
	Channel     string   `yaml:"channel,omitempty"`
	RecentKey   string   `yaml:"recent_key,omitempty"`
	RecentLimit int      `yaml:"recent_limit,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
	Retries     *int     `yaml:"retries,omitempty"`
}

// WebhookConfig configures the webhook adapter.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ArchiveConfig holds history storage settings. An empty backend
// disables the archive.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// IngestServer returns the listener config. Zero fields take the
// listener's defaults.
func (c *Config) IngestServer() ingest.Config {
	return ingest.Config{
		Address:                c.Listen,
		IdleTimeout:            c.Ingest.IdleTimeout.Duration,
		MaxConnections:         c.Ingest.MaxConnections,
		MaxFramesPerConnection: c.Ingest.MaxFramesPerConnection,
	}
}

// PolicyBounds returns the admission bounds.
func (c *Config) PolicyBounds() policy.Bounds {
	return policy.Bounds{
		MinDuration:  c.Policy.MinDuration.Duration,
		MaxDuration:  c.Policy.MaxDuration.Duration,
		MaxTextChars: c.Policy.MaxTextChars,
	}
}

// SchedulerTiming returns the timing part of the scheduler config.
func (c *Config) SchedulerTiming() scheduler.Config {
	return scheduler.Config{
		TickRate:      c.Scheduler.TickRate,
		EntryDuration: c.Scheduler.EntryDuration.Duration,
		ExitDuration:  c.Scheduler.ExitDuration.Duration,
		Strict:        c.Scheduler.Strict,
	}
}

// FeedServer returns the feed config.
func (c *Config) FeedServer() feed.Config {
	return feed.Config{
		Address:        c.Feed.Address,
		AllowedOrigins: c.Feed.AllowedOrigins,
	}
}

// RedisAdapter returns the redis adapter config, or nil when unset.
func (c *Config) RedisAdapter() *redis.Config {
	r := c.Adapters.Redis
	if r == nil {
		return nil
	}
	cfg := &redis.Config{
		URL:         r.URL,
		Channel:     r.Channel,
		RecentKey:   r.RecentKey,
		RecentLimit: r.RecentLimit,
		Timeout:     r.Timeout.Duration,
	}
	if r.Retries != nil {
		cfg.Retries = *r.Retries
	}
	return cfg
}

// WebhookAdapter returns the webhook adapter config, or nil when unset.
func (c *Config) WebhookAdapter() *webhook.Config {
	w := c.Adapters.Webhook
	if w == nil {
		return nil
	}
	cfg := &webhook.Config{
		URL:     w.URL,
		Headers: w.Headers,
		Secret:  w.Secret,
		Timeout: w.Timeout.Duration,
	}
	if w.Retries != nil {
		cfg.Retries = *w.Retries
	}
	return cfg
}

// ArchiveStore returns the archive config, or nil when the archive is
// disabled.
func (c *Config) ArchiveStore() (*archive.Config, error) {
	a := c.Archive
	switch a.Backend {
	case "":
		return nil, nil
	case "fs":
		if a.Path == "" {
			return nil, errors.New("archive.path is required for the fs backend")
		}
		return &archive.Config{Dataset: a.Dataset, Root: a.Path}, nil
	case "s3":
		bucket, prefix := archive.ParseS3Path(a.Path)
		s3 := &archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       a.Region,
			Endpoint:     a.Endpoint,
			UsePathStyle: a.S3PathStyle,
		}
		if err := s3.Validate(); err != nil {
			return nil, fmt.Errorf("archive.path: %w", err)
		}
		return &archive.Config{Dataset: a.Dataset, S3: s3}, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q (want fs or s3)", a.Backend)
	}
}
