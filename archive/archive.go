// Package archive keeps a history of accepted notifications in a Lode
// dataset partitioned by day and urgency.
//
// An Archive is an adapter: the dispatcher hands it every accepted
// notification. The same dataset is read back by Query for
// `warnwin history`.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/warnwin/adapter"
	"github.com/pithecene-io/warnwin/log"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "warnwin"

// Config selects the dataset and its storage backend.
// Exactly one of Root and S3 should be set.
type Config struct {
	// Dataset is the Lode dataset id (default "warnwin").
	Dataset string
	// Root is the filesystem root for the FS backend.
	Root string
	// S3, if set, selects the S3 backend.
	S3 *S3Config
}

// Factory returns the store factory for cfg.
func (c Config) Factory(ctx context.Context) (lode.StoreFactory, error) {
	switch {
	case c.S3 != nil:
		return newS3Factory(ctx, *c.S3)
	case c.Root != "":
		return lode.NewFSFactory(c.Root), nil
	default:
		return nil, errors.New("archive requires a filesystem root or an S3 bucket")
	}
}

func (c Config) dataset() string {
	if c.Dataset == "" {
		return DefaultDataset
	}
	return c.Dataset
}

// NewDataset creates the archive dataset over factory. Writers and
// readers must use the same layout and codec.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(PartitionDay, PartitionUrgency),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return ds, nil
}

// Open creates the dataset described by cfg.
func Open(ctx context.Context, cfg Config) (lode.Dataset, error) {
	factory, err := cfg.Factory(ctx)
	if err != nil {
		return nil, err
	}
	return NewDataset(cfg.dataset(), factory)
}

// Archive writes accepted notifications to a dataset.
type Archive struct {
	ds      lode.Dataset
	dataset string
	logger  *log.Logger

	// Lode snapshots are sequential; serialise writers.
	mu sync.Mutex
}

// New opens the dataset described by cfg for writing.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Archive, error) {
	ds, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDataset(cfg.dataset(), ds, logger), nil
}

// NewWithDataset wraps an existing dataset. Use with lode.NewMemory in tests.
func NewWithDataset(dataset string, ds lode.Dataset, logger *log.Logger) *Archive {
	if logger == nil {
		logger = log.Nop()
	}
	return &Archive{ds: ds, dataset: dataset, logger: logger.With("archive")}
}

// Dataset returns the underlying dataset.
func (a *Archive) Dataset() lode.Dataset {
	return a.ds
}

// Publish stores one notification.
func (a *Archive) Publish(ctx context.Context, event *adapter.NotificationEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := fmt.Sprintf("%s/day=%s/urgency=%s", a.dataset, event.Day(), event.Urgency)
	if _, err := a.ds.Write(ctx, []any{toRecordMap(event)}, lode.Metadata{}); err != nil {
		return wrap("write", path, err)
	}
	a.logger.Debug("notification archived", map[string]any{
		"id":   event.ID,
		"path": path,
	})
	return nil
}

// Close releases archive resources.
func (a *Archive) Close() error {
	return nil
}

// Verify Archive implements the adapter interface.
var _ adapter.Adapter = (*Archive)(nil)
