package reader

import (
	"context"
	"errors"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/warnwin/admin"
	"github.com/pithecene-io/warnwin/archive"
	"github.com/pithecene-io/warnwin/ipc"
	"github.com/pithecene-io/warnwin/types"
)

// ErrNoArchive is returned by History when no archive is configured.
var ErrNoArchive = errors.New("no archive configured (set archive.backend in warnwin.yaml)")

// Reader abstracts read-only data access for CLI commands.
type Reader interface {
	List(ctx context.Context) (*ListResponse, error)
	Stats(ctx context.Context) (*StatsResponse, error)
	History(ctx context.Context, opts HistoryOptions) ([]HistoryItem, error)
}

// AdminClient is the subset of *admin.Client the reader needs.
type AdminClient interface {
	List(ctx context.Context) (*types.Snapshot, error)
	Stats(ctx context.Context) (*ipc.Response, error)
}

// ServerReader reads live views from a running server and history from
// the archive dataset. Either source may be nil; calls that need a
// missing source fail.
type ServerReader struct {
	client  AdminClient
	archive lode.Dataset
	now     func() time.Time
}

// NewServerReader creates a reader. client may be nil when only history
// is read; ds may be nil when no archive is configured.
func NewServerReader(client AdminClient, ds lode.Dataset) *ServerReader {
	return &ServerReader{client: client, archive: ds, now: time.Now}
}

// Dial creates a reader for the admin socket at addr.
func Dial(addr string, timeout time.Duration, ds lode.Dataset) (*ServerReader, error) {
	client, err := admin.NewClient(addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewServerReader(client, ds), nil
}

// List returns the active notifications.
func (r *ServerReader) List(ctx context.Context) (*ListResponse, error) {
	if r.client == nil {
		return nil, errors.New("no admin address configured")
	}
	snap, err := r.client.List(ctx)
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(snap), nil
}

// Stats returns server counters.
func (r *ServerReader) Stats(ctx context.Context) (*StatsResponse, error) {
	if r.client == nil {
		return nil, errors.New("no admin address configured")
	}
	resp, err := r.client.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return ParseStats(resp, r.now())
}

// History returns archived notifications, newest first. An empty
// archive yields an empty slice, not an error.
func (r *ServerReader) History(ctx context.Context, opts HistoryOptions) ([]HistoryItem, error) {
	if r.archive == nil {
		return nil, ErrNoArchive
	}
	records, err := archive.Query(ctx, r.archive, archive.Filter{
		Day:     opts.Day,
		Urgency: opts.Urgency,
		Sender:  opts.Sender,
		Limit:   opts.Limit,
	})
	if errors.Is(err, archive.ErrNoRecords) {
		return []HistoryItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseRecords(records), nil
}

var _ Reader = (*ServerReader)(nil)
