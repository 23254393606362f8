package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecords is returned by Query when nothing matches the filter.
var ErrNoRecords = errors.New("no archived notifications found")

// DefaultQueryLimit caps Query results when Filter.Limit is zero.
const DefaultQueryLimit = 50

// Filter narrows a history query. Empty fields match everything.
type Filter struct {
	Day     string
	Urgency string
	Sender  string
	Limit   int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}

// Query returns archived notifications, newest first.
func Query(ctx context.Context, ds lode.Dataset, filter Filter) ([]Record, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", "snapshots", err)
	}

	limit := filter.limit()
	var out []Record

	// Snapshots are ordered by creation time; walk from the latest.
	for i := len(snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, PartitionDay, filter.Day) ||
			!snapshotMatches(snap, PartitionUrgency, filter.Urgency) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("snapshot/%v", snap.ID), err)
		}

		// Partition paths are a coarse pre-filter; record fields decide.
		var batch []Record
		for _, item := range data {
			rec, err := recordFromItem(item)
			if err != nil {
				return nil, wrap("read", fmt.Sprintf("snapshot/%v", snap.ID), err)
			}
			if rec.RecordKind != RecordKindNotification || !filter.matches(rec) {
				continue
			}
			batch = append(batch, rec)
		}
		sort.SliceStable(batch, func(a, b int) bool { return batch[a].ID > batch[b].ID })
		for _, rec := range batch {
			if len(out) == limit {
				break
			}
			out = append(out, rec)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

func (f Filter) matches(r Record) bool {
	if f.Day != "" && r.Day != f.Day {
		return false
	}
	if f.Urgency != "" && r.Urgency != f.Urgency {
		return false
	}
	if f.Sender != "" && r.Sender != f.Sender {
		return false
	}
	return true
}

// snapshotMatches reports whether any file in snap lies under the
// key=value partition. An empty value matches every snapshot.
func snapshotMatches(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if hasPartition(f.Path, key, value) {
			return true
		}
	}
	return false
}

// hasPartition matches whole path segments so that urgency=high does not
// match urgency=highest.
func hasPartition(path, key, value string) bool {
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
