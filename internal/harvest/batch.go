package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/harvestlabs/dirharvest/internal/metrics"
)

// BatchBuffer accumulates listings and snapshots for one locality and
// flushes them in bulk. It is owned by a single paginator for its
// lifetime and is not safe for concurrent use.
type BatchBuffer struct {
	records   RecordStore
	snapshots SnapshotStore
	threshold int
	stats     *RunStats
	region    string

	pendingListings  []Listing
	pendingSnapshots []Snapshot

	accepted       int
	rejected       int
	snapshotsSaved int
}

// NewBatchBuffer constructs a BatchBuffer flushing at the given
// threshold. stats may be nil; when set, every successful flush feeds
// the run counters so the global record cap sees flushed counts.
func NewBatchBuffer(records RecordStore, snapshots SnapshotStore, threshold int, stats *RunStats, region string) *BatchBuffer {
	if threshold <= 0 {
		threshold = 50
	}
	return &BatchBuffer{
		records:   records,
		snapshots: snapshots,
		threshold: threshold,
		stats:     stats,
		region:    region,
	}
}

// AddListing appends a listing and flushes if the threshold is reached.
func (b *BatchBuffer) AddListing(ctx context.Context, l Listing) error {
	b.pendingListings = append(b.pendingListings, l)
	if len(b.pendingListings) >= b.threshold {
		return b.Flush(ctx)
	}
	return nil
}

// AddSnapshot appends a raw page snapshot and flushes if the threshold
// is reached.
func (b *BatchBuffer) AddSnapshot(ctx context.Context, s Snapshot) error {
	b.pendingSnapshots = append(b.pendingSnapshots, s)
	if len(b.pendingSnapshots) >= b.threshold {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered items, one bulk call per entity kind, and
// clears the buffer on success. On error the buffer is retained so the
// caller can retry the same contents; an empty flush is a no-op.
func (b *BatchBuffer) Flush(ctx context.Context) error {
	if len(b.pendingListings) == 0 && len(b.pendingSnapshots) == 0 {
		return nil
	}
	start := time.Now()
	if len(b.pendingListings) > 0 {
		res, err := b.records.UpsertListings(ctx, b.pendingListings)
		if err != nil {
			return fmt.Errorf("flush listings: %w", err)
		}
		b.accepted += res.Accepted
		b.rejected += res.Rejected
		metrics.ObserveListings(res.Accepted, res.Rejected)
		if b.stats != nil {
			b.stats.AddRecords(b.region, res.Accepted, res.Rejected)
		}
		b.pendingListings = b.pendingListings[:0]
	}
	if len(b.pendingSnapshots) > 0 {
		n, err := b.snapshots.StoreSnapshots(ctx, b.pendingSnapshots)
		if err != nil {
			return fmt.Errorf("flush snapshots: %w", err)
		}
		b.snapshotsSaved += n
		metrics.ObserveSnapshots(n)
		if b.stats != nil {
			b.stats.AddSnapshots(n)
		}
		b.pendingSnapshots = b.pendingSnapshots[:0]
	}
	metrics.ObserveFlush(time.Since(start))
	return nil
}

// Pending returns the number of unflushed listings.
func (b *BatchBuffer) Pending() int {
	return len(b.pendingListings)
}

// Accepted returns the running count of listings accepted across flushes.
func (b *BatchBuffer) Accepted() int {
	return b.accepted
}

// Rejected returns the running count of listings rejected across flushes.
func (b *BatchBuffer) Rejected() int {
	return b.rejected
}

// SnapshotsSaved returns the running count of stored snapshots.
func (b *BatchBuffer) SnapshotsSaved() int {
	return b.snapshotsSaved
}
