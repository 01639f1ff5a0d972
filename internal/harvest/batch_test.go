package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatchBufferFlushesAtThreshold(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	snapshots := &fakeSnapshotStore{}
	buf := NewBatchBuffer(records, snapshots, 50, nil, "r")

	ctx := context.Background()
	for i := 0; i < 120; i++ {
		require.NoError(t, buf.AddListing(ctx, Listing{ListingID: fmt.Sprintf("l-%d", i)}))
	}

	// Two threshold flushes so far: at 50 and at 100.
	require.Equal(t, 2, records.upsertCalls())
	require.Equal(t, 100, buf.Accepted())
	require.Equal(t, 20, buf.Pending())

	require.NoError(t, buf.Flush(ctx))
	require.Equal(t, 3, records.upsertCalls())
	require.Equal(t, 120, buf.Accepted())
	require.Zero(t, buf.Pending())
	require.Equal(t, 120, records.distinct())
}

func TestBatchBufferEmptyFlushIsNoop(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	buf := NewBatchBuffer(records, &fakeSnapshotStore{}, 10, nil, "r")
	require.NoError(t, buf.Flush(context.Background()))
	require.Zero(t, records.upsertCalls())
}

func TestBatchBufferRetainsOnFlushError(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	records.err = errors.New("store down")
	buf := NewBatchBuffer(records, &fakeSnapshotStore{}, 10, nil, "r")

	ctx := context.Background()
	require.NoError(t, buf.AddListing(ctx, Listing{ListingID: "a"}))
	require.Error(t, buf.Flush(ctx))
	require.Equal(t, 1, buf.Pending(), "failed flush must retain the buffer")

	// Store recovers; the same contents flush cleanly.
	records.err = nil
	require.NoError(t, buf.Flush(ctx))
	require.Zero(t, buf.Pending())
	require.Equal(t, 1, records.distinct())
}

func TestBatchBufferFlushesSnapshotsSeparately(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	snapshots := &fakeSnapshotStore{}
	buf := NewBatchBuffer(records, snapshots, 3, nil, "r")

	ctx := context.Background()
	for page := 1; page <= 4; page++ {
		require.NoError(t, buf.AddSnapshot(ctx, Snapshot{
			Region:    "r",
			Locality:  "l",
			Page:      page,
			FetchedAt: time.Now(),
			Payload:   json.RawMessage(`{}`),
		}))
	}
	require.NoError(t, buf.Flush(ctx))

	require.Equal(t, 4, snapshots.count())
	require.Equal(t, 4, buf.SnapshotsSaved())
	require.Zero(t, records.upsertCalls(), "snapshot flush must not touch the record store")
}

func TestBatchBufferFeedsRunStats(t *testing.T) {
	t.Parallel()

	stats := NewRunStats(0)
	records := newFakeRecordStore()
	buf := NewBatchBuffer(records, &fakeSnapshotStore{}, 100, stats, "california")

	ctx := context.Background()
	require.NoError(t, buf.AddListing(ctx, Listing{ListingID: "a"}))
	require.NoError(t, buf.AddListing(ctx, Listing{ListingID: ""}))
	require.NoError(t, buf.Flush(ctx))

	report := stats.Snapshot()
	require.Equal(t, 1, report.RecordsAdmitted)
	require.Equal(t, 1, report.RecordsRejected)
	require.Equal(t, 1, report.PerRegion["california"])
}
