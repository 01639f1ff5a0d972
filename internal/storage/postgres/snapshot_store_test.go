package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/harvestlabs/dirharvest/internal/harvest"
)

func TestSnapshotStoreInsertsBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshots := []harvest.Snapshot{
		{Region: "california", Locality: "los-angeles-ca", Page: 1, FetchedAt: fetched, Payload: json.RawMessage(`{"data":[]}`)},
		{Region: "california", Locality: "los-angeles-ca", Page: 2, FetchedAt: fetched, Payload: json.RawMessage(`{"data":[]}`)},
	}

	eb := mock.ExpectBatch()
	for range snapshots {
		eb.ExpectExec("INSERT INTO snapshots").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	store := NewSnapshotStore(mock)
	stored, err := store.StoreSnapshots(context.Background(), snapshots)
	require.NoError(t, err)
	require.Equal(t, 2, stored)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStoreEmptySliceSkipsRoundTrip(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSnapshotStore(mock)
	stored, err := store.StoreSnapshots(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, stored)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listings").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS listings_region_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS listings_locality_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS listings_telehealth_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS snapshots").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS snapshots_cursor_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS snapshots_fetched_at_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, EnsureSchema(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
