package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harvestlabs/dirharvest/internal/harvest"
)

// SnapshotStore implements harvest.SnapshotStore on Postgres. Snapshot
// rows are write-once: a re-crawl inserts a new row with a later
// fetched_at instead of updating.
type SnapshotStore struct {
	db DB
}

// NewSnapshotStore creates a SnapshotStore over an existing pool.
func NewSnapshotStore(db DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const insertSnapshotSQL = `
	INSERT INTO snapshots (region, locality, page, fetched_at, payload)
	VALUES ($1, $2, $3, $4, $5);
`

// StoreSnapshots bulk-inserts snapshots in one batch round trip and
// returns the number stored.
func (s *SnapshotStore) StoreSnapshots(ctx context.Context, snapshots []harvest.Snapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(insertSnapshotSQL, snap.Region, snap.Locality, snap.Page, snap.FetchedAt, snap.Payload)
	}

	br := s.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	stored := 0
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return stored, fmt.Errorf("insert snapshot batch item %d: %w", i, err)
		}
		stored++
	}
	return stored, nil
}

// EnsureSchema creates the tables and indexes the stores expect. It is
// idempotent and meant for run start, not for schema evolution.
func EnsureSchema(ctx context.Context, db DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			listing_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			region TEXT NOT NULL,
			locality TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			display_name TEXT,
			title TEXT,
			bio TEXT,
			profile_image_url TEXT,
			registry_id TEXT,
			telehealth BOOLEAN NOT NULL DEFAULT FALSE,
			accepts_insurance BOOLEAN NOT NULL DEFAULT FALSE,
			accepts_new_clients BOOLEAN NOT NULL DEFAULT TRUE,
			specialties TEXT[],
			payload JSONB NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS listings_region_idx ON listings (region)`,
		`CREATE INDEX IF NOT EXISTS listings_locality_idx ON listings (locality)`,
		`CREATE INDEX IF NOT EXISTS listings_telehealth_idx ON listings (telehealth)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			region TEXT NOT NULL,
			locality TEXT NOT NULL,
			page INT NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_cursor_idx ON snapshots (region, locality, page)`,
		`CREATE INDEX IF NOT EXISTS snapshots_fetched_at_idx ON snapshots (fetched_at)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
