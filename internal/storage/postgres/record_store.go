// Package postgres provides Postgres-backed persistence for listings
// and snapshots.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harvestlabs/dirharvest/internal/harvest"
)

// DB is the subset of pgxpool.Pool the stores need; it lets tests
// substitute a mock pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// RecordStore implements harvest.RecordStore on Postgres. Each upsert
// is independent: calling it twice with the same natural key leaves one
// row, the later payload winning, with created_at preserved from the
// first insert.
type RecordStore struct {
	db DB
}

// NewRecordStore creates a RecordStore over an existing pool.
func NewRecordStore(db DB) *RecordStore {
	return &RecordStore{db: db}
}

// NewPool builds a pgxpool for the given DSN and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

const upsertListingSQL = `
	INSERT INTO listings (
		listing_id, kind, region, locality,
		first_name, last_name, display_name, title, bio,
		profile_image_url, registry_id,
		telehealth, accepts_insurance, accepts_new_clients,
		specialties, payload, observed_at, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17, $17)
	ON CONFLICT (listing_id) DO UPDATE SET
		kind = EXCLUDED.kind,
		region = EXCLUDED.region,
		locality = EXCLUDED.locality,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		display_name = EXCLUDED.display_name,
		title = EXCLUDED.title,
		bio = EXCLUDED.bio,
		profile_image_url = EXCLUDED.profile_image_url,
		registry_id = EXCLUDED.registry_id,
		telehealth = EXCLUDED.telehealth,
		accepts_insurance = EXCLUDED.accepts_insurance,
		accepts_new_clients = EXCLUDED.accepts_new_clients,
		specialties = EXCLUDED.specialties,
		payload = EXCLUDED.payload,
		observed_at = EXCLUDED.observed_at,
		updated_at = EXCLUDED.updated_at;
`

// UpsertListings bulk-upserts listings in one batch round trip.
// Listings without a natural key are rejected client-side and do not
// fail the rest of the batch.
func (s *RecordStore) UpsertListings(ctx context.Context, listings []harvest.Listing) (harvest.UpsertResult, error) {
	var result harvest.UpsertResult
	if len(listings) == 0 {
		return result, nil
	}

	batch := &pgx.Batch{}
	for _, l := range listings {
		if l.ListingID == "" {
			result.Rejected++
			continue
		}
		batch.Queue(upsertListingSQL,
			l.ListingID, l.Kind, l.Region, l.Locality,
			l.FirstName, l.LastName, l.DisplayName, l.Title, l.Bio,
			l.ProfileImageURL, l.RegistryID,
			l.Telehealth, l.AcceptsInsurance, l.AcceptsNew,
			l.Specialties, l.Payload, l.ObservedAt,
		)
	}
	if batch.Len() == 0 {
		return result, nil
	}

	br := s.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return result, fmt.Errorf("upsert listing batch item %d: %w", i, err)
		}
		result.Accepted++
	}
	return result, nil
}
