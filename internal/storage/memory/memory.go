// Package memory contains map-backed stores for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/harvestlabs/dirharvest/internal/harvest"
)

// RecordStore keeps listings in a map keyed by natural key. Upserts are
// last-write-wins with created_at preserved from the first insert,
// matching the Postgres store's semantics.
type RecordStore struct {
	mu       sync.RWMutex
	listings map[string]storedListing
	now      func() time.Time
}

type storedListing struct {
	listing   harvest.Listing
	createdAt time.Time
	updatedAt time.Time
}

// NewRecordStore returns an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		listings: make(map[string]storedListing),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UpsertListings inserts or replaces listings by natural key. Listings
// without a natural key are rejected and do not affect the rest.
func (s *RecordStore) UpsertListings(_ context.Context, listings []harvest.Listing) (harvest.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result harvest.UpsertResult
	now := s.now()
	for _, l := range listings {
		if l.ListingID == "" {
			result.Rejected++
			continue
		}
		created := now
		if prev, ok := s.listings[l.ListingID]; ok {
			created = prev.createdAt
		}
		s.listings[l.ListingID] = storedListing{listing: l, createdAt: created, updatedAt: now}
		result.Accepted++
	}
	return result, nil
}

// Get returns the stored listing for a natural key.
func (s *RecordStore) Get(id string) (harvest.Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.listings[id]
	return stored.listing, ok
}

// CreatedAt returns the first-insert timestamp for a natural key.
func (s *RecordStore) CreatedAt(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.listings[id]
	return stored.createdAt, ok
}

// Len returns the number of distinct listings stored.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listings)
}

// SnapshotStore appends snapshots; rows are never updated.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []harvest.Snapshot
}

// NewSnapshotStore returns an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// StoreSnapshots appends the given snapshots.
func (s *SnapshotStore) StoreSnapshots(_ context.Context, snapshots []harvest.Snapshot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshots...)
	return len(snapshots), nil
}

// Snapshots returns a copy of the stored snapshots.
func (s *SnapshotStore) Snapshots() []harvest.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}
