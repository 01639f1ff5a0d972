package npi

import (
	"context"

	"go.uber.org/zap"

	"github.com/harvestlabs/dirharvest/internal/harvest"
)

// Resolver is the lookup surface the enriching store depends on.
type Resolver interface {
	Lookup(ctx context.Context, firstName, lastName, region string) (string, error)
}

// RecordStore decorates a harvest.RecordStore, filling missing registry
// identifiers before the upsert. Lookups are best effort: a failed or
// empty lookup leaves the identifier absent and never rejects the
// listing.
type RecordStore struct {
	inner    harvest.RecordStore
	resolver Resolver
	logger   *zap.Logger
}

// NewRecordStore wraps inner with registry enrichment.
func NewRecordStore(inner harvest.RecordStore, resolver Resolver, logger *zap.Logger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{inner: inner, resolver: resolver, logger: logger}
}

// UpsertListings enriches then delegates to the wrapped store.
func (s *RecordStore) UpsertListings(ctx context.Context, listings []harvest.Listing) (harvest.UpsertResult, error) {
	for i := range listings {
		l := &listings[i]
		if l.RegistryID != nil || l.FirstName == nil || l.LastName == nil {
			continue
		}
		id, err := s.resolver.Lookup(ctx, *l.FirstName, *l.LastName, l.Region)
		if err != nil {
			s.logger.Debug("registry lookup failed, identifier stays absent",
				zap.String("listing_id", l.ListingID), zap.Error(err))
			continue
		}
		if id != "" {
			l.RegistryID = &id
		}
	}
	return s.inner.UpsertListings(ctx, listings)
}
