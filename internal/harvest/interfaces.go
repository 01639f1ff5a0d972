package harvest

import (
	"context"
	"time"
)

// PageFetcher fetches one page of one locality's cursor walk.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (PageResponse, error)
}

// Enumerator lists the crawl space. Both calls hit the origin's browse
// endpoints; failures are scoped to the region being enumerated.
type Enumerator interface {
	ListRegions(ctx context.Context) ([]Region, error)
	ListLocalities(ctx context.Context, region Region) ([]Locality, error)
}

// Mapper normalizes one raw item into a Listing. A nil Listing with a
// nil error means the item produced no record. Errors are item-scoped;
// implementations must not panic past this boundary.
type Mapper interface {
	Map(item RawItem, related RelatedObjects) (*Listing, error)
}

// RecordStore persists listings idempotently by natural key. Safe for
// concurrent use by independent locality workers.
type RecordStore interface {
	UpsertListings(ctx context.Context, listings []Listing) (UpsertResult, error)
}

// SnapshotStore persists raw page payloads. Safe for concurrent use.
type SnapshotStore interface {
	StoreSnapshots(ctx context.Context, snapshots []Snapshot) (int, error)
}

// Limiter admits outbound requests under a global throughput bound.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Gate bounds the number of simultaneously active locality workers.
// Exit must always be called after a successful Enter.
type Gate interface {
	Enter(ctx context.Context) error
	Exit()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
