package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeFetcher scripts page responses per (locality, page) and tracks
// attempts so retry behavior can be scripted.
type fakeFetcher struct {
	mu       sync.Mutex
	script   func(req PageRequest, attempt int) (PageResponse, error)
	attempts map[string]int
	calls    []PageRequest
}

func newFakeFetcher(script func(req PageRequest, attempt int) (PageResponse, error)) *fakeFetcher {
	return &fakeFetcher{script: script, attempts: make(map[string]int)}
}

func (f *fakeFetcher) FetchPage(_ context.Context, req PageRequest) (PageResponse, error) {
	f.mu.Lock()
	key := fmt.Sprintf("%s/%d", req.Locality.ID, req.Page)
	attempt := f.attempts[key]
	f.attempts[key]++
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.script(req, attempt)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// pageOf builds a scripted page response with the given item IDs and
// next cursor.
func pageOf(next string, itemIDs ...string) PageResponse {
	items := make([]RawItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		items = append(items, RawItem{ID: id, Type: "therapists", Attributes: json.RawMessage(`{}`)})
	}
	return PageResponse{Items: items, Next: next, Raw: json.RawMessage(`{"data":[]}`)}
}

// fakeMapper produces a minimal listing per item. Items typed "broken"
// fail, items typed "skip" produce no record, items typed "panic" blow
// up to exercise the paginator's panic isolation.
type fakeMapper struct{}

func (fakeMapper) Map(item RawItem, _ RelatedObjects) (*Listing, error) {
	switch item.Type {
	case "broken":
		return nil, errors.New("unmappable item")
	case "skip":
		return nil, nil
	case "panic":
		panic("mapper exploded")
	}
	return &Listing{ListingID: item.ID, Kind: item.Type}, nil
}

// fakeRecordStore is an idempotent map store with an optional scripted
// failure.
type fakeRecordStore struct {
	mu       sync.Mutex
	listings map[string]Listing
	upserts  int
	err      error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{listings: make(map[string]Listing)}
}

func (s *fakeRecordStore) UpsertListings(_ context.Context, listings []Listing) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return UpsertResult{}, s.err
	}
	s.upserts++
	var res UpsertResult
	for _, l := range listings {
		if l.ListingID == "" {
			res.Rejected++
			continue
		}
		s.listings[l.ListingID] = l
		res.Accepted++
	}
	return res, nil
}

func (s *fakeRecordStore) distinct() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listings)
}

func (s *fakeRecordStore) upsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

type fakeSnapshotStore struct {
	mu        sync.Mutex
	snapshots []Snapshot
	err       error
}

func (s *fakeSnapshotStore) StoreSnapshots(_ context.Context, snapshots []Snapshot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.snapshots = append(s.snapshots, snapshots...)
	return len(snapshots), nil
}

func (s *fakeSnapshotStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// fakeEnumerator serves a fixed crawl space with scriptable errors.
type fakeEnumerator struct {
	regions      []Region
	regionsErr   error
	localities   map[string][]Locality
	localityErrs map[string]error
}

func (e *fakeEnumerator) ListRegions(context.Context) ([]Region, error) {
	return e.regions, e.regionsErr
}

func (e *fakeEnumerator) ListLocalities(_ context.Context, region Region) ([]Locality, error) {
	if err := e.localityErrs[region.ID]; err != nil {
		return nil, err
	}
	return e.localities[region.ID], nil
}

// nopLimiter admits immediately and counts admissions.
type nopLimiter struct {
	mu       sync.Mutex
	acquires int
}

func (l *nopLimiter) Acquire(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return nil
}

// trackingGate bounds concurrency with a channel and records the peak
// number of workers inside.
type trackingGate struct {
	slots chan struct{}
	mu    sync.Mutex
	cur   int
	peak  int
}

func newTrackingGate(max int) *trackingGate {
	return &trackingGate{slots: make(chan struct{}, max)}
}

func (g *trackingGate) Enter(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	g.cur++
	if g.cur > g.peak {
		g.peak = g.cur
	}
	g.mu.Unlock()
	return nil
}

func (g *trackingGate) Exit() {
	g.mu.Lock()
	g.cur--
	g.mu.Unlock()
	<-g.slots
}

func (g *trackingGate) peakConcurrency() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// fixedClock returns a constant instant.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// zeroBackoffRetry retries transient errors with no wait, capped at
// maxAttempts.
type zeroBackoffRetry struct{ maxAttempts int }

func (r zeroBackoffRetry) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt < r.maxAttempts
}

func (r zeroBackoffRetry) Backoff(int) time.Duration { return 0 }
