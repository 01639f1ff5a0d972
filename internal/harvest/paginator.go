package harvest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PaginatorConfig controls one locality's page walk.
type PaginatorConfig struct {
	PageSize int
	// MaxPages guards against origin inconsistencies producing an
	// unbounded "next" chain.
	MaxPages int
	// PageRetries is the number of attempts per page before the
	// locality is given up as failed.
	PageRetries int
}

func (c PaginatorConfig) withDefaults() PaginatorConfig {
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 500
	}
	if c.PageRetries <= 0 {
		c.PageRetries = 3
	}
	return c
}

// Paginator drives one locality's sequential page walk. Page N+1 is
// never requested before page N's response is processed: the cursor for
// N+1 is taken from N's response.
type Paginator struct {
	fetcher    PageFetcher
	mapper     Mapper
	limiter    Limiter
	retry      RetryPolicy
	clock      Clock
	stats      *RunStats
	cfg        PaginatorConfig
	logger     *zap.Logger
	capReached func() bool
}

// NewPaginator constructs a Paginator. capReached may be nil when no
// global record cap applies.
func NewPaginator(
	fetcher PageFetcher,
	mapper Mapper,
	limiter Limiter,
	retry RetryPolicy,
	clock Clock,
	stats *RunStats,
	cfg PaginatorConfig,
	logger *zap.Logger,
	capReached func() bool,
) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{
		fetcher:    fetcher,
		mapper:     mapper,
		limiter:    limiter,
		retry:      retry,
		clock:      clock,
		stats:      stats,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		capReached: capReached,
	}
}

// Walk runs the page loop for one locality, buffering into buf. The
// final flush is attempted unconditionally, including on failure and
// cancellation, so the flushed prefix survives. Failures never
// propagate past the returned result.
func (p *Paginator) Walk(ctx context.Context, region Region, locality Locality, buf *BatchBuffer) LocalityResult {
	res := LocalityResult{Locality: locality, State: LocalityTerminated}
	log := p.logger.With(zap.String("region", region.ID), zap.String("locality", locality.ID))

	cursor := ""
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			res.State = LocalityFailed
			res.Err = fmt.Errorf("locality walk canceled: %w", ctx.Err())
			break
		}
		if p.capReached != nil && p.capReached() {
			log.Info("record cap reached, stopping walk", zap.Int("page", page))
			break
		}
		if page > p.cfg.MaxPages {
			log.Warn("max page guard hit, forcing termination", zap.Int("max_pages", p.cfg.MaxPages))
			break
		}

		resp, err := p.fetchPage(ctx, PageRequest{
			Region:   region,
			Locality: locality,
			Page:     page,
			PageSize: p.cfg.PageSize,
			Cursor:   cursor,
		})
		if err != nil {
			res.PagesFailed++
			res.State = LocalityFailed
			res.Err = fmt.Errorf("page %d: %w", page, err)
			log.Error("page fetch failed, halting locality", zap.Int("page", page), zap.Error(err))
			break
		}
		res.PagesFetched++

		if len(resp.Items) == 0 {
			// Empty page is a valid termination, not an error.
			break
		}

		if err := p.bufferPage(ctx, region, locality, page, resp, buf, &res, log); err != nil {
			res.State = LocalityFailed
			res.Err = err
			break
		}

		if resp.Next == "" {
			break
		}
		cursor = resp.Next
	}

	// Final flush of any remainder. A failed flush here is the
	// locality's failure even if the walk itself terminated cleanly.
	if err := buf.Flush(ctx); err != nil {
		res.State = LocalityFailed
		if res.Err == nil {
			res.Err = err
		}
		log.Error("final flush failed", zap.Error(err))
	}
	res.Records = buf.Accepted()
	return res
}

// fetchPage acquires the rate limiter and fetches with per-page retry.
func (p *Paginator) fetchPage(ctx context.Context, req PageRequest) (PageResponse, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := p.limiter.Acquire(ctx); err != nil {
			return PageResponse{}, fmt.Errorf("rate limit acquire: %w", err)
		}
		resp, err := p.fetcher.FetchPage(ctx, req)
		if err == nil {
			if p.stats != nil {
				p.stats.AddPage(true)
			}
			return resp, nil
		}
		lastErr = err
		if p.stats != nil {
			p.stats.AddPage(false)
		}
		if p.retry == nil || !p.retry.ShouldRetry(err, attempt) {
			return PageResponse{}, lastErr
		}
		select {
		case <-time.After(p.retry.Backoff(attempt)):
		case <-ctx.Done():
			return PageResponse{}, fmt.Errorf("retry wait canceled: %w", ctx.Err())
		}
	}
}

// bufferPage snapshots the raw payload and maps the page's items. A
// malformed item skips only itself; a flush error aborts the page.
func (p *Paginator) bufferPage(
	ctx context.Context,
	region Region,
	locality Locality,
	page int,
	resp PageResponse,
	buf *BatchBuffer,
	res *LocalityResult,
	log *zap.Logger,
) error {
	now := p.clock.Now()
	if err := buf.AddSnapshot(ctx, Snapshot{
		Region:    region.ID,
		Locality:  locality.ID,
		Page:      page,
		FetchedAt: now,
		Payload:   resp.Raw,
	}); err != nil {
		return fmt.Errorf("buffer snapshot: %w", err)
	}

	related := IndexRelated(resp.Included)
	for _, item := range resp.Items {
		listing, err := p.mapItem(item, related)
		if err != nil {
			res.ItemsSkipped++
			if p.stats != nil {
				p.stats.AddFailure(Failure{
					Scope:    ScopeItem,
					Region:   region.ID,
					Locality: locality.ID,
					Cause:    err.Error(),
				})
			}
			log.Warn("item mapping failed, skipping item",
				zap.Int("page", page), zap.String("item_id", item.ID), zap.Error(err))
			continue
		}
		if listing == nil {
			res.ItemsSkipped++
			continue
		}
		listing.Region = region.ID
		listing.Locality = locality.ID
		listing.ObservedAt = now
		if err := buf.AddListing(ctx, *listing); err != nil {
			return fmt.Errorf("buffer listing: %w", err)
		}
	}
	return nil
}

// mapItem isolates the mapping collaborator: a panic inside Map is
// converted into an item-scoped error.
func (p *Paginator) mapItem(item RawItem, related RelatedObjects) (listing *Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			listing = nil
			err = fmt.Errorf("mapper panic: %v", r)
		}
	}()
	return p.mapper.Map(item, related)
}

// IndexRelated builds the (type, id) index over a page's included objects.
func IndexRelated(included []RawItem) RelatedObjects {
	if len(included) == 0 {
		return nil
	}
	related := make(RelatedObjects, len(included))
	for _, obj := range included {
		related[RelatedKey{Type: obj.Type, ID: obj.ID}] = obj
	}
	return related
}
