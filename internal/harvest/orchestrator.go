package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harvestlabs/dirharvest/internal/metrics"
)

// OrchestratorConfig governs the run-wide fan-out.
type OrchestratorConfig struct {
	// MaxConcurrent is the hard bound on simultaneous locality workers,
	// enforced by the Gate. The region loop additionally paces itself
	// by only running MaxConcurrent/2 regions at once; that batching is
	// advisory, the gate is the sole hard limit.
	MaxConcurrent int
	BatchSize     int
	// GlobalRecordCap stops new locality launches once the admitted
	// record count reaches it. 0 means unlimited. The cap is advisory:
	// in-flight workers finish their current page.
	GlobalRecordCap int
	RegionTimeout   time.Duration
	Paginator       PaginatorConfig
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.RegionTimeout <= 0 {
		c.RegionTimeout = time.Hour
	}
	return c
}

// ErrNoRegions is returned when the origin yields nothing to crawl.
// It is the only condition fatal to a whole run.
var ErrNoRegions = errors.New("no regions enumerable")

// Orchestrator fans the crawl space out into locality workers and
// aggregates their outcomes. All collaborators are constructed before
// the run and injected; nothing is lazily initialized.
type Orchestrator struct {
	enum      Enumerator
	fetcher   PageFetcher
	mapper    Mapper
	records   RecordStore
	snapshots SnapshotStore
	limiter   Limiter
	gate      Gate
	retry     RetryPolicy
	clock     Clock
	stats     *RunStats
	cfg       OrchestratorConfig
	logger    *zap.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	enum Enumerator,
	fetcher PageFetcher,
	mapper Mapper,
	records RecordStore,
	snapshots SnapshotStore,
	limiter Limiter,
	gate Gate,
	retry RetryPolicy,
	clock Clock,
	stats *RunStats,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		enum:      enum,
		fetcher:   fetcher,
		mapper:    mapper,
		records:   records,
		snapshots: snapshots,
		limiter:   limiter,
		gate:      gate,
		retry:     retry,
		clock:     clock,
		stats:     stats,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Run executes one crawl run. Failures below run scope never surface as
// an error: the run completes and reports them. The returned error is
// non-nil only when no regions could be enumerated at all.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	runID := uuid.NewString()
	started := o.clock.Now()
	log := o.logger.With(zap.String("run_id", runID))

	regions, err := o.enum.ListRegions(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list regions: %w", err)
	}
	if len(regions) == 0 {
		return Report{}, ErrNoRegions
	}
	log.Info("run started", zap.Int("regions", len(regions)))

	// Advisory pacing: half the worker budget in regions at a time.
	step := o.cfg.MaxConcurrent / 2
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(regions); i += step {
		if o.stats.CapReached() {
			log.Info("global record cap reached, not launching further regions",
				zap.Int("records", o.stats.RecordsAdmitted()))
			break
		}
		end := i + step
		if end > len(regions) {
			end = len(regions)
		}

		g, batchCtx := errgroup.WithContext(ctx)
		for _, region := range regions[i:end] {
			region := region
			g.Go(func() error {
				res := o.processRegion(batchCtx, region, log)
				o.recordRegion(res)
				return nil
			})
		}
		// Workers never return errors; Wait only observes ctx.
		_ = g.Wait()
		if ctx.Err() != nil {
			break
		}
	}

	report := o.stats.Snapshot()
	report.RunID = runID
	report.StartedAt = started
	report.FinishedAt = o.clock.Now()
	log.Info("run finished",
		zap.Int("regions_processed", report.RegionsProcessed),
		zap.Int("records_admitted", report.RecordsAdmitted),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// processRegion enumerates one region's localities and walks each under
// the gate, bounded by the per-region wall clock.
func (o *Orchestrator) processRegion(ctx context.Context, region Region, log *zap.Logger) RegionResult {
	regionCtx, cancel := context.WithTimeout(ctx, o.cfg.RegionTimeout)
	defer cancel()

	log = log.With(zap.String("region", region.ID))

	localities, err := o.enum.ListLocalities(regionCtx, region)
	if err != nil {
		log.Warn("locality enumeration failed, skipping region", zap.Error(err))
		return RegionResult{
			Region: region,
			State:  RegionSkipped,
			Err:    fmt.Errorf("list localities: %w", err),
		}
	}
	if len(localities) == 0 {
		log.Info("region has no localities")
		return RegionResult{Region: region, State: RegionSucceeded}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []LocalityResult
	)
	for _, locality := range localities {
		if o.stats.CapReached() {
			log.Info("global record cap reached, not launching further localities")
			break
		}
		locality := locality
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.walkLocality(regionCtx, region, locality)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	res := RegionResult{Region: region, State: RegionSucceeded, Localities: results}
	for _, lr := range results {
		res.Records += lr.Records
		if lr.State == LocalityFailed {
			res.State = RegionPartial
		}
	}
	if regionCtx.Err() != nil && ctx.Err() == nil {
		// Region budget exhausted rather than run-wide cancellation.
		res.State = RegionTimedOut
		res.Err = fmt.Errorf("region budget exhausted: %w", regionCtx.Err())
		log.Warn("region timed out, flushed prefix kept", zap.Int("records", res.Records))
	}
	return res
}

// walkLocality runs one locality worker: gate slot, fresh buffer, walk.
func (o *Orchestrator) walkLocality(ctx context.Context, region Region, locality Locality) LocalityResult {
	if err := o.gate.Enter(ctx); err != nil {
		return LocalityResult{
			Locality: locality,
			State:    LocalityFailed,
			Err:      fmt.Errorf("gate enter: %w", err),
		}
	}
	defer o.gate.Exit()
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	buf := NewBatchBuffer(o.records, o.snapshots, o.cfg.BatchSize, o.stats, region.ID)
	pag := NewPaginator(
		o.fetcher,
		o.mapper,
		o.limiter,
		o.retry,
		o.clock,
		o.stats,
		o.cfg.Paginator,
		o.logger,
		o.stats.CapReached,
	)
	return pag.Walk(ctx, region, locality, buf)
}

// recordRegion folds one region outcome into the run counters.
func (o *Orchestrator) recordRegion(res RegionResult) {
	o.stats.AddRegionOutcome(res.State)
	metrics.ObserveRegion(string(res.State))

	switch res.State {
	case RegionSkipped:
		o.stats.AddFailure(Failure{
			Scope:  ScopeEnumeration,
			Region: res.Region.ID,
			Cause:  res.Err.Error(),
		})
	case RegionTimedOut:
		o.stats.AddFailure(Failure{
			Scope:  ScopeRegion,
			Region: res.Region.ID,
			Cause:  res.Err.Error(),
		})
	}
	for _, lr := range res.Localities {
		if lr.State == LocalityFailed && lr.Err != nil {
			o.stats.AddFailure(Failure{
				Scope:    ScopeLocality,
				Region:   res.Region.ID,
				Locality: lr.Locality.ID,
				Cause:    lr.Err.Error(),
			})
		}
	}
}
