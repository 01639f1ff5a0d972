package harvest

import (
	"sync"
	"time"
)

// FailureScope tags a failure with the smallest scope it was isolated at.
type FailureScope string

// Failure scopes, smallest to largest.
const (
	ScopeItem        FailureScope = "item"
	ScopePage        FailureScope = "page"
	ScopeLocality    FailureScope = "locality"
	ScopeRegion      FailureScope = "region"
	ScopeEnumeration FailureScope = "enumeration"
)

// Failure records one isolated failure for the final report.
type Failure struct {
	Scope    FailureScope `json:"scope"`
	Region   string       `json:"region,omitempty"`
	Locality string       `json:"locality,omitempty"`
	Cause    string       `json:"cause"`
}

// RunStats holds process-wide counters for one crawl run. Constructed
// before any worker starts and shared by all of them; all mutation goes
// through the single mutex.
type RunStats struct {
	mu sync.Mutex

	recordCap int

	recordsAdmitted  int
	recordsRejected  int
	snapshotsStored  int
	pagesFetched     int
	pagesFailed      int
	regionsProcessed int
	regionsFailed    int
	perRegion        map[string]int
	failures         []Failure
}

// NewRunStats constructs RunStats for one run. recordCap of 0 means
// unlimited.
func NewRunStats(recordCap int) *RunStats {
	return &RunStats{
		recordCap: recordCap,
		perRegion: make(map[string]int),
	}
}

// AddRecords accumulates admitted/rejected listing counts for a region.
func (s *RunStats) AddRecords(region string, accepted, rejected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordsAdmitted += accepted
	s.recordsRejected += rejected
	s.perRegion[region] += accepted
}

// AddSnapshots accumulates stored snapshot counts.
func (s *RunStats) AddSnapshots(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotsStored += n
}

// AddPage records one page fetch attempt outcome.
func (s *RunStats) AddPage(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.pagesFetched++
	} else {
		s.pagesFailed++
	}
}

// AddRegionOutcome records a finished region.
func (s *RunStats) AddRegionOutcome(state RegionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regionsProcessed++
	if state != RegionSucceeded {
		s.regionsFailed++
	}
}

// AddFailure appends one isolated failure.
func (s *RunStats) AddFailure(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

// CapReached reports whether the global record cap has been met. The
// cap is advisory: it is only consulted at launch boundaries, so the
// final admitted count may overshoot by in-flight pages.
func (s *RunStats) CapReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordCap > 0 && s.recordsAdmitted >= s.recordCap
}

// RecordsAdmitted returns the current admitted count.
func (s *RunStats) RecordsAdmitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsAdmitted
}

// Report is the final observable output of a run.
type Report struct {
	RunID            string         `json:"run_id"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	RegionsProcessed int            `json:"regions_processed"`
	RegionsFailed    int            `json:"regions_failed"`
	RecordsAdmitted  int            `json:"records_admitted"`
	RecordsRejected  int            `json:"records_rejected"`
	SnapshotsStored  int            `json:"snapshots_stored"`
	PagesFetched     int            `json:"pages_fetched"`
	PagesFailed      int            `json:"pages_failed"`
	PerRegion        map[string]int `json:"per_region"`
	Failures         []Failure      `json:"failures,omitempty"`
}

// Snapshot assembles a point-in-time report from the counters.
func (s *RunStats) Snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	perRegion := make(map[string]int, len(s.perRegion))
	for k, v := range s.perRegion {
		perRegion[k] = v
	}
	failures := make([]Failure, len(s.failures))
	copy(failures, s.failures)
	return Report{
		RegionsProcessed: s.regionsProcessed,
		RegionsFailed:    s.regionsFailed,
		RecordsAdmitted:  s.recordsAdmitted,
		RecordsRejected:  s.recordsRejected,
		SnapshotsStored:  s.snapshotsStored,
		PagesFetched:     s.pagesFetched,
		PagesFailed:      s.pagesFailed,
		PerRegion:        perRegion,
		Failures:         failures,
	}
}

// Clean reports whether every region completed without failure.
func (r Report) Clean() bool {
	return r.RegionsFailed == 0 && len(r.Failures) == 0
}
