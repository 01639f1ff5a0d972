// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestPagesTotal        *prometheus.CounterVec
	harvestListingsTotal     *prometheus.CounterVec
	harvestSnapshotsTotal    prometheus.Counter
	harvestRegionsTotal      *prometheus.CounterVec
	harvestActiveWorkers     prometheus.Gauge
	harvestRateLimitDelaySec prometheus.Histogram
	harvestFlushDurationSec  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call
// multiple times; observers are no-ops until it has been called.
func Init() {
	once.Do(func() {
		harvestPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_pages_total",
				Help: "Total page fetches, labeled by region and outcome.",
			},
			[]string{"region", "outcome"},
		)

		harvestListingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_listings_total",
				Help: "Total listings flushed to the record store, labeled by result.",
			},
			[]string{"result"},
		)

		harvestSnapshotsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_snapshots_total",
				Help: "Total raw page snapshots stored.",
			},
		)

		harvestRegionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_regions_total",
				Help: "Total regions processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of locality workers currently inside the gate.",
			},
		)

		harvestRateLimitDelaySec = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delay_seconds",
				Help:    "Histogram of sliding-window admission wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)

		harvestFlushDurationSec = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_flush_duration_seconds",
				Help:    "Histogram of batch flush latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page fetch counter.
func ObservePage(region string, ok bool) {
	if harvestPagesTotal == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	harvestPagesTotal.WithLabelValues(region, outcome).Inc()
}

// ObserveListings records flushed listing counts.
func ObserveListings(accepted, rejected int) {
	if harvestListingsTotal == nil {
		return
	}
	if accepted > 0 {
		harvestListingsTotal.WithLabelValues("accepted").Add(float64(accepted))
	}
	if rejected > 0 {
		harvestListingsTotal.WithLabelValues("rejected").Add(float64(rejected))
	}
}

// ObserveSnapshots records stored snapshot counts.
func ObserveSnapshots(n int) {
	if harvestSnapshotsTotal == nil || n <= 0 {
		return
	}
	harvestSnapshotsTotal.Add(float64(n))
}

// ObserveRegion increments the region outcome counter.
func ObserveRegion(outcome string) {
	if harvestRegionsTotal == nil {
		return
	}
	harvestRegionsTotal.WithLabelValues(outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if harvestActiveWorkers != nil {
		harvestActiveWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if harvestActiveWorkers != nil {
		harvestActiveWorkers.Dec()
	}
}

// ObserveRateLimitDelay records one admission wait.
func ObserveRateLimitDelay(d time.Duration) {
	if harvestRateLimitDelaySec != nil {
		harvestRateLimitDelaySec.Observe(d.Seconds())
	}
}

// ObserveFlush records one batch flush latency.
func ObserveFlush(d time.Duration) {
	if harvestFlushDurationSec != nil {
		harvestFlushDurationSec.Observe(d.Seconds())
	}
}
