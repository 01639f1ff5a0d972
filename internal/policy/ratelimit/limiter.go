// Package ratelimit implements the sliding-window admission gate shared
// by every outbound request.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harvestlabs/dirharvest/internal/metrics"
)

// SlidingWindow admits at most maxCalls requests within any trailing
// period, across all callers. Unlike a token bucket, the bound holds
// for every trailing window, not per refill interval.
type SlidingWindow struct {
	// mu serializes admission: one caller recomputes and, if the window
	// is full, waits while the rest queue behind it. Holding it across
	// the wait keeps admissions FIFO.
	mu       sync.Mutex
	maxCalls int
	period   time.Duration
	calls    []time.Time
	now      func() time.Time
}

// New constructs a SlidingWindow limiter.
func New(maxCalls int, period time.Duration) *SlidingWindow {
	if maxCalls <= 0 {
		maxCalls = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &SlidingWindow{
		maxCalls: maxCalls,
		period:   period,
		calls:    make([]time.Time, 0, maxCalls),
		now:      time.Now,
	}
}

// Acquire blocks until admitting a request would not exceed maxCalls
// within the trailing period, then records the admission.
func (l *SlidingWindow) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.calls) >= l.maxCalls {
		wait := l.period - now.Sub(l.calls[0])
		if wait > 0 {
			metrics.ObserveRateLimitDelay(wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return fmt.Errorf("rate limit wait: %w", ctx.Err())
			}
		}
		l.calls = l.calls[1:]
	}

	l.calls = append(l.calls, l.now())
	return nil
}

// evict drops admission stamps older than the trailing period.
func (l *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-l.period)
	kept := l.calls[:0]
	for _, c := range l.calls {
		if c.After(cutoff) {
			kept = append(kept, c)
		}
	}
	l.calls = kept
}
