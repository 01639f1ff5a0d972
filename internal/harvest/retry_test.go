package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net error" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return e.timeout }

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3)

	require.False(t, p.ShouldRetry(nil, 0))
	require.True(t, p.ShouldRetry(errors.New("origin 500"), 0))
	require.True(t, p.ShouldRetry(errors.New("origin 500"), 2))
	require.False(t, p.ShouldRetry(errors.New("origin 500"), 3), "attempt cap")

	require.False(t, p.ShouldRetry(context.Canceled, 0))
	require.False(t, p.ShouldRetry(fmt.Errorf("wrapped: %w", context.DeadlineExceeded), 0))

	require.True(t, p.ShouldRetry(timeoutErr{timeout: true}, 0), "network timeouts are transient")
	require.False(t, p.ShouldRetry(timeoutErr{timeout: false}, 0), "hard network errors are not")
}

func TestBackoffGrowsAndStaysBounded(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(10)
	var prevCeil time.Duration
	for attempt := 0; attempt < 8; attempt++ {
		d := p.Backoff(attempt)
		require.Positive(t, d)
		require.LessOrEqual(t, d, 5*time.Second)
		// The jittered delay stays within the exponential ceiling.
		ceil := time.Duration(float64(250*time.Millisecond) * float64(int(1)<<attempt))
		if ceil > 5*time.Second {
			ceil = 5 * time.Second
		}
		require.LessOrEqual(t, d, ceil)
		if ceil > prevCeil {
			prevCeil = ceil
		}
	}
}

func TestDefaultAttemptCap(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(0)
	require.True(t, p.ShouldRetry(errors.New("x"), 2))
	require.False(t, p.ShouldRetry(errors.New("x"), 3))
}
