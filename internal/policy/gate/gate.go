// Package gate bounds the number of simultaneously active locality
// workers.
package gate

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting admission control: at no instant are more than the
// configured number of workers between Enter and Exit.
type Gate struct {
	sem *semaphore.Weighted
}

// New constructs a Gate with the given slot count.
func New(maxConcurrent int) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Enter suspends the caller until a slot is free.
func (g *Gate) Enter(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("gate slot wait: %w", err)
	}
	return nil
}

// Exit releases a slot. It must be called exactly once per successful
// Enter, including on error paths.
func (g *Gate) Exit() {
	g.sem.Release(1)
}
