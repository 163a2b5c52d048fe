package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// StartupGate bounds how many session-provisioning calls may be in flight
// at once, independent of the total pool size. It protects both the local
// process and the remote provisioning service from start-storms.
//
// Permits are granted in FIFO order of acquisition, so a burst of
// simultaneous refills cannot starve an earlier waiter.
type StartupGate struct {
	sem *semaphore.Weighted
}

// NewStartupGate creates a gate admitting up to permits concurrent calls.
func NewStartupGate(permits int) *StartupGate {
	return &StartupGate{sem: semaphore.NewWeighted(int64(permits))}
}

// Acquire blocks until a permit is free or ctx is cancelled.
func (g *StartupGate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a previously acquired permit.
func (g *StartupGate) Release() {
	g.sem.Release(1)
}
