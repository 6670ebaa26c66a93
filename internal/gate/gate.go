// Package gate provides bounded admission control for external calls.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate limits how many tasks execute concurrently. Excess callers wait in
// FIFO order; a slot is released when its task returns, whether or not the
// task failed, so one failing task never blocks the queue.
type Gate struct {
	sem      *semaphore.Weighted
	limit    int
	inFlight atomic.Int64
}

// New creates a Gate admitting at most limit concurrent tasks.
func New(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Do runs fn once admitted. It blocks until a slot is free or ctx is done.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	defer func() {
		g.inFlight.Add(-1)
		g.sem.Release(1)
	}()
	return fn()
}

// Limit returns the configured admission limit.
func (g *Gate) Limit() int { return g.limit }

// InFlight returns the number of tasks currently executing.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }
