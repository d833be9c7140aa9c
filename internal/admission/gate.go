// Package admission bounds how many generation pipelines run at once.
package admission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting semaphore with observable occupancy.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New returns a gate admitting at most capacity concurrent holders.
func New(capacity int) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("admission capacity must be positive, got %d", capacity)
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}, nil
}

// Acquire blocks until a permit is free or ctx ends. The returned release
// func is safe to call more than once; only the first call frees the permit.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return nil, err
	}
	return g.hold(), nil
}

// TryAcquire takes a permit only if one is free right now.
func (g *Gate) TryAcquire() (func(), bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	return g.hold(), true
}

func (g *Gate) hold() func() {
	g.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}
}

// Capacity returns the configured permit count.
func (g *Gate) Capacity() int { return g.capacity }

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// Waiting returns the number of callers blocked in Acquire.
func (g *Gate) Waiting() int { return int(g.waiting.Load()) }
