package annotate

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pagepress/pagepress/internal/gate"
)

// ComputeFunc performs the external annotation call on a cache miss.
type ComputeFunc func(ctx context.Context) (Result, error)

// Cache memoizes annotation results keyed by (content hash, kind) for the
// duration of one run. Hits return without touching the gate. Misses are
// routed through the gate, and concurrent misses for the same key collapse
// into a single external call. Failed calls are cached too, so a failing
// service is asked once per key per run.
type Cache struct {
	gate  *gate.Gate
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]Result
}

// NewCache creates a Cache that routes misses through g.
func NewCache(g *gate.Gate) *Cache {
	return &Cache{
		gate:    g,
		entries: make(map[string]Result),
	}
}

// GetOrCompute returns the cached Result for (hash, kind), computing and
// storing it on a miss. A failed external call is returned as a Result
// with Err set, never as a lost entry.
func (c *Cache) GetOrCompute(ctx context.Context, hash string, kind Kind, compute ComputeFunc) Result {
	key := hash + ":" + string(kind)

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry between the read
		// above and winning the flight.
		c.mu.RLock()
		cached, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		var result Result
		gateErr := c.gate.Do(ctx, func() error {
			r, err := compute(ctx)
			r.Kind = kind
			r.Err = err
			result = r
			return nil
		})
		if gateErr != nil {
			// Admission failed (context cancelled); do not cache.
			return Result{Kind: kind, Err: gateErr}, nil
		}

		c.mu.Lock()
		c.entries[key] = result
		c.mu.Unlock()
		return result, nil
	})

	return v.(Result)
}

// Reset clears all entries. Called at the start of each document run.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]Result)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
