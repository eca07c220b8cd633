package adapters

import (
	"context"
	"sync"

	"github.com/Phantawat/BreatheEasy/pkg/cache"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// MemorySource serves fixed tables. Tables are copied in and out.
type MemorySource struct {
	mu     sync.RWMutex
	tables map[string]*timeseries.Table
}

// NewMemorySource creates an empty memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{tables: make(map[string]*timeseries.Table)}
}

func (m *MemorySource) Name() string { return "memory" }

// Set replaces the table served for dataset.
func (m *MemorySource) Set(dataset string, t *timeseries.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[dataset] = t.Clone()
}

// Query implements Source. A known dataset that was never Set yields an
// empty table with the dataset's schema.
func (m *MemorySource) Query(_ context.Context, dataset string) (*timeseries.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[dataset]
	if !ok {
		cols, err := Columns(dataset)
		if err != nil {
			return nil, err
		}
		return timeseries.NewTable(cols...), nil
	}
	return t.Clone(), nil
}

// Cached wraps a source with the shared TTL cache. Every caller receives
// its own copy of the cached table.
type Cached struct {
	Source Source
	Cache  *cache.Cache

	// Observe, when set, is called after every lookup.
	Observe func(dataset string, hit bool)
}

func (c *Cached) Name() string { return c.Source.Name() }

// Query implements Source.
func (c *Cached) Query(ctx context.Context, dataset string) (*timeseries.Table, error) {
	key := cache.Key("source", c.Source.Name(), dataset)
	t, hit, err := cache.GetOrCompute(ctx, c.Cache, key, func(ctx context.Context) (*timeseries.Table, error) {
		return c.Source.Query(ctx, dataset)
	})
	if err != nil {
		return nil, err
	}
	if c.Observe != nil {
		c.Observe(dataset, hit)
	}
	return t.Clone(), nil
}
