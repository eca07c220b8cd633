// Package cache provides the read-through TTL cache shared by every request.
//
// Entries are keyed by operation id plus arguments, bounded in count by an
// LRU, and expire a fixed TTL after they were written. Concurrent misses on
// the same key each compute, and the last write wins. Errors are returned to
// the caller but never stored.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTTL is the lifetime of an entry unless configured otherwise.
const DefaultTTL = 15 * time.Second

// DefaultSize bounds the number of entries unless configured otherwise.
const DefaultSize = 256

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     Clock

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now Clock) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most size entries for ttl each. Zero
// values select DefaultSize and DefaultTTL.
func New(size int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c := &Cache{entries: entries, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key joins an operation id and its arguments into a cache key.
func Key(op string, args ...any) string {
	var b strings.Builder
	b.WriteString(op)
	for _, a := range args {
		b.WriteByte('|')
		fmt.Fprint(&b, a)
	}
	return b.String()
}

// Get returns the live value stored under key.
func (c *Cache) Get(key string) (any, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key until now+TTL.
func (c *Cache) Set(key string, value any) {
	c.entries.Add(key, entry{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Stats returns hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// GetOrCompute returns the live value for key, or runs compute and stores
// its result. hit reports whether the value came from the cache. A value of
// another type under key is treated as a miss and overwritten.
func GetOrCompute[V any](ctx context.Context, c *Cache, key string, compute func(context.Context) (V, error)) (v V, hit bool, err error) {
	if cached, ok := c.Get(key); ok {
		if typed, ok := cached.(V); ok {
			c.hits.Add(1)
			return typed, true, nil
		}
	}
	c.misses.Add(1)

	v, err = compute(ctx)
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.Set(key, v)
	return v, false, nil
}
