package explain

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
)

// Cache is the in-process explanation cache keyed by post fingerprint.
// Entries are read-only after creation and expire lazily at lookup time;
// there is no background sweep. The cache owns its entry map exclusively.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	group   singleflight.Group

	now func() time.Time // injectable for TTL tests
}

type cacheEntry struct {
	result    domain.Explanation
	createdAt time.Time
}

// NewCache creates an explanation cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetOrCompute returns the cached explanation for the fingerprint, or runs
// compute and stores its result. Concurrent callers on one fingerprint
// share a single in-flight computation; distinct fingerprints never
// serialize each other. Failed or cancelled computations store nothing.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	compute func(ctx context.Context) (domain.Explanation, error),
) (domain.Explanation, error) {
	if result, ok := c.Lookup(fingerprint); ok {
		return result, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		// A waiter may arrive after the previous leader stored the entry.
		if result, ok := c.lookup(fingerprint); ok {
			return result, nil
		}

		result, err := compute(ctx)
		if err != nil {
			return domain.Explanation{}, err
		}
		if ctx.Err() != nil {
			// A cancelled request must never poison the cache with a
			// partial result.
			return domain.Explanation{}, ctx.Err()
		}

		result.FromCache = false
		c.Put(fingerprint, result)
		return result, nil
	})
	if err != nil {
		return domain.Explanation{}, err
	}
	return v.(domain.Explanation), nil
}

// Lookup returns the cached explanation with FromCache set, expiring the
// entry lazily when its TTL has passed. Each call counts exactly one
// cache hit or miss; internal re-checks go through lookup instead.
func (c *Cache) Lookup(fingerprint string) (domain.Explanation, bool) {
	result, ok := c.lookup(fingerprint)
	if ok {
		metrics.CacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheTotal.WithLabelValues("miss").Inc()
	}
	return result, ok
}

func (c *Cache) lookup(fingerprint string) (domain.Explanation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return domain.Explanation{}, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		delete(c.entries, fingerprint)
		return domain.Explanation{}, false
	}

	result := e.result
	result.FromCache = true
	return result, true
}

// Put stores an explanation, overwriting any previous entry.
func (c *Cache) Put(fingerprint string, result domain.Explanation) {
	result.FromCache = false
	c.mu.Lock()
	c.entries[fingerprint] = cacheEntry{result: result, createdAt: c.now()}
	c.mu.Unlock()
}

// Len reports the number of live entries (expired ones included until a
// lookup evicts them).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
