// Package avgcache keeps recently computed per-business rating aggregates in
// memory for a short TTL. Writes that touch a business must call Invalidate.
package avgcache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Clark-Hu/business-ratings/internal/domain"
)

// LoadFunc computes the aggregate for a business on a cache miss.
type LoadFunc func(ctx context.Context, businessID int64) (domain.RatingAggregate, error)

// Cache is safe for concurrent use. A nil *Cache is valid and never caches.
type Cache struct {
	items *ttlcache.Cache[int64, domain.RatingAggregate]

	// gen is bumped by every Invalidate. A load only populates the cache when
	// no invalidation happened while it ran, so a write that commits during a
	// load can never be shadowed by the value computed before it.
	mu  sync.Mutex
	gen uint64
}

// New returns a cache whose entries live for ttl and which holds at most
// capacity businesses (0 means unbounded). A non-positive ttl disables caching
// and returns nil.
func New(ttl time.Duration, capacity uint64) *Cache {
	if ttl <= 0 {
		return nil
	}
	opts := []ttlcache.Option[int64, domain.RatingAggregate]{
		ttlcache.WithTTL[int64, domain.RatingAggregate](ttl),
		// Reads must not extend an entry past its TTL.
		ttlcache.WithDisableTouchOnHit[int64, domain.RatingAggregate](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[int64, domain.RatingAggregate](capacity))
	}
	return &Cache{items: ttlcache.New[int64, domain.RatingAggregate](opts...)}
}

// Get returns the cached aggregate for businessID, calling load on a miss.
// Load errors are returned as-is and nothing is cached.
func (c *Cache) Get(ctx context.Context, businessID int64, load LoadFunc) (domain.RatingAggregate, error) {
	if c == nil {
		return load(ctx, businessID)
	}
	if item := c.items.Get(businessID); item != nil {
		return item.Value(), nil
	}

	c.mu.Lock()
	startGen := c.gen
	c.mu.Unlock()

	agg, err := load(ctx, businessID)
	if err != nil {
		return domain.RatingAggregate{}, err
	}

	c.mu.Lock()
	if c.gen == startGen {
		c.items.Set(businessID, agg, ttlcache.DefaultTTL)
	}
	c.mu.Unlock()
	return agg, nil
}

// Invalidate drops the entries for the given businesses and discards any
// load that is still in flight.
func (c *Cache) Invalidate(businessIDs ...int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, id := range businessIDs {
		c.items.Delete(id)
	}
}

// Len reports the number of cached entries, expired ones included until the
// cleanup loop removes them.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.items.Len()
}

// Run purges expired entries until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	if c == nil {
		return
	}
	go func() {
		<-ctx.Done()
		c.items.Stop()
	}()
	c.items.Start()
}
