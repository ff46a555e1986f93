package holiday

import (
	"context"
	"log"
	"sync"
	"time"
)

// Cache memoizes provider lookups per year. Entries are reused for one TTL
// and served stale when a refresh fails; a stale holiday name still beats
// an errored response.
type Cache struct {
	provider Provider
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[int]cacheEntry
}

type cacheEntry struct {
	holidays  []Holiday
	fetchedAt time.Time
}

func NewCache(provider Provider, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[int]cacheEntry),
	}
}

// Holidays returns the cached year when fresh, refreshing otherwise. It
// satisfies Provider so callers cannot tell the cache from the upstream.
func (c *Cache) Holidays(ctx context.Context, year int) ([]Holiday, error) {
	c.mu.Lock()
	entry, ok := c.entries[year]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.holidays, nil
	}

	fresh, err := c.provider.Holidays(ctx, year)
	if err != nil {
		if ok {
			log.Printf("[WARN] holiday refresh for %d failed, serving stale data: %v", year, err)
			return entry.holidays, nil
		}
		return nil, err
	}

	c.store(year, fresh)
	return fresh, nil
}

// Warm refreshes the year unconditionally, for scheduled refreshes.
func (c *Cache) Warm(ctx context.Context, year int) error {
	fresh, err := c.provider.Holidays(ctx, year)
	if err != nil {
		return err
	}
	c.store(year, fresh)
	return nil
}

func (c *Cache) store(year int, holidays []Holiday) {
	c.mu.Lock()
	c.entries[year] = cacheEntry{holidays: holidays, fetchedAt: c.now()}
	c.mu.Unlock()
}
