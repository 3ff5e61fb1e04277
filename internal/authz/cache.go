package authz

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/tableside/internal/clock"
)

type cacheKey struct {
	userID     string
	locationID string
}

type cacheEntry struct {
	access  Access
	expires time.Time
}

// Cache memoizes an Oracle for ttl. Concurrent misses for the same key
// share one lookup. Errors are never cached.
//
// Thread-safety: Cache is safe for concurrent use.
type Cache struct {
	next  Oracle
	ttl   time.Duration
	clock clock.Clock

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	group   singleflight.Group
}

// NewCache wraps next. A non-positive ttl disables caching.
func NewCache(next Oracle, ttl time.Duration, c clock.Clock) *Cache {
	return &Cache{
		next:    next,
		ttl:     ttl,
		clock:   c,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Access implements Oracle.
func (c *Cache) Access(ctx context.Context, userID, locationID string) (Access, error) {
	if c.ttl <= 0 {
		return c.next.Access(ctx, userID, locationID)
	}

	key := cacheKey{userID: userID, locationID: locationID}
	now := c.clock.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.access, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(userID+"\x00"+locationID, func() (any, error) {
		a, err := c.next.Access(ctx, userID, locationID)
		if err != nil {
			return Access{}, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{access: a, expires: c.clock.Now().Add(c.ttl)}
		c.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return Access{}, err
	}
	return v.(Access), nil
}

// Invalidate drops every cached entry for userID.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.userID == userID {
			delete(c.entries, k)
		}
	}
}

// Reset drops every cached entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}
