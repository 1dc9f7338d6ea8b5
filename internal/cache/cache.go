// Package cache is a TTL-keyed store for search results. Entries older
// than the TTL are logically absent even while still physically stored; a
// background sweeper reclaims them, but readers never depend on sweep
// timing.
package cache

import (
	"strings"
	"sync"
	"time"

	"orderscout/internal/extract"
	"orderscout/internal/logging"
)

const (
	// DefaultTTL matches how long marketplace search results stay fresh
	// enough to reuse.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval is how often the sweeper reclaims expired
	// entries.
	DefaultSweepInterval = time.Minute
)

type entry struct {
	results    []extract.Order
	insertedAt time.Time
}

// Cache caches search results per normalized keyword.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	stop chan struct{}
	done chan struct{}
}

// Option tweaks cache construction. Used by tests to inject a clock.
type Option func(*Cache)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a cache and starts its sweeper. Call Close to stop it.
func New(ttl, sweepInterval time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweep(sweepInterval)
	return c
}

// Get returns the cached results for keyword, or ok=false on a miss.
// Expired-but-not-yet-swept entries count as misses and are dropped.
func (c *Cache) Get(keyword string) ([]extract.Order, bool) {
	key := normalizeKey(keyword)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.expired(e) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have
		// refreshed the entry.
		if cur, ok := c.entries[key]; ok && c.expired(cur) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		logging.Cache("expired entry dropped on read: %q", key)
		return nil, false
	}
	return e.results, true
}

// Put stores results under the normalized keyword.
func (c *Cache) Put(keyword string, results []extract.Order) {
	key := normalizeKey(keyword)
	c.mu.Lock()
	c.entries[key] = entry{results: results, insertedAt: c.now()}
	c.mu.Unlock()
	logging.Cache("cached %d orders for %q", len(results), key)
}

// Invalidate drops the entry for keyword, if any.
func (c *Cache) Invalidate(keyword string) {
	key := normalizeKey(keyword)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	logging.Cache("cleared %d entries", n)
}

// Size reports the number of physically stored entries, expired included.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweeper and waits for it to exit.
func (c *Cache) Close() {
	close(c.stop)
	<-c.done
}

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

func (c *Cache) sweep(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			removed := 0
			for key, e := range c.entries {
				if c.expired(e) {
					delete(c.entries, key)
					removed++
				}
			}
			c.mu.Unlock()
			if removed > 0 {
				logging.Cache("sweeper removed %d expired entries", removed)
			}
		}
	}
}

func normalizeKey(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}
