package engine

import (
	"context"
	"sync"
	"time"
)

// DefaultAuthTTL is how long a probe result stays fresh. Login state only
// changes when a human runs the engine's login command, so five minutes of
// staleness is acceptable and saves a subprocess per step.
const DefaultAuthTTL = 5 * time.Minute

// Cache memoizes per-engine authentication probes. It is process-wide:
// every session and selector shares one instance so an engine is probed at
// most once per TTL window no matter how many steps run.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// cacheEntry holds the probe state for one engine id. Its own mutex
// serializes probes: concurrent callers for the same engine wait for the
// in-flight probe instead of stacking up subprocesses.
type cacheEntry struct {
	mu            sync.Mutex
	authenticated bool
	checkedAt     time.Time
}

// NewCache creates an auth cache. A non-positive ttl means DefaultAuthTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultAuthTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
	}
}

// IsAuthenticated returns the cached result for engineID when it is fresher
// than the TTL, otherwise runs probe once and caches its result. Probes for
// different engines run independently; probes for the same engine are
// serialized.
func (c *Cache) IsAuthenticated(ctx context.Context, engineID string, probe func(ctx context.Context) bool) bool {
	c.mu.Lock()
	entry, ok := c.entries[engineID]
	if !ok {
		entry = &cacheEntry{}
		c.entries[engineID] = entry
	}
	c.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.checkedAt.IsZero() && time.Since(entry.checkedAt) < c.ttl {
		return entry.authenticated
	}

	entry.authenticated = probe(ctx)
	entry.checkedAt = time.Now()
	return entry.authenticated
}

// Invalidate drops the cached result for engineID, forcing the next check
// to probe again. Used after auth-flavored engine failures.
func (c *Cache) Invalidate(engineID string) {
	c.mu.Lock()
	delete(c.entries, engineID)
	c.mu.Unlock()
}

// Clear drops all cached results.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}
