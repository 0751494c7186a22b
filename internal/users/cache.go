// Package users resolves user ids to display names with TTL memoization.
package users

import (
	"context"
	"sync"
	"time"

	"chatmirror/internal/model"
)

// Lookup fetches user info from the remote directory.
type Lookup func(ctx context.Context, id string) (*model.UserInfo, error)

type entry struct {
	name      string
	fetchedAt time.Time
	// permanent entries never expire; set when the remote lookup failed
	// and the raw id was cached to stop repeated lookups for it.
	permanent bool
}

// Cache memoizes user lookups for a fixed time-to-live. A failed lookup
// caches the raw id permanently so one unknown user cannot trigger a
// lookup per message across a large batch.
type Cache struct {
	mu      sync.Mutex
	lookup  Lookup
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// New creates a Cache using lookup with the given time-to-live.
func New(lookup Lookup, ttl time.Duration) *Cache {
	return &Cache{
		lookup:  lookup,
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Resolve returns the display name for id. It never fails: when the
// remote lookup errors the id itself becomes the name.
func (c *Cache) Resolve(ctx context.Context, id string) string {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		if e.permanent || c.now().Sub(e.fetchedAt) < c.ttl {
			c.mu.Unlock()
			return e.name
		}
	}
	c.mu.Unlock()

	info, err := c.lookup(ctx, id)
	if err != nil {
		c.store(id, entry{name: id, permanent: true})
		return id
	}

	name := info.Label()
	c.store(id, entry{name: name, fetchedAt: c.now()})
	return name
}

// Peek returns the cached name for id without triggering a lookup.
func (c *Cache) Peek(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || (!e.permanent && c.now().Sub(e.fetchedAt) >= c.ttl) {
		return "", false
	}
	return e.name, true
}

// Invalidate drops all cached entries. Called whenever the upstream
// credential changes, since a new workspace means new identities.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

func (c *Cache) store(id string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = e
}
