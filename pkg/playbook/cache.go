// Package playbook fetches the negotiation-guidance document the composer
// folds into its prompts. Content is cached with a TTL so every inbound email
// does not cost an HTTP round trip.
package playbook

import (
	"sync"
	"time"
)

// docCache holds the single guidance document with a fetch timestamp for TTL
// expiration. Expiry is checked on read; there is no background goroutine.
type docCache struct {
	mu        sync.RWMutex
	content   string
	fetchedAt time.Time
	ttl       time.Duration
}

func newDocCache(ttl time.Duration) *docCache {
	return &docCache{ttl: ttl}
}

// get returns the cached document if present and not expired.
func (c *docCache) get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fetchedAt.IsZero() || time.Since(c.fetchedAt) > c.ttl {
		return "", false
	}
	return c.content, true
}

// set stores the document with the current timestamp.
func (c *docCache) set(content string) {
	c.mu.Lock()
	c.content = content
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}
