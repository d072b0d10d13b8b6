package engine

import (
	"sync"
	"time"

	"github.com/dealerworks/lotsync/internal/feed"
)

// feedCache holds the parsed feed per sync session for a short TTL, so a
// caller paging through one sync does not force a full re-fetch per batch.
// Callers that never echo a session id get the original fetch-every-call
// behavior.
type feedCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	records   []feed.Record
	fetchedAt time.Time
}

func newFeedCache(ttl time.Duration) *feedCache {
	return &feedCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// get returns the cached parse for a session, if still fresh
func (c *feedCache) get(sessionID string) ([]feed.Record, bool) {
	if c.ttl <= 0 || sessionID == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionID]
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.ttl {
		delete(c.entries, sessionID)
		return nil, false
	}
	return entry.records, true
}

// put stores a parsed feed for a session and prunes stale sessions
func (c *feedCache) put(sessionID string, records []feed.Record) {
	if c.ttl <= 0 || sessionID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.entries {
		if time.Since(entry.fetchedAt) > c.ttl {
			delete(c.entries, id)
		}
	}
	c.entries[sessionID] = cacheEntry{records: records, fetchedAt: time.Now()}
}
