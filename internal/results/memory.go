package results

import (
	"context"
	"sync"
)

// MemoryCache is an in-memory Cache for tests and single-process runs.
type MemoryCache struct {
	mu     sync.Mutex
	recent map[int64][]string
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{recent: make(map[int64][]string)}
}

var _ Cache = (*MemoryCache)(nil)

// RecordRecent remembers a completed generation for an owner.
func (c *MemoryCache) RecordRecent(_ context.Context, ownerID int64, generationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ring := append([]string{generationID}, c.recent[ownerID]...)
	if len(ring) > recentLimit {
		ring = ring[:recentLimit]
	}
	c.recent[ownerID] = ring
	return nil
}

// Recent returns an owner's remembered generation ids, newest first.
func (c *MemoryCache) Recent(_ context.Context, ownerID int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ring := c.recent[ownerID]
	out := make([]string, len(ring))
	copy(out, ring)
	return out, nil
}
