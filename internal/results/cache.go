// Package results tracks each owner's recent successful generations so
// remix requests can reference them.
package results

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// recentLimit bounds the per-owner ring of remembered generations.
const recentLimit = 10

// Cache records recent generation ids per owner, newest first.
type Cache interface {
	// RecordRecent remembers a completed generation for an owner.
	RecordRecent(ctx context.Context, ownerID int64, generationID string) error

	// Recent returns an owner's remembered generation ids, newest first.
	Recent(ctx context.Context, ownerID int64) ([]string, error)
}

// RedisCache implements Cache on a Redis list per owner.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Cache backed by Redis. Entries expire after
// ttl of owner inactivity; zero means no expiry.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

var _ Cache = (*RedisCache)(nil)

func recentKey(ownerID int64) string {
	return fmt.Sprintf("recent_videos:%d", ownerID)
}

// RecordRecent pushes the generation onto the owner's ring and trims it.
func (c *RedisCache) RecordRecent(ctx context.Context, ownerID int64, generationID string) error {
	key := recentKey(ownerID)

	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, generationID)
	pipe.LTrim(ctx, key, 0, recentLimit-1)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record recent generation: %w", err)
	}
	return nil
}

// Recent returns the owner's remembered generation ids, newest first.
func (c *RedisCache) Recent(ctx context.Context, ownerID int64) ([]string, error) {
	ids, err := c.client.LRange(ctx, recentKey(ownerID), 0, recentLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent generations: %w", err)
	}
	return ids, nil
}
