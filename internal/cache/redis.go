package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackmichael/crossfeed/internal/domain"
)

// KeyPrefixParent is the prefix for cached reply parents.
const KeyPrefixParent = "crossfeed:parent:"

// ParentKey returns the Redis key for the parent cached under key, e.g.
// "crossfeed:parent:mastodon:109876".
func ParentKey(key domain.NativePostKey) string {
	return KeyPrefixParent + key.String()
}

// RedisParentCache is a domain.ParentCache shared across restarts and
// replicas. Entries expire after the configured TTL.
type RedisParentCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ domain.ParentCache = (*RedisParentCache)(nil)

// NewRedisParentCache returns a cache storing entries for ttl. A ttl of zero
// keeps entries until Clear.
func NewRedisParentCache(client redis.UniversalClient, ttl time.Duration) *RedisParentCache {
	return &RedisParentCache{client: client, ttl: ttl}
}

// Get returns (nil, nil) on a miss.
func (c *RedisParentCache) Get(ctx context.Context, key domain.NativePostKey) (*domain.Post, error) {
	raw, err := c.client.Get(ctx, ParentKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached parent: %w", err)
	}

	var post domain.Post
	if err := json.Unmarshal(raw, &post); err != nil {
		return nil, fmt.Errorf("failed to decode cached parent: %w", err)
	}
	return &post, nil
}

func (c *RedisParentCache) Put(ctx context.Context, key domain.NativePostKey, post *domain.Post) error {
	if post == nil {
		return nil
	}
	raw, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to encode parent: %w", err)
	}
	if err := c.client.Set(ctx, ParentKey(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache parent: %w", err)
	}
	return nil
}

// Clear removes every cached parent.
func (c *RedisParentCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, KeyPrefixParent+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cached parent: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to clear parent cache: %w", err)
	}
	return nil
}
