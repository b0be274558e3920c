package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metergate/metergate/ports"
)

// ResponseCache implements ports.ResponseCache on Redis.
type ResponseCache struct {
	rdb *redis.Client
}

// NewResponseCache creates a Redis-backed response cache.
func NewResponseCache(rdb *redis.Client) *ResponseCache {
	return &ResponseCache{rdb: rdb}
}

// Get probes the cache for a request signature.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Set stores a verbatim response body with the given TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, body, ttl).Err()
}

var _ ports.ResponseCache = (*ResponseCache)(nil)
