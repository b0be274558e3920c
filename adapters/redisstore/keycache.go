package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

// Key layout shared with the original deployment.
const (
	keyCachePrefix   = "apiKey:"
	invalidKeyPrefix = "invalidApiKey:"
)

// KeyCache implements ports.KeyCache on Redis.
type KeyCache struct {
	rdb *redis.Client
}

// NewKeyCache creates a Redis-backed key metadata cache.
func NewKeyCache(rdb *redis.Client) *KeyCache {
	return &KeyCache{rdb: rdb}
}

// Get retrieves cached key metadata.
func (c *KeyCache) Get(ctx context.Context, rawKey string) (keymeta.Key, bool, error) {
	data, err := c.rdb.Get(ctx, keyCachePrefix+rawKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return keymeta.Key{}, false, nil
	}
	if err != nil {
		return keymeta.Key{}, false, err
	}

	var k keymeta.Key
	if err := json.Unmarshal(data, &k); err != nil {
		// Corrupt entry: treat as a miss so the registry repopulates it.
		return keymeta.Key{}, false, nil
	}
	return k, true, nil
}

// Set caches key metadata with the given TTL.
func (c *KeyCache) Set(ctx context.Context, k keymeta.Key, ttl time.Duration) error {
	data, err := json.Marshal(k)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyCachePrefix+k.Key, data, ttl).Err()
}

// MarkInvalid records a negative entry for a key.
func (c *KeyCache) MarkInvalid(ctx context.Context, rawKey string, ttl time.Duration) error {
	return c.rdb.Set(ctx, invalidKeyPrefix+rawKey, "true", ttl).Err()
}

// IsInvalid reports whether a negative entry exists for the key.
func (c *KeyCache) IsInvalid(ctx context.Context, rawKey string) (bool, error) {
	n, err := c.rdb.Exists(ctx, invalidKeyPrefix+rawKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ ports.KeyCache = (*KeyCache)(nil)
