package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metergate/metergate/ports"
)

// BurstCounter counts failures per API inside a rolling detection
// window. The window TTL is armed by the first increment; the key
// namespace is separate from the analytics failure counters so resets
// never disturb reporting.
type BurstCounter struct {
	rdb *redis.Client
}

func NewBurstCounter(rdb *redis.Client) *BurstCounter {
	return &BurstCounter{rdb: rdb}
}

func burstKey(apiID string) string { return "api:failureBurst:" + apiID }

// Increment bumps the failure count and returns the new value. The
// first increment in a window arms the window expiry.
func (c *BurstCounter) Increment(ctx context.Context, apiID string, window time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, burstKey(apiID)).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, burstKey(apiID), window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Reset clears the counter after an alert fires.
func (c *BurstCounter) Reset(ctx context.Context, apiID string) error {
	return c.rdb.Del(ctx, burstKey(apiID)).Err()
}

var _ ports.BurstCounter = (*BurstCounter)(nil)
