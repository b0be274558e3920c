package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

// UsageCounters implements ports.UsageCounters on Redis INCR.
type UsageCounters struct {
	rdb *redis.Client
}

// NewUsageCounters creates Redis-backed quota counters.
func NewUsageCounters(rdb *redis.Client) *UsageCounters {
	return &UsageCounters{rdb: rdb}
}

func totalUsageKey(rawKey string) string {
	return "usage:" + rawKey + ":total"
}

func hourlyUsageKey(rawKey, hourKey string) string {
	return "usage:" + rawKey + ":hourly:" + hourKey
}

// Current reads both counters for a key; absent counters read as zero.
func (c *UsageCounters) Current(ctx context.Context, rawKey, hourKey string) (keymeta.Usage, error) {
	pipe := c.rdb.Pipeline()
	totalCmd := pipe.Get(ctx, totalUsageKey(rawKey))
	hourlyCmd := pipe.Get(ctx, hourlyUsageKey(rawKey, hourKey))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return keymeta.Usage{}, err
	}

	var u keymeta.Usage
	if n, err := totalCmd.Int64(); err == nil {
		u.Total = n
	}
	if n, err := hourlyCmd.Int64(); err == nil {
		u.Hourly = n
	}
	return u, nil
}

// Increment atomically increments both counters. The hourly bucket's TTL
// is armed only when the INCR that creates it returns 1.
func (c *UsageCounters) Increment(ctx context.Context, rawKey, hourKey string, hourTTL time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, totalUsageKey(rawKey))
	hourlyCmd := pipe.Incr(ctx, hourlyUsageKey(rawKey, hourKey))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if hourlyCmd.Val() == 1 {
		return c.rdb.Expire(ctx, hourlyUsageKey(rawKey, hourKey), hourTTL).Err()
	}
	return nil
}

var _ ports.UsageCounters = (*UsageCounters)(nil)
