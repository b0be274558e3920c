package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metergate/metergate/domain/analytics"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// StatsCache implements ports.StatsCache: cache-resident live and hourly
// windowed counters per API and client scope.
type StatsCache struct {
	rdb *redis.Client
}

// NewStatsCache creates a Redis-backed windowed stats cache.
func NewStatsCache(rdb *redis.Client) *StatsCache {
	return &StatsCache{rdb: rdb}
}

func statsKey(apiID string) string      { return "api:stats:" + apiID }
func errorTypesKey(apiID string) string { return "api:errorTypes:" + apiID }
func respDistKey(apiID string) string   { return "api:responseTimeDist:" + apiID }
func keysUsedKey(apiID string) string   { return "api:apiKeysUsed:" + apiID }

// HasSnapshot reports whether hydrated stats exist for the API.
func (c *StatsCache) HasSnapshot(ctx context.Context, apiID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, statsKey(apiID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Hydrate seeds the cache from a persistent analytics record so the
// live view is never colder than the database. Distribution buckets are
// stored by lower bound in the record and re-labeled as ranges here.
func (c *StatsCache) Hydrate(ctx context.Context, rec analytics.Record) error {
	pipe := c.rdb.Pipeline()

	pipe.HSet(ctx, statsKey(rec.APIID),
		"totalCalls", rec.TotalCalls,
		"successCount", rec.SuccessCount,
		"failureCount", rec.FailureCount,
		"avgResponseTime", rec.AvgResponseTime,
		"maxResponseTime", rec.MaxResponseTime,
		"minResponseTime", rec.MinResponseTime,
		"cacheHits", rec.CacheHits,
		"mostRecentError", rec.MostRecentError,
	)

	for errType, count := range rec.ErrorTypes {
		pipe.HSet(ctx, errorTypesKey(rec.APIID), errType, count)
	}
	for bucket, count := range rec.ResponseTimeDistribution {
		label := bucket
		if lo, err := strconv.ParseInt(bucket, 10, 64); err == nil {
			label = event.RangeLabel(lo)
		}
		pipe.HSet(ctx, respDistKey(rec.APIID), label, count)
	}
	for apiKey, count := range rec.APIKeysUsed {
		pipe.HSet(ctx, keysUsedKey(rec.APIID), apiKey, count)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Apply folds one event into the live counters and the hourly window.
// Hourly keys get their expiry armed only when created; later writes in
// the same hour never re-arm it.
func (c *StatsCache) Apply(ctx context.Context, e event.CallEvent, hourKey string, hourTTL time.Duration) error {
	e = e.Normalize()

	if err := c.applyLive(ctx, e); err != nil {
		return err
	}
	if err := c.applyHourly(ctx, e, hourKey, hourTTL); err != nil {
		return err
	}
	return c.trackExtremes(ctx, e)
}

func (c *StatsCache) applyLive(ctx context.Context, e event.CallEvent) error {
	pipe := c.rdb.Pipeline()

	pipe.Incr(ctx, "api:count:"+e.APIID)
	pipe.Incr(ctx, "client:count:"+e.ClientID)
	pipe.IncrByFloat(ctx, "api:avg_response:"+e.APIID, float64(e.ResponseTimeMs))

	if e.IsSuccess {
		pipe.Incr(ctx, "api:success:"+e.APIID)
	} else {
		pipe.Incr(ctx, "api:failure:"+e.APIID)
		pipe.HIncrBy(ctx, errorTypesKey(e.APIID), errField(e), 1)
		pipe.HSet(ctx, statsKey(e.APIID), "mostRecentError", errField(e))
	}

	if e.CacheHit {
		pipe.Incr(ctx, "api:cacheHits:"+e.APIID)
	}
	if e.UserID != "" {
		pipe.SAdd(ctx, "api:uniqueUsers:"+e.APIID, e.UserID)
	}

	pipe.HIncrBy(ctx, keysUsedKey(e.APIID), e.APIKey, 1)
	pipe.HIncrBy(ctx, respDistKey(e.APIID), event.RangeLabel(e.ResponseTimeMs), 1)

	_, err := pipe.Exec(ctx)
	return err
}

func (c *StatsCache) applyHourly(ctx context.Context, e event.CallEvent, hourKey string, hourTTL time.Duration) error {
	suffix := ":" + hourKey
	touched := []string{
		"hourly:api:count:" + e.APIID + suffix,
		"hourly:client:count:" + e.ClientID + suffix,
		"hourly:api:avg_response:" + e.APIID + suffix,
		"hourly:api:apiKeysUsed:" + e.APIID + suffix,
	}

	pipe := c.rdb.Pipeline()
	pipe.Incr(ctx, touched[0])
	pipe.Incr(ctx, touched[1])
	pipe.IncrByFloat(ctx, touched[2], float64(e.ResponseTimeMs))
	pipe.HIncrBy(ctx, touched[3], e.APIKey, 1)

	if e.IsSuccess {
		k := "hourly:api:success:" + e.APIID + suffix
		pipe.Incr(ctx, k)
		touched = append(touched, k)
	} else {
		k := "hourly:api:failure:" + e.APIID + suffix
		pipe.Incr(ctx, k)
		touched = append(touched, k)
		h := "hourly:api:errorTypes:" + e.APIID + suffix
		pipe.HIncrBy(ctx, h, errField(e), 1)
		touched = append(touched, h)
	}
	if e.CacheHit {
		k := "hourly:api:cacheHits:" + e.APIID + suffix
		pipe.Incr(ctx, k)
		touched = append(touched, k)
	}
	if e.UserID != "" {
		k := "hourly:api:uniqueUsers:" + e.APIID + suffix
		pipe.SAdd(ctx, k, e.UserID)
		touched = append(touched, k)
	}

	// NX expiry: only the write that creates a key arms its TTL.
	for _, k := range touched {
		pipe.ExpireNX(ctx, k, hourTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// trackExtremes updates max/min via compare-and-set against the cached
// value. Not an atomic primitive: concurrent writers can transiently
// bias the extremum, never corrupt it.
func (c *StatsCache) trackExtremes(ctx context.Context, e event.CallEvent) error {
	rt := e.ResponseTimeMs

	maxKey := "api:max_response:" + e.APIID
	cur, err := c.rdb.Get(ctx, maxKey).Int64()
	if errors.Is(err, redis.Nil) || (err == nil && rt > cur) {
		if err := c.rdb.Set(ctx, maxKey, rt, 0).Err(); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	minKey := "api:min_response:" + e.APIID
	cur, err = c.rdb.Get(ctx, minKey).Int64()
	if errors.Is(err, redis.Nil) || (err == nil && rt < cur) {
		if err := c.rdb.Set(ctx, minKey, rt, 0).Err(); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

func errField(e event.CallEvent) string {
	if e.ErrorType == "" {
		return "None"
	}
	return e.ErrorType
}

var _ ports.StatsCache = (*StatsCache)(nil)
