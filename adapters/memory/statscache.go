package memory

import (
	"context"
	"sync"
	"time"

	"github.com/metergate/metergate/domain/analytics"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// AppliedEvent records one StatsCache.Apply call.
type AppliedEvent struct {
	Event   event.CallEvent
	HourKey string
	HourTTL time.Duration
}

// StatsCache is a recording in-memory implementation of ports.StatsCache.
type StatsCache struct {
	mu        sync.Mutex
	snapshots map[string]bool

	// Hydrated records every Hydrate call in order.
	Hydrated []analytics.Record

	// Applied records every Apply call in order.
	Applied []AppliedEvent

	// Err, when set, is returned by every operation.
	Err error
}

// NewStatsCache creates a new in-memory stats cache.
func NewStatsCache() *StatsCache {
	return &StatsCache{snapshots: make(map[string]bool)}
}

// Seed marks an API as already holding cache-resident stats.
func (c *StatsCache) Seed(apiID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[apiID] = true
}

// HasSnapshot reports whether the API already has cache-resident stats.
func (c *StatsCache) HasSnapshot(ctx context.Context, apiID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return false, c.Err
	}
	return c.snapshots[apiID], nil
}

// Hydrate seeds the cache from a persistent analytics record.
func (c *StatsCache) Hydrate(ctx context.Context, rec analytics.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}
	c.snapshots[rec.APIID] = true
	c.Hydrated = append(c.Hydrated, rec)
	return nil
}

// Apply folds one event into the counters.
func (c *StatsCache) Apply(ctx context.Context, e event.CallEvent, hourKey string, hourTTL time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}
	c.snapshots[e.APIID] = true
	c.Applied = append(c.Applied, AppliedEvent{Event: e, HourKey: hourKey, HourTTL: hourTTL})
	return nil
}

var _ ports.StatsCache = (*StatsCache)(nil)
