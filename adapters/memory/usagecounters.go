package memory

import (
	"context"
	"sync"
	"time"

	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

// UsageCounters is an in-memory implementation of ports.UsageCounters.
// It tracks how many times each hourly bucket had its TTL armed so tests
// can assert the arm-once contract.
type UsageCounters struct {
	mu     sync.Mutex
	total  map[string]int64
	hourly map[string]int64 // rawKey + ":" + hourKey

	// TTLArms counts Expire calls per hourly bucket.
	TTLArms map[string]int

	// Err, when set, is returned by every operation.
	Err error
}

// NewUsageCounters creates a new in-memory counter pair.
func NewUsageCounters() *UsageCounters {
	return &UsageCounters{
		total:   make(map[string]int64),
		hourly:  make(map[string]int64),
		TTLArms: make(map[string]int),
	}
}

// Current reads both counters for a key.
func (c *UsageCounters) Current(ctx context.Context, rawKey, hourKey string) (keymeta.Usage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return keymeta.Usage{}, c.Err
	}
	return keymeta.Usage{
		Total:  c.total[rawKey],
		Hourly: c.hourly[rawKey+":"+hourKey],
	}, nil
}

// Increment atomically increments both counters.
func (c *UsageCounters) Increment(ctx context.Context, rawKey, hourKey string, hourTTL time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}
	c.total[rawKey]++
	bucket := rawKey + ":" + hourKey
	c.hourly[bucket]++
	if c.hourly[bucket] == 1 {
		c.TTLArms[bucket]++
	}
	return nil
}

var _ ports.UsageCounters = (*UsageCounters)(nil)
