package memory

import (
	"context"
	"sync"
	"time"

	"github.com/metergate/metergate/ports"
)

// BurstCounter is an in-memory implementation of ports.BurstCounter.
type BurstCounter struct {
	mu     sync.Mutex
	counts map[string]int64

	// Windows records the window passed on the increment that created
	// each counter.
	Windows map[string]time.Duration

	// Resets counts Reset calls per API.
	Resets map[string]int

	// Err, when set, is returned by every operation.
	Err error
}

// NewBurstCounter creates a new in-memory burst counter.
func NewBurstCounter() *BurstCounter {
	return &BurstCounter{
		counts:  make(map[string]int64),
		Windows: make(map[string]time.Duration),
		Resets:  make(map[string]int),
	}
}

// Increment adds one failure and returns the new count.
func (c *BurstCounter) Increment(ctx context.Context, apiID string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return 0, c.Err
	}
	c.counts[apiID]++
	if c.counts[apiID] == 1 {
		c.Windows[apiID] = window
	}
	return c.counts[apiID], nil
}

// Reset clears the counter.
func (c *BurstCounter) Reset(ctx context.Context, apiID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}
	delete(c.counts, apiID)
	c.Resets[apiID]++
	return nil
}

// Count returns the current count for an API.
func (c *BurstCounter) Count(apiID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[apiID]
}

var _ ports.BurstCounter = (*BurstCounter)(nil)
