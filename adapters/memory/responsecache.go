package memory

import (
	"context"
	"sync"
	"time"

	"github.com/metergate/metergate/ports"
)

// ResponseCache is an in-memory implementation of ports.ResponseCache.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string][]byte

	// SetTTLs records the TTL passed to each Set, keyed by cache key.
	SetTTLs map[string]time.Duration

	// Err, when set, is returned by every operation.
	Err error
}

// NewResponseCache creates a new in-memory response cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		entries: make(map[string][]byte),
		SetTTLs: make(map[string]time.Duration),
	}
}

// Get probes the cache.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Err != nil {
		return nil, false, c.Err
	}
	body, ok := c.entries[key]
	return body, ok, nil
}

// Set stores a response body.
func (c *ResponseCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}
	c.entries[key] = body
	c.SetTTLs[key] = ttl
	return nil
}

var _ ports.ResponseCache = (*ResponseCache)(nil)
