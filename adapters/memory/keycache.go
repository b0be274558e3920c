package memory

import (
	"context"
	"sync"
	"time"

	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

// KeyCache is an in-memory implementation of ports.KeyCache. Entries do
// not expire; tests assert on the recorded TTLs instead.
type KeyCache struct {
	mu       sync.RWMutex
	positive map[string]keymeta.Key
	negative map[string]time.Duration

	// SetTTLs records the TTL passed to each Set, in call order.
	SetTTLs []time.Duration

	// Err, when set, is returned by every operation.
	Err error
}

// NewKeyCache creates a new in-memory key cache.
func NewKeyCache() *KeyCache {
	return &KeyCache{
		positive: make(map[string]keymeta.Key),
		negative: make(map[string]time.Duration),
	}
}

// Get retrieves cached key metadata.
func (c *KeyCache) Get(ctx context.Context, rawKey string) (keymeta.Key, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Err != nil {
		return keymeta.Key{}, false, c.Err
	}
	k, ok := c.positive[rawKey]
	return k, ok, nil
}

// Set caches key metadata.
func (c *KeyCache) Set(ctx context.Context, k keymeta.Key, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}
	c.positive[k.Key] = k
	c.SetTTLs = append(c.SetTTLs, ttl)
	return nil
}

// MarkInvalid records a negative entry for a key.
func (c *KeyCache) MarkInvalid(ctx context.Context, rawKey string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}
	c.negative[rawKey] = ttl
	return nil
}

// IsInvalid reports whether a negative entry exists for the key.
func (c *KeyCache) IsInvalid(ctx context.Context, rawKey string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Err != nil {
		return false, c.Err
	}
	_, ok := c.negative[rawKey]
	return ok, nil
}

// NegativeTTL returns the TTL recorded for a negative entry.
func (c *KeyCache) NegativeTTL(rawKey string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ttl, ok := c.negative[rawKey]
	return ttl, ok
}

var _ ports.KeyCache = (*KeyCache)(nil)
