// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

// KeyRegistry is an in-memory implementation of ports.KeyRegistry.
type KeyRegistry struct {
	mu   sync.RWMutex
	keys map[string]keymeta.Key // by raw key

	// Err, when set, is returned by every operation.
	Err error
}

// NewKeyRegistry creates a new in-memory key registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{
		keys: make(map[string]keymeta.Key),
	}
}

// Lookup resolves a raw key string to its record.
func (s *KeyRegistry) Lookup(ctx context.Context, rawKey string) (keymeta.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Err != nil {
		return keymeta.Key{}, s.Err
	}
	k, ok := s.keys[rawKey]
	if !ok {
		return keymeta.Key{}, ports.ErrNotFound
	}
	return k, nil
}

// IncrementUsage adds one to the key's lifetime usage count.
func (s *KeyRegistry) IncrementUsage(ctx context.Context, rawKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	k, ok := s.keys[rawKey]
	if !ok {
		return ports.ErrNotFound
	}
	k.UsageTotalCount++
	s.keys[rawKey] = k
	return nil
}

// Create stores a new key record.
func (s *KeyRegistry) Create(ctx context.Context, k keymeta.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	s.keys[k.Key] = k
	return nil
}

// List returns all key records.
func (s *KeyRegistry) List(ctx context.Context) ([]keymeta.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]keymeta.Key, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	return out, nil
}

// DeleteExhausted removes keys that are expired or over their lifetime limit.
func (s *KeyRegistry) DeleteExhausted(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, s.Err
	}
	var removed int64
	for raw, k := range s.keys {
		expired := k.ExpiresAt != nil && now.After(*k.ExpiresAt)
		exhausted := k.UsageLimit > 0 && k.UsageTotalCount >= k.UsageLimit
		if expired || exhausted {
			delete(s.keys, raw)
			removed++
		}
	}
	return removed, nil
}

var _ ports.KeyRegistry = (*KeyRegistry)(nil)
