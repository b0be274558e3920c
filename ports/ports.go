// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/metergate/metergate/domain/analytics"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/domain/keymeta"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Key Registry & Caches
// -----------------------------------------------------------------------------

// KeyRegistry is the persistent API-key record store. From the gateway's
// perspective it is read-only apart from the increment-only usage write-back.
type KeyRegistry interface {
	// Lookup resolves a raw key string to its record. Returns ErrNotFound
	// for unknown keys.
	Lookup(ctx context.Context, rawKey string) (keymeta.Key, error)

	// IncrementUsage adds one to the key's lifetime usage count.
	IncrementUsage(ctx context.Context, rawKey string) error

	// Create stores a new key record (seeding / CLI use).
	Create(ctx context.Context, k keymeta.Key) error

	// List returns all key records.
	List(ctx context.Context) ([]keymeta.Key, error)

	// DeleteExhausted removes keys that are expired or over their lifetime
	// limit. Returns the number of rows removed.
	DeleteExhausted(ctx context.Context, now time.Time) (int64, error)
}

// KeyCache is the short-lived cache in front of the registry: a positive
// entry holds resolved key metadata, a negative entry marks a known-invalid
// key so repeated abuse never reaches the registry.
type KeyCache interface {
	// Get retrieves cached key metadata. found=false on a cache miss.
	Get(ctx context.Context, rawKey string) (k keymeta.Key, found bool, err error)

	// Set caches key metadata with the given TTL.
	Set(ctx context.Context, k keymeta.Key, ttl time.Duration) error

	// MarkInvalid records a negative entry for a key with the given TTL.
	MarkInvalid(ctx context.Context, rawKey string, ttl time.Duration) error

	// IsInvalid reports whether a negative entry exists for the key.
	IsInvalid(ctx context.Context, rawKey string) (bool, error)
}

// UsageCounters is the cache-resident quota counter pair per key: a
// lifetime total and a per-calendar-hour bucket. Increments must be atomic
// under concurrency.
type UsageCounters interface {
	// Current reads both counters for a key. Absent counters read as zero.
	Current(ctx context.Context, rawKey, hourKey string) (keymeta.Usage, error)

	// Increment atomically increments both counters. The hourly bucket's
	// TTL is armed only when this increment creates the bucket.
	Increment(ctx context.Context, rawKey, hourKey string, hourTTL time.Duration) error
}

// -----------------------------------------------------------------------------
// Response Cache
// -----------------------------------------------------------------------------

// ResponseCache stores verbatim successful upstream response bodies keyed
// by the request signature.
type ResponseCache interface {
	// Get probes the cache. found=false on a miss.
	Get(ctx context.Context, key string) (body []byte, found bool, err error)

	// Set stores a response body with the given TTL.
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// -----------------------------------------------------------------------------
// Event Log
// -----------------------------------------------------------------------------

// StreamMessage is one delivered log entry with its log position ID.
type StreamMessage struct {
	ID    string
	Event event.CallEvent
}

// EventStream is the durable ordered log of call events. Consumer groups
// read independently, each from its own committed position.
type EventStream interface {
	// Append publishes one event to the log.
	Append(ctx context.Context, e event.CallEvent) error

	// Read delivers up to batch undelivered messages for the group,
	// blocking up to block when the log is empty. An empty poll returns an
	// empty slice and nil error.
	Read(ctx context.Context, group, consumer string, batch int64, block time.Duration) ([]StreamMessage, error)

	// Ack commits the given message IDs for the group.
	Ack(ctx context.Context, group string, ids ...string) error
}

// EventPublisher accepts call events for at-least-once async publication.
type EventPublisher interface {
	// Publish queues an event. Never blocks the caller; on a saturated
	// queue or exhausted retries the event is logged and dropped.
	Publish(e event.CallEvent)

	// Close drains outstanding events and stops the publisher.
	Close() error
}

// -----------------------------------------------------------------------------
// Analytics Stores
// -----------------------------------------------------------------------------

// AnalyticsStore owns the persistent per-(apiID, clientID) analytics
// record. ApplyEvent must be atomic: the fold (including the incremental
// mean against the post-increment count) happens inside one transaction.
type AnalyticsStore interface {
	// ApplyEvent upserts the record for the event's pair and folds the
	// event into it, returning the updated record.
	ApplyEvent(ctx context.Context, e event.CallEvent) (analytics.Record, error)

	// Get returns the record for an API. Returns ErrNotFound when no
	// events have been recorded for it.
	Get(ctx context.Context, apiID string) (analytics.Record, error)

	// ListByClient returns every record belonging to a client.
	ListByClient(ctx context.Context, clientID string) ([]analytics.Record, error)
}

// StatsCache maintains the cache-resident live and hourly windowed
// counters derived from the event log.
type StatsCache interface {
	// HasSnapshot reports whether the API already has cache-resident stats.
	HasSnapshot(ctx context.Context, apiID string) (bool, error)

	// Hydrate seeds the cache from a persistent analytics record,
	// including its frequency maps.
	Hydrate(ctx context.Context, rec analytics.Record) error

	// Apply folds one event into the live and hourly counters. Hourly keys
	// get hourTTL armed only on the write that creates them.
	Apply(ctx context.Context, e event.CallEvent, hourKey string, hourTTL time.Duration) error
}

// BurstCounter tracks failures per API inside a rolling window.
type BurstCounter interface {
	// Increment adds one failure and returns the new count. The window TTL
	// is armed only when this increment creates the counter.
	Increment(ctx context.Context, apiID string, window time.Duration) (int64, error)

	// Reset clears the counter after an alert fires.
	Reset(ctx context.Context, apiID string) error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// UpstreamResult is the outcome of one proxied call.
type UpstreamResult struct {
	Status    int
	Body      []byte
	LatencyMs int64
}

// Upstream issues the proxied HTTP call to the third-party API.
type Upstream interface {
	// Call performs the request with the key as bearer credential. A
	// transport-level failure returns a non-nil error; any received HTTP
	// response (including 4xx/5xx) returns a result and nil error.
	Call(ctx context.Context, method, rawURL, apiKey string) (UpstreamResult, error)
}

// AlertSender delivers anomaly notifications.
type AlertSender interface {
	Send(ctx context.Context, to, subject, body string) error
}
