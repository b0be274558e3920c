package stream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// RealtimeGroup is the consumer group owning the cache-resident counters.
const RealtimeGroup = "analytics-group"

// Realtime maintains the cache-resident live and hourly counters. On
// the first event ever seen for an API it hydrates the cache from the
// persistent record, so restarts never zero the live view.
type Realtime struct {
	cache     ports.StatsCache
	store     ports.AnalyticsStore
	clock     ports.Clock
	log       zerolog.Logger
	hourlyTTL time.Duration
}

// NewRealtime creates the realtime counters handler.
func NewRealtime(cache ports.StatsCache, store ports.AnalyticsStore, clock ports.Clock, logger zerolog.Logger, hourlyTTL time.Duration) *Realtime {
	if hourlyTTL <= 0 {
		hourlyTTL = time.Hour
	}
	return &Realtime{
		cache:     cache,
		store:     store,
		clock:     clock,
		log:       logger,
		hourlyTTL: hourlyTTL,
	}
}

// Group implements Handler.
func (r *Realtime) Group() string { return RealtimeGroup }

// Handle hydrates the API's counters if needed, then folds the event in.
func (r *Realtime) Handle(ctx context.Context, e event.CallEvent) error {
	has, err := r.cache.HasSnapshot(ctx, e.APIID)
	if err != nil {
		return err
	}
	if !has {
		if err := r.hydrate(ctx, e.APIID); err != nil {
			return err
		}
	}

	return r.cache.Apply(ctx, e, event.HourKey(r.clock.Now()), r.hourlyTTL)
}

func (r *Realtime) hydrate(ctx context.Context, apiID string) error {
	rec, err := r.store.Get(ctx, apiID)
	if errors.Is(err, ports.ErrNotFound) {
		// Genuinely new API: nothing to seed from.
		return nil
	}
	if err != nil {
		return err
	}
	r.log.Info().Str("apiId", apiID).Int64("totalCalls", rec.TotalCalls).Msg("hydrating realtime counters")
	return r.cache.Hydrate(ctx, rec)
}

var _ Handler = (*Realtime)(nil)
