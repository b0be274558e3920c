package stream

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// AggregatorGroup is the consumer group owning the persistent records.
const AggregatorGroup = "logger-group"

// Aggregator folds call events into the persistent per-(api, client)
// analytics records.
type Aggregator struct {
	store ports.AnalyticsStore
	log   zerolog.Logger
}

// NewAggregator creates the aggregation handler.
func NewAggregator(store ports.AnalyticsStore, logger zerolog.Logger) *Aggregator {
	return &Aggregator{store: store, log: logger}
}

// Group implements Handler.
func (a *Aggregator) Group() string { return AggregatorGroup }

// Handle folds one event into its record.
func (a *Aggregator) Handle(ctx context.Context, e event.CallEvent) error {
	rec, err := a.store.ApplyEvent(ctx, e)
	if err != nil {
		return err
	}
	a.log.Debug().
		Str("apiId", rec.APIID).
		Str("clientId", rec.ClientID).
		Int64("totalCalls", rec.TotalCalls).
		Msg("analytics record updated")
	return nil
}

var _ Handler = (*Aggregator)(nil)
