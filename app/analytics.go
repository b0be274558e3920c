package app

import (
	"context"

	"github.com/metergate/metergate/domain/analytics"
	"github.com/metergate/metergate/ports"
)

// AnalyticsService serves read queries over the persistent analytics
// records.
type AnalyticsService struct {
	store ports.AnalyticsStore
}

// NewAnalyticsService creates a new analytics query service.
func NewAnalyticsService(store ports.AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

// APIStats returns the record for one API. Returns ports.ErrNotFound
// when no events have been recorded for it.
func (s *AnalyticsService) APIStats(ctx context.Context, apiID string) (analytics.Record, error) {
	return s.store.Get(ctx, apiID)
}

// ClientStats rolls up every record belonging to a client into one
// aggregate view. Returns ports.ErrNotFound for an unknown client.
func (s *AnalyticsService) ClientStats(ctx context.Context, clientID string) (analytics.ClientRollup, error) {
	records, err := s.store.ListByClient(ctx, clientID)
	if err != nil {
		return analytics.ClientRollup{}, err
	}
	rollup, ok := analytics.Rollup(clientID, records)
	if !ok {
		return analytics.ClientRollup{}, ports.ErrNotFound
	}
	return rollup, nil
}
