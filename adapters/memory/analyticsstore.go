package memory

import (
	"context"
	"sync"

	"github.com/metergate/metergate/domain/analytics"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// AnalyticsStore is an in-memory implementation of ports.AnalyticsStore.
type AnalyticsStore struct {
	mu      sync.Mutex
	records map[[2]string]analytics.Record // by (apiID, clientID)
	clock   ports.Clock

	// Err, when set, is returned by ApplyEvent.
	Err error
}

// NewAnalyticsStore creates a new in-memory analytics store.
func NewAnalyticsStore(clock ports.Clock) *AnalyticsStore {
	return &AnalyticsStore{
		records: make(map[[2]string]analytics.Record),
		clock:   clock,
	}
}

// ApplyEvent folds one event into the record for its pair.
func (s *AnalyticsStore) ApplyEvent(ctx context.Context, e event.CallEvent) (analytics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return analytics.Record{}, s.Err
	}
	key := [2]string{e.APIID, e.ClientID}
	rec, ok := s.records[key]
	if !ok {
		rec = analytics.NewRecord(e.APIID, e.ClientID)
	}
	rec = rec.Apply(e, s.clock.Now())
	s.records[key] = rec
	return rec, nil
}

// Get returns the merged record for an API.
func (s *AnalyticsStore) Get(ctx context.Context, apiID string) (analytics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []analytics.Record
	for key, rec := range s.records {
		if key[0] == apiID {
			matched = append(matched, rec)
		}
	}
	if len(matched) == 0 {
		return analytics.Record{}, ports.ErrNotFound
	}
	if len(matched) == 1 {
		return matched[0], nil
	}
	return analytics.Merge(apiID, matched), nil
}

// ListByClient returns every record belonging to a client.
func (s *AnalyticsStore) ListByClient(ctx context.Context, clientID string) ([]analytics.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []analytics.Record
	for key, rec := range s.records {
		if key[1] == clientID {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ ports.AnalyticsStore = (*AnalyticsStore)(nil)
