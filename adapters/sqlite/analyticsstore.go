package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/metergate/metergate/domain/analytics"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// AnalyticsStore implements ports.AnalyticsStore using SQLite.
type AnalyticsStore struct {
	db    *DB
	clock ports.Clock
}

// NewAnalyticsStore creates a new SQLite analytics store.
func NewAnalyticsStore(db *DB, clock ports.Clock) *AnalyticsStore {
	return &AnalyticsStore{db: db, clock: clock}
}

const analyticsColumns = `api_id, client_id, total_calls, success_count, failure_count, cache_hits,
		avg_response_time, min_response_time, max_response_time, most_recent_error,
		error_types, response_time_dist, api_keys_used, updated_at`

// ApplyEvent folds one event into the record for its (api, client) pair
// inside a single transaction. SQLite's writer lock serializes concurrent
// folds, which keeps the incremental mean exact.
func (s *AnalyticsStore) ApplyEvent(ctx context.Context, e event.CallEvent) (analytics.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return analytics.Record{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+analyticsColumns+`
		FROM api_analytics
		WHERE api_id = ? AND client_id = ?
	`, e.APIID, e.ClientID)

	rec, err := scanRecordRow(row)
	if errors.Is(err, ErrNotFound) {
		rec = analytics.NewRecord(e.APIID, e.ClientID)
	} else if err != nil {
		return analytics.Record{}, err
	}

	rec = rec.Apply(e, s.clock.Now())

	errTypes, err := json.Marshal(rec.ErrorTypes)
	if err != nil {
		return analytics.Record{}, err
	}
	dist, err := json.Marshal(rec.ResponseTimeDistribution)
	if err != nil {
		return analytics.Record{}, err
	}
	keysUsed, err := json.Marshal(rec.APIKeysUsed)
	if err != nil {
		return analytics.Record{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO api_analytics (`+analyticsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(api_id, client_id) DO UPDATE SET
			total_calls = excluded.total_calls,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			cache_hits = excluded.cache_hits,
			avg_response_time = excluded.avg_response_time,
			min_response_time = excluded.min_response_time,
			max_response_time = excluded.max_response_time,
			most_recent_error = excluded.most_recent_error,
			error_types = excluded.error_types,
			response_time_dist = excluded.response_time_dist,
			api_keys_used = excluded.api_keys_used,
			updated_at = excluded.updated_at
	`, rec.APIID, rec.ClientID, rec.TotalCalls, rec.SuccessCount, rec.FailureCount, rec.CacheHits,
		rec.AvgResponseTime, rec.MinResponseTime, rec.MaxResponseTime, rec.MostRecentError,
		string(errTypes), string(dist), string(keysUsed), rec.UpdatedAt)
	if err != nil {
		return analytics.Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return analytics.Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Get returns the record for an API. When multiple clients share an API
// the records are merged into one view.
func (s *AnalyticsStore) Get(ctx context.Context, apiID string) (analytics.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analyticsColumns+`
		FROM api_analytics
		WHERE api_id = ?
		ORDER BY updated_at DESC
	`, apiID)
	if err != nil {
		return analytics.Record{}, err
	}
	defer rows.Close()

	var records []analytics.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return analytics.Record{}, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return analytics.Record{}, err
	}
	if len(records) == 0 {
		return analytics.Record{}, ErrNotFound
	}
	if len(records) == 1 {
		return records[0], nil
	}
	return analytics.Merge(apiID, records), nil
}

// ListByClient returns every record belonging to a client.
func (s *AnalyticsStore) ListByClient(ctx context.Context, clientID string) ([]analytics.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analyticsColumns+`
		FROM api_analytics
		WHERE client_id = ?
		ORDER BY api_id
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []analytics.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type recordScanner interface {
	Scan(dest ...any) error
}

func scanRecordInto(sc recordScanner) (analytics.Record, error) {
	var rec analytics.Record
	var errTypes, dist, keysUsed string

	err := sc.Scan(
		&rec.APIID, &rec.ClientID, &rec.TotalCalls, &rec.SuccessCount, &rec.FailureCount, &rec.CacheHits,
		&rec.AvgResponseTime, &rec.MinResponseTime, &rec.MaxResponseTime, &rec.MostRecentError,
		&errTypes, &dist, &keysUsed, &rec.UpdatedAt,
	)
	if err != nil {
		return analytics.Record{}, err
	}

	if err := unmarshalMap(errTypes, &rec.ErrorTypes); err != nil {
		return analytics.Record{}, err
	}
	if err := unmarshalMap(dist, &rec.ResponseTimeDistribution); err != nil {
		return analytics.Record{}, err
	}
	if err := unmarshalMap(keysUsed, &rec.APIKeysUsed); err != nil {
		return analytics.Record{}, err
	}
	return rec, nil
}

func scanRecord(rows *sql.Rows) (analytics.Record, error) {
	return scanRecordInto(rows)
}

func scanRecordRow(row *sql.Row) (analytics.Record, error) {
	rec, err := scanRecordInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return analytics.Record{}, ErrNotFound
	}
	return rec, err
}

func unmarshalMap(raw string, dst *map[string]int64) error {
	*dst = make(map[string]int64)
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

// Ensure interface compliance.
var _ ports.AnalyticsStore = (*AnalyticsStore)(nil)
