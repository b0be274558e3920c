package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = ports.ErrNotFound

// KeyRegistry implements ports.KeyRegistry using SQLite.
type KeyRegistry struct {
	db *DB
}

// NewKeyRegistry creates a new SQLite key registry.
func NewKeyRegistry(db *DB) *KeyRegistry {
	return &KeyRegistry{db: db}
}

const keyColumns = `key, api_id, client_id, user_id, is_active, usage_limit, usage_limit_per_hour, usage_total_count, created_at, expires_at`

// Lookup resolves a raw key string to its record.
func (s *KeyRegistry) Lookup(ctx context.Context, rawKey string) (keymeta.Key, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		WHERE key = ?
	`, rawKey)
	return scanKeyRow(row)
}

// IncrementUsage adds one to the key's lifetime usage count.
func (s *KeyRegistry) IncrementUsage(ctx context.Context, rawKey string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET usage_total_count = usage_total_count + 1 WHERE key = ?
	`, rawKey)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Create stores a new key record.
func (s *KeyRegistry) Create(ctx context.Context, k keymeta.Key) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, k.Key, k.APIID, k.ClientID, k.UserID, k.IsActive,
		k.UsageLimit, k.UsageLimitPerHour, k.UsageTotalCount,
		k.CreatedAt, nullTime(k.ExpiresAt))
	return err
}

// List returns all key records.
func (s *KeyRegistry) List(ctx context.Context) ([]keymeta.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keymeta.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteExhausted removes keys that are expired or over their lifetime
// limit. Returns the number of rows removed.
func (s *KeyRegistry) DeleteExhausted(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM api_keys
		WHERE (expires_at IS NOT NULL AND expires_at < ?)
		   OR (usage_limit > 0 AND usage_total_count >= usage_limit)
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanKey(rows *sql.Rows) (keymeta.Key, error) {
	var k keymeta.Key
	var expiresAt sql.NullTime

	err := rows.Scan(
		&k.Key, &k.APIID, &k.ClientID, &k.UserID, &k.IsActive,
		&k.UsageLimit, &k.UsageLimitPerHour, &k.UsageTotalCount,
		&k.CreatedAt, &expiresAt,
	)
	if err != nil {
		return keymeta.Key{}, err
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	return k, nil
}

func scanKeyRow(row *sql.Row) (keymeta.Key, error) {
	var k keymeta.Key
	var expiresAt sql.NullTime

	err := row.Scan(
		&k.Key, &k.APIID, &k.ClientID, &k.UserID, &k.IsActive,
		&k.UsageLimit, &k.UsageLimitPerHour, &k.UsageTotalCount,
		&k.CreatedAt, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return keymeta.Key{}, ErrNotFound
	}
	if err != nil {
		return keymeta.Key{}, err
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	return k, nil
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Ensure interface compliance.
var _ ports.KeyRegistry = (*KeyRegistry)(nil)
