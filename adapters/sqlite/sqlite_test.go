package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metergate/metergate/adapters/clock"
	"github.com/metergate/metergate/adapters/sqlite"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

var dbTime = time.Date(2024, 3, 7, 12, 30, 0, 0, time.UTC)

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.Migrate())
}

func TestKeyRegistry_CreateLookup(t *testing.T) {
	reg := sqlite.NewKeyRegistry(openDB(t))
	ctx := context.Background()

	expiry := dbTime.Add(30 * 24 * time.Hour)
	require.NoError(t, reg.Create(ctx, keymeta.Key{
		Key:               "k1",
		APIID:             "weather",
		ClientID:          "acme",
		UserID:            "user-1",
		IsActive:          true,
		UsageLimit:        50,
		UsageLimitPerHour: 10,
		CreatedAt:         dbTime,
		ExpiresAt:         &expiry,
	}))

	got, err := reg.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "weather", got.APIID)
	assert.Equal(t, "acme", got.ClientID)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, got.IsActive)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expiry))

	_, err = reg.Lookup(ctx, "absent")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestKeyRegistry_IncrementUsage(t *testing.T) {
	reg := sqlite.NewKeyRegistry(openDB(t))
	ctx := context.Background()

	require.NoError(t, reg.Create(ctx, keymeta.Key{Key: "k1", APIID: "a", ClientID: "c", IsActive: true, CreatedAt: dbTime}))

	for i := 0; i < 3; i++ {
		require.NoError(t, reg.IncrementUsage(ctx, "k1"))
	}
	got, err := reg.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.UsageTotalCount)

	assert.ErrorIs(t, reg.IncrementUsage(ctx, "absent"), ports.ErrNotFound)
}

func TestKeyRegistry_DeleteExhausted(t *testing.T) {
	reg := sqlite.NewKeyRegistry(openDB(t))
	ctx := context.Background()

	past := dbTime.Add(-time.Hour)
	require.NoError(t, reg.Create(ctx, keymeta.Key{Key: "expired", APIID: "a", ClientID: "c", IsActive: true, CreatedAt: dbTime, ExpiresAt: &past}))
	require.NoError(t, reg.Create(ctx, keymeta.Key{Key: "spent", APIID: "a", ClientID: "c", IsActive: true, UsageLimit: 5, UsageTotalCount: 5, CreatedAt: dbTime}))
	require.NoError(t, reg.Create(ctx, keymeta.Key{Key: "live", APIID: "a", ClientID: "c", IsActive: true, UsageLimit: 5, UsageTotalCount: 1, CreatedAt: dbTime}))
	require.NoError(t, reg.Create(ctx, keymeta.Key{Key: "unlimited", APIID: "a", ClientID: "c", IsActive: true, CreatedAt: dbTime}))

	n, err := reg.DeleteExhausted(ctx, dbTime)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestAnalyticsStore_ApplyEvent(t *testing.T) {
	store := sqlite.NewAnalyticsStore(openDB(t), clock.NewFake(dbTime))
	ctx := context.Background()

	rec, err := store.ApplyEvent(ctx, event.New("weather", "acme", "k1", 200, 100, "", false))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.TotalCalls)
	assert.Equal(t, float64(100), rec.AvgResponseTime)

	rec, err = store.ApplyEvent(ctx, event.New("weather", "acme", "k2", 500, 300, "HTTP 500", false))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.TotalCalls)
	assert.Equal(t, float64(200), rec.AvgResponseTime)
	assert.Equal(t, int64(100), rec.MinResponseTime)
	assert.Equal(t, int64(300), rec.MaxResponseTime)

	// The fold survives a round trip through the JSON columns.
	got, err := store.Get(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ErrorTypes["HTTP 500"])
	assert.Equal(t, int64(1), got.APIKeysUsed["k1"])
	assert.Equal(t, int64(1), got.APIKeysUsed["k2"])
	assert.Equal(t, int64(1), got.ResponseTimeDistribution["100"])
	assert.Equal(t, int64(1), got.ResponseTimeDistribution["300"])
	assert.Equal(t, "HTTP 500", got.MostRecentError)
}

func TestAnalyticsStore_GetMergesClients(t *testing.T) {
	store := sqlite.NewAnalyticsStore(openDB(t), clock.NewFake(dbTime))
	ctx := context.Background()

	_, err := store.ApplyEvent(ctx, event.New("weather", "acme", "k1", 200, 100, "", false))
	require.NoError(t, err)
	_, err = store.ApplyEvent(ctx, event.New("weather", "globex", "k2", 200, 300, "", false))
	require.NoError(t, err)

	got, err := store.Get(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalCalls)
	assert.Equal(t, float64(200), got.AvgResponseTime)

	_, err = store.Get(ctx, "absent")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestAnalyticsStore_ListByClient(t *testing.T) {
	store := sqlite.NewAnalyticsStore(openDB(t), clock.NewFake(dbTime))
	ctx := context.Background()

	for _, e := range []event.CallEvent{
		event.New("weather", "acme", "k1", 200, 100, "", false),
		event.New("geo", "acme", "k1", 200, 100, "", false),
		event.New("weather", "globex", "k2", 200, 100, "", false),
	} {
		_, err := store.ApplyEvent(ctx, e)
		require.NoError(t, err)
	}

	records, err := store.ListByClient(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
