package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/adapters/clock"
	"github.com/metergate/metergate/adapters/memory"
	"github.com/metergate/metergate/app"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/domain/gateway"
	"github.com/metergate/metergate/domain/keymeta"
)

var testTime = time.Date(2024, 3, 7, 12, 30, 0, 0, time.UTC)

type validatorFixture struct {
	cache     *memory.KeyCache
	registry  *memory.KeyRegistry
	counters  *memory.UsageCounters
	clock     *clock.Fake
	validator *app.Validator
}

func newValidatorFixture(t *testing.T) *validatorFixture {
	t.Helper()
	f := &validatorFixture{
		cache:    memory.NewKeyCache(),
		registry: memory.NewKeyRegistry(),
		counters: memory.NewUsageCounters(),
		clock:    clock.NewFake(testTime),
	}
	f.validator = app.NewValidator(app.ValidatorDeps{
		Cache:    f.cache,
		Registry: f.registry,
		Counters: f.counters,
		Clock:    f.clock,
		Logger:   zerolog.Nop(),
	}, app.ValidatorConfig{
		KeyTTL:      time.Hour,
		NegativeTTL: 5 * time.Minute,
		HourlyTTL:   time.Hour,
	})
	return f
}

func activeKey(raw string) keymeta.Key {
	return keymeta.Key{
		Key:               raw,
		APIID:             "weather",
		ClientID:          "acme",
		IsActive:          true,
		UsageLimit:        50,
		UsageLimitPerHour: 10,
		CreatedAt:         testTime.Add(-24 * time.Hour),
	}
}

func TestResolve_MissingKey(t *testing.T) {
	f := newValidatorFixture(t)

	_, errResp := f.validator.Resolve(context.Background(), "")
	if errResp == nil || errResp.Status != 401 {
		t.Fatalf("expected 401 for missing key, got %+v", errResp)
	}
}

func TestResolve_UnknownKeyMarkedInvalid(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	_, errResp := f.validator.Resolve(ctx, "nope")
	if errResp == nil || errResp.Status != 403 {
		t.Fatalf("expected 403 for unknown key, got %+v", errResp)
	}

	ttl, ok := f.cache.NegativeTTL("nope")
	if !ok {
		t.Fatal("unknown key should be negatively cached")
	}
	if ttl != 5*time.Minute {
		t.Errorf("negative TTL = %s, want 5m", ttl)
	}

	// Second attempt short-circuits on the negative entry.
	_, errResp = f.validator.Resolve(ctx, "nope")
	if errResp == nil || errResp != &gateway.ErrInvalidKeyCached {
		t.Fatalf("expected cached rejection, got %+v", errResp)
	}
}

func TestResolve_InactiveKey(t *testing.T) {
	f := newValidatorFixture(t)
	k := activeKey("k1")
	k.IsActive = false
	f.registry.Create(context.Background(), k)

	_, errResp := f.validator.Resolve(context.Background(), "k1")
	if errResp == nil || errResp.Status != 403 {
		t.Fatalf("expected 403 for inactive key, got %+v", errResp)
	}
	if _, ok := f.cache.NegativeTTL("k1"); !ok {
		t.Error("inactive key should be negatively cached")
	}
}

func TestResolve_ExpiredKey(t *testing.T) {
	f := newValidatorFixture(t)
	k := activeKey("k1")
	past := testTime.Add(-time.Minute)
	k.ExpiresAt = &past
	f.registry.Create(context.Background(), k)

	_, errResp := f.validator.Resolve(context.Background(), "k1")
	if errResp == nil || errResp.Status != 403 {
		t.Fatalf("expected 403 for expired key, got %+v", errResp)
	}
}

func TestResolve_IncompleteKey(t *testing.T) {
	f := newValidatorFixture(t)
	k := activeKey("k1")
	k.ClientID = ""
	f.registry.Create(context.Background(), k)

	_, errResp := f.validator.Resolve(context.Background(), "k1")
	if errResp == nil || errResp.Status != 400 {
		t.Fatalf("expected 400 for incomplete key, got %+v", errResp)
	}
}

func TestResolve_Success(t *testing.T) {
	f := newValidatorFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))

	kc, errResp := f.validator.Resolve(context.Background(), "k1")
	if errResp != nil {
		t.Fatalf("unexpected error: %+v", errResp)
	}
	if kc.APIID != "weather" || kc.ClientID != "acme" || kc.Marker != "" {
		t.Errorf("context = %+v", kc)
	}

	// Resolved key is cached for later requests.
	if _, found, _ := f.cache.Get(context.Background(), "k1"); !found {
		t.Error("resolved key should be positively cached")
	}

	// Both counters moved.
	usage, _ := f.counters.Current(context.Background(), "k1", event.HourKey(testTime))
	if usage.Total != 1 || usage.Hourly != 1 {
		t.Errorf("usage = %+v, want 1/1", usage)
	}
}

func TestResolve_CacheHitSkipsRegistry(t *testing.T) {
	f := newValidatorFixture(t)
	f.cache.Set(context.Background(), activeKey("k1"), time.Hour)

	kc, errResp := f.validator.Resolve(context.Background(), "k1")
	if errResp != nil {
		t.Fatalf("unexpected error: %+v", errResp)
	}
	if kc.APIID != "weather" {
		t.Errorf("context = %+v", kc)
	}
}

func TestResolve_HourlyTTLArmedOncePerBucket(t *testing.T) {
	f := newValidatorFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))

	for i := 0; i < 3; i++ {
		if _, errResp := f.validator.Resolve(context.Background(), "k1"); errResp != nil {
			t.Fatalf("resolve %d: %+v", i, errResp)
		}
	}

	bucket := "k1:" + event.HourKey(testTime)
	if got := f.counters.TTLArms[bucket]; got != 1 {
		t.Errorf("hourly TTL armed %d times, want 1", got)
	}

	// A new calendar hour starts a fresh bucket with its own TTL.
	f.clock.Advance(time.Hour)
	if _, errResp := f.validator.Resolve(context.Background(), "k1"); errResp != nil {
		t.Fatalf("resolve in next hour: %+v", errResp)
	}
	next := "k1:" + event.HourKey(testTime.Add(time.Hour))
	if got := f.counters.TTLArms[next]; got != 1 {
		t.Errorf("next bucket TTL armed %d times, want 1", got)
	}
}

func TestResolve_TotalQuotaMarker(t *testing.T) {
	f := newValidatorFixture(t)
	k := activeKey("k1")
	k.UsageLimit = 2
	k.UsageLimitPerHour = 0
	f.registry.Create(context.Background(), k)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		kc, errResp := f.validator.Resolve(ctx, "k1")
		if errResp != nil || kc.Marker != "" {
			t.Fatalf("call %d: kc=%+v err=%+v", i, kc, errResp)
		}
	}

	kc, errResp := f.validator.Resolve(ctx, "k1")
	if errResp != nil {
		t.Fatalf("marked request must not hard-reject: %+v", errResp)
	}
	if kc.Marker != keymeta.MarkerTotalLimit {
		t.Errorf("marker = %q, want %q", kc.Marker, keymeta.MarkerTotalLimit)
	}

	// Rejected calls do not consume quota.
	usage, _ := f.counters.Current(ctx, "k1", event.HourKey(testTime))
	if usage.Total != 2 {
		t.Errorf("total usage = %d, want 2", usage.Total)
	}
}

func TestResolve_HourlyQuotaMarker(t *testing.T) {
	f := newValidatorFixture(t)
	k := activeKey("k1")
	k.UsageLimit = 0
	k.UsageLimitPerHour = 1
	f.registry.Create(context.Background(), k)

	ctx := context.Background()
	if kc, _ := f.validator.Resolve(ctx, "k1"); kc.Marker != "" {
		t.Fatalf("first call marked: %+v", kc)
	}
	kc, _ := f.validator.Resolve(ctx, "k1")
	if kc.Marker != keymeta.MarkerHourlyLimit {
		t.Errorf("marker = %q, want %q", kc.Marker, keymeta.MarkerHourlyLimit)
	}

	// The next hour clears the window.
	f.clock.Advance(time.Hour)
	if kc, _ := f.validator.Resolve(ctx, "k1"); kc.Marker != "" {
		t.Errorf("next hour should pass, marker = %q", kc.Marker)
	}
}

func TestResolve_CounterFailureMarksInternal(t *testing.T) {
	f := newValidatorFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))
	f.counters.Err = context.DeadlineExceeded

	kc, errResp := f.validator.Resolve(context.Background(), "k1")
	if errResp != nil {
		t.Fatalf("counter failure must not hard-reject: %+v", errResp)
	}
	if kc.Marker != keymeta.MarkerInternal {
		t.Errorf("marker = %q, want %q", kc.Marker, keymeta.MarkerInternal)
	}
}
