package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/metergate/metergate/adapters/memory"
	"github.com/metergate/metergate/adapters/metrics"
	"github.com/metergate/metergate/app"
	"github.com/metergate/metergate/domain/gateway"
	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

type evalFixture struct {
	*validatorFixture
	respCache *memory.ResponseCache
	upstream  *memory.Upstream
	publisher *memory.Publisher
	service   *app.EvaluateService
}

func newEvalFixture(t *testing.T) *evalFixture {
	t.Helper()
	f := &evalFixture{
		validatorFixture: newValidatorFixture(t),
		respCache:        memory.NewResponseCache(),
		upstream:         memory.NewUpstream(),
		publisher:        memory.NewPublisher(),
	}
	f.service = app.NewEvaluateService(app.EvaluateDeps{
		Validator: f.validator,
		RespCache: f.respCache,
		Upstream:  f.upstream,
		Publisher: f.publisher,
		Metrics:   metrics.NewWith(prometheus.NewRegistry()),
		Logger:    zerolog.Nop(),
	}, app.EvaluateConfig{
		ResponseTTL: 5 * time.Minute,
	})
	return f
}

func evalRequest(key string) gateway.Request {
	return gateway.Request{
		APIKey:   key,
		Method:   "GET",
		BaseURL:  "https://api.example.com",
		Endpoint: "/v1/users",
	}
}

func TestEvaluate_AuthRejectPublishesNoEvent(t *testing.T) {
	f := newEvalFixture(t)

	res := f.service.Evaluate(context.Background(), evalRequest("unknown"))
	if res.Error == nil || res.Error.Status != 403 {
		t.Fatalf("expected 403, got %+v", res)
	}
	if n := len(f.publisher.Events()); n != 0 {
		t.Errorf("unauthenticated rejection published %d events, want 0", n)
	}
	if n := len(f.upstream.Calls()); n != 0 {
		t.Errorf("upstream called %d times, want 0", n)
	}
}

func TestEvaluate_Success(t *testing.T) {
	f := newEvalFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))
	f.upstream.Result = ports.UpstreamResult{Status: 200, Body: []byte(`{"ok":true}`), LatencyMs: 42}

	res := f.service.Evaluate(context.Background(), evalRequest("k1"))
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if res.Status != 200 || string(res.Body) != `{"ok":true}` {
		t.Errorf("result = %+v", res)
	}

	events := f.publisher.Events()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	e := events[0]
	if !e.IsSuccess || e.StatusCode != 200 || e.ResponseTimeMs != 42 || e.CacheHit {
		t.Errorf("event = %+v", e)
	}
	if e.APIID != "weather" || e.ClientID != "acme" || e.APIKey != "k1" {
		t.Errorf("event identity = %+v", e)
	}

	// The response was cached for the request signature.
	key, _ := evalRequest("k1").CacheKey()
	if _, found, _ := f.respCache.Get(context.Background(), key); !found {
		t.Error("successful response should be cached")
	}
	if ttl := f.respCache.SetTTLs[key]; ttl != 5*time.Minute {
		t.Errorf("cache TTL = %s, want 5m", ttl)
	}
}

func TestEvaluate_CacheHitSkipsUpstream(t *testing.T) {
	f := newEvalFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))

	req := evalRequest("k1")
	key, _ := req.CacheKey()
	f.respCache.Set(context.Background(), key, []byte(`cached`), time.Minute)

	res := f.service.Evaluate(context.Background(), req)
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if !res.CacheHit || string(res.Body) != "cached" {
		t.Errorf("result = %+v", res)
	}
	if n := len(f.upstream.Calls()); n != 0 {
		t.Errorf("upstream called %d times on a cache hit", n)
	}

	events := f.publisher.Events()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	e := events[0]
	if !e.CacheHit || e.StatusCode != 200 || e.ResponseTimeMs != 0 {
		t.Errorf("cache hit event = %+v", e)
	}
}

func TestEvaluate_QuotaMarkerBecomesLoggedRejection(t *testing.T) {
	f := newEvalFixture(t)
	k := activeKey("k1")
	k.UsageLimit = 0
	k.UsageLimitPerHour = 1
	f.registry.Create(context.Background(), k)

	ctx := context.Background()
	if res := f.service.Evaluate(ctx, evalRequest("k1")); res.Error != nil {
		t.Fatalf("first call: %+v", res.Error)
	}

	res := f.service.Evaluate(ctx, evalRequest("k1"))
	if res.Error == nil || res.Error.Status != 400 {
		t.Fatalf("expected 400, got %+v", res)
	}
	if res.Error.Message != keymeta.MarkerHourlyLimit {
		t.Errorf("message = %q", res.Error.Message)
	}

	events := f.publisher.Events()
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	e := events[1]
	if e.StatusCode != 400 || e.IsSuccess || e.ErrorType != keymeta.MarkerHourlyLimit {
		t.Errorf("rejection event = %+v", e)
	}
	if n := len(f.upstream.Calls()); n != 1 {
		t.Errorf("upstream called %d times, want 1 (the first call)", n)
	}
}

func TestEvaluate_UpstreamTransportError(t *testing.T) {
	f := newEvalFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))
	f.upstream.Err = errors.New("connection refused")

	res := f.service.Evaluate(context.Background(), evalRequest("k1"))
	if res.Error == nil || res.Error.Status != 500 {
		t.Fatalf("expected 500, got %+v", res)
	}

	events := f.publisher.Events()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	e := events[0]
	if e.StatusCode != 500 || e.IsSuccess || e.ErrorType == "" {
		t.Errorf("event = %+v", e)
	}
}

func TestEvaluate_UpstreamHTTPFailure(t *testing.T) {
	f := newEvalFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))
	f.upstream.Result = ports.UpstreamResult{Status: 404, Body: []byte(`not found`), LatencyMs: 15}

	res := f.service.Evaluate(context.Background(), evalRequest("k1"))
	if res.Error == nil || res.Error.Status != 500 {
		t.Fatalf("expected opaque 500, got %+v", res)
	}

	events := f.publisher.Events()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	e := events[0]
	if e.StatusCode != 404 || e.ErrorType != "HTTP 404" || e.ResponseTimeMs != 15 {
		t.Errorf("event keeps the upstream status: %+v", e)
	}

	// Failures are never cached.
	key, _ := evalRequest("k1").CacheKey()
	if _, found, _ := f.respCache.Get(context.Background(), key); found {
		t.Error("failed response must not be cached")
	}
}

func TestEvaluate_UncacheableRequestSkipsCache(t *testing.T) {
	f := newEvalFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))
	f.upstream.Result = ports.UpstreamResult{Status: 200, Body: []byte(`ok`)}

	req := gateway.Request{APIKey: "k1", Method: "GET", BaseURL: "https://api.example.com"}
	res := f.service.Evaluate(context.Background(), req)
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if len(f.respCache.SetTTLs) != 0 {
		t.Error("incomplete request triple must bypass the cache")
	}
}

type panickingUpstream struct{}

func (panickingUpstream) Call(ctx context.Context, method, rawURL, apiKey string) (ports.UpstreamResult, error) {
	panic("upstream exploded")
}

func TestEvaluate_PanicStillEmitsOneEvent(t *testing.T) {
	f := newEvalFixture(t)
	f.registry.Create(context.Background(), activeKey("k1"))

	svc := app.NewEvaluateService(app.EvaluateDeps{
		Validator: f.validator,
		RespCache: f.respCache,
		Upstream:  panickingUpstream{},
		Publisher: f.publisher,
		Metrics:   metrics.NewWith(prometheus.NewRegistry()),
		Logger:    zerolog.Nop(),
	}, app.EvaluateConfig{ResponseTTL: 5 * time.Minute})

	res := svc.Evaluate(context.Background(), evalRequest("k1"))
	if res.Error != &gateway.ErrInternal {
		t.Fatalf("expected the generic internal error, got %+v", res)
	}

	events := f.publisher.Events()
	if len(events) != 1 {
		t.Fatalf("published %d events, want exactly 1", len(events))
	}
	e := events[0]
	if e.StatusCode != 500 || e.IsSuccess || e.ErrorType != gateway.ErrInternal.Message {
		t.Errorf("event = %+v", e)
	}
}

func TestEvaluate_EventCarriesUserID(t *testing.T) {
	f := newEvalFixture(t)
	k := activeKey("k1")
	k.UserID = "user-7"
	f.registry.Create(context.Background(), k)

	f.service.Evaluate(context.Background(), evalRequest("k1"))

	events := f.publisher.Events()
	if len(events) != 1 || events[0].UserID != "user-7" {
		t.Errorf("events = %+v", events)
	}
}
