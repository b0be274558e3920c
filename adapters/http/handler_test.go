package http_test

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/metergate/metergate/adapters/clock"
	gatewayhttp "github.com/metergate/metergate/adapters/http"
	"github.com/metergate/metergate/adapters/memory"
	"github.com/metergate/metergate/adapters/metrics"
	"github.com/metergate/metergate/app"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

var handlerTime = time.Date(2024, 3, 7, 12, 30, 0, 0, time.UTC)

type apiFixture struct {
	registry *memory.KeyRegistry
	store    *memory.AnalyticsStore
	upstream *memory.Upstream
	server   *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	fc := clock.NewFake(handlerTime)
	f := &apiFixture{
		registry: memory.NewKeyRegistry(),
		store:    memory.NewAnalyticsStore(fc),
		upstream: memory.NewUpstream(),
	}

	validator := app.NewValidator(app.ValidatorDeps{
		Cache:    memory.NewKeyCache(),
		Registry: f.registry,
		Counters: memory.NewUsageCounters(),
		Clock:    fc,
		Logger:   zerolog.Nop(),
	}, app.ValidatorConfig{
		KeyTTL:      time.Hour,
		NegativeTTL: 5 * time.Minute,
		HourlyTTL:   time.Hour,
	})

	evaluate := app.NewEvaluateService(app.EvaluateDeps{
		Validator: validator,
		RespCache: memory.NewResponseCache(),
		Upstream:  f.upstream,
		Publisher: memory.NewPublisher(),
		Metrics:   metrics.NewWith(prometheus.NewRegistry()),
		Logger:    zerolog.Nop(),
	}, app.EvaluateConfig{ResponseTTL: 5 * time.Minute})

	h := gatewayhttp.NewHandler(evaluate, app.NewAnalyticsService(f.store), zerolog.Nop())
	f.server = httptest.NewServer(h.Router())
	t.Cleanup(f.server.Close)

	return f
}

func (f *apiFixture) createKey(t *testing.T, raw string) {
	t.Helper()
	err := f.registry.Create(context.Background(), keymeta.Key{
		Key:      raw,
		APIID:    "weather",
		ClientID: "acme",
		IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func decodeBody(t *testing.T, resp *nethttp.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestEvalEndpoint_MissingKey(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := nethttp.Get(f.server.URL + "/eval?method=GET&base_url=https://api.example.com&endpoint=/v1/users")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["code"] != "missing_api_key" {
		t.Errorf("body = %v", body)
	}
}

func TestEvalEndpoint_PostSuccess(t *testing.T) {
	f := newAPIFixture(t)
	f.createKey(t, "k1")
	f.upstream.Result = ports.UpstreamResult{Status: 200, Body: []byte(`{"temp":21}`), LatencyMs: 30}

	req, _ := nethttp.NewRequest("POST", f.server.URL+"/eval",
		strings.NewReader(`{"method":"GET","base_url":"https://api.example.com","endpoint":"/v1/weather"}`))
	req.Header.Set("Authorization", "Bearer k1")
	req.Header.Set("Content-Type", "application/json")

	resp, err := nethttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["temp"] != float64(21) {
		t.Errorf("body = %v, upstream payload must pass through verbatim", body)
	}

	calls := f.upstream.Calls()
	if len(calls) != 1 || calls[0].URL != "https://api.example.com/v1/weather" {
		t.Errorf("upstream calls = %+v", calls)
	}
}

func TestEvalEndpoint_CacheHitHeader(t *testing.T) {
	f := newAPIFixture(t)
	f.createKey(t, "k1")
	f.upstream.Result = ports.UpstreamResult{Status: 200, Body: []byte(`{}`)}

	get := func() *nethttp.Response {
		req, _ := nethttp.NewRequest("GET",
			f.server.URL+"/eval?method=GET&base_url=https://api.example.com&endpoint=/v1/weather", nil)
		req.Header.Set("X-API-Key", "k1")
		resp, err := nethttp.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := get(); resp.Header.Get("X-Cache") != "" {
		t.Error("first request marked as a cache hit")
	}
	if resp := get(); resp.Header.Get("X-Cache") != "HIT" {
		t.Error("second request missing the X-Cache header")
	}
	if n := len(f.upstream.Calls()); n != 1 {
		t.Errorf("upstream called %d times, want 1", n)
	}
}

func TestEvalEndpoint_MethodlessRequestBypassesCache(t *testing.T) {
	f := newAPIFixture(t)
	f.createKey(t, "k1")
	f.upstream.Result = ports.UpstreamResult{Status: 200, Body: []byte(`{}`)}

	post := func() *nethttp.Response {
		req, _ := nethttp.NewRequest("POST", f.server.URL+"/eval",
			strings.NewReader(`{"base_url":"https://api.example.com","endpoint":"/v1/weather"}`))
		req.Header.Set("X-API-Key", "k1")
		resp, err := nethttp.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp
	}

	post()
	if resp := post(); resp.Header.Get("X-Cache") == "HIT" {
		t.Error("request without a method must not be served from cache")
	}
	if n := len(f.upstream.Calls()); n != 2 {
		t.Errorf("upstream called %d times, want 2 live calls", n)
	}
}

func TestEvalEndpoint_EmptyPostBody(t *testing.T) {
	f := newAPIFixture(t)

	req, _ := nethttp.NewRequest("POST", f.server.URL+"/eval", nil)
	req.Header.Set("X-API-Key", "k1")

	resp, err := nethttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAnalyticsEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	f.store.ApplyEvent(ctx, event.New("weather", "acme", "k1", 200, 120, "", false))
	f.store.ApplyEvent(ctx, event.New("weather", "acme", "k1", 500, 80, "HTTP 500", false))

	resp, err := nethttp.Get(f.server.URL + "/analytics/api/weather")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["totalCalls"] != float64(2) || body["successRate"] != 0.5 {
		t.Errorf("body = %v", body)
	}
	if body["mostRecentError"] != "HTTP 500" {
		t.Errorf("mostRecentError = %v", body["mostRecentError"])
	}

	resp, err = nethttp.Get(f.server.URL + "/analytics/client/acme")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("client status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAnalyticsEndpoint_Unknown(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := nethttp.Get(f.server.URL + "/analytics/api/nope")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["code"] != "not_found" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := nethttp.Get(f.server.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}
