package gateway_test

import (
	"testing"

	"github.com/metergate/metergate/domain/gateway"
)

func TestCacheKey(t *testing.T) {
	req := gateway.Request{
		Method:   "GET",
		BaseURL:  "https://api.example.com",
		Endpoint: "/v1/users",
	}
	key, ok := req.CacheKey()
	if !ok {
		t.Fatal("complete request should be cacheable")
	}
	if key != "GET:https://api.example.com/v1/users" {
		t.Errorf("cache key = %q", key)
	}
}

func TestCacheKey_Incomplete(t *testing.T) {
	for _, req := range []gateway.Request{
		{BaseURL: "https://api.example.com", Endpoint: "/v1"},
		{Method: "GET", Endpoint: "/v1"},
		{Method: "GET", BaseURL: "https://api.example.com"},
	} {
		if _, ok := req.CacheKey(); ok {
			t.Errorf("request %+v should bypass caching", req)
		}
	}
}

func TestQuotaError(t *testing.T) {
	e := gateway.QuotaError("API Key usage limit exceeded")
	if e.Status != 400 {
		t.Errorf("status = %d, want 400", e.Status)
	}
	if e.Message != "API Key usage limit exceeded" {
		t.Errorf("message = %q", e.Message)
	}
	if e.Error() != e.Message {
		t.Error("Error() should return the message")
	}
}
