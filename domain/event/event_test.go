package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/metergate/metergate/domain/event"
)

func TestSuccess(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{199, false},
		{200, true},
		{204, true},
		{299, true},
		{300, false},
		{400, false},
		{500, false},
	}
	for _, c := range cases {
		if got := event.Success(c.status); got != c.want {
			t.Errorf("Success(%d) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestNew_DerivesSuccessAndClearsError(t *testing.T) {
	e := event.New("api1", "client1", "key1", 200, 120, "leftover error", false)
	if !e.IsSuccess {
		t.Error("expected IsSuccess for status 200")
	}
	if e.ErrorType != "" {
		t.Errorf("error type should be cleared on success, got %q", e.ErrorType)
	}

	e = event.New("api1", "client1", "key1", 503, 80, "HTTP 503", false)
	if e.IsSuccess {
		t.Error("expected failure for status 503")
	}
	if e.ErrorType != "HTTP 503" {
		t.Errorf("error type = %q, want HTTP 503", e.ErrorType)
	}
}

func TestFailed(t *testing.T) {
	if (event.CallEvent{StatusCode: 399}).Failed() {
		t.Error("399 should not feed burst detection")
	}
	if !(event.CallEvent{StatusCode: 400}).Failed() {
		t.Error("400 should feed burst detection")
	}
	if !(event.CallEvent{StatusCode: 500}).Failed() {
		t.Error("500 should feed burst detection")
	}
}

func TestJSONShape(t *testing.T) {
	e := event.New("api1", "client1", "key1", 200, 42, "", true).WithUser("user1")

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, field := range []string{"apiId", "clientId", "statusCode", "responseTime", "apiKey", "cacheHit", "isSuccess", "userId"} {
		if _, ok := m[field]; !ok {
			t.Errorf("missing field %q in %s", field, data)
		}
	}
	if _, ok := m["error"]; ok {
		t.Error("error field should be omitted when empty")
	}
}

func TestResponseTimeBuckets(t *testing.T) {
	cases := []struct {
		ms     int64
		bucket string
		rng    string
	}{
		{0, "0", "0-99"},
		{99, "0", "0-99"},
		{100, "100", "100-199"},
		{250, "200", "200-299"},
		{-5, "0", "0-99"},
	}
	for _, c := range cases {
		if got := event.BucketLabel(c.ms); got != c.bucket {
			t.Errorf("BucketLabel(%d) = %q, want %q", c.ms, got, c.bucket)
		}
		if got := event.RangeLabel(c.ms); got != c.rng {
			t.Errorf("RangeLabel(%d) = %q, want %q", c.ms, got, c.rng)
		}
	}
}

func TestHourKey(t *testing.T) {
	ts := time.Date(2024, 3, 7, 16, 45, 12, 0, time.UTC)
	if got := event.HourKey(ts); got != "2024030716" {
		t.Errorf("HourKey = %q, want 2024030716", got)
	}

	// Non-UTC timestamps normalize to the same bucket.
	loc := time.FixedZone("plus2", 2*3600)
	if got := event.HourKey(ts.In(loc)); got != "2024030716" {
		t.Errorf("HourKey in offset zone = %q, want 2024030716", got)
	}
}
