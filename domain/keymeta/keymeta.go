// Package keymeta provides API key metadata value types and pure quota
// decisions. This package has NO dependencies on I/O.
package keymeta

import "time"

// Key is the resolved metadata for one API key (immutable value type).
// The key string itself is the lookup identity: it keys the metadata
// cache, the usage counters, and the per-key frequency maps downstream.
type Key struct {
	Key               string     `json:"key"`
	APIID             string     `json:"apiId"`
	ClientID          string     `json:"clientId"`
	UserID            string     `json:"userId,omitempty"`
	IsActive          bool       `json:"isActive"`
	UsageLimit        int64      `json:"usageLimit"`
	UsageLimitPerHour int64      `json:"usageLimitPerHour"`
	UsageTotalCount   int64      `json:"usageTotalCount"`
	CreatedAt         time.Time  `json:"createdAt"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// Usage is the cache-resident counter pair checked against the key's limits.
type Usage struct {
	Total  int64
	Hourly int64
}

// Quota markers attached to a request instead of rejecting it outright.
// The evaluator turns a marker into a logged 400 event, so over-limit
// calls stay visible to the analytics pipeline.
const (
	MarkerTotalLimit  = "API Key usage limit exceeded"
	MarkerHourlyLimit = "Hourly API usage limit exceeded"
	MarkerInternal    = "Internal Server Error"
)

// Usable reports whether the key may serve requests at the given time.
// This is a PURE function.
func (k Key) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}

// Complete reports whether the key resolves all identities the pipeline
// needs. A key missing its API or client is a bad-request reject.
func (k Key) Complete() bool {
	return k.Key != "" && k.APIID != "" && k.ClientID != ""
}

// CheckQuota compares current usage against the key's ceilings.
// A limit of zero or below means unlimited. Returns the soft-reject
// marker and ok=false when either ceiling is reached.
// This is a PURE function.
func CheckQuota(k Key, u Usage) (marker string, ok bool) {
	if k.UsageLimit > 0 && u.Total >= k.UsageLimit {
		return MarkerTotalLimit, false
	}
	if k.UsageLimitPerHour > 0 && u.Hourly >= k.UsageLimitPerHour {
		return MarkerHourlyLimit, false
	}
	return "", true
}
