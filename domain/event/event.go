// Package event defines the call event record published to the durable log.
// This package has NO dependencies on I/O or external packages.
package event

import (
	"fmt"
	"time"
)

// CallEvent is the wire record describing one evaluated API call.
// It is immutable once published and is the sole unit of truth consumed
// by every downstream aggregator.
type CallEvent struct {
	APIID          string `json:"apiId"`
	ClientID       string `json:"clientId"`
	StatusCode     int    `json:"statusCode"`
	ResponseTimeMs int64  `json:"responseTime"`
	APIKey         string `json:"apiKey"`
	ErrorType      string `json:"error,omitempty"`
	CacheHit       bool   `json:"cacheHit"`
	IsSuccess      bool   `json:"isSuccess"`
	UserID         string `json:"userId,omitempty"`
}

// Success reports whether a status code counts as a successful call.
func Success(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// New builds a normalized CallEvent. IsSuccess is derived from the status
// code and the error type is cleared on success, so the published record
// always satisfies the isSuccess/errorType invariant.
func New(apiID, clientID, apiKey string, statusCode int, responseTimeMs int64, errorType string, cacheHit bool) CallEvent {
	e := CallEvent{
		APIID:          apiID,
		ClientID:       clientID,
		APIKey:         apiKey,
		StatusCode:     statusCode,
		ResponseTimeMs: responseTimeMs,
		ErrorType:      errorType,
		CacheHit:       cacheHit,
	}
	return e.Normalize()
}

// Normalize enforces the record invariants and returns the corrected copy.
func (e CallEvent) Normalize() CallEvent {
	e.IsSuccess = Success(e.StatusCode)
	if e.IsSuccess {
		e.ErrorType = ""
	}
	return e
}

// Failed reports whether this event should feed failure-burst detection.
func (e CallEvent) Failed() bool {
	return e.StatusCode >= 400
}

// WithUser returns a copy of the event with the user ID set.
func (e CallEvent) WithUser(userID string) CallEvent {
	e.UserID = userID
	return e
}

// ResponseTimeBucket returns the lower bound of the 100ms bucket a
// response time falls into (0, 100, 200, ...).
func ResponseTimeBucket(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms / 100 * 100
}

// BucketLabel renders a 100ms bucket as its lower bound ("0", "100", ...).
// Used as the frequency-map key in the persistent analytics record.
func BucketLabel(ms int64) string {
	return fmt.Sprintf("%d", ResponseTimeBucket(ms))
}

// RangeLabel renders a 100ms bucket as an inclusive range ("100-199").
// Used for the cache-resident response time histogram.
func RangeLabel(ms int64) string {
	lo := ResponseTimeBucket(ms)
	return fmt.Sprintf("%d-%d", lo, lo+99)
}

// HourKey formats a timestamp as the calendar-hour bucket key (YYYYMMDDHH,
// UTC). All hourly windowed state is scoped by this key.
func HourKey(t time.Time) string {
	return t.UTC().Format("2006010215")
}
