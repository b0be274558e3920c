// Package anomaly provides the pure failure-burst alert decision.
package anomaly

import (
	"fmt"
	"time"
)

// Defaults for the burst detector. The window TTL is armed on the first
// failure in a burst and is never re-armed by later failures.
const (
	DefaultThreshold = 10
	DefaultWindow    = 5 * time.Minute
)

// Decision is the outcome of evaluating a burst counter reading.
type Decision struct {
	Alert bool
	Count int64
}

// Evaluate decides whether a counter reading crosses the alert threshold.
// This is a PURE function.
func Evaluate(count, threshold int64) Decision {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Decision{
		Alert: count >= threshold,
		Count: count,
	}
}

// AlertSubject builds the notification subject for an API in a burst.
func AlertSubject(apiID string) string {
	return fmt.Sprintf("High API failure rate for %s", apiID)
}

// AlertBody builds the notification body.
func AlertBody(apiID string, count int64, window time.Duration) string {
	return fmt.Sprintf(
		"API %s has failed %d times within the last %s. Immediate action is required.",
		apiID, count, window,
	)
}
