// Package analytics provides the persistent analytics record and the pure
// fold that applies call events to it.
package analytics

import (
	"time"

	"github.com/metergate/metergate/domain/event"
)

// Record is the running analytic state for one (apiID, clientID) pair.
// Counters are monotonically non-decreasing; the record is created on the
// first event for a pair and mutated only by the aggregation consumer.
type Record struct {
	APIID    string
	ClientID string

	TotalCalls   int64
	SuccessCount int64
	FailureCount int64
	CacheHits    int64

	AvgResponseTime float64
	MinResponseTime int64
	MaxResponseTime int64

	MostRecentError string

	// Open-ended frequency maps.
	ErrorTypes               map[string]int64
	ResponseTimeDistribution map[string]int64 // keyed by 100ms bucket lower bound
	APIKeysUsed              map[string]int64

	UpdatedAt time.Time
}

// NewRecord returns an empty record for a pair with initialized maps.
func NewRecord(apiID, clientID string) Record {
	return Record{
		APIID:                    apiID,
		ClientID:                 clientID,
		ErrorTypes:               make(map[string]int64),
		ResponseTimeDistribution: make(map[string]int64),
		APIKeysUsed:              make(map[string]int64),
	}
}

// Apply folds one event into the record and returns the updated copy.
// This is a PURE function. The incremental mean uses the post-increment
// call count, so the caller must apply the fold atomically with respect
// to other writers (a single transaction or equivalent).
func (r Record) Apply(e event.CallEvent, now time.Time) Record {
	e = e.Normalize()

	if r.ErrorTypes == nil {
		r.ErrorTypes = make(map[string]int64)
	}
	if r.ResponseTimeDistribution == nil {
		r.ResponseTimeDistribution = make(map[string]int64)
	}
	if r.APIKeysUsed == nil {
		r.APIKeysUsed = make(map[string]int64)
	}

	first := r.TotalCalls == 0
	r.TotalCalls++
	n := r.TotalCalls

	if e.CacheHit {
		r.CacheHits++
	}
	if e.IsSuccess {
		r.SuccessCount++
		r.MostRecentError = ""
	} else {
		r.FailureCount++
		errType := e.ErrorType
		if errType == "" {
			errType = "None"
		}
		r.ErrorTypes[errType]++
		r.MostRecentError = errType
	}

	r.APIKeysUsed[e.APIKey]++
	r.ResponseTimeDistribution[event.BucketLabel(e.ResponseTimeMs)]++

	rt := e.ResponseTimeMs
	if first {
		r.MinResponseTime = rt
		r.MaxResponseTime = rt
	} else {
		if rt < r.MinResponseTime {
			r.MinResponseTime = rt
		}
		if rt > r.MaxResponseTime {
			r.MaxResponseTime = rt
		}
	}

	// avg' = (avg*(n-1) + x) / n with the post-increment count n.
	r.AvgResponseTime = (r.AvgResponseTime*float64(n-1) + float64(rt)) / float64(n)

	r.UpdatedAt = now
	return r
}

// SuccessRate returns successCount/totalCalls, or 0 for an empty record.
func (r Record) SuccessRate() float64 {
	if r.TotalCalls == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.TotalCalls)
}
