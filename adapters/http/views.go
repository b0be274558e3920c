package http

import (
	"time"

	"github.com/metergate/metergate/domain/analytics"
)

// RecordView is the JSON shape of one analytics record.
type RecordView struct {
	APIID    string `json:"apiId"`
	ClientID string `json:"clientId,omitempty"`

	TotalCalls   int64 `json:"totalCalls"`
	SuccessCount int64 `json:"successCount"`
	FailureCount int64 `json:"failureCount"`
	CacheHits    int64 `json:"cacheHits"`

	AvgResponseTime float64 `json:"avgResponseTime"`
	MinResponseTime int64   `json:"minResponseTime"`
	MaxResponseTime int64   `json:"maxResponseTime"`

	SuccessRate     float64 `json:"successRate"`
	MostRecentError string  `json:"mostRecentError,omitempty"`

	ErrorTypes               map[string]int64 `json:"errorTypes"`
	ResponseTimeDistribution map[string]int64 `json:"responseTimeDistribution"`
	APIKeysUsed              map[string]int64 `json:"apiKeysUsed"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func recordView(rec analytics.Record) RecordView {
	return RecordView{
		APIID:                    rec.APIID,
		ClientID:                 rec.ClientID,
		TotalCalls:               rec.TotalCalls,
		SuccessCount:             rec.SuccessCount,
		FailureCount:             rec.FailureCount,
		CacheHits:                rec.CacheHits,
		AvgResponseTime:          rec.AvgResponseTime,
		MinResponseTime:          rec.MinResponseTime,
		MaxResponseTime:          rec.MaxResponseTime,
		SuccessRate:              rec.SuccessRate(),
		MostRecentError:          rec.MostRecentError,
		ErrorTypes:               rec.ErrorTypes,
		ResponseTimeDistribution: rec.ResponseTimeDistribution,
		APIKeysUsed:              rec.APIKeysUsed,
		UpdatedAt:                rec.UpdatedAt,
	}
}
