package analytics

// APIPerformance summarizes one API's call volume and success rate within
// a client rollup.
type APIPerformance struct {
	APIID        string  `json:"apiId"`
	TotalCalls   int64   `json:"totalCalls"`
	SuccessCount int64   `json:"successCount"`
	SuccessRate  float64 `json:"successRate"`
}

// ClientRollup aggregates every analytics record belonging to one client.
type ClientRollup struct {
	ClientID string `json:"clientId"`

	TotalCalls   int64 `json:"totalCalls"`
	SuccessCount int64 `json:"successCount"`
	FailureCount int64 `json:"failureCount"`
	CacheHits    int64 `json:"cacheHits"`

	AvgResponseTime float64 `json:"avgResponseTime"`
	MinResponseTime int64   `json:"minResponseTime"`
	MaxResponseTime int64   `json:"maxResponseTime"`

	MostRecentError string `json:"mostRecentError"`

	ErrorTypes               map[string]int64 `json:"errorTypes"`
	ResponseTimeDistribution map[string]int64 `json:"responseTimeDistribution"`

	UniqueAPIs int `json:"uniqueApisCount"`

	BestPerformingAPI  *APIPerformance `json:"bestPerformingAPI,omitempty"`
	WorstPerformingAPI *APIPerformance `json:"worstPerformingAPI,omitempty"`
}

// Rollup merges per-API records into a single client-wide aggregate.
// The average is weighted by call count; min/max span all records; the
// frequency maps are summed. This is a PURE function.
func Rollup(clientID string, records []Record) (ClientRollup, bool) {
	if len(records) == 0 {
		return ClientRollup{}, false
	}

	out := ClientRollup{
		ClientID:                 clientID,
		ErrorTypes:               make(map[string]int64),
		ResponseTimeDistribution: make(map[string]int64),
		UniqueAPIs:               len(records),
	}

	var weighted float64
	for i, r := range records {
		out.TotalCalls += r.TotalCalls
		out.SuccessCount += r.SuccessCount
		out.FailureCount += r.FailureCount
		out.CacheHits += r.CacheHits
		weighted += r.AvgResponseTime * float64(r.TotalCalls)

		if i == 0 {
			out.MinResponseTime = r.MinResponseTime
			out.MaxResponseTime = r.MaxResponseTime
		} else {
			if r.MinResponseTime < out.MinResponseTime {
				out.MinResponseTime = r.MinResponseTime
			}
			if r.MaxResponseTime > out.MaxResponseTime {
				out.MaxResponseTime = r.MaxResponseTime
			}
		}

		if r.MostRecentError != "" {
			out.MostRecentError = r.MostRecentError
		}

		for k, v := range r.ErrorTypes {
			out.ErrorTypes[k] += v
		}
		for k, v := range r.ResponseTimeDistribution {
			out.ResponseTimeDistribution[k] += v
		}

		perf := APIPerformance{
			APIID:        r.APIID,
			TotalCalls:   r.TotalCalls,
			SuccessCount: r.SuccessCount,
			SuccessRate:  r.SuccessRate(),
		}
		if out.BestPerformingAPI == nil || perf.SuccessRate > out.BestPerformingAPI.SuccessRate {
			p := perf
			out.BestPerformingAPI = &p
		}
		if out.WorstPerformingAPI == nil || perf.SuccessRate < out.WorstPerformingAPI.SuccessRate {
			p := perf
			out.WorstPerformingAPI = &p
		}
	}

	if out.TotalCalls > 0 {
		out.AvgResponseTime = weighted / float64(out.TotalCalls)
	}

	return out, true
}

// Merge combines the per-client records of one API into a single record
// view: counters and frequency maps summed, the average weighted by call
// count, min/max spanning all inputs. This is a PURE function.
func Merge(apiID string, records []Record) Record {
	out := NewRecord(apiID, "")

	var weighted float64
	for i, r := range records {
		out.TotalCalls += r.TotalCalls
		out.SuccessCount += r.SuccessCount
		out.FailureCount += r.FailureCount
		out.CacheHits += r.CacheHits
		weighted += r.AvgResponseTime * float64(r.TotalCalls)

		if i == 0 {
			out.MinResponseTime = r.MinResponseTime
			out.MaxResponseTime = r.MaxResponseTime
			out.MostRecentError = r.MostRecentError
			out.UpdatedAt = r.UpdatedAt
		} else {
			if r.MinResponseTime < out.MinResponseTime {
				out.MinResponseTime = r.MinResponseTime
			}
			if r.MaxResponseTime > out.MaxResponseTime {
				out.MaxResponseTime = r.MaxResponseTime
			}
			if r.UpdatedAt.After(out.UpdatedAt) {
				out.UpdatedAt = r.UpdatedAt
				out.MostRecentError = r.MostRecentError
			}
		}

		for k, v := range r.ErrorTypes {
			out.ErrorTypes[k] += v
		}
		for k, v := range r.ResponseTimeDistribution {
			out.ResponseTimeDistribution[k] += v
		}
		for k, v := range r.APIKeysUsed {
			out.APIKeysUsed[k] += v
		}
	}

	if out.TotalCalls > 0 {
		out.AvgResponseTime = weighted / float64(out.TotalCalls)
	}
	return out
}
