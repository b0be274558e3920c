// Package metrics provides Prometheus metrics collection for the gateway
// and its stream consumers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics.
type Collector struct {
	// Request path
	EvaluationsTotal  *prometheus.CounterVec
	ResponseCacheHits prometheus.Counter
	QuotaRejections   *prometheus.CounterVec
	UpstreamDuration  prometheus.Histogram

	// Event publication
	EventsPublished prometheus.Counter
	PublishRetries  prometheus.Counter
	EventsDropped   prometheus.Counter

	// Consumers
	EventsConsumed  *prometheus.CounterVec
	ConsumeFailures *prometheus.CounterVec

	// Anomaly detection
	AlertsSent prometheus.Counter
}

// New creates a collector with all metrics registered on the default
// registry.
func New() *Collector {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a collector registered on the given registerer.
func NewWith(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "evaluations_total",
				Help:      "Total evaluation requests by outcome",
			},
			[]string{"outcome"},
		),
		ResponseCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "response_cache_hits_total",
				Help:      "Total responses served from the response cache",
			},
		),
		QuotaRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "quota_rejections_total",
				Help:      "Total soft quota rejections by reason",
			},
			[]string{"reason"},
		),
		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "metergate",
				Name:      "upstream_duration_seconds",
				Help:      "Upstream call duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		EventsPublished: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "events_published_total",
				Help:      "Total call events appended to the log",
			},
		),
		PublishRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "publish_retries_total",
				Help:      "Total publish attempts retried after an error",
			},
		),
		EventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "events_dropped_total",
				Help:      "Total call events dropped after exhausted retries or a full queue",
			},
		),
		EventsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "events_consumed_total",
				Help:      "Total events consumed per consumer group",
			},
			[]string{"group"},
		),
		ConsumeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "consume_failures_total",
				Help:      "Total event handling failures per consumer group",
			},
			[]string{"group"},
		),
		AlertsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "alerts_sent_total",
				Help:      "Total anomaly alerts sent",
			},
		),
	}
}

// Outcome labels for EvaluationsTotal.
const (
	OutcomeSuccess       = "success"
	OutcomeCacheHit      = "cache_hit"
	OutcomeQuotaRejected = "quota_rejected"
	OutcomeAuthRejected  = "auth_rejected"
	OutcomeUpstreamError = "upstream_error"
	OutcomeInternalError = "internal_error"
)
