package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/adapters/metrics"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/domain/gateway"
	"github.com/metergate/metergate/ports"
)

// EvalResult represents the outcome of evaluating a request.
type EvalResult struct {
	Status   int
	Body     []byte
	CacheHit bool
	Error    *gateway.ErrorResponse
}

// EvaluateService is the metered proxy pipeline: key validation, the
// response cache probe, the upstream call, and event publication.
// Every authenticated request produces exactly one call event, whatever
// path it takes through the pipeline.
type EvaluateService struct {
	validator *Validator
	respCache ports.ResponseCache
	upstream  ports.Upstream
	publisher ports.EventPublisher
	metrics   *metrics.Collector
	log       zerolog.Logger

	responseTTL time.Duration
}

// EvaluateDeps contains dependencies for EvaluateService.
type EvaluateDeps struct {
	Validator *Validator
	RespCache ports.ResponseCache
	Upstream  ports.Upstream
	Publisher ports.EventPublisher
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// EvaluateConfig contains configuration for EvaluateService.
type EvaluateConfig struct {
	ResponseTTL time.Duration
}

// NewEvaluateService creates a new evaluation service.
func NewEvaluateService(deps EvaluateDeps, cfg EvaluateConfig) *EvaluateService {
	return &EvaluateService{
		validator:   deps.Validator,
		respCache:   deps.RespCache,
		upstream:    deps.Upstream,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		log:         deps.Logger,
		responseTTL: cfg.ResponseTTL,
	}
}

// Evaluate processes one metered request end to end.
func (s *EvaluateService) Evaluate(ctx context.Context, req gateway.Request) (res EvalResult) {
	// 1. Resolve identity (I/O). Hard rejects carry no identity and
	// publish no event.
	kc, errResp := s.validator.Resolve(ctx, req.APIKey)
	if errResp != nil {
		s.metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeAuthRejected).Inc()
		return EvalResult{Error: errResp}
	}

	published := false
	publish := func(status int, rtMs int64, errType string, cacheHit bool) {
		if published {
			return
		}
		published = true
		e := event.New(kc.APIID, kc.ClientID, kc.APIKey, status, rtMs, errType, cacheHit)
		if kc.UserID != "" {
			e = e.WithUser(kc.UserID)
		}
		s.publisher.Publish(e)
	}

	// The one-event contract must hold even if a pipeline step panics.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("evaluation panicked")
			s.metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeInternalError).Inc()
			publish(500, 0, gateway.ErrInternal.Message, false)
			res = EvalResult{Error: &gateway.ErrInternal}
		}
	}()

	// 2. Soft quota rejection (PURE): logged as a 400 event so exhausted
	// keys stay visible in analytics.
	if kc.Marker != "" {
		s.metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeQuotaRejected).Inc()
		s.metrics.QuotaRejections.WithLabelValues(kc.Marker).Inc()
		publish(400, 0, kc.Marker, false)
		return EvalResult{Error: gateway.QuotaError(kc.Marker)}
	}

	// 3. Response cache probe (I/O). An incomplete request triple
	// bypasses caching on both read and write.
	cacheKey, cacheable := req.CacheKey()
	if cacheable {
		body, found, err := s.respCache.Get(ctx, cacheKey)
		if err != nil {
			s.log.Warn().Err(err).Msg("response cache probe failed")
		} else if found {
			s.metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeCacheHit).Inc()
			s.metrics.ResponseCacheHits.Inc()
			publish(200, 0, "", true)
			return EvalResult{Status: 200, Body: body, CacheHit: true}
		}
	}

	// 4. Upstream call (I/O)
	result, err := s.upstream.Call(ctx, req.Method, req.URL(), kc.APIKey)
	if err != nil {
		s.log.Error().Err(err).Str("url", req.URL()).Msg("upstream call failed")
		s.metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeUpstreamError).Inc()
		publish(500, 0, gateway.ErrUpstream.Message, false)
		return EvalResult{Error: &gateway.ErrUpstream}
	}
	s.metrics.UpstreamDuration.Observe(float64(result.LatencyMs) / 1000)

	// 5. Upstream HTTP failure: the event keeps the upstream status, the
	// caller gets an opaque 500.
	if !event.Success(result.Status) {
		s.metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeUpstreamError).Inc()
		publish(result.Status, result.LatencyMs, fmt.Sprintf("HTTP %d", result.Status), false)
		return EvalResult{Error: &gateway.ErrUpstream}
	}

	// 6. Success: populate the cache and pass the body through verbatim.
	if cacheable {
		if err := s.respCache.Set(ctx, cacheKey, result.Body, s.responseTTL); err != nil {
			s.log.Warn().Err(err).Msg("response cache write failed")
		}
	}
	s.metrics.EvaluationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	publish(result.Status, result.LatencyMs, "", false)
	return EvalResult{Status: result.Status, Body: result.Body}
}
