package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/metergate/metergate/app"
	"github.com/metergate/metergate/domain/gateway"
	"github.com/metergate/metergate/ports"
)

// Handler is the gateway's HTTP API: the evaluation endpoint plus the
// analytics read endpoints.
type Handler struct {
	evaluate  *app.EvaluateService
	analytics *app.AnalyticsService
	logger    zerolog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(evaluate *app.EvaluateService, analytics *app.AnalyticsService, logger zerolog.Logger) *Handler {
	return &Handler{
		evaluate:  evaluate,
		analytics: analytics,
		logger:    logger,
	}
}

// Router builds the chi router for the gateway API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/eval", h.handleEval)
	r.Get("/eval", h.handleEval)

	r.Get("/analytics/api/{apiID}", h.handleAPIStats)
	r.Get("/analytics/client/{clientID}", h.handleClientStats)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEval runs one request through the metered proxy pipeline. The
// upstream call descriptor comes from the JSON body on POST and from
// query parameters on GET.
func (h *Handler) handleEval(w http.ResponseWriter, r *http.Request) {
	req, errResp := parseEvalRequest(r)
	if errResp != nil {
		writeError(w, errResp)
		return
	}

	result := h.evaluate.Evaluate(r.Context(), req)

	h.logger.Info().
		Str("method", req.Method).
		Str("endpoint", req.Endpoint).
		Bool("cacheHit", result.CacheHit).
		Int("status", evalStatus(result)).
		Msg("request evaluated")

	if result.Error != nil {
		writeError(w, result.Error)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.CacheHit {
		w.Header().Set("X-Cache", "HIT")
	}
	w.WriteHeader(result.Status)
	w.Write(result.Body)
}

func (h *Handler) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	apiID := chi.URLParam(r, "apiID")

	rec, err := h.analytics.APIStats(r.Context(), apiID)
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, &gateway.ErrorResponse{
			Status:  404,
			Code:    "not_found",
			Message: "No analytics recorded for this API",
		})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("apiId", apiID).Msg("analytics query failed")
		writeError(w, &gateway.ErrInternal)
		return
	}

	writeJSON(w, http.StatusOK, recordView(rec))
}

func (h *Handler) handleClientStats(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	rollup, err := h.analytics.ClientStats(r.Context(), clientID)
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, &gateway.ErrorResponse{
			Status:  404,
			Code:    "not_found",
			Message: "No analytics recorded for this client",
		})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("clientId", clientID).Msg("analytics query failed")
		writeError(w, &gateway.ErrInternal)
		return
	}

	writeJSON(w, http.StatusOK, rollup)
}

func parseEvalRequest(r *http.Request) (gateway.Request, *gateway.ErrorResponse) {
	req := gateway.Request{APIKey: extractAPIKey(r)}

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Method = q.Get("method")
		req.BaseURL = q.Get("base_url")
		req.Endpoint = q.Get("endpoint")
	default:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil || len(body) == 0 {
			return gateway.Request{}, &gateway.ErrorResponse{
				Status:  400,
				Code:    "bad_request",
				Message: "Request body is required",
			}
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return gateway.Request{}, &gateway.ErrorResponse{
				Status:  400,
				Code:    "bad_request",
				Message: "Malformed request body",
			}
		}
		req.APIKey = extractAPIKey(r)
	}

	// An absent method is left empty: the request triple is then
	// incomplete and bypasses the response cache, while the upstream
	// client still issues a GET.
	return req, nil
}

// extractAPIKey pulls the key from the Authorization bearer header or
// the X-API-Key header.
func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func evalStatus(res app.EvalResult) int {
	if res.Error != nil {
		return res.Error.Status
	}
	return res.Status
}

func writeError(w http.ResponseWriter, e *gateway.ErrorResponse) {
	writeJSON(w, e.Status, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
