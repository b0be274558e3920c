// Package gateway provides the value types flowing through the request
// evaluation pipeline. This package has NO dependencies on I/O.
package gateway

// Request is one inbound evaluation request: the bearer key plus the
// structural descriptor of the upstream call to make.
type Request struct {
	APIKey   string `json:"-"`
	Method   string `json:"method"`
	BaseURL  string `json:"base_url"`
	Endpoint string `json:"endpoint"`
}

// CacheKey derives the deterministic response-cache key for the request.
// Returns ok=false when any component of the triple is missing, in which
// case caching is bypassed entirely.
func (r Request) CacheKey() (string, bool) {
	if r.Method == "" || r.BaseURL == "" || r.Endpoint == "" {
		return "", false
	}
	return r.Method + ":" + r.BaseURL + r.Endpoint, true
}

// URL is the full upstream URL for the request.
func (r Request) URL() string {
	return r.BaseURL + r.Endpoint
}

// KeyContext is the identity resolved by the key validator and carried
// through the rest of the pipeline.
type KeyContext struct {
	APIKey   string
	APIID    string
	ClientID string
	UserID   string

	// Marker is a non-fatal error annotation (quota exhaustion, counter
	// store failure). A marked request continues downstream so that the
	// rejection is still published as a call event.
	Marker string
}

// ErrorResponse is a user-visible failure: HTTP status, machine code,
// and human message (value type).
type ErrorResponse struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	return e.Message
}

// Predefined error responses for the evaluation pipeline.
var (
	ErrMissingKey = ErrorResponse{
		Status:  401,
		Code:    "missing_api_key",
		Message: "Authorization API key is required",
	}
	ErrInvalidKey = ErrorResponse{
		Status:  403,
		Code:    "invalid_api_key",
		Message: "Invalid or inactive API key",
	}
	ErrInvalidKeyCached = ErrorResponse{
		Status:  403,
		Code:    "invalid_api_key",
		Message: "Invalid or inactive API key (cached)",
	}
	ErrIncompleteKey = ErrorResponse{
		Status:  400,
		Code:    "incomplete_key",
		Message: "Missing API key, client ID, or API ID",
	}
	ErrUpstream = ErrorResponse{
		Status:  500,
		Code:    "upstream_error",
		Message: "Failed to fetch data from upstream",
	}
	ErrInternal = ErrorResponse{
		Status:  500,
		Code:    "internal_error",
		Message: "Internal server error",
	}
)

// QuotaError builds the 400 response carrying a soft-reject marker.
func QuotaError(marker string) *ErrorResponse {
	return &ErrorResponse{
		Status:  400,
		Code:    "request_rejected",
		Message: marker,
	}
}
