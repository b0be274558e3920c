// Package http provides the HTTP surface of the gateway: the inbound
// API handler and the outbound upstream client.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/metergate/metergate/ports"
)

// UpstreamClient issues the proxied calls to third-party APIs.
type UpstreamClient struct {
	client *http.Client
}

// UpstreamConfig contains configuration for the upstream client.
type UpstreamConfig struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// NewUpstreamClient creates a new upstream HTTP client.
func NewUpstreamClient(cfg UpstreamConfig) *UpstreamClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}

	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &UpstreamClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Call performs the upstream request with the key as bearer credential.
// A transport-level failure returns a non-nil error; any received HTTP
// response, including 4xx/5xx, returns a result and nil error.
func (u *UpstreamClient) Call(ctx context.Context, method, rawURL, apiKey string) (ports.UpstreamResult, error) {
	start := time.Now()

	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return ports.UpstreamResult{}, fmt.Errorf("parse upstream URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return ports.UpstreamResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return ports.UpstreamResult{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20)) // 50MB limit
	if err != nil {
		return ports.UpstreamResult{}, fmt.Errorf("read response: %w", err)
	}

	return ports.UpstreamResult{
		Status:    resp.StatusCode,
		Body:      body,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Close releases idle connections.
func (u *UpstreamClient) Close() error {
	u.client.CloseIdleConnections()
	return nil
}

// Ensure interface compliance.
var _ ports.Upstream = (*UpstreamClient)(nil)
