package memory

import (
	"context"
	"sync"

	"github.com/metergate/metergate/ports"
)

// UpstreamCall records one proxied call issued through the fake.
type UpstreamCall struct {
	Method string
	URL    string
	APIKey string
}

// Upstream is a scripted in-memory implementation of ports.Upstream.
type Upstream struct {
	mu    sync.Mutex
	calls []UpstreamCall

	// Result is returned by Call when Err is nil.
	Result ports.UpstreamResult

	// Err, when set, is returned by Call as a transport failure.
	Err error
}

// NewUpstream creates a fake upstream returning a 200 with an empty body.
func NewUpstream() *Upstream {
	return &Upstream{Result: ports.UpstreamResult{Status: 200}}
}

// Call records the request and returns the scripted outcome.
func (u *Upstream) Call(ctx context.Context, method, rawURL, apiKey string) (ports.UpstreamResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.calls = append(u.calls, UpstreamCall{Method: method, URL: rawURL, APIKey: apiKey})
	if u.Err != nil {
		return ports.UpstreamResult{}, u.Err
	}
	return u.Result, nil
}

// Calls returns a copy of the recorded calls.
func (u *Upstream) Calls() []UpstreamCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]UpstreamCall, len(u.calls))
	copy(out, u.calls)
	return out
}

var _ ports.Upstream = (*Upstream)(nil)
