package email

import (
	"context"
	"sync"

	"github.com/metergate/metergate/ports"
)

// SentAlert records one alert handed to the mock sender.
type SentAlert struct {
	To      string
	Subject string
	Body    string
}

// MockSender records alerts for test assertions.
type MockSender struct {
	mu   sync.Mutex
	sent []SentAlert
	fail error
}

// NewMockSender creates a mock alert sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send records the alert, or returns the configured failure.
func (s *MockSender) Send(ctx context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, SentAlert{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns a copy of the recorded alerts.
func (s *MockSender) Sent() []SentAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentAlert, len(s.sent))
	copy(out, s.sent)
	return out
}

// FailWith makes subsequent Send calls return err.
func (s *MockSender) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

var _ ports.AlertSender = (*MockSender)(nil)
