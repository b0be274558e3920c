package memory

import (
	"sync"

	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// Publisher is a synchronous in-memory implementation of
// ports.EventPublisher that records every published event.
type Publisher struct {
	mu     sync.Mutex
	events []event.CallEvent
}

// NewPublisher creates a new recording publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish records the event.
func (p *Publisher) Publish(e event.CallEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// Close is a no-op.
func (p *Publisher) Close() error { return nil }

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []event.CallEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.CallEvent, len(p.events))
	copy(out, p.events)
	return out
}

var _ ports.EventPublisher = (*Publisher)(nil)
