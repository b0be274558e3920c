package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// Stream is an in-memory implementation of ports.EventStream. Every
// consumer group keeps an independent cursor over the shared log, and
// unacked messages are redelivered on the next Read.
type Stream struct {
	mu      sync.Mutex
	log     []ports.StreamMessage
	cursors map[string]int             // next undelivered index per group
	pending map[string]map[string]bool // unacked IDs per group

	// AppendErr, when set, is returned by Append.
	AppendErr error
}

// NewStream creates a new in-memory event stream.
func NewStream() *Stream {
	return &Stream{
		cursors: make(map[string]int),
		pending: make(map[string]map[string]bool),
	}
}

// Append publishes one event to the log.
func (s *Stream) Append(ctx context.Context, e event.CallEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AppendErr != nil {
		return s.AppendErr
	}
	id := fmt.Sprintf("%d-0", len(s.log)+1)
	s.log = append(s.log, ports.StreamMessage{ID: id, Event: e})
	return nil
}

// Read delivers up to batch undelivered messages for the group. Unacked
// messages from earlier reads are delivered first.
func (s *Stream) Read(ctx context.Context, group, consumer string, batch int64, block time.Duration) ([]ports.StreamMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[group] == nil {
		s.pending[group] = make(map[string]bool)
	}

	var out []ports.StreamMessage
	for _, m := range s.log {
		if int64(len(out)) >= batch {
			break
		}
		if s.pending[group][m.ID] {
			out = append(out, m)
		}
	}

	cursor := s.cursors[group]
	for cursor < len(s.log) && int64(len(out)) < batch {
		m := s.log[cursor]
		s.pending[group][m.ID] = true
		out = append(out, m)
		cursor++
	}
	s.cursors[group] = cursor

	return out, nil
}

// Ack commits message IDs for the group.
func (s *Stream) Ack(ctx context.Context, group string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.pending[group], id)
	}
	return nil
}

// Events returns a copy of every event appended so far.
func (s *Stream) Events() []event.CallEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]event.CallEvent, len(s.log))
	for i, m := range s.log {
		out[i] = m.Event
	}
	return out
}

// PendingCount returns the number of unacked messages for a group.
func (s *Stream) PendingCount(group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[group])
}

var _ ports.EventStream = (*Stream)(nil)
