package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// Stream is a durable append-only event log on a Redis stream. Each
// consumer group keeps its own delivery cursor, so independent
// consumers replay the same history at their own pace.
type Stream struct {
	rdb   *redis.Client
	topic string
}

func NewStream(rdb *redis.Client, topic string) *Stream {
	return &Stream{rdb: rdb, topic: topic}
}

// Append writes one event to the tail of the log.
func (s *Stream) Append(ctx context.Context, e event.CallEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.topic,
		Values: map[string]interface{}{"event": payload},
	}).Err()
}

// Read fetches up to batch undelivered entries for the group, blocking
// up to block when the log is empty. A missing group is created at the
// start of the stream so new consumers see the full history.
func (s *Stream) Read(ctx context.Context, group, consumer string, batch int64, block time.Duration) ([]ports.StreamMessage, error) {
	if err := s.ensureGroup(ctx, group); err != nil {
		return nil, err
	}

	streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{s.topic, ">"},
		Count:    batch,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []ports.StreamMessage
	for _, st := range streams {
		for _, m := range st.Messages {
			raw, ok := m.Values["event"].(string)
			if !ok {
				continue
			}
			var e event.CallEvent
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				continue
			}
			msgs = append(msgs, ports.StreamMessage{ID: m.ID, Event: e})
		}
	}
	return msgs, nil
}

// Ack marks entries as processed for the group. Unacked entries stay
// in the group's pending list and survive consumer crashes.
func (s *Stream) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.rdb.XAck(ctx, s.topic, group, ids...).Err()
}

func (s *Stream) ensureGroup(ctx context.Context, group string) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

var _ ports.EventStream = (*Stream)(nil)
