package stream

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/adapters/metrics"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// Handler processes one call event for a consumer group.
type Handler interface {
	// Group is the consumer group this handler reads as.
	Group() string

	// Handle processes one event. An error is logged and counted; the
	// message is still acknowledged, so delivery is at-least-once with
	// no poison-message loops.
	Handle(ctx context.Context, e event.CallEvent) error
}

// Runner drives one handler against the durable log: read a batch for
// the handler's group, process each message, acknowledge, repeat until
// the context is cancelled.
type Runner struct {
	stream   ports.EventStream
	handler  Handler
	log      zerolog.Logger
	mx       *metrics.Collector
	consumer string
	batch    int64
	block    time.Duration
}

// RunnerConfig contains configuration for Runner.
type RunnerConfig struct {
	Consumer string
	Batch    int64
	Block    time.Duration
}

// NewRunner creates a consumer loop for one handler.
func NewRunner(stream ports.EventStream, handler Handler, mx *metrics.Collector, logger zerolog.Logger, cfg RunnerConfig) *Runner {
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 64
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	return &Runner{
		stream:   stream,
		handler:  handler,
		log:      logger.With().Str("group", handler.Group()).Logger(),
		mx:       mx,
		consumer: cfg.Consumer,
		batch:    cfg.Batch,
		block:    cfg.Block,
	}
}

// Run consumes until ctx is cancelled. Returns nil on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	group := r.handler.Group()
	r.log.Info().Str("consumer", r.consumer).Msg("consumer started")

	for {
		if ctx.Err() != nil {
			r.log.Info().Msg("consumer stopped")
			return nil
		}

		msgs, err := r.stream.Read(ctx, group, r.consumer, r.batch, r.block)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info().Msg("consumer stopped")
				return nil
			}
			r.log.Error().Err(err).Msg("stream read failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, m := range r.Process(ctx, msgs) {
			if err := r.stream.Ack(ctx, group, m); err != nil {
				r.log.Warn().Err(err).Str("id", m).Msg("ack failed")
			}
		}
	}
}

// Process handles a batch and returns the IDs to acknowledge. Handler
// errors do not withhold the ack: redelivering an event the handler
// cannot process would stall the group permanently.
func (r *Runner) Process(ctx context.Context, msgs []ports.StreamMessage) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if err := r.handler.Handle(ctx, m.Event); err != nil {
			r.mx.ConsumeFailures.WithLabelValues(r.handler.Group()).Inc()
			r.log.Error().Err(err).Str("id", m.ID).Msg("event handling failed")
		} else {
			r.mx.EventsConsumed.WithLabelValues(r.handler.Group()).Inc()
		}
		ids = append(ids, m.ID)
	}
	return ids
}
