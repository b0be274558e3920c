// Package stream provides the event publisher and the durable log
// consumers that derive analytics, realtime counters, and anomaly
// alerts from call events.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/adapters/metrics"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// Publisher buffers call events and appends them to the durable log
// from a background worker. Publish never blocks the request path: a
// saturated buffer drops the event, and an append error is retried a
// bounded number of times before the event is dropped.
type Publisher struct {
	stream ports.EventStream
	log    zerolog.Logger
	mx     *metrics.Collector

	retries int
	backoff time.Duration

	ch        chan event.CallEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// PublisherConfig contains configuration for Publisher.
type PublisherConfig struct {
	BufferSize int
	Retries    int
	Backoff    time.Duration
}

// NewPublisher creates a publisher and starts its worker.
func NewPublisher(stream ports.EventStream, mx *metrics.Collector, logger zerolog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 10
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 300 * time.Millisecond
	}

	p := &Publisher{
		stream:  stream,
		log:     logger,
		mx:      mx,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		ch:      make(chan event.CallEvent, cfg.BufferSize),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Publish queues an event. Never blocks; on a full buffer the event is
// dropped and counted.
func (p *Publisher) Publish(e event.CallEvent) {
	select {
	case p.ch <- e:
	default:
		p.mx.EventsDropped.Inc()
		p.log.Error().Str("apiId", e.APIID).Msg("publish buffer full, event dropped")
	}
}

// Close stops accepting events, drains the buffer, and waits for the
// worker to finish.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.ch)
		p.wg.Wait()
	})
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()

	for e := range p.ch {
		p.append(e)
	}
}

func (p *Publisher) append(e event.CallEvent) {
	for attempt := 0; attempt < p.retries; attempt++ {
		if attempt > 0 {
			p.mx.PublishRetries.Inc()
			time.Sleep(p.backoff)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.stream.Append(ctx, e)
		cancel()
		if err == nil {
			p.mx.EventsPublished.Inc()
			return
		}
		p.log.Warn().Err(err).Int("attempt", attempt+1).Msg("event append failed")
	}

	p.mx.EventsDropped.Inc()
	p.log.Error().Str("apiId", e.APIID).Msg("event dropped after exhausted retries")
}

var _ ports.EventPublisher = (*Publisher)(nil)
