package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/adapters/metrics"
	"github.com/metergate/metergate/domain/anomaly"
	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/ports"
)

// AnomalyGroup is the consumer group owning the failure-burst detector.
const AnomalyGroup = "anomaly-group"

// Anomaly watches for failure bursts: when an API accumulates enough
// failed calls inside the rolling window, one alert is sent and the
// counter resets, so a sustained burst produces at most one alert per
// window-crossing.
type Anomaly struct {
	counter ports.BurstCounter
	alerter ports.AlertSender
	log     zerolog.Logger
	mx      *metrics.Collector

	threshold atomic.Int64
	window    time.Duration
	alertTo   string
}

// AnomalyConfig contains configuration for Anomaly.
type AnomalyConfig struct {
	Threshold int64
	Window    time.Duration
	AlertTo   string
}

// NewAnomaly creates the failure-burst handler.
func NewAnomaly(counter ports.BurstCounter, alerter ports.AlertSender, mx *metrics.Collector, logger zerolog.Logger, cfg AnomalyConfig) *Anomaly {
	if cfg.Threshold <= 0 {
		cfg.Threshold = anomaly.DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = anomaly.DefaultWindow
	}
	a := &Anomaly{
		counter: counter,
		alerter: alerter,
		log:     logger,
		mx:      mx,
		window:  cfg.Window,
		alertTo: cfg.AlertTo,
	}
	a.threshold.Store(cfg.Threshold)
	return a
}

// SetThreshold updates the alert threshold. Safe to call while the
// consumer is running.
func (a *Anomaly) SetThreshold(n int64) {
	if n <= 0 {
		n = anomaly.DefaultThreshold
	}
	a.threshold.Store(n)
}

// Group implements Handler.
func (a *Anomaly) Group() string { return AnomalyGroup }

// Handle counts a failed call and fires an alert when the burst
// threshold is crossed.
func (a *Anomaly) Handle(ctx context.Context, e event.CallEvent) error {
	if !e.Failed() {
		return nil
	}

	count, err := a.counter.Increment(ctx, e.APIID, a.window)
	if err != nil {
		return err
	}

	d := anomaly.Evaluate(count, a.threshold.Load())
	if !d.Alert {
		return nil
	}

	a.log.Warn().Str("apiId", e.APIID).Int64("failures", d.Count).Msg("failure burst detected")

	if err := a.alerter.Send(ctx, a.alertTo, anomaly.AlertSubject(e.APIID), anomaly.AlertBody(e.APIID, d.Count, a.window)); err != nil {
		// Keep the counter so the next failure retries the alert.
		return err
	}
	a.mx.AlertsSent.Inc()

	return a.counter.Reset(ctx, e.APIID)
}

var _ Handler = (*Anomaly)(nil)
