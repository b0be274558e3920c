// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/metergate/metergate/domain/event"
	"github.com/metergate/metergate/domain/gateway"
	"github.com/metergate/metergate/domain/keymeta"
	"github.com/metergate/metergate/ports"
)

// Validator resolves an API key to its identity context: cache lookup
// with a negative entry in front of the registry, liveness and
// completeness checks, then quota accounting. Quota exhaustion does not
// reject; it attaches a marker so the call stays visible downstream.
type Validator struct {
	cache    ports.KeyCache
	registry ports.KeyRegistry
	counters ports.UsageCounters
	clock    ports.Clock
	log      zerolog.Logger

	keyTTL      time.Duration
	negativeTTL time.Duration
	hourlyTTL   time.Duration
}

// ValidatorDeps contains dependencies for Validator.
type ValidatorDeps struct {
	Cache    ports.KeyCache
	Registry ports.KeyRegistry
	Counters ports.UsageCounters
	Clock    ports.Clock
	Logger   zerolog.Logger
}

// ValidatorConfig contains configuration for Validator.
type ValidatorConfig struct {
	KeyTTL      time.Duration
	NegativeTTL time.Duration
	HourlyTTL   time.Duration
}

// NewValidator creates a new key validator.
func NewValidator(deps ValidatorDeps, cfg ValidatorConfig) *Validator {
	return &Validator{
		cache:       deps.Cache,
		registry:    deps.Registry,
		counters:    deps.Counters,
		clock:       deps.Clock,
		log:         deps.Logger,
		keyTTL:      cfg.KeyTTL,
		negativeTTL: cfg.NegativeTTL,
		hourlyTTL:   cfg.HourlyTTL,
	}
}

// Resolve validates the raw key and returns its identity context.
// A non-nil ErrorResponse is a hard reject; quota exhaustion instead
// sets KeyContext.Marker and lets the request continue.
func (v *Validator) Resolve(ctx context.Context, rawKey string) (gateway.KeyContext, *gateway.ErrorResponse) {
	if rawKey == "" {
		return gateway.KeyContext{}, &gateway.ErrMissingKey
	}
	now := v.clock.Now()

	// 1. Negative cache: known-bad keys never reach the registry (I/O)
	invalid, err := v.cache.IsInvalid(ctx, rawKey)
	if err != nil {
		v.log.Warn().Err(err).Msg("negative key cache probe failed")
	} else if invalid {
		return gateway.KeyContext{}, &gateway.ErrInvalidKeyCached
	}

	// 2. Positive cache, then registry (I/O)
	k, found, err := v.cache.Get(ctx, rawKey)
	if err != nil {
		v.log.Warn().Err(err).Msg("key cache probe failed")
		found = false
	}
	if !found {
		k, err = v.registry.Lookup(ctx, rawKey)
		if errors.Is(err, ports.ErrNotFound) {
			if err := v.cache.MarkInvalid(ctx, rawKey, v.negativeTTL); err != nil {
				v.log.Warn().Err(err).Msg("negative key cache write failed")
			}
			return gateway.KeyContext{}, &gateway.ErrInvalidKey
		}
		if err != nil {
			v.log.Error().Err(err).Msg("key registry lookup failed")
			return gateway.KeyContext{}, &gateway.ErrInternal
		}
	}

	// 3. Liveness (PURE)
	if !k.Usable(now) {
		if err := v.cache.MarkInvalid(ctx, rawKey, v.negativeTTL); err != nil {
			v.log.Warn().Err(err).Msg("negative key cache write failed")
		}
		return gateway.KeyContext{}, &gateway.ErrInvalidKey
	}

	// 4. Completeness (PURE)
	if !k.Complete() {
		return gateway.KeyContext{}, &gateway.ErrIncompleteKey
	}

	if !found {
		if err := v.cache.Set(ctx, k, v.keyTTL); err != nil {
			v.log.Warn().Err(err).Msg("key cache write failed")
		}
	}

	kc := gateway.KeyContext{
		APIKey:   k.Key,
		APIID:    k.APIID,
		ClientID: k.ClientID,
		UserID:   k.UserID,
	}

	// 5. Quota accounting (I/O + PURE). Counter store failures mark the
	// request instead of letting unmetered calls through.
	hourKey := event.HourKey(now)
	usage, err := v.counters.Current(ctx, rawKey, hourKey)
	if err != nil {
		v.log.Error().Err(err).Msg("usage counter read failed")
		kc.Marker = keymeta.MarkerInternal
		return kc, nil
	}

	marker, ok := keymeta.CheckQuota(k, usage)
	if !ok {
		kc.Marker = marker
		return kc, nil
	}

	if err := v.counters.Increment(ctx, rawKey, hourKey, v.hourlyTTL); err != nil {
		v.log.Error().Err(err).Msg("usage counter increment failed")
		kc.Marker = keymeta.MarkerInternal
		return kc, nil
	}

	// 6. Lifetime count write-back (async I/O)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := v.registry.IncrementUsage(ctx, rawKey); err != nil {
			v.log.Warn().Err(err).Str("key", rawKey).Msg("registry usage write-back failed")
		}
	}()

	return kc, nil
}
