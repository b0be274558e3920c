// Package bootstrap wires all dependencies and runs the application.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/metergate/metergate/adapters/clock"
	"github.com/metergate/metergate/adapters/email"
	apihttp "github.com/metergate/metergate/adapters/http"
	"github.com/metergate/metergate/adapters/metrics"
	"github.com/metergate/metergate/adapters/redisstore"
	"github.com/metergate/metergate/adapters/sqlite"
	"github.com/metergate/metergate/app"
	"github.com/metergate/metergate/config"
	"github.com/metergate/metergate/ports"
	"github.com/metergate/metergate/stream"
)

// sweepInterval is how often exhausted keys are purged from the registry.
const sweepInterval = time.Hour

// App holds the wired application.
type App struct {
	Logger  zerolog.Logger
	Config  *config.Holder
	DB      *sqlite.DB
	Redis   *redis.Client
	Metrics *metrics.Collector

	Registry  ports.KeyRegistry
	Evaluate  *app.EvaluateService
	Analytics *app.AnalyticsService

	httpServer *http.Server
	publisher  ports.EventPublisher
	upstream   *apihttp.UpstreamClient
	runners    []*stream.Runner
	anomaly    *stream.Anomaly
}

// New wires the full application from configuration.
func New(holder *config.Holder) (*App, error) {
	cfg := holder.Get()
	logger := SetupLogger(cfg.Logging)

	a := &App{
		Logger:  logger,
		Config:  holder,
		Metrics: metrics.New(),
	}

	logger.Info().Msg("initializing metergate")

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

	rdb, err := redisstore.Open(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.Redis = rdb
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	clk := clock.Real{}
	a.Registry = sqlite.NewKeyRegistry(db)
	analyticsStore := sqlite.NewAnalyticsStore(db, clk)
	eventStream := redisstore.NewStream(rdb, cfg.Stream.Topic)

	a.publisher = stream.NewPublisher(eventStream, a.Metrics, logger, stream.PublisherConfig{
		BufferSize: cfg.Stream.BufferSize,
		Retries:    cfg.Stream.PublishRetries,
		Backoff:    cfg.Stream.PublishBackoff,
	})

	validator := app.NewValidator(app.ValidatorDeps{
		Cache:    redisstore.NewKeyCache(rdb),
		Registry: a.Registry,
		Counters: redisstore.NewUsageCounters(rdb),
		Clock:    clk,
		Logger:   logger,
	}, app.ValidatorConfig{
		KeyTTL:      cfg.Cache.KeyTTL,
		NegativeTTL: cfg.Cache.NegativeKeyTTL,
		HourlyTTL:   cfg.Cache.HourlyTTL,
	})

	a.upstream = apihttp.NewUpstreamClient(apihttp.UpstreamConfig{
		Timeout:         cfg.Upstream.Timeout,
		MaxIdleConns:    cfg.Upstream.MaxIdleConns,
		IdleConnTimeout: cfg.Upstream.IdleConnTimeout,
	})

	a.Evaluate = app.NewEvaluateService(app.EvaluateDeps{
		Validator: validator,
		RespCache: redisstore.NewResponseCache(rdb),
		Upstream:  a.upstream,
		Publisher: a.publisher,
		Metrics:   a.Metrics,
		Logger:    logger,
	}, app.EvaluateConfig{
		ResponseTTL: cfg.Cache.ResponseTTL,
	})

	a.Analytics = app.NewAnalyticsService(analyticsStore)

	// Consumers: each group reads the full log independently.
	aggregator := stream.NewAggregator(analyticsStore, logger)
	realtime := stream.NewRealtime(redisstore.NewStatsCache(rdb), analyticsStore, clk, logger, cfg.Cache.HourlyTTL)
	a.anomaly = stream.NewAnomaly(redisstore.NewBurstCounter(rdb), a.alertSender(cfg), a.Metrics, logger, stream.AnomalyConfig{
		Threshold: cfg.Anomaly.Threshold,
		Window:    cfg.Anomaly.Window,
		AlertTo:   cfg.Alerts.Recipient,
	})

	runnerCfg := stream.RunnerConfig{
		Batch: cfg.Stream.ConsumerBatch,
		Block: cfg.Stream.ConsumerBlock,
	}
	for _, h := range []stream.Handler{aggregator, realtime, a.anomaly} {
		a.runners = append(a.runners, stream.NewRunner(eventStream, h, a.Metrics, logger, runnerCfg))
	}

	holder.OnChange(func(c *config.Config) {
		a.anomaly.SetThreshold(c.Anomaly.Threshold)
		logger.Info().Int64("threshold", c.Anomaly.Threshold).Msg("anomaly threshold applied")
	})

	handler := apihttp.NewHandler(a.Evaluate, a.Analytics, logger)
	a.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

func (a *App) alertSender(cfg *config.Config) ports.AlertSender {
	if cfg.Alerts.Mode == "smtp" {
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Alerts.SMTP.Host,
			Port:     cfg.Alerts.SMTP.Port,
			Username: cfg.Alerts.SMTP.Username,
			Password: cfg.Alerts.SMTP.Password,
			From:     cfg.Alerts.SMTP.From,
			FromName: cfg.Alerts.SMTP.FromName,
		})
	}
	return email.NewNoopSender(a.Logger)
}

// Run starts the HTTP server, the stream consumers, and the registry
// sweeper, then blocks until ctx is cancelled and everything has shut
// down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().Str("addr", a.httpServer.Addr).Msg("http server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	for _, r := range a.runners {
		r := r
		g.Go(func() error { return r.Run(ctx) })
	}

	g.Go(func() error { return a.sweepLoop(ctx) })

	err := g.Wait()
	a.Close()
	return err
}

// RunConsumers starts only the stream consumers, without the HTTP
// server. Used to scale event processing separately from the gateway.
func (a *App) RunConsumers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, r := range a.runners {
		r := r
		g.Go(func() error { return r.Run(ctx) })
	}

	err := g.Wait()
	a.Close()
	return err
}

// sweepLoop periodically purges expired and exhausted keys.
func (a *App) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := a.Registry.DeleteExhausted(sweepCtx, time.Now())
			cancel()
			if err != nil {
				a.Logger.Error().Err(err).Msg("key sweep failed")
			} else if n > 0 {
				a.Logger.Info().Int64("removed", n).Msg("exhausted keys purged")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases all resources. Safe to call after Run returns.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.upstream != nil {
		a.upstream.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	a.Logger.Info().Msg("shutdown complete")
}

// SetupLogger builds the process logger from logging configuration.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
