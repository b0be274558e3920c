// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Stream   StreamConfig   `yaml:"stream"`
	Cache    CacheConfig    `yaml:"cache"`
	Quota    QuotaConfig    `yaml:"quota"`
	Anomaly  AnomalyConfig  `yaml:"anomaly"`
	Alerts   AlertConfig    `yaml:"alerts"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig configures the outbound proxy client.
type UpstreamConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// RedisConfig configures the shared cache and the event log.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig configures the persistent store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// StreamConfig configures the call-event log and its consumers.
type StreamConfig struct {
	Topic          string        `yaml:"topic"`
	ConsumerBatch  int64         `yaml:"consumer_batch"`
	ConsumerBlock  time.Duration `yaml:"consumer_block"`
	PublishRetries int           `yaml:"publish_retries"`
	PublishBackoff time.Duration `yaml:"publish_backoff"`
	BufferSize     int           `yaml:"buffer_size"`
}

// CacheConfig configures the gateway-side TTLs.
type CacheConfig struct {
	ResponseTTL    time.Duration `yaml:"response_ttl"`
	KeyTTL         time.Duration `yaml:"key_ttl"`
	NegativeKeyTTL time.Duration `yaml:"negative_key_ttl"`
	HourlyTTL      time.Duration `yaml:"hourly_ttl"`
}

// QuotaConfig configures key usage defaults for newly created keys.
type QuotaConfig struct {
	DefaultUsageLimit  int64 `yaml:"default_usage_limit"`
	DefaultHourlyLimit int64 `yaml:"default_hourly_limit"`
}

// AnomalyConfig configures the failure-burst detector.
type AnomalyConfig struct {
	Threshold int64         `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

// AlertConfig configures anomaly notifications.
type AlertConfig struct {
	Mode      string     `yaml:"mode"` // "smtp" or "none"
	Recipient string     `yaml:"recipient"`
	SMTP      SMTPConfig `yaml:"smtp,omitempty"`
}

// SMTPConfig configures the SMTP alert sender.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout:         30 * time.Second,
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
			MaxBodyBytes:    50 << 20,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "metergate.db",
		},
		Stream: StreamConfig{
			Topic:          "api-logs",
			ConsumerBatch:  64,
			ConsumerBlock:  5 * time.Second,
			PublishRetries: 10,
			PublishBackoff: 300 * time.Millisecond,
			BufferSize:     1024,
		},
		Cache: CacheConfig{
			ResponseTTL:    5 * time.Minute,
			KeyTTL:         time.Hour,
			NegativeKeyTTL: 5 * time.Minute,
			HourlyTTL:      time.Hour,
		},
		Quota: QuotaConfig{
			DefaultUsageLimit:  50,
			DefaultHourlyLimit: 10,
		},
		Anomaly: AnomalyConfig{
			Threshold: 10,
			Window:    5 * time.Minute,
		},
		Alerts: AlertConfig{
			Mode: "none",
			SMTP: SMTPConfig{
				Host:     "localhost",
				Port:     25,
				From:     "alerts@localhost",
				FromName: "Metergate",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from a YAML file, applies environment variable
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithFallback loads from the file if it exists, otherwise builds the
// configuration from defaults plus environment variables only.
func LoadWithFallback(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasEnvConfig reports whether any METERGATE_* variable is set.
func HasEnvConfig() bool {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "METERGATE_") {
			return true
		}
	}
	return false
}

// applyEnv overrides selected fields from METERGATE_* variables.
func (c *Config) applyEnv() {
	setString(&c.Server.Host, "METERGATE_SERVER_HOST")
	setInt(&c.Server.Port, "METERGATE_SERVER_PORT")
	setString(&c.Redis.Addr, "METERGATE_REDIS_ADDR")
	setString(&c.Redis.Password, "METERGATE_REDIS_PASSWORD")
	setInt(&c.Redis.DB, "METERGATE_REDIS_DB")
	setString(&c.Database.DSN, "METERGATE_DATABASE_DSN")
	setString(&c.Stream.Topic, "METERGATE_STREAM_TOPIC")
	setInt64(&c.Anomaly.Threshold, "METERGATE_ANOMALY_THRESHOLD")
	setString(&c.Alerts.Recipient, "METERGATE_ALERT_RECIPIENT")
	setString(&c.Alerts.Mode, "METERGATE_ALERT_MODE")
	setString(&c.Alerts.SMTP.Host, "METERGATE_SMTP_HOST")
	setInt(&c.Alerts.SMTP.Port, "METERGATE_SMTP_PORT")
	setString(&c.Alerts.SMTP.Username, "METERGATE_SMTP_USERNAME")
	setString(&c.Alerts.SMTP.Password, "METERGATE_SMTP_PASSWORD")
	setString(&c.Logging.Level, "METERGATE_LOG_LEVEL")
	setString(&c.Logging.Format, "METERGATE_LOG_FORMAT")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.Driver != "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be sqlite, got %q", c.Database.Driver)
	}
	if c.Stream.Topic == "" {
		return fmt.Errorf("stream.topic is required")
	}
	if c.Anomaly.Threshold < 1 {
		return fmt.Errorf("anomaly.threshold must be >= 1, got %d", c.Anomaly.Threshold)
	}
	if c.Anomaly.Window <= 0 {
		return fmt.Errorf("anomaly.window must be positive")
	}
	switch c.Alerts.Mode {
	case "", "none", "smtp":
	default:
		return fmt.Errorf("alerts.mode must be none or smtp, got %q", c.Alerts.Mode)
	}
	if c.Alerts.Mode == "smtp" && c.Alerts.Recipient == "" {
		return fmt.Errorf("alerts.recipient is required when alerts.mode is smtp")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
