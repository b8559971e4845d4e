// Package config defines the top-level configuration for the trade manager
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEMGR_* environment variables.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Updater  UpdaterConfig  `toml:"updater"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`

	// Positions are the bracket orders to manage at startup. Each entry
	// registers with the trade manager before the scheduler starts.
	Positions []PositionConfig `toml:"positions"`
}

// BrokerConfig holds IronBeam API endpoints and credentials.
type BrokerConfig struct {
	BaseURL   string `toml:"base_url"`
	Username  string `toml:"username"`
	APIKey    string `toml:"api_key"`
	Password  string `toml:"password"`
	AccountID string `toml:"account_id"`
}

// MonitorConfig holds price-scheduling parameters. PollInterval and
// PollMinGap apply in polling mode; StreamMinGap applies in streaming mode.
type MonitorConfig struct {
	PollInterval      duration `toml:"poll_interval"`
	PollMinGap        duration `toml:"poll_min_gap"`
	StreamMinGap      duration `toml:"stream_min_gap"`
	MaxPriceDeviation float64  `toml:"max_price_deviation"`
}

// UpdaterConfig holds throttling and retry parameters for broker updates.
type UpdaterConfig struct {
	ThrottleWindow duration `toml:"throttle_window"`
	Epsilon        float64  `toml:"epsilon"`
	RetryAttempts  int      `toml:"retry_attempts"`
	RetryDelay     duration `toml:"retry_delay"`
	RetryBackoff   float64  `toml:"retry_backoff"`
}

// PostgresConfig holds connection parameters for the adjustment journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the price mirror.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds journal archiving parameters. Archiving requires both
// Postgres (the journal source) and S3 (the archive sink).
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	BatchSize     int      `toml:"batch_size"`
}

// PositionConfig declares one managed bracket order.
type PositionConfig struct {
	OrderID    string  `toml:"order_id"`
	Symbol     string  `toml:"symbol"`
	Side       string  `toml:"side"` // BUY or SELL
	EntryPrice float64 `toml:"entry_price"`
	Quantity   int     `toml:"quantity"`
	StopLoss   float64 `toml:"stop_loss"`   // 0 = no current stop loss
	TakeProfit float64 `toml:"take_profit"` // 0 = no current take profit

	Breakeven BreakevenConfig `toml:"breakeven"`
	RunningTP RunningTPConfig `toml:"running_tp"`
}

// BreakevenConfig holds auto-breakeven parameters for one position.
type BreakevenConfig struct {
	Enabled              bool      `toml:"enabled"`
	TriggerMode          string    `toml:"trigger_mode"` // ticks or percentage
	TriggerLevels        []float64 `toml:"trigger_levels"`
	SLOffsets            []float64 `toml:"sl_offsets"`
	TrailAfterCompletion bool      `toml:"trail_after_completion"`
	TrailDistance        float64   `toml:"trail_distance"`
}

// RunningTPConfig holds running take-profit parameters for one position.
type RunningTPConfig struct {
	Enabled                 bool      `toml:"enabled"`
	EnableTrailingExtremes  bool      `toml:"enable_trailing_extremes"`
	EnableProfitLevels      bool      `toml:"enable_profit_levels"`
	ProfitTriggerMode       string    `toml:"profit_trigger_mode"`
	ProfitLevelTriggers     []float64 `toml:"profit_level_triggers"`
	ExtendByTicks           float64   `toml:"extend_by_ticks"`
	TrailOffsetTicks        float64   `toml:"trail_offset_ticks"`
	ResistanceSupportLevels []float64 `toml:"resistance_support_levels"`
	TrailingLookbackTicks   int       `toml:"trailing_lookback_ticks"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			BaseURL: "https://demo.ironbeamapi.com/v2",
		},
		Monitor: MonitorConfig{
			PollInterval:      duration{1 * time.Second},
			PollMinGap:        duration{500 * time.Millisecond},
			StreamMinGap:      duration{100 * time.Millisecond},
			MaxPriceDeviation: 0.5,
		},
		Updater: UpdaterConfig{
			ThrottleWindow: duration{10 * time.Second},
			Epsilon:        0.01,
			RetryAttempts:  3,
			RetryDelay:     duration{500 * time.Millisecond},
			RetryBackoff:   2.0,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "trademgr",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "trademgr-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{1 * time.Hour},
			RetentionDays: 90,
			BatchSize:     1000,
		},
		Notify: NotifyConfig{
			Events: []string{"breakeven", "running_tp", "failure"},
		},
		Mode:     "polling",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"polling":   true,
	"streaming": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: polling, streaming)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker
	if c.Broker.BaseURL == "" {
		errs = append(errs, "broker: base_url must not be empty")
	}
	if c.Broker.Username == "" {
		errs = append(errs, "broker: username must not be empty")
	}
	if c.Broker.APIKey == "" {
		errs = append(errs, "broker: api_key must not be empty")
	}
	if c.Broker.AccountID == "" {
		errs = append(errs, "broker: account_id must not be empty")
	}

	// Monitor
	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be > 0")
	}
	if c.Monitor.PollMinGap.Duration < 0 {
		errs = append(errs, "monitor: poll_min_gap must be >= 0")
	}
	if c.Monitor.StreamMinGap.Duration < 0 {
		errs = append(errs, "monitor: stream_min_gap must be >= 0")
	}
	if c.Monitor.MaxPriceDeviation <= 0 || c.Monitor.MaxPriceDeviation > 1 {
		errs = append(errs, fmt.Sprintf("monitor: max_price_deviation must be in (0, 1], got %g", c.Monitor.MaxPriceDeviation))
	}

	// Updater
	if c.Updater.ThrottleWindow.Duration <= 0 {
		errs = append(errs, "updater: throttle_window must be > 0")
	}
	if c.Updater.Epsilon <= 0 {
		errs = append(errs, "updater: epsilon must be > 0")
	}
	if c.Updater.RetryAttempts < 1 {
		errs = append(errs, "updater: retry_attempts must be >= 1")
	}
	if c.Updater.RetryBackoff < 1 {
		errs = append(errs, "updater: retry_backoff must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres to be enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "archive: s3 bucket must not be empty")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	// Positions
	for i, p := range c.Positions {
		if p.OrderID == "" {
			errs = append(errs, fmt.Sprintf("positions[%d]: order_id must not be empty", i))
		}
		if p.Symbol == "" {
			errs = append(errs, fmt.Sprintf("positions[%d]: symbol must not be empty", i))
		}
		side := strings.ToUpper(p.Side)
		if side != "BUY" && side != "SELL" {
			errs = append(errs, fmt.Sprintf("positions[%d]: side must be BUY or SELL, got %q", i, p.Side))
		}
		if p.EntryPrice <= 0 {
			errs = append(errs, fmt.Sprintf("positions[%d]: entry_price must be > 0", i))
		}
		if p.Quantity < 1 {
			errs = append(errs, fmt.Sprintf("positions[%d]: quantity must be >= 1", i))
		}
		if !p.Breakeven.Enabled && !p.RunningTP.Enabled {
			errs = append(errs, fmt.Sprintf("positions[%d]: at least one of breakeven or running_tp must be enabled", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
