package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEMGR_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEMGR_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "TRADEMGR_BROKER_BASE_URL")
	setStr(&cfg.Broker.Username, "TRADEMGR_BROKER_USERNAME")
	setStr(&cfg.Broker.APIKey, "TRADEMGR_BROKER_API_KEY")
	setStr(&cfg.Broker.Password, "TRADEMGR_BROKER_PASSWORD")
	setStr(&cfg.Broker.AccountID, "TRADEMGR_BROKER_ACCOUNT_ID")

	// ── Monitor ──
	setDuration(&cfg.Monitor.PollInterval, "TRADEMGR_MONITOR_POLL_INTERVAL")
	setDuration(&cfg.Monitor.PollMinGap, "TRADEMGR_MONITOR_POLL_MIN_GAP")
	setDuration(&cfg.Monitor.StreamMinGap, "TRADEMGR_MONITOR_STREAM_MIN_GAP")
	setFloat64(&cfg.Monitor.MaxPriceDeviation, "TRADEMGR_MONITOR_MAX_PRICE_DEVIATION")

	// ── Updater ──
	setDuration(&cfg.Updater.ThrottleWindow, "TRADEMGR_UPDATER_THROTTLE_WINDOW")
	setFloat64(&cfg.Updater.Epsilon, "TRADEMGR_UPDATER_EPSILON")
	setInt(&cfg.Updater.RetryAttempts, "TRADEMGR_UPDATER_RETRY_ATTEMPTS")
	setDuration(&cfg.Updater.RetryDelay, "TRADEMGR_UPDATER_RETRY_DELAY")
	setFloat64(&cfg.Updater.RetryBackoff, "TRADEMGR_UPDATER_RETRY_BACKOFF")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRADEMGR_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRADEMGR_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEMGR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEMGR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEMGR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEMGR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEMGR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEMGR_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEMGR_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEMGR_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEMGR_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADEMGR_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADEMGR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEMGR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEMGR_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEMGR_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEMGR_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEMGR_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEMGR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEMGR_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEMGR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEMGR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEMGR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEMGR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEMGR_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADEMGR_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "TRADEMGR_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "TRADEMGR_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Archive.BatchSize, "TRADEMGR_ARCHIVE_BATCH_SIZE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEMGR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEMGR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEMGR_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEMGR_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEMGR_MODE")
	setStr(&cfg.LogLevel, "TRADEMGR_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
