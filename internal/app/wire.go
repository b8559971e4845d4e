package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "trademgr/internal/blob/s3"
	"trademgr/internal/cache/redis"
	"trademgr/internal/config"
	"trademgr/internal/domain"
	"trademgr/internal/monitor"
	"trademgr/internal/notify"
	"trademgr/internal/platform/ironbeam"
	"trademgr/internal/store/postgres"
	"trademgr/internal/updater"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Broker
	Broker *ironbeam.Client

	// Runtime
	Manager *monitor.Manager
	Updater *updater.Throttled

	// Optional side channels (nil when disabled in config)
	Journal    domain.AdjustmentJournal
	PriceCache domain.PriceCache
	Archiver   *s3blob.JournalArchiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- IronBeam REST client ---
	broker := ironbeam.NewClient(
		cfg.Broker.BaseURL,
		cfg.Broker.Username,
		cfg.Broker.APIKey,
		cfg.Broker.Password,
	)
	if err := broker.Authenticate(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: broker auth: %w", err)
	}
	deps.Broker = broker

	// --- Throttled updater and trade manager ---
	deps.Updater = updater.NewThrottled(broker, updater.Config{
		Window:  cfg.Updater.ThrottleWindow.Duration,
		Epsilon: cfg.Updater.Epsilon,
		Retry: updater.RetryPolicy{
			MaxAttempts:   cfg.Updater.RetryAttempts,
			InitialDelay:  cfg.Updater.RetryDelay.Duration,
			BackoffFactor: cfg.Updater.RetryBackoff,
		},
	}, logger)
	deps.Manager = monitor.NewManager(deps.Updater, monitor.ManagerConfig{
		MaxPriceDeviation: cfg.Monitor.MaxPriceDeviation,
	}, logger)

	// --- PostgreSQL adjustment journal (optional) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Journal = postgres.NewJournalStore(pgClient.Pool())
		deps.Manager.SetJournal(deps.Journal)
	}

	// --- Redis price mirror (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
	}

	// --- S3 journal archiver (optional, requires the journal) ---
	if cfg.Archive.Enabled && deps.Journal != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewJournalArchiver(
			deps.Journal,
			s3blob.NewWriter(s3Client),
			s3blob.ArchiverConfig{
				Interval:  cfg.Archive.Interval.Duration,
				Retention: time24h(cfg.Archive.RetentionDays),
				BatchSize: cfg.Archive.BatchSize,
			},
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Manager.SetNotifier(deps.Notifier)

	return deps, cleanup, nil
}
