package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/agentarena/internal/blob/s3"
	"github.com/alanyoungcy/agentarena/internal/bus"
	"github.com/alanyoungcy/agentarena/internal/cache/redis"
	"github.com/alanyoungcy/agentarena/internal/config"
	"github.com/alanyoungcy/agentarena/internal/domain"
	"github.com/alanyoungcy/agentarena/internal/notify"
	"github.com/alanyoungcy/agentarena/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Matches       domain.MatchStore
	Rounds        domain.RoundStore
	Messages      domain.MessageStore
	Agents        domain.AgentStore
	Users         domain.UserStore
	Markets       domain.MarketStore
	Bets          domain.BetStore
	Stats         domain.StatsStore
	Notifications domain.NotificationStore
	Tournaments   domain.TournamentStore

	// Transport and coordination. Redis-backed in serve mode, in-memory in
	// simulate mode; LockManager and RateLimiter are nil without Redis.
	SignalBus   domain.SignalBus
	LiveCounter domain.LiveCounter
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage, nil unless S3 archival is enabled.
	Archiver    *s3blob.Archiver
	Transcripts *s3blob.Reader

	// Operator alerts.
	Notifier *notify.Notifier
}

// needsRedis returns true for modes that coordinate across processes.
func needsRedis(mode string) bool {
	return mode == "serve"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Matches = postgres.NewMatchStore(pool)
	deps.Rounds = postgres.NewRoundStore(pool)
	deps.Messages = postgres.NewMessageStore(pool)
	deps.Agents = postgres.NewAgentStore(pool)
	deps.Users = postgres.NewUserStore(pool)
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Bets = postgres.NewBetStore(pool)
	deps.Stats = postgres.NewStatsStore(pool)
	deps.Notifications = postgres.NewNotificationStore(pool)
	deps.Tournaments = postgres.NewTournamentStore(pool)

	// --- Event transport ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.Config{
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

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LiveCounter = redis.NewLiveCounter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	} else {
		deps.SignalBus = bus.NewMemoryBus()
		deps.LiveCounter = bus.NewMemoryLiveCounter()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.Config{
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

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
		deps.Transcripts = s3blob.NewReader(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
