package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fitfriends/backend/internal/auth"
	"github.com/fitfriends/backend/internal/config"
	"github.com/fitfriends/backend/internal/db"
	"github.com/fitfriends/backend/internal/feed"
	"github.com/fitfriends/backend/internal/handlers"
	"github.com/fitfriends/backend/internal/metrics"
	"github.com/fitfriends/backend/internal/middleware"
	"github.com/fitfriends/backend/internal/notify"
	"github.com/fitfriends/backend/internal/posts"
	"github.com/fitfriends/backend/internal/profiles"
	"github.com/fitfriends/backend/internal/realtime"
	"github.com/fitfriends/backend/internal/repositories"
	"github.com/fitfriends/backend/internal/social"
)

// dependencies holds everything serve needs beyond the route table.
type dependencies struct {
	handlers.Dependencies
	Metrics        *metrics.Metrics
	SessionManager *auth.Manager
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup drains background workers and closes external clients.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (dependencies, func(context.Context) error, error) {
	logger := slog.Default()
	m := metrics.New()

	var broker realtime.Broker
	if cfg.NATSURL != "" {
		nb, err := realtime.ConnectNATS(cfg.NATSURL, logger, m.ChangeDropped)
		if err != nil {
			return dependencies{}, nil, err
		}
		broker = nb
	} else {
		broker = realtime.NewMemoryBroker(logger, m.ChangeDropped)
	}

	users := repositories.NewPostgresUserRepository(pool)
	postRepo := repositories.NewPostgresPostRepository(pool)
	notifications := repositories.NewPostgresNotificationRepository(pool)

	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return err
			}
			defer conn.Release()
			return conn.Ping(ctx)
		},
	}

	var (
		lookup      feed.ProfileLookup
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		lookup = profiles.NewRedisCache(redisClient, users, cfg.ProfileCacheTTL)
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		lookup = profiles.NewCachingLookup(users, cfg.ProfileCacheTTL)
	}

	dispatcher := notify.NewDispatcher(notifications, broker, notify.Config{
		Workers:   cfg.Notifications.Workers,
		QueueSize: cfg.Notifications.QueueSize,
	}, logger, func(stage string) {
		m.SideEffectFailed("notification", stage)
	})

	sessions := auth.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, repositories.NewPostgresSessionStore(pool))

	relationships := social.NewService(
		repositories.NewPostgresFollowRepository(pool),
		repositories.NewPostgresFriendshipRepository(pool),
		lookup,
		dispatcher,
		social.WithFailureRecorder(m),
	)

	deps := dependencies{
		Dependencies: handlers.Dependencies{
			Users:         users,
			Sessions:      sessions,
			Relationships: relationships,
			Identity:      auth.ContextIdentity{},
			Posts:         posts.NewService(postRepo, broker),
			Notifications: notifications,
			Pager:         feed.NewPager(postRepo, lookup),
			Changes:       broker,
			FeedRecorder:  m,
			Limiter:       middleware.NewKeyedRateLimiter(cfg.RateLimit),
			HealthChecks:  checks,
		},
		Metrics:        m,
		SessionManager: sessions,
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		if err := dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown dispatcher: %w", err))
		}
		if err := broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	return deps, cleanup, nil
}
