package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitfriends/backend/internal/config"
	"github.com/fitfriends/backend/internal/db"
	"github.com/fitfriends/backend/internal/handlers"
	"github.com/fitfriends/backend/internal/httpserver"
	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/middleware"
)

// Run bootstraps the FitFriends backend. Commands: serve, migrate [up|status], seed <name>.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

const sessionSweepInterval = 10 * time.Minute

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg)
	if err != nil {
		return err
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go deps.SessionManager.Sweep(sweepCtx, sessionSweepInterval, logger)

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps.Dependencies)
	mux.Handle(cfg.MetricsPath, deps.Metrics.Handler())

	var handler http.Handler = mux
	handler = middleware.Authenticate(deps.SessionManager)(handler)
	handler = deps.Metrics.Middleware(handler)
	handler = middleware.RequestLogger(logger)(handler)

	srv := httpserver.New(cfg.AppPort, handler, httpserver.Options{})

	logger.Info("starting http server", "port", cfg.AppPort, "broker", brokerKind(cfg), "profileCache", cacheKind(cfg))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil {
			_ = httpserver.Drain(nil, cleanup)
			return err
		}
	}

	return httpserver.Drain(srv, cleanup)
}

func brokerKind(cfg config.Config) string {
	if cfg.NATSURL != "" {
		return "nats"
	}
	return "memory"
}

func cacheKind(cfg config.Config) string {
	if cfg.RedisAddr != "" {
		return "redis"
	}
	return "memory"
}
