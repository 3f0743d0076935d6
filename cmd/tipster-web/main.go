package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/tipsterhq/tipster-web/config"
	"github.com/tipsterhq/tipster-web/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		bootstrap.InitLogger("info").ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}

	logger := bootstrap.InitLogger(cfg.LogLevel)
	if err := run(ctx, &cfg, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	logStartupInfo(ctx, logger, cfg)

	redisClient, err := bootstrap.ConnectRedis(ctx, bootstrap.RedisDeps{Config: cfg.Redis, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer closeRedis(ctx, logger, redisClient)
	}

	app, err := bootstrap.NewApp(bootstrap.AppDeps{
		Config: *cfg,
		Redis:  redisClient,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("wire app: %w", err)
	}

	runErr := app.Run(ctx)
	if closeErr := app.Close(); closeErr != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close app: %w", closeErr))
	}
	return runErr
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting tipster-web",
		"addr", cfg.HTTP.Addr,
		"auth_mode", cfg.Auth.Mode,
		"api_base_url", cfg.API.BaseURL,
		"redis_enabled", cfg.Redis.Enabled,
		"dev", cfg.IsDev)
}

func closeRedis(ctx context.Context, logger *slog.Logger, client redis.UniversalClient) {
	if err := client.Close(); err != nil {
		logger.ErrorContext(ctx, "close redis failed", "error", err)
	}
}
