package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tipsterhq/tipster-web/config"
	"github.com/tipsterhq/tipster-web/internal/bootstrap"
)

var errRedisDisabled = errors.New(
	"redis is disabled (REDIS_ENABLED=false); browsing-session state lives in the web process memory",
)

// connectRedis returns a connected client, or errRedisDisabled when the deployment keeps
// its state in memory and there is nothing for the CLI to inspect.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectRedis(cmdCtx *commandContext) (redis.UniversalClient, error) {
	if !cmdCtx.Config.Redis.Enabled {
		return nil, errRedisDisabled
	}
	client, err := bootstrap.ConnectRedis(cmdCtx.Ctx, bootstrap.RedisDeps{
		Config: cmdCtx.Config.Redis,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// withStores connects to Redis, builds the browsing-session stores and runs fn.
func withStores(cmdCtx *commandContext, browsingID string, fn func(client redis.UniversalClient, stores bootstrap.Stores) error) error {
	client, err := connectRedis(cmdCtx)
	if err != nil {
		return err
	}
	defer closeRedis(cmdCtx.Logger, client)

	stores, err := bootstrap.BuildStores(bootstrap.StoreDeps{
		Redis:         client,
		KeyPrefix:     cmdCtx.Config.Redis.KeyPrefix,
		BrowsingID:    browsingID,
		CredentialKey: cmdCtx.Config.Redis.CredentialKey,
		Session:       cmdCtx.Config.Session,
	})
	if err != nil {
		return err
	}
	return fn(client, stores)
}

func closeRedis(logger *slog.Logger, client redis.UniversalClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.Warn("redis close failed", "error", err)
	}
}

// cachePrefix is the key prefix purge-cache works on.
func cachePrefix(cfg config.RedisConfig, browsingID string, all bool) string {
	if all {
		return cfg.KeyPrefix + "query:"
	}
	return bootstrap.QueryCachePrefix(cfg.KeyPrefix, browsingID)
}
