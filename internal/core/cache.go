// Package core provides the application-data caching layer shared by the API client and
// the session manager.
package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tipsterhq/tipster-web/internal/ports"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

var _ ports.DataCache = (*QueryCache)(nil)

// QueryCacheConfig holds configuration for the API query cache.
type QueryCacheConfig struct {
	// Prefix namespaces every key this cache writes.
	Prefix string `json:"prefix"`
	// TTL bounds how long a fetched response is served without refetching.
	TTL time.Duration `json:"ttl"`
}

// DefaultQueryCacheConfig returns a QueryCacheConfig with sensible defaults.
func DefaultQueryCacheConfig() QueryCacheConfig {
	return QueryCacheConfig{
		Prefix: "tipster:query:",
		TTL:    2 * time.Minute,
	}
}

// QueryCacheOptions bundles dependencies for NewQueryCache.
type QueryCacheOptions struct {
	Cache  CacheRepository
	Config QueryCacheConfig
	Logger *slog.Logger
}

// QueryCache caches API responses under generation-scoped keys. Invalidation is coarse:
// InvalidateAll switches to a fresh generation so every later read misses, and Purge
// additionally deletes everything under the prefix.
type QueryCache struct {
	cache  CacheRepository
	prefix string
	ttl    time.Duration
	logger *slog.Logger

	mu         sync.RWMutex
	generation string

	group singleflight.Group
}

// NewQueryCache creates a QueryCache. Zero config values fall back to defaults.
func NewQueryCache(opts QueryCacheOptions) *QueryCache {
	def := DefaultQueryCacheConfig()
	cfg := opts.Config
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &QueryCache{
		cache:      opts.Cache,
		prefix:     cfg.Prefix,
		ttl:        cfg.TTL,
		logger:     logger.With("component", "query_cache"),
		generation: uuid.NewString(),
	}
}

// Generation returns the current cache generation.
func (c *QueryCache) Generation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Prefix returns the key namespace of this cache.
func (c *QueryCache) Prefix() string { return c.prefix }

// Fetch returns the cached value for key, or runs load once for all concurrent callers
// and caches its result. A result loaded across an invalidation is returned but not stored.
func (c *QueryCache) Fetch(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	gen := c.Generation()
	full := c.key(gen, key)

	cached, err := c.cache.Get(ctx, full)
	if err != nil {
		c.logger.WarnContext(ctx, "query cache read failed; loading", "key", key, "error", err)
	} else if cached != nil {
		return cached, nil
	}

	v, err, _ := c.group.Do(full, func() (any, error) {
		value, loadErr := load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		if c.Generation() != gen {
			return value, nil
		}
		if setErr := c.cache.Set(ctx, full, value, c.ttl); setErr != nil {
			c.logger.WarnContext(ctx, "query cache write failed", "key", key, "error", setErr)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	b, _ := v.([]byte)
	return b, nil
}

// Forget removes a single key from the current generation.
func (c *QueryCache) Forget(ctx context.Context, key string) error {
	_, err := c.cache.Delete(ctx, c.key(c.Generation(), key))
	return err
}

// InvalidateAll marks every cached entry stale. Old entries age out by TTL.
func (c *QueryCache) InvalidateAll(ctx context.Context) error {
	gen := c.rotate()
	c.logger.DebugContext(ctx, "query cache invalidated", "generation", gen)
	return nil
}

// Purge drops every cached entry, across generations.
func (c *QueryCache) Purge(ctx context.Context) error {
	c.rotate()
	n, err := c.cache.DeletePrefix(ctx, c.prefix)
	if err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "query cache purged", "deleted", n)
	return nil
}

// Health checks the backing cache.
func (c *QueryCache) Health(ctx context.Context) error {
	return c.cache.Health(ctx)
}

func (c *QueryCache) rotate() string {
	gen := uuid.NewString()
	c.mu.Lock()
	c.generation = gen
	c.mu.Unlock()
	return gen
}

func (c *QueryCache) key(gen, key string) string {
	return c.prefix + gen + ":" + key
}
