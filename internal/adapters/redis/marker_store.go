package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

var _ ports.MarkerStore = (*MarkerStore)(nil)

// MarkerStore keeps the redirect-suppression marker under a single fixed key per
// browsing session. The value is the marker time in Unix milliseconds.
type MarkerStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewMarkerStore creates a Redis-backed MarkerStore.
func NewMarkerStore(opts StoreOptions) (*MarkerStore, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.BrowsingSession == "" {
		return nil, errors.New("browsing session id is required")
	}
	return &MarkerStore{
		client: opts.Client,
		key:    opts.prefix() + "auth:redirect-suppression:" + opts.BrowsingSession,
		ttl:    opts.TTL,
	}, nil
}

// Key returns the Redis key the marker lives under.
func (s *MarkerStore) Key() string { return s.key }

func (s *MarkerStore) Set(ctx context.Context, at time.Time) error {
	return s.client.Set(ctx, s.key, strconv.FormatInt(at.UnixMilli(), 10), s.ttl).Err()
}

// Get returns ok=false when no marker is stored. An unparseable value also reads as
// absent so a corrupted key never blocks recovery.
func (s *MarkerStore) Get(ctx context.Context) (domainauth.Marker, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Marker{}, false, nil
		}
		return domainauth.Marker{}, false, fmt.Errorf("redis get: %w", err)
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return domainauth.Marker{}, false, nil
	}
	return domainauth.Marker{SetAt: time.UnixMilli(ms)}, true, nil
}

func (s *MarkerStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
