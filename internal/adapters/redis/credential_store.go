package redis

// Package redis provides Redis-based adapters for session persistence.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tipsterhq/tipster-web/internal/data"
	"github.com/tipsterhq/tipster-web/internal/data/cryptoutil"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

const defaultPrefix = "tipster:"

var _ ports.CredentialStore = (*CredentialStore)(nil)

// StoreOptions configures the Redis-backed stores.
type StoreOptions struct {
	Client redis.UniversalClient
	// Prefix namespaces keys; defaults to "tipster:".
	Prefix string
	// BrowsingSession identifies the browser context the keys belong to.
	BrowsingSession string
	// TTL bounds how long keys outlive their last write (the browsing-session lifetime).
	TTL   time.Duration
	Clock data.TimeProvider
	// Sealer encrypts credentials at rest; nil stores them unencrypted.
	Sealer cryptoutil.Sealer
}

func (o StoreOptions) prefix() string {
	if o.Prefix == "" {
		return defaultPrefix
	}
	return o.Prefix
}

func (o StoreOptions) clock() data.TimeProvider {
	if o.Clock == nil {
		return &data.RealTimeProvider{}
	}
	return o.Clock
}

func (o StoreOptions) sealer() cryptoutil.Sealer {
	if o.Sealer == nil {
		return cryptoutil.PlainSealer{}
	}
	return o.Sealer
}

// CredentialStore is a Redis-based refresh-credential store.
// TTL follows the credential's ExpiresAt, capped by the browsing-session lifetime.
type CredentialStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	clock  data.TimeProvider
	sealer cryptoutil.Sealer
}

// NewCredentialStore creates a new Redis-based credential store.
func NewCredentialStore(opts StoreOptions) (*CredentialStore, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.BrowsingSession == "" {
		return nil, errors.New("browsing session id is required")
	}
	return &CredentialStore{
		client: opts.Client,
		key:    opts.prefix() + "auth:credential:" + opts.BrowsingSession,
		ttl:    opts.TTL,
		clock:  opts.clock(),
		sealer: opts.sealer(),
	}, nil
}

// Key returns the Redis key the credential lives under.
func (s *CredentialStore) Key() string { return s.key }

func (s *CredentialStore) Save(ctx context.Context, cred domainauth.Credential) error {
	if cred.RefreshToken == "" {
		return apperrors.Validation("refresh token cannot be empty")
	}

	ttl := s.ttl
	if !cred.ExpiresAt.IsZero() {
		until := cred.ExpiresAt.Sub(s.clock.Now())
		if until <= 0 {
			return apperrors.Validation("credential is expired")
		}
		if ttl <= 0 || until < ttl {
			ttl = until
		}
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	sealed, err := s.sealer.Seal(payload, []byte(s.key))
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	return s.client.Set(ctx, s.key, sealed, ttl).Err()
}

func (s *CredentialStore) Load(ctx context.Context) (domainauth.Credential, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Credential{}, apperrors.NotFound("credential not found")
		}
		return domainauth.Credential{}, fmt.Errorf("redis get: %w", err)
	}

	payload, err := s.sealer.Open(raw, []byte(s.key))
	if err != nil {
		// Unreadable (key rotated, or written without a key): treat as signed out.
		if deleteErr := s.Delete(ctx); deleteErr != nil {
			return domainauth.Credential{}, fmt.Errorf("cleanup unreadable credential: %w", deleteErr)
		}
		return domainauth.Credential{}, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "credential unreadable")
	}

	var cred domainauth.Credential
	if unmarshalErr := json.Unmarshal(payload, &cred); unmarshalErr != nil {
		return domainauth.Credential{}, fmt.Errorf("unmarshal credential: %w", unmarshalErr)
	}

	// Redis TTL normally handles this; clock skew between host and server does not.
	if !cred.ExpiresAt.IsZero() && !s.clock.Now().Before(cred.ExpiresAt) {
		if deleteErr := s.Delete(ctx); deleteErr != nil {
			return domainauth.Credential{}, fmt.Errorf("cleanup expired credential: %w", deleteErr)
		}
		return domainauth.Credential{}, apperrors.NotFound("credential expired")
	}

	return cred, nil
}

func (s *CredentialStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
