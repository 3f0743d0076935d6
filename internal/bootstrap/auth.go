package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tipsterhq/tipster-web/config"
	"github.com/tipsterhq/tipster-web/internal/adapters/devauth"
	"github.com/tipsterhq/tipster-web/internal/adapters/memory"
	"github.com/tipsterhq/tipster-web/internal/adapters/oidc"
	redisadapter "github.com/tipsterhq/tipster-web/internal/adapters/redis"
	"github.com/tipsterhq/tipster-web/internal/data"
	"github.com/tipsterhq/tipster-web/internal/data/cryptoutil"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

// IdentityProvider is what a configured auth mode hands to the rest of the app.
type IdentityProvider interface {
	ports.IdentityProvider
	ports.LoginProvider
	Close()
}

// Stores bundles the browsing-session scoped persistence.
type Stores struct {
	Credentials ports.CredentialStore
	Markers     ports.MarkerStore
}

// StoreDeps contains what BuildStores needs.
type StoreDeps struct {
	Redis      redis.UniversalClient // nil selects in-memory stores
	KeyPrefix  string
	BrowsingID string
	// CredentialKey is the base64 key sealing credentials in Redis; empty disables sealing.
	CredentialKey string
	Session       config.SessionConfig
	Clock         data.TimeProvider
}

// BuildStores creates the credential and marker stores, backed by Redis when a client
// is available.
func BuildStores(deps StoreDeps) (Stores, error) {
	if deps.Redis == nil {
		return Stores{
			Credentials: memory.NewCredentialStore(deps.Clock),
			Markers:     memory.NewMarkerStore(),
		}, nil
	}

	sealer, err := buildSealer(deps.CredentialKey)
	if err != nil {
		return Stores{}, err
	}
	opts := redisadapter.StoreOptions{
		Client:          deps.Redis,
		Prefix:          deps.KeyPrefix,
		BrowsingSession: deps.BrowsingID,
		TTL:             deps.Session.BrowsingTTL,
		Clock:           deps.Clock,
		Sealer:          sealer,
	}
	creds, err := redisadapter.NewCredentialStore(opts)
	if err != nil {
		return Stores{}, fmt.Errorf("credential store: %w", err)
	}
	markers, err := redisadapter.NewMarkerStore(opts)
	if err != nil {
		return Stores{}, fmt.Errorf("marker store: %w", err)
	}
	return Stores{Credentials: creds, Markers: markers}, nil
}

//nolint:ireturn // sealing is optional.
func buildSealer(encodedKey string) (cryptoutil.Sealer, error) {
	if encodedKey == "" {
		return cryptoutil.PlainSealer{}, nil
	}
	key, err := cryptoutil.ParseKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}
	sealer, err := cryptoutil.NewAESGCMSealer(key)
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}
	return sealer, nil
}

// IdentityDeps contains what BuildIdentityProvider needs.
type IdentityDeps struct {
	Auth        config.AuthConfig
	Credentials ports.CredentialStore
	Clock       data.TimeProvider
	Logger      *slog.Logger
}

// BuildIdentityProvider creates the provider for the configured auth mode.
//
//nolint:ireturn // the concrete provider depends on AUTH_MODE.
func BuildIdentityProvider(deps IdentityDeps) (IdentityProvider, error) {
	switch deps.Auth.Mode {
	case config.AuthModeMock:
		return buildDevProvider(deps)
	case config.AuthModeOAuth:
		return buildOIDCProvider(deps)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", deps.Auth.Mode)
	}
}

//nolint:ireturn // see BuildIdentityProvider.
func buildDevProvider(deps IdentityDeps) (IdentityProvider, error) {
	dev := deps.Auth.DevAuth
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:        dev.UserID,
		Email:         dev.Email,
		Name:          dev.Name,
		TokenLifetime: dev.TokenLifetime,
		Credentials:   deps.Credentials,
		Clock:         deps.Clock,
		Logger:        deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	if deps.Logger != nil {
		deps.Logger.Warn("dev auth enabled; do not use in production", "user_id", dev.UserID)
	}
	return prov, nil
}

//nolint:ireturn // see BuildIdentityProvider.
func buildOIDCProvider(deps IdentityDeps) (IdentityProvider, error) {
	oauth := deps.Auth.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		return nil, errors.New("oauth mode requires discovery url, client id and client secret")
	}

	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		LogoutURL:    oauth.LogoutURL,
		Credentials:  deps.Credentials,
		Claims: oidc.ClaimMapping{
			ID:    oauth.ClaimID,
			Email: oauth.ClaimEmail,
			Name:  oauth.ClaimName,
		},
		RefreshSkew: oauth.RefreshSkew,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return prov, nil
}
