package devauth

// Package devauth provides a simple, config-driven identity provider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tipsterhq/tipster-web/internal/adapters/authevents"
	"github.com/tipsterhq/tipster-web/internal/adapters/memory"
	"github.com/tipsterhq/tipster-web/internal/data"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

// Config controls the dev auth provider behavior.
// UserID and Email are required.
type Config struct {
	UserID        string
	Email         string
	Name          string
	TokenLifetime time.Duration // default 1h when zero
	// RefreshSkew is how long before expiry a TokenRefreshed event is pushed (default 1m).
	RefreshSkew time.Duration
	// Credentials keeps the dev "refresh cookie". Defaults to an in-memory store.
	Credentials ports.CredentialStore
	Clock       data.TimeProvider
	Logger      *slog.Logger
}

var (
	_ ports.IdentityProvider = (*Provider)(nil)
	_ ports.LoginProvider    = (*Provider)(nil)
)

// Provider implements IdentityProvider and LoginProvider for local development.
// It short-circuits the OAuth flow by redirecting back to our own callback
// with locally generated state and nonce, and mints opaque random tokens.
type Provider struct {
	user        domainauth.User
	lifetime    time.Duration
	skew        time.Duration
	credentials ports.CredentialStore
	clock       data.TimeProvider
	logger      *slog.Logger
	hub         *authevents.Hub

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	revoked   bool
	timer     *time.Timer
	closed    bool
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	lifetime := cfg.TokenLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	skew := cfg.RefreshSkew
	if skew <= 0 {
		skew = time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	creds := cfg.Credentials
	if creds == nil {
		creds = memory.NewCredentialStore(clock)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		user:        domainauth.User{ID: cfg.UserID, Email: cfg.Email, Name: cfg.Name},
		lifetime:    lifetime,
		skew:        skew,
		credentials: creds,
		clock:       clock,
		logger:      logger.With("component", "devauth"),
	}
	p.hub = authevents.NewHub(p.snapshot)
	return p, nil
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (ports.BeginResult, error) {
	state, err := randomString(24)
	if err != nil {
		return ports.BeginResult{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return ports.BeginResult{}, fmt.Errorf("generate nonce: %w", err)
	}
	// Our standard handler expects GET /auth/callback?code=...&state=...
	return ports.BeginResult{
		AuthURL: "/auth/callback?code=dev&state=" + state,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// Exchange ignores the provided code/state/nonce (validation handled by handler),
// mints a session and publishes EventSignedIn.
func (p *Provider) Exchange(ctx context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	refresh, err := randomString(32)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := p.credentials.Save(ctx, domainauth.Credential{
		RefreshToken: refresh,
		Subject:      p.user.ID,
		IssuedAt:     p.clock.Now(),
	}); err != nil {
		return domainauth.Identity{}, fmt.Errorf("save credential: %w", err)
	}

	expiresAt, err := p.mint()
	if err != nil {
		return domainauth.Identity{}, err
	}
	p.hub.Publish(domainauth.Event{Kind: domainauth.EventSignedIn, Session: p.snapshot()})
	return domainauth.Identity{User: p.user, ExpiresAt: expiresAt}, nil
}

// GetSession returns the live session, minting a new access token from the stored
// credential when needed.
func (p *Provider) GetSession(ctx context.Context) (*domainauth.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap := p.snapshot(); snap.HasToken() {
		return snap, nil
	}

	_, err := p.credentials.Load(ctx)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if _, err := p.mint(); err != nil {
		return nil, err
	}
	return p.snapshot(), nil
}

// GetUser reports the configured user while a token is live and not revoked.
func (p *Provider) GetUser(ctx context.Context) (*domainauth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	live := p.token != "" && !p.revoked && p.clock.Now().Before(p.expiresAt)
	p.mu.Unlock()
	if !live {
		return nil, apperrors.Unauthenticated("session is not valid")
	}
	u := p.user
	return &u, nil
}

// SignOut forgets the session and publishes EventSignedOut.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.token, p.expiresAt, p.revoked = "", time.Time{}, false
	p.stopTimerLocked()
	p.mu.Unlock()

	if err := p.credentials.Delete(ctx); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	p.hub.Publish(domainauth.Event{Kind: domainauth.EventSignedOut})
	return nil
}

// Revoke invalidates the session server-side without notifying subscribers, the way an
// administrator kicking a user would. The stored token stays in place.
func (p *Provider) Revoke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = true
}

// Subscribe registers fn for session-change notifications.
func (p *Provider) Subscribe(fn func(domainauth.Event)) func() {
	return p.hub.Subscribe(fn)
}

// Close stops the refresh timer.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.stopTimerLocked()
}

func (p *Provider) mint() (time.Time, error) {
	token, err := randomString(32)
	if err != nil {
		return time.Time{}, fmt.Errorf("generate access token: %w", err)
	}
	expiresAt := p.clock.Now().Add(p.lifetime)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = "dev-" + token
	p.expiresAt = expiresAt
	p.revoked = false

	delay := p.lifetime - p.skew
	if delay <= 0 {
		delay = p.lifetime / 2
	}
	p.stopTimerLocked()
	if !p.closed {
		p.timer = time.AfterFunc(delay, p.refresh)
	}
	return expiresAt, nil
}

func (p *Provider) refresh() {
	if _, err := p.mint(); err != nil {
		p.logger.Warn("dev token refresh failed", "error", err)
		return
	}
	p.hub.Publish(domainauth.Event{Kind: domainauth.EventTokenRefreshed, Session: p.snapshot()})
}

func (p *Provider) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Provider) snapshot() *domainauth.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" {
		return nil
	}
	expiresIn := p.expiresAt.Sub(p.clock.Now())
	if expiresIn <= 0 {
		return nil
	}
	u := p.user
	return &domainauth.Snapshot{AccessToken: p.token, ExpiresIn: expiresIn, User: &u}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < n {
		// pad
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:n], nil
}
