package oidc

// Package oidc provides the OIDC/OAuth2 identity provider used by the session manager.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tipsterhq/tipster-web/internal/adapters/authevents"
	"github.com/tipsterhq/tipster-web/internal/data"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

const (
	defaultRefreshSkew   = time.Minute
	defaultRetryInterval = 30 * time.Second
	defaultTokenLifetime = time.Hour
)

var (
	_ ports.IdentityProvider = (*Provider)(nil)
	_ ports.LoginProvider    = (*Provider)(nil)
)

// Provider implements IdentityProvider and LoginProvider on top of an OIDC issuer.
// The refresh token lives in a CredentialStore; the access token lives in memory only.
type Provider struct {
	config     *oauth2.Config
	logoutURL  string
	httpClient *http.Client

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
	revokeURL    string

	credentials   ports.CredentialStore
	claims        ClaimMapping
	clock         data.TimeProvider
	refreshSkew   time.Duration
	retryInterval time.Duration
	logger        *slog.Logger

	hub     *authevents.Hub
	refresh singleflight.Group

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu      sync.Mutex
	current *oauth2.Token
	user    *domainauth.User
	timer   *time.Timer
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	LogoutURL    string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout

	// Credentials persists the refresh token across process restarts. Required.
	Credentials ports.CredentialStore
	// Claims maps UserInfo claims onto the user. Zero fields use standard OIDC claims.
	Claims ClaimMapping
	// RefreshSkew is how long before expiry the access token is refreshed (default 1m).
	RefreshSkew time.Duration
	// RetryInterval spaces automatic refresh attempts after a transient failure (default 30s).
	RetryInterval time.Duration
	Clock         data.TimeProvider
	Logger        *slog.Logger
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
}

// NewProvider creates a new OIDC provider. It performs discovery against the issuer.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	if config.Credentials == nil {
		return nil, errors.New("credential store is required")
	}

	claims := config.Claims.withDefaults()
	if err := claims.validate(); err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	clock := config.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		logoutURL:     config.LogoutURL,
		httpClient:    httpClient,
		credentials:   config.Credentials,
		claims:        claims,
		clock:         clock,
		refreshSkew:   positiveOr(config.RefreshSkew, defaultRefreshSkew),
		retryInterval: positiveOr(config.RetryInterval, defaultRetryInterval),
		logger:        logger.With("component", "oidc"),
	}
	p.hub = authevents.NewHub(p.snapshot)
	p.lifeCtx, p.lifeCancel = context.WithCancel(context.Background())

	// Initialize go-oidc provider and verifier (single discovery fetch)
	ctx := p.clientContext(context.Background())
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := op.Claims(&extra); err == nil {
		p.revokeURL = extra.RevocationEndpoint
	}

	// Configure OAuth2 using discovered endpoints
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       strings.Fields(config.Scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

// Begin starts an authorization code flow with PKCE.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (ports.BeginResult, error) {
	// Generate cryptographically secure state and nonce
	state, err := generateRandomString(32)
	if err != nil {
		return ports.BeginResult{}, fmt.Errorf("generate state: %w", err)
	}

	nonce, err := generateRandomString(32)
	if err != nil {
		return ports.BeginResult{}, fmt.Errorf("generate nonce: %w", err)
	}

	verifier := oauth2.GenerateVerifier()

	// Note: Don't override redirect_uri here as it should match the configured RedirectURL exactly
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oauth2.S256ChallengeOption(verifier),
	)

	return ports.BeginResult{
		AuthURL:  authURL,
		State:    state,
		Nonce:    nonce,
		Verifier: verifier,
	}, nil
}

// Exchange completes the code flow, persists the refresh credential and publishes
// EventSignedIn to subscribers.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	var opts []oauth2.AuthCodeOption
	if in.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(in.Verifier))
	}

	token, err := p.config.Exchange(p.clientContext(ctx), in.Code, opts...)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	user, err := p.userFromIDToken(ctx, token, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}

	// Fill missing fields from UserInfo
	if user.ID == "" || user.Email == "" {
		info, infoErr := p.fetchUser(ctx, token.AccessToken)
		if infoErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", infoErr)
		}
		fillMissing(&user, *info)
	}

	if err := p.saveCredential(ctx, token, user.ID); err != nil {
		return domainauth.Identity{}, err
	}

	expiresAt := p.install(token, &user)
	p.hub.Publish(domainauth.Event{Kind: domainauth.EventSignedIn, Session: p.snapshot()})
	p.logger.InfoContext(ctx, "signed in", "user_id", user.ID)

	return domainauth.Identity{User: user, ExpiresAt: expiresAt}, nil
}

// LogoutURL returns the IdP end-session URL, if configured.
func (p *Provider) LogoutURL() string {
	return p.logoutURL
}

// Subscribe registers fn for session-change notifications.
func (p *Provider) Subscribe(fn func(domainauth.Event)) func() {
	return p.hub.Subscribe(fn)
}

// Close stops the auto-refresh timer. Subscribers are not notified.
func (p *Provider) Close() {
	p.lifeCancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) userFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (domainauth.User, error) {
	var user domainauth.User
	if !p.hasOpenIDScope() {
		return user, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return user, err
	}
	idTok, err := p.verifier.Verify(p.clientContext(ctx), rawID)
	if err != nil {
		return user, fmt.Errorf("verify id_token: %w", err)
	}
	if expectedNonce != "" && idTok.Nonce != expectedNonce {
		return user, errors.New("invalid nonce")
	}
	var claims map[string]any
	if err := idTok.Claims(&claims); err != nil {
		return user, fmt.Errorf("parse id_token claims: %w", err)
	}
	return p.claims.apply(claims)
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least 'length' base64 URL-safe chars
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (p *Provider) hasOpenIDScope() bool {
	for _, sc := range p.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

func positiveOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
