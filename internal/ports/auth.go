package ports

// Package ports defines interfaces (hexagonal ports) for session-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
)

// IdentityProvider is the external identity service the session manager talks to.
type IdentityProvider interface {
	// GetSession recovers any existing valid session, possibly via a network round trip.
	// A nil snapshot with a nil error means there is no session (anonymous visitor).
	GetSession(ctx context.Context) (*domainauth.Snapshot, error)

	// GetUser validates the current user against the server. It never answers from a local cache.
	GetUser(ctx context.Context) (*domainauth.User, error)

	// SignOut ends the session with the provider.
	SignOut(ctx context.Context) error

	// Subscribe registers fn for session-change notifications. The provider delivers an
	// EventInitialSession right after registration. The returned func unsubscribes.
	Subscribe(fn func(domainauth.Event)) (unsubscribe func())
}

// BeginInput carries inputs for initiating an interactive login.
type BeginInput struct {
	ReturnTo string
}

// BeginResult is what the login entry point needs to redirect the browser.
type BeginResult struct {
	AuthURL  string
	State    string
	Nonce    string
	Verifier string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code     string
	State    string
	Nonce    string
	Verifier string
}

// LoginProvider drives the interactive OAuth flow. A successful Exchange publishes
// an EventSignedIn to IdentityProvider subscribers.
type LoginProvider interface {
	Begin(ctx context.Context, in BeginInput) (BeginResult, error)
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// CredentialStore persists the provider-managed credential used to recover a session.
type CredentialStore interface {
	Save(ctx context.Context, cred domainauth.Credential) error
	Load(ctx context.Context) (domainauth.Credential, error)
	Delete(ctx context.Context) error
}

// MarkerStore holds the redirect-suppression marker in browsing-session scoped storage.
type MarkerStore interface {
	Set(ctx context.Context, at time.Time) error
	// Get returns ok=false when no marker is stored.
	Get(ctx context.Context) (marker domainauth.Marker, ok bool, err error)
	Clear(ctx context.Context) error
}

// Navigator performs navigation for the current browser context.
type Navigator interface {
	// Location returns the current path (with query).
	Location() string
	// Reload performs a full navigation to target, discarding in-flight page state.
	Reload(target string)
	// Context returns the current page's context. It is canceled when the page is
	// navigated away from with a full navigation.
	Context() context.Context
}

// DataCache is the application-wide cache of fetched API data.
type DataCache interface {
	// InvalidateAll marks every cached entry stale so the next read refetches.
	InvalidateAll(ctx context.Context) error
	// Purge removes every cached entry.
	Purge(ctx context.Context) error
}

// TokenSource is the synchronous accessor outbound requests use to attach credentials.
type TokenSource interface {
	Token() (string, bool)
}

// FailureReporter receives authentication failures from the request layer.
type FailureReporter interface {
	ReportRequestFailure(ctx context.Context, status int) bool
}
