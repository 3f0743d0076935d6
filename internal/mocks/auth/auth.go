package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tipsterhq/tipster-web/internal/adapters/authevents"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.LoginProvider    = (*MockLoginProvider)(nil)
	_ ports.DataCache        = (*RecordingCache)(nil)
)

// FakeIdentityProvider simulates an identity service. Behaviour is driven by the optional
// func fields; without them it reports Session and the user DefaultUser.
type FakeIdentityProvider struct {
	GetSessionFunc func(ctx context.Context) (*domainauth.Snapshot, error)
	GetUserFunc    func(ctx context.Context) (*domainauth.User, error)
	SignOutFunc    func(ctx context.Context) error

	DefaultUser domainauth.User

	mu      sync.Mutex
	session *domainauth.Snapshot

	hub *authevents.Hub

	sessionCalls atomic.Int32
	userCalls    atomic.Int32
	signOutCalls atomic.Int32
	subscribes   atomic.Int32
}

// NewFakeIdentityProvider creates a provider holding session (nil for anonymous).
func NewFakeIdentityProvider(session *domainauth.Snapshot) *FakeIdentityProvider {
	p := &FakeIdentityProvider{
		session:     session,
		DefaultUser: domainauth.User{ID: "user-1", Email: "fan@example.com", Name: "Test Fan"},
	}
	p.hub = authevents.NewHub(p.Current)
	return p
}

// Current returns the session the provider currently holds.
func (p *FakeIdentityProvider) Current() *domainauth.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// SetSession replaces the held session without publishing.
func (p *FakeIdentityProvider) SetSession(s *domainauth.Snapshot) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

func (p *FakeIdentityProvider) GetSession(ctx context.Context) (*domainauth.Snapshot, error) {
	p.sessionCalls.Add(1)
	if p.GetSessionFunc != nil {
		return p.GetSessionFunc(ctx)
	}
	return p.Current(), nil
}

func (p *FakeIdentityProvider) GetUser(ctx context.Context) (*domainauth.User, error) {
	p.userCalls.Add(1)
	if p.GetUserFunc != nil {
		return p.GetUserFunc(ctx)
	}
	u := p.DefaultUser
	return &u, nil
}

func (p *FakeIdentityProvider) SignOut(ctx context.Context) error {
	p.signOutCalls.Add(1)
	if p.SignOutFunc != nil {
		if err := p.SignOutFunc(ctx); err != nil {
			return err
		}
	}
	p.SetSession(nil)
	return nil
}

func (p *FakeIdentityProvider) Subscribe(fn func(domainauth.Event)) func() {
	p.subscribes.Add(1)
	return p.hub.Subscribe(fn)
}

// Publish pushes evt to subscribers, updating the held session first.
func (p *FakeIdentityProvider) Publish(evt domainauth.Event) {
	switch evt.Kind {
	case domainauth.EventSignedOut:
		p.SetSession(nil)
	case domainauth.EventSignedIn, domainauth.EventTokenRefreshed:
		p.SetSession(evt.Session)
	}
	p.hub.Publish(evt)
}

// Listeners returns the number of live subscriptions.
func (p *FakeIdentityProvider) Listeners() int { return p.hub.Len() }

func (p *FakeIdentityProvider) SessionCalls() int   { return int(p.sessionCalls.Load()) }
func (p *FakeIdentityProvider) UserCalls() int      { return int(p.userCalls.Load()) }
func (p *FakeIdentityProvider) SignOutCalls() int   { return int(p.signOutCalls.Load()) }
func (p *FakeIdentityProvider) SubscribeCalls() int { return int(p.subscribes.Load()) }

// RecordingCache counts cache maintenance calls.
type RecordingCache struct {
	invalidations atomic.Int32
	purges        atomic.Int32
	Err           error
}

func (c *RecordingCache) InvalidateAll(context.Context) error {
	c.invalidations.Add(1)
	return c.Err
}

func (c *RecordingCache) Purge(context.Context) error {
	c.purges.Add(1)
	return c.Err
}

func (c *RecordingCache) Invalidations() int { return int(c.invalidations.Load()) }
func (c *RecordingCache) Purges() int        { return int(c.purges.Load()) }

// MockLoginProvider simulates the interactive OAuth flow with deterministic state/nonce handling.
type MockLoginProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (ports.BeginResult, error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockLoginProvider creates a MockLoginProvider with sensible defaults.
func NewMockLoginProvider() *MockLoginProvider {
	return &MockLoginProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: domainauth.Identity{
			User: domainauth.User{ID: "mock-user-1", Email: "mock.user@example.com", Name: "Mock User"},
		},
	}
}

func (m *MockLoginProvider) Begin(ctx context.Context, in ports.BeginInput) (ports.BeginResult, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	return ports.BeginResult{
		AuthURL:  m.AuthURL,
		State:    fmt.Sprintf("%s-%d", m.StatePrefix, n),
		Nonce:    fmt.Sprintf("%s-%d", m.NoncePrefix, n),
		Verifier: fmt.Sprintf("verifier-%d", n),
	}, nil
}

func (m *MockLoginProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	// Return a copy of the default user with a fresh expiration time
	id := m.DefaultUser
	id.ExpiresAt = time.Now().Add(time.Hour)
	return id, nil
}
