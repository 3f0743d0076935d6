package service

import (
	"context"
	"sync"
	"time"

	"github.com/tipsterhq/tipster-web/internal/data"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
)

// TokenStore holds the current session in memory and answers synchronous queries.
// It is a last-write-wins cell, safe for concurrent use. Persistence is left to the
// identity provider.
type TokenStore struct {
	mu      sync.RWMutex
	session domainauth.Session
	clock   data.TimeProvider

	readyOnce sync.Once
	ready     chan struct{}
}

// NewTokenStore creates an empty, uninitialized TokenStore. A nil clock uses system time.
func NewTokenStore(clock data.TimeProvider) *TokenStore {
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	return &TokenStore{
		clock: clock,
		ready: make(chan struct{}),
	}
}

// SetToken stores token with expiresAt = now + expiresIn. An empty token clears the store.
func (s *TokenStore) SetToken(token string, expiresIn time.Duration) {
	if token == "" {
		s.ClearToken()
		return
	}
	sess := domainauth.Session{
		AccessToken: token,
		ExpiresAt:   s.clock.Now().Add(expiresIn),
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// ClearToken removes the stored token and expiry. Idempotent.
func (s *TokenStore) ClearToken() {
	s.mu.Lock()
	s.session = domainauth.Session{}
	s.mu.Unlock()
}

// Token returns the access token while its expiry is in the future.
// An elapsed token reads as absent but is not removed.
func (s *TokenStore) Token() (string, bool) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if !sess.Active(s.clock.Now()) {
		return "", false
	}
	return sess.AccessToken, true
}

// Session returns a copy of the stored session, expired or not.
func (s *TokenStore) Session() domainauth.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// MarkInitialized flips the readiness latch. It reports true only for the call that
// performed the transition; later calls are no-ops.
func (s *TokenStore) MarkInitialized() bool {
	first := false
	s.readyOnce.Do(func() {
		first = true
		close(s.ready)
	})
	return first
}

// IsInitialized reports whether the readiness latch has been set.
func (s *TokenStore) IsInitialized() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Ready returns a channel closed once the store is initialized.
func (s *TokenStore) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the store is initialized or ctx is done.
func (s *TokenStore) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
