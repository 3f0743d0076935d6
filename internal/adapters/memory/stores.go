package memory

// Package memory provides in-process adapters used when Redis is not configured.

import (
	"context"
	"sync"
	"time"

	"github.com/tipsterhq/tipster-web/internal/data"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

var (
	_ ports.CredentialStore = (*CredentialStore)(nil)
	_ ports.MarkerStore     = (*MarkerStore)(nil)
)

// CredentialStore keeps the refresh credential for the lifetime of the process.
type CredentialStore struct {
	mu    sync.RWMutex
	cred  domainauth.Credential
	ok    bool
	clock data.TimeProvider
}

// NewCredentialStore creates an empty CredentialStore. A nil clock uses system time.
func NewCredentialStore(clock data.TimeProvider) *CredentialStore {
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	return &CredentialStore{clock: clock}
}

func (s *CredentialStore) Save(_ context.Context, cred domainauth.Credential) error {
	if cred.RefreshToken == "" {
		return apperrors.Validation("refresh token cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.ok = true
	return nil
}

func (s *CredentialStore) Load(_ context.Context) (domainauth.Credential, error) {
	s.mu.RLock()
	cred, ok := s.cred, s.ok
	s.mu.RUnlock()

	if !ok {
		return domainauth.Credential{}, apperrors.NotFound("credential not found")
	}
	if !cred.ExpiresAt.IsZero() && !s.clock.Now().Before(cred.ExpiresAt) {
		s.mu.Lock()
		s.cred, s.ok = domainauth.Credential{}, false
		s.mu.Unlock()
		return domainauth.Credential{}, apperrors.NotFound("credential expired")
	}
	return cred, nil
}

func (s *CredentialStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred, s.ok = domainauth.Credential{}, false
	return nil
}

// MarkerStore keeps the redirect-suppression marker for the lifetime of the process,
// which is the browsing session in a single-user host.
type MarkerStore struct {
	mu     sync.Mutex
	marker domainauth.Marker
	ok     bool
}

// NewMarkerStore creates an empty MarkerStore.
func NewMarkerStore() *MarkerStore {
	return &MarkerStore{}
}

func (s *MarkerStore) Set(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = domainauth.Marker{SetAt: at}
	s.ok = true
	return nil
}

func (s *MarkerStore) Get(_ context.Context) (domainauth.Marker, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker, s.ok, nil
}

func (s *MarkerStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker, s.ok = domainauth.Marker{}, false
	return nil
}
