// Package mocks provides mock implementations of the session ports for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	markers := mocks.NewMockMarkerStore(ctrl)
//	markers.EXPECT().Get(gomock.Any()).Return(domainauth.Marker{}, false, nil)
package mocks

// Generate mock for IdentityProvider interface from internal/ports package.
// This creates MockIdentityProvider with methods for all IdentityProvider interface methods:
// GetSession, GetUser, SignOut, Subscribe
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_provider_mock.go github.com/tipsterhq/tipster-web/internal/ports IdentityProvider

// Generate mock for MarkerStore interface from internal/ports package.
// This creates MockMarkerStore with methods for all MarkerStore interface methods:
// Set, Get, Clear
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=marker_store_mock.go github.com/tipsterhq/tipster-web/internal/ports MarkerStore

// Generate mock for CredentialStore interface from internal/ports package.
// This creates MockCredentialStore with methods for all CredentialStore interface methods:
// Save, Load, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_store_mock.go github.com/tipsterhq/tipster-web/internal/ports CredentialStore

// Generate mock for LoginProvider interface from internal/ports package.
// This creates MockLoginProvider with methods for all LoginProvider interface methods:
// Begin, Exchange
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=login_provider_mock.go github.com/tipsterhq/tipster-web/internal/ports LoginProvider
