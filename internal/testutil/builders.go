package testutil

import (
	"time"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
)

// SnapshotBuilder provides a fluent interface for building session snapshots for testing.
type SnapshotBuilder struct {
	snap *domainauth.Snapshot
}

// NewSnapshot creates a new SnapshotBuilder with sensible defaults.
func NewSnapshot() *SnapshotBuilder {
	return &SnapshotBuilder{
		snap: &domainauth.Snapshot{
			AccessToken: "access-token",
			ExpiresIn:   time.Hour,
		},
	}
}

// WithToken sets the access token.
func (b *SnapshotBuilder) WithToken(token string) *SnapshotBuilder {
	b.snap.AccessToken = token
	return b
}

// WithExpiresIn sets the token lifetime.
func (b *SnapshotBuilder) WithExpiresIn(d time.Duration) *SnapshotBuilder {
	b.snap.ExpiresIn = d
	return b
}

// WithUser attaches a user to the snapshot.
func (b *SnapshotBuilder) WithUser(id, email string) *SnapshotBuilder {
	b.snap.User = &domainauth.User{ID: id, Email: email}
	return b
}

// Build returns the constructed snapshot.
func (b *SnapshotBuilder) Build() *domainauth.Snapshot {
	out := *b.snap
	return &out
}

// Event wraps the snapshot in an event of the given kind.
func (b *SnapshotBuilder) Event(kind domainauth.EventKind) domainauth.Event {
	return domainauth.Event{Kind: kind, Session: b.Build()}
}
