package auth

// Package auth contains domain-level types for the client-side authentication session.
// It is pure and free of framework/adapter concerns.

import "time"

// Session is the authoritative authentication state for the current browser context.
// It is always replaced wholesale, never patched field by field.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Active reports whether the session carries a token that has not expired at now.
func (s Session) Active(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// User is the principal returned by the identity provider's server-side user check.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Snapshot is the session payload an identity provider hands out: the access token
// together with its relative lifetime, as issued.
type Snapshot struct {
	AccessToken string        `json:"access_token"`
	ExpiresIn   time.Duration `json:"expires_in"`
	User        *User         `json:"user,omitempty"`
}

// HasToken reports whether the snapshot carries an access token.
func (s *Snapshot) HasToken() bool {
	return s != nil && s.AccessToken != ""
}

// EventKind enumerates the session-change notifications a provider can push.
type EventKind string

const (
	// EventInitialSession fires once, immediately, when a subscription is established.
	EventInitialSession EventKind = "initial_session"
	EventSignedIn       EventKind = "signed_in"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventSignedOut      EventKind = "signed_out"
	// EventUserUpdated covers profile changes; it may or may not carry a session.
	EventUserUpdated EventKind = "user_updated"
)

// Event is a single session-change notification.
// Session is nil when the event carries no session (e.g. sign-out).
type Event struct {
	Kind    EventKind
	Session *Snapshot
}

// Marker records that a forced logout redirect just happened.
type Marker struct {
	SetAt time.Time `json:"set_at"`
}

// Within reports whether the marker was set no more than window before now.
// A marker stamped in the future (clock skew) counts as fresh.
func (m Marker) Within(now time.Time, window time.Duration) bool {
	if m.SetAt.IsZero() {
		return false
	}
	return now.Sub(m.SetAt) < window
}

// Credential is the provider-managed persistent credential used to recover a session
// on startup (the refresh-cookie analogue).
type Credential struct {
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	Subject      string    `json:"sub,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Identity represents the authenticated principal returned by an IdP after a code exchange.
type Identity struct {
	User      User
	ExpiresAt time.Time
}
