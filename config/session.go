package config

import (
	"strings"
	"time"
)

// SessionConfig holds the timing and routing knobs of the authentication session.
type SessionConfig struct {
	// InitTimeout bounds how long readiness waits on the startup handshake.
	InitTimeout time.Duration `env:"SESSION_INIT_TIMEOUT" envDefault:"5s"`

	// ValidateInterval is the period of the server-side user check.
	ValidateInterval time.Duration `env:"SESSION_VALIDATE_INTERVAL" envDefault:"5m"`

	// SuppressionWindow is how long after a forced logout another one is suppressed.
	SuppressionWindow time.Duration `env:"SESSION_SUPPRESSION_WINDOW" envDefault:"5s"`

	// SignOutTimeout bounds the best-effort provider sign-out during recovery.
	SignOutTimeout time.Duration `env:"SESSION_SIGNOUT_TIMEOUT" envDefault:"3s"`

	// LoginPath is the login entry point; recovery never redirects while on it.
	LoginPath string `env:"SESSION_LOGIN_PATH" envDefault:"/login" validate:"startswith=/"`

	// ReturnToParam carries the original path to the login page.
	ReturnToParam string `env:"SESSION_RETURN_TO_PARAM" envDefault:"returnTo" validate:"required,alphanum"`

	// BrowsingID scopes stored state to one browser context. Empty generates a fresh ID
	// per process, which means a restart starts a new browsing session.
	BrowsingID string `env:"SESSION_BROWSING_ID"`

	// BrowsingTTL is the lifetime of browsing-session scoped state (marker, credential).
	BrowsingTTL time.Duration `env:"SESSION_BROWSING_TTL" envDefault:"12h"`
}

// Sanitize clamps durations to their defaults when unset or negative.
func (s *SessionConfig) Sanitize() {
	s.InitTimeout = orDefault(s.InitTimeout, 5*time.Second)
	s.ValidateInterval = orDefault(s.ValidateInterval, 5*time.Minute)
	s.SuppressionWindow = orDefault(s.SuppressionWindow, 5*time.Second)
	s.SignOutTimeout = orDefault(s.SignOutTimeout, 3*time.Second)
	s.BrowsingTTL = orDefault(s.BrowsingTTL, 12*time.Hour)

	s.BrowsingID = strings.TrimSpace(s.BrowsingID)
	s.LoginPath = strings.TrimSpace(s.LoginPath)
	if s.LoginPath == "" {
		s.LoginPath = "/login"
	}
	s.ReturnToParam = strings.TrimSpace(s.ReturnToParam)
	if s.ReturnToParam == "" {
		s.ReturnToParam = "returnTo"
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
