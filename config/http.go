package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080" validate:"required"`

	// BaseURL is the base URL of the application (e.g., "https://tipster.example.com").
	// Used as the default for the OAuth redirect and for absolute links.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080" validate:"required,url"`

	// CookieDomain is the domain for auth flow cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// ShutdownTimeout bounds graceful shutdown of the listener.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}

// SecureCookies reports whether cookies should carry the Secure attribute.
func (h *HTTPConfig) SecureCookies() bool {
	return strings.HasPrefix(strings.ToLower(h.BaseURL), "https://")
}

// APIConfig points at the remote prediction API.
type APIConfig struct {
	BaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:9090/api/" validate:"required,url"`
	Timeout time.Duration `env:"API_TIMEOUT"  envDefault:"15s"`
}

// Sanitize applies guardrails to API configuration values.
func (a *APIConfig) Sanitize() {
	a.BaseURL = strings.TrimSpace(a.BaseURL)
	if a.Timeout <= 0 {
		a.Timeout = 15 * time.Second
	}
}
