package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"tipster-web"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback" validate:"omitempty,url"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"                                                  validate:"omitempty,url"`
	LogoutURL    string `env:"LOGOUT_URL"                                                     validate:"omitempty,url"`

	// Claim expressions (JMESPath) mapping UserInfo claims onto the user.
	// Empty values use the standard OIDC claims.
	ClaimID    string `env:"CLAIM_ID"`
	ClaimEmail string `env:"CLAIM_EMAIL"`
	ClaimName  string `env:"CLAIM_NAME"`

	// RefreshSkew is how long before expiry the access token is refreshed.
	RefreshSkew time.Duration `env:"REFRESH_SKEW" envDefault:"1m" validate:"gte=0"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID        string        `env:"USER_ID"        envDefault:"dev-user"`
	Email         string        `env:"EMAIL"          envDefault:"dev@example.com" validate:"omitempty,email"`
	Name          string        `env:"NAME"           envDefault:"Dev Tipster"`
	TokenLifetime time.Duration `env:"TOKEN_LIFETIME" envDefault:"1h"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth" validate:"oneof=oauth mock"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims whitespace and fills derived defaults.
func (a *AuthConfig) Sanitize() {
	a.OAuth.ClientID = strings.TrimSpace(a.OAuth.ClientID)
	a.OAuth.DiscoveryURL = strings.TrimSpace(a.OAuth.DiscoveryURL)
	a.OAuth.Scope = strings.Join(strings.Fields(a.OAuth.Scope), " ")
	if a.OAuth.RefreshSkew < 0 {
		a.OAuth.RefreshSkew = 0
	}
	if a.DevAuth.TokenLifetime <= 0 {
		a.DevAuth.TokenLifetime = time.Hour
	}
}
