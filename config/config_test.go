package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func parseEnv(t *testing.T, vars map[string]string) AppConfig {
	t.Helper()
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()
	return cfg
}

func TestAppConfig_Defaults(t *testing.T) {
	cfg := parseEnv(t, map[string]string{})

	if cfg.Auth.Mode != AuthModeOAuth {
		t.Errorf("expected default auth mode oauth, got %q", cfg.Auth.Mode)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("unexpected HTTP addr %q", cfg.HTTP.Addr)
	}
	if cfg.Redis.Enabled {
		t.Error("redis must be opt-in")
	}
	if cfg.Redis.KeyPrefix != "tipster:" {
		t.Errorf("unexpected redis prefix %q", cfg.Redis.KeyPrefix)
	}

	want := SessionConfig{
		InitTimeout:       5 * time.Second,
		ValidateInterval:  5 * time.Minute,
		SuppressionWindow: 5 * time.Second,
		SignOutTimeout:    3 * time.Second,
		LoginPath:         "/login",
		ReturnToParam:     "returnTo",
		BrowsingTTL:       12 * time.Hour,
	}
	if !reflect.DeepEqual(cfg.Session, want) {
		t.Errorf("session defaults:\n got %+v\nwant %+v", cfg.Session, want)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("unexpected cache TTL %v", cfg.Cache.TTL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "OAuth")
	t.Setenv("OAUTH_CLIENT_ID", "app-client")
	t.Setenv("OAUTH_CLIENT_SECRET", "super-secret")
	t.Setenv("OAUTH_REDIRECT_URL", "https://tipster.example.com/auth/callback")
	t.Setenv("OAUTH_DISCOVERY_URL", "https://login.example.com/.well-known/openid-configuration")
	t.Setenv("OAUTH_SCOPE", "openid   profile email")
	t.Setenv("OAUTH_CLAIM_ID", "preferred_username || sub")
	t.Setenv("DEV_AUTH_USER_ID", "dev-user")
	t.Setenv("DEV_AUTH_EMAIL", "dev@example.com")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse returned error: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Mode != AuthModeOAuth {
		t.Fatalf("expected AuthModeOAuth, got %q", cfg.Auth.Mode)
	}
	if cfg.Auth.OAuth.ClientID != "app-client" {
		t.Errorf("unexpected client id %q", cfg.Auth.OAuth.ClientID)
	}
	if cfg.Auth.OAuth.Scope != "openid profile email" {
		t.Errorf("scope not normalised: %q", cfg.Auth.OAuth.Scope)
	}
	if cfg.Auth.OAuth.ClaimID != "preferred_username || sub" {
		t.Errorf("unexpected claim expression %q", cfg.Auth.OAuth.ClaimID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestAuthMode_UnmarshalText(t *testing.T) {
	var m AuthMode
	if err := m.UnmarshalText([]byte("MOCK")); err != nil || m != AuthModeMock {
		t.Errorf("expected mock, got %q (%v)", m, err)
	}
	if err := m.UnmarshalText([]byte("saml")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr []string
	}{
		{
			name: "mock mode needs no oauth settings",
			vars: map[string]string{"AUTH_MODE": "mock"},
		},
		{
			name:    "oauth mode requires discovery and secret",
			vars:    map[string]string{"AUTH_MODE": "oauth"},
			wantErr: []string{"Auth.OAuth.DiscoveryURL", "Auth.OAuth.ClientSecret", "required_for_oauth"},
		},
		{
			name: "bad urls",
			vars: map[string]string{
				"AUTH_MODE":           "mock",
				"API_BASE_URL":        "not a url",
				"OAUTH_DISCOVERY_URL": "login.example.com",
			},
			wantErr: []string{"API.BaseURL", "Auth.OAuth.DiscoveryURL: failed url"},
		},
		{
			name: "login path must be absolute",
			vars: map[string]string{
				"AUTH_MODE":          "mock",
				"SESSION_LOGIN_PATH": "login",
			},
			wantErr: []string{"Session.LoginPath: failed startswith=/"},
		},
		{
			name: "bad log level",
			vars: map[string]string{
				"AUTH_MODE": "mock",
				"LOG_LEVEL": "verbose",
			},
			wantErr: []string{"LogLevel"},
		},
		{
			name: "redis db range",
			vars: map[string]string{
				"AUTH_MODE": "mock",
				"REDIS_DB":  "16",
			},
			wantErr: []string{"Redis.DB"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parseEnv(t, tt.vars)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestSessionConfig_Sanitize(t *testing.T) {
	s := SessionConfig{InitTimeout: -time.Second, LoginPath: "  ", ReturnToParam: ""}
	s.Sanitize()

	if s.InitTimeout != 5*time.Second {
		t.Errorf("expected default init timeout, got %v", s.InitTimeout)
	}
	if s.LoginPath != "/login" || s.ReturnToParam != "returnTo" {
		t.Errorf("unexpected routing defaults: %+v", s)
	}
}

func TestRedisConfig_Sanitize(t *testing.T) {
	c := RedisConfig{KeyPrefix: " tipster-test "}
	c.Sanitize()
	if c.KeyPrefix != "tipster-test:" {
		t.Errorf("expected trailing colon, got %q", c.KeyPrefix)
	}

	empty := RedisConfig{}
	empty.Sanitize()
	if empty.KeyPrefix != "" {
		t.Errorf("empty prefix must stay empty, got %q", empty.KeyPrefix)
	}
}

func TestHTTPConfig_SecureCookies(t *testing.T) {
	h := HTTPConfig{BaseURL: "https://tipster.example.com/"}
	h.Sanitize()
	if !h.SecureCookies() {
		t.Error("https base URL should use secure cookies")
	}
	if h.BaseURL != "https://tipster.example.com" {
		t.Errorf("trailing slash not trimmed: %q", h.BaseURL)
	}

	local := HTTPConfig{BaseURL: "http://localhost:8080"}
	if local.SecureCookies() {
		t.Error("http base URL should not use secure cookies")
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name        string
		cfg         ObservabilityMetricsConfig
		wantEnabled bool
	}{
		{
			name:        "enabled with address",
			cfg:         ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " 127.0.0.1:8125 "},
			wantEnabled: true,
		},
		{
			name:        "enabled without address",
			cfg:         ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "  "},
			wantEnabled: false,
		},
		{
			name:        "disabled",
			cfg:         ObservabilityMetricsConfig{StatsdAddress: "127.0.0.1:8125"},
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Sanitize()
			if got := tt.cfg.IsEnabled(); got != tt.wantEnabled {
				t.Errorf("IsEnabled() = %v, want %v", got, tt.wantEnabled)
			}
			if tt.cfg.Namespace != "tipster" {
				t.Errorf("expected default namespace, got %q", tt.cfg.Namespace)
			}
		})
	}
}

func TestAppConfig_DetectDevModeFromNodeEnv(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	cfg := AppConfig{}
	cfg.Sanitize()
	if !cfg.IsDev {
		t.Error("NODE_ENV=development should enable dev mode")
	}
}
