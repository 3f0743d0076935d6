package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/tipsterhq/tipster-web/internal/adapters/memory"
)

const (
	testClientID = "test-client"
	testKID      = "test-key-1"
)

// fakeIdP is an in-process OIDC issuer: discovery, JWKS, token, userinfo and revocation.
type fakeIdP struct {
	t      *testing.T
	server *httptest.Server
	key    jwk.Key
	keys   jwk.Set

	mu             sync.Mutex
	expiresIn      int
	omitExpiresIn  bool
	rejectRefresh  bool
	idTokenNonce   string
	userInfoStatus int
	userInfo       map[string]any
	issued         int
	refreshCalls   int
	userInfoCalls  int
	revoked        []string
	lastVerifier   string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	priv, err := jwk.FromRaw(rsaKey)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, testKID))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))

	pub, err := jwk.FromRaw(rsaKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))
	require.NoError(t, pub.Set(jwk.KeyUsageKey, "sig"))

	keys := jwk.NewSet()
	require.NoError(t, keys.AddKey(pub))

	f := &fakeIdP{
		t:         t,
		key:       priv,
		keys:      keys,
		expiresIn: 3600,
		userInfo: map[string]any{
			"sub":   "sub-42",
			"email": "fan@example.com",
			"name":  "Pat Fan",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/jwks", f.jwks)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/userinfo", f.userinfo)
	mux.HandleFunc("/revoke", f.revoke)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIdP) discovery(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]any{
		"issuer":                                f.server.URL,
		"authorization_endpoint":                f.server.URL + "/authorize",
		"token_endpoint":                        f.server.URL + "/token",
		"userinfo_endpoint":                     f.server.URL + "/userinfo",
		"jwks_uri":                              f.server.URL + "/jwks",
		"revocation_endpoint":                   f.server.URL + "/revoke",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	writeJSON(w, http.StatusOK, doc)
}

func (f *fakeIdP) jwks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, f.keys)
}

func (f *fakeIdP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.lastVerifier = r.PostForm.Get("code_verifier")
	case "refresh_token":
		f.refreshCalls++
		if f.rejectRefresh {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_grant",
				"error_description": "refresh token revoked",
			})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	f.issued++
	resp := map[string]any{
		"access_token":  fmt.Sprintf("access-%d", f.issued),
		"token_type":    "Bearer",
		"refresh_token": fmt.Sprintf("refresh-%d", f.issued),
		"id_token":      f.signIDToken(f.idTokenNonce),
	}
	if !f.omitExpiresIn {
		resp["expires_in"] = f.expiresIn
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeIdP) userinfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userInfoCalls++

	if f.userInfoStatus != 0 {
		http.Error(w, "rejected", f.userInfoStatus)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, f.userInfo)
}

func (f *fakeIdP) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.revoked = append(f.revoked, r.PostForm.Get("token"))
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIdP) signIDToken(nonce string) string {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Issuer(f.server.URL).
		Subject("sub-42").
		Audience([]string{testClientID}).
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Claim("nonce", nonce).
		Claim("email", "fan@example.com").
		Claim("name", "Pat Fan").
		Build()
	require.NoError(f.t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, f.key))
	require.NoError(f.t, err)
	return string(signed)
}

func (f *fakeIdP) set(fn func(f *fakeIdP)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeIdP) counts() (refreshes, userInfos int, revoked []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.userInfoCalls, append([]string(nil), f.revoked...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type providerFixture struct {
	provider *Provider
	idp      *fakeIdP
	creds    *memory.CredentialStore
}

func newProviderFixture(t *testing.T, mutate ...func(*ProviderConfig)) *providerFixture {
	t.Helper()

	idp := newFakeIdP(t)
	creds := memory.NewCredentialStore(nil)
	cfg := ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scope:        "openid profile email offline_access",
		DiscoveryURL: idp.server.URL,
		Credentials:  creds,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	return &providerFixture{provider: p, idp: idp, creds: creds}
}
