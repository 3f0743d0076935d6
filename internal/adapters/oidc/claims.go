package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
)

// ClaimMapping holds JMESPath expressions that pick user fields out of ID token or
// UserInfo claims. Issuers disagree on claim names (AD/ADFS uses samaccountname and mail).
// Nested paths must live under non-standard claims; UserInfo decoding requires standard
// claims such as profile and email to be strings.
type ClaimMapping struct {
	ID    string
	Email string
	Name  string
}

// DefaultClaimMapping follows standard OIDC claims with common AD/ADFS fallbacks.
func DefaultClaimMapping() ClaimMapping {
	return ClaimMapping{
		ID:    "samaccountname || sub",
		Email: "email || mail",
		Name:  "name || join(' ', [firstname || given_name, lastname || family_name][?@])",
	}
}

func (c ClaimMapping) withDefaults() ClaimMapping {
	def := DefaultClaimMapping()
	if strings.TrimSpace(c.ID) == "" {
		c.ID = def.ID
	}
	if strings.TrimSpace(c.Email) == "" {
		c.Email = def.Email
	}
	if strings.TrimSpace(c.Name) == "" {
		c.Name = def.Name
	}
	return c
}

func (c ClaimMapping) validate() error {
	for field, expr := range map[string]string{"id": c.ID, "email": c.Email, "name": c.Name} {
		if _, err := jmespath.Compile(expr); err != nil {
			return fmt.Errorf("invalid %s claim expression %q: %w", field, expr, err)
		}
	}
	return nil
}

// apply evaluates the mapping against raw claims.
func (c ClaimMapping) apply(claims map[string]any) (domainauth.User, error) {
	var user domainauth.User
	var err error
	if user.ID, err = searchString(c.ID, claims); err != nil {
		return user, fmt.Errorf("map id claim: %w", err)
	}
	if user.Email, err = searchString(c.Email, claims); err != nil {
		return user, fmt.Errorf("map email claim: %w", err)
	}
	if user.Name, err = searchString(c.Name, claims); err != nil {
		return user, fmt.Errorf("map name claim: %w", err)
	}
	return user, nil
}

// searchString evaluates expr and stringifies a scalar result. Missing values yield "".
func searchString(expr string, data any) (string, error) {
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case float64, bool:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("expression %q produced %T, want a scalar", expr, v)
	}
}

// fetchUser calls the UserInfo endpoint with accessToken.
func (p *Provider) fetchUser(ctx context.Context, accessToken string) (*domainauth.User, error) {
	ui, err := p.oidcProvider.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	return p.userFromInfo(ui)
}

func (p *Provider) userFromInfo(ui *gooidc.UserInfo) (*domainauth.User, error) {
	var claims map[string]any
	if err := ui.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	user, err := p.claims.apply(claims)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		user.ID = ui.Subject
	}
	if user.ID == "" {
		return nil, errors.New("user info carries no subject")
	}
	return &user, nil
}

// fillMissing fills empty fields of dst from src without overwriting.
func fillMissing(dst *domainauth.User, src domainauth.User) {
	if dst.ID == "" {
		dst.ID = src.ID
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
}

// tokenExpiry prefers the token response's expires_in, then the access token's own
// exp claim when it is a JWT, then a fixed default lifetime.
func tokenExpiry(tok *oauth2.Token, now time.Time) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		return exp
	}
	return now.Add(defaultTokenLifetime)
}

// jwtExpiry reads exp without verifying the signature; the token is only inspected,
// never trusted for authorization.
func jwtExpiry(raw string) (time.Time, bool) {
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}
	tok, err := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return time.Time{}, false
	}
	exp := tok.Expiration()
	return exp, !exp.IsZero()
}
