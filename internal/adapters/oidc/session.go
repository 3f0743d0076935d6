package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
)

// errInvalidGrant means the IdP rejected the stored refresh token; the session is over.
var errInvalidGrant = errors.New("refresh token rejected")

// GetSession returns the in-memory session when it is still fresh, otherwise redeems
// the stored refresh credential. A missing or rejected credential yields (nil, nil).
func (p *Provider) GetSession(ctx context.Context) (*domainauth.Snapshot, error) {
	if snap := p.snapshot(); snap.HasToken() && snap.ExpiresIn > p.refreshSkew {
		return snap, nil
	}

	snap, err := p.refreshSession(ctx)
	if errors.Is(err, errInvalidGrant) {
		return nil, nil
	}
	return snap, err
}

// GetUser asks the UserInfo endpoint for the current user. It always makes a round trip.
func (p *Provider) GetUser(ctx context.Context) (*domainauth.User, error) {
	p.mu.Lock()
	tok := p.current
	p.mu.Unlock()
	if tok == nil || tok.AccessToken == "" {
		return nil, apperrors.Unauthenticated("no active session")
	}

	user, err := p.fetchUser(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.current == tok {
		p.user = user
	}
	p.mu.Unlock()
	return user, nil
}

// SignOut revokes the refresh token (best effort), forgets the credential and publishes
// EventSignedOut.
func (p *Provider) SignOut(ctx context.Context) error {
	cred, err := p.credentials.Load(ctx)
	switch {
	case err == nil:
		if revokeErr := p.revoke(ctx, cred.RefreshToken); revokeErr != nil {
			p.logger.WarnContext(ctx, "revoke refresh token failed", "error", revokeErr)
		}
	case !apperrors.IsNotFound(err):
		p.logger.WarnContext(ctx, "load credential for sign-out failed", "error", err)
	}

	p.clear()
	if err := p.credentials.Delete(ctx); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	p.hub.Publish(domainauth.Event{Kind: domainauth.EventSignedOut})
	p.logger.InfoContext(ctx, "signed out")
	return nil
}

// refreshSession redeems the stored credential. Concurrent callers share one round trip.
func (p *Provider) refreshSession(ctx context.Context) (*domainauth.Snapshot, error) {
	v, err, _ := p.refresh.Do("refresh", func() (any, error) {
		return p.redeem(ctx)
	})
	if err != nil {
		return nil, err
	}
	snap, _ := v.(*domainauth.Snapshot)
	return snap, nil
}

func (p *Provider) redeem(ctx context.Context) (*domainauth.Snapshot, error) {
	cred, err := p.credentials.Load(ctx)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	src := p.config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := src.Token()
	if err != nil {
		if isInvalidGrant(err) {
			p.clear()
			if delErr := p.credentials.Delete(ctx); delErr != nil {
				p.logger.WarnContext(ctx, "delete rejected credential failed", "error", delErr)
			}
			return nil, errInvalidGrant
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if token.RefreshToken != "" && token.RefreshToken != cred.RefreshToken {
		if err := p.saveCredential(ctx, token, cred.Subject); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	user := p.user
	p.mu.Unlock()
	p.install(token, user)
	return p.snapshot(), nil
}

// autoRefresh runs from the refresh timer.
func (p *Provider) autoRefresh() {
	ctx := p.lifeCtx
	if ctx.Err() != nil {
		return
	}

	snap, err := p.refreshSession(ctx)
	switch {
	case errors.Is(err, errInvalidGrant), err == nil && snap == nil:
		p.logger.InfoContext(ctx, "session ended at the identity provider")
		p.clear()
		p.hub.Publish(domainauth.Event{Kind: domainauth.EventSignedOut})
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		p.logger.WarnContext(ctx, "automatic token refresh failed; retrying", "error", err, "retry_in", p.retryInterval)
		p.schedule(p.retryInterval)
	default:
		p.hub.Publish(domainauth.Event{Kind: domainauth.EventTokenRefreshed, Session: snap})
	}
}

// install makes token current and arms the refresh timer. It returns the effective expiry.
func (p *Provider) install(token *oauth2.Token, user *domainauth.User) time.Time {
	now := p.clock.Now()
	expiresAt := tokenExpiry(token, now)
	stored := *token
	stored.Expiry = expiresAt

	p.mu.Lock()
	p.current = &stored
	p.user = user
	p.mu.Unlock()

	lifetime := expiresAt.Sub(now)
	delay := lifetime - p.refreshSkew
	if delay <= 0 {
		delay = lifetime / 2
	}
	p.schedule(delay)
	return expiresAt
}

func (p *Provider) schedule(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lifeCtx.Err() != nil {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(delay, p.autoRefresh)
}

func (p *Provider) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	p.user = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// snapshot reports the current session; nil when signed out.
func (p *Provider) snapshot() *domainauth.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.current.AccessToken == "" {
		return nil
	}
	expiresIn := p.current.Expiry.Sub(p.clock.Now())
	if expiresIn <= 0 {
		return nil
	}
	snap := &domainauth.Snapshot{AccessToken: p.current.AccessToken, ExpiresIn: expiresIn}
	if p.user != nil {
		u := *p.user
		snap.User = &u
	}
	return snap
}

func (p *Provider) saveCredential(ctx context.Context, token *oauth2.Token, subject string) error {
	if token.RefreshToken == "" {
		// Without offline access the session cannot outlive the process.
		p.logger.DebugContext(ctx, "token response carried no refresh token")
		return nil
	}
	idToken, _ := token.Extra("id_token").(string)
	cred := domainauth.Credential{
		RefreshToken: token.RefreshToken,
		IDToken:      idToken,
		Subject:      subject,
		IssuedAt:     p.clock.Now(),
	}
	if err := p.credentials.Save(ctx, cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// revoke calls the RFC 7009 revocation endpoint, when the issuer advertises one.
func (p *Provider) revoke(ctx context.Context, refreshToken string) error {
	if p.revokeURL == "" || refreshToken == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("token_type_hint", "refresh_token")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}
