package service

import (
	"context"
	"errors"
	"fmt"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Login    ports.LoginProvider
	Identity ports.IdentityProvider
}

// AuthService orchestrates the interactive login flow and user-initiated sign-out.
// Session state itself is owned by SessionManager, which learns about both through
// provider events.
type AuthService struct {
	login    ports.LoginProvider
	identity ports.IdentityProvider
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	return &AuthService{
		login:    opts.Login,
		identity: opts.Identity,
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL  string
	State    string
	Nonce    string
	Verifier string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with the
// values the callback must echo back.
func (s *AuthService) BeginLogin(ctx context.Context, returnTo string) (*BeginLoginResult, error) {
	if returnTo == "" {
		return nil, errors.New("return-to path is required")
	}

	res, err := s.login.Begin(ctx, ports.BeginInput{ReturnTo: returnTo})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{
		AuthURL:  res.AuthURL,
		State:    res.State,
		Nonce:    res.Nonce,
		Verifier: res.Verifier,
	}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code     string
	State    string
	Nonce    string
	Verifier string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Identity domainauth.Identity
}

// CompleteLogin exchanges the authorization code. On success the provider publishes a
// sign-in event, so the caller only needs to redirect.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*CompleteLoginResult, error) {
	if input.Code == "" {
		return nil, errors.New("authorization code is required")
	}
	if input.State == "" {
		return nil, errors.New("state parameter is required")
	}
	if input.Nonce == "" {
		return nil, errors.New("nonce parameter is required")
	}

	identity, err := s.login.Exchange(ctx, ports.ExchangeInput{
		Code:     input.Code,
		State:    input.State,
		Nonce:    input.Nonce,
		Verifier: input.Verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	return &CompleteLoginResult{Identity: identity}, nil
}

// CurrentUser asks the provider for the signed-in user (a server round trip).
func (s *AuthService) CurrentUser(ctx context.Context) (*domainauth.User, error) {
	user, err := s.identity.GetUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Logout ends the provider session. The resulting sign-out event clears local state.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.identity.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}
