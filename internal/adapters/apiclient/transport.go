package apiclient

// Package apiclient is the outbound client for the remote prediction API. Every request
// waits for the session to be ready, carries the current bearer token, and reports
// authentication failures back to the session manager.

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tipsterhq/tipster-web/internal/ports"
)

// Readiness gates outbound requests until the initial session state is known.
type Readiness interface {
	WaitReady(ctx context.Context) error
}

// Transport decorates a base RoundTripper with session handling.
type Transport struct {
	Base     http.RoundTripper
	Tokens   ports.TokenSource
	Ready    Readiness
	Failures ports.FailureReporter
	Logger   *slog.Logger
}

// RoundTrip implements http.RoundTripper. It never mutates the caller's request.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.Ready != nil {
		if err := t.Ready.WaitReady(ctx); err != nil {
			closeBody(req)
			return nil, err
		}
	}

	out := req.Clone(ctx)
	if t.Tokens != nil {
		if token, ok := t.Tokens.Token(); ok {
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if t.Failures != nil && t.Failures.ReportRequestFailure(ctx, resp.StatusCode) {
			t.logger().InfoContext(ctx, "api rejected session; recovery started",
				"status", resp.StatusCode, "path", req.URL.Path)
		}
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
