package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"

	"github.com/tipsterhq/tipster-web/internal/core"
	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

const maxResponseBytes = 4 << 20

// Config captures what the API client needs.
type Config struct {
	BaseURL string
	Timeout time.Duration

	Tokens   ports.TokenSource
	Ready    Readiness
	Failures ports.FailureReporter
	// Cache is optional; when set, GetJSON answers repeated reads from it.
	Cache *core.QueryCache
	// Base overrides the underlying transport (tests).
	Base   http.RoundTripper
	Logger *slog.Logger
}

// Client talks JSON to the remote prediction API.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	cache   *core.QueryCache
	logger  *slog.Logger
}

// NewClient builds an API client. BaseURL must be absolute.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("api base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url must be absolute: %q", raw)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		baseURL: base,
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			Transport: &Transport{
				Base:     cfg.Base,
				Tokens:   cfg.Tokens,
				Ready:    cfg.Ready,
				Failures: cfg.Failures,
				Logger:   logger,
			},
		},
		cache:  cfg.Cache,
		logger: logger.With("component", "apiclient"),
	}, nil
}

// GetJSON fetches path and decodes the JSON body into out. Reads go through the data
// cache when one is configured; failed reads are never cached.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	var (
		body []byte
		err  error
	)
	if c.cache != nil {
		body, err = c.cache.Fetch(ctx, path, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, http.MethodGet, path, nil)
		})
	} else {
		body, err = c.do(ctx, http.MethodGet, path, nil)
	}
	if err != nil {
		return err
	}
	return decode(body, out)
}

// PostJSON sends in as JSON and decodes the response into out (when non-nil).
// Writes invalidate cached reads so the next GetJSON sees fresh data.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "encode request body")
	}

	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if c.cache != nil {
		if invErr := c.cache.InvalidateAll(ctx); invErr != nil {
			c.logger.WarnContext(ctx, "invalidate data cache after write failed", "error", invErr)
		}
	}
	if out == nil {
		return nil
	}
	return decode(body, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "build api request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.MapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.MapTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.FromStatus(resp.StatusCode, errorMessage(body))
	}
	return body, nil
}

// resolve joins a relative API path onto the base URL. Absolute URLs are rejected so
// the bearer token never leaves the API host.
func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeValidation, "parse api path %q", path)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", apperrors.Validationf("api path must be relative: %q", path)
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	ref.RawPath = strings.TrimPrefix(ref.RawPath, "/")
	return c.baseURL.ResolveReference(ref).String(), nil
}

func decode(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode api response")
	}
	return nil
}

const maxErrorMessage = 200

// errorMessage pulls a human-readable message out of an error body. A JSON body without
// a message yields "" so the caller falls back to the status text.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		return payload.Error
	}
	return truncate(strings.TrimSpace(string(body)), maxErrorMessage)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
