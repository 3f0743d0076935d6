package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tipsterhq/tipster-web/internal/data"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
	"github.com/tipsterhq/tipster-web/internal/observability/metrics"
	"github.com/tipsterhq/tipster-web/internal/observability/statsd"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

const (
	defaultInitTimeout       = 5 * time.Second
	defaultValidateInterval  = 5 * time.Minute
	defaultSuppressionWindow = 5 * time.Second
	defaultSignOutTimeout    = 3 * time.Second
	defaultLoginPath         = "/login"
	defaultReturnToParam     = "returnTo"
)

// SessionConfig holds the timing and routing knobs of the session lifecycle.
// Zero values fall back to defaults.
type SessionConfig struct {
	// InitTimeout bounds how long readiness waits on the startup handshake.
	InitTimeout time.Duration
	// ValidateInterval is the period of the server-side user check.
	ValidateInterval time.Duration
	// SuppressionWindow is how long a redirect-suppression marker stays effective.
	SuppressionWindow time.Duration
	// SignOutTimeout bounds the best-effort provider sign-out during recovery.
	SignOutTimeout time.Duration
	// LoginPath is the login entry point.
	LoginPath string
	// ReturnToParam is the query parameter carrying the original path to the login page.
	ReturnToParam string
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.InitTimeout <= 0 {
		c.InitTimeout = defaultInitTimeout
	}
	if c.ValidateInterval <= 0 {
		c.ValidateInterval = defaultValidateInterval
	}
	if c.SuppressionWindow <= 0 {
		c.SuppressionWindow = defaultSuppressionWindow
	}
	if c.SignOutTimeout <= 0 {
		c.SignOutTimeout = defaultSignOutTimeout
	}
	if c.LoginPath == "" {
		c.LoginPath = defaultLoginPath
	}
	if c.ReturnToParam == "" {
		c.ReturnToParam = defaultReturnToParam
	}
	return c
}

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Provider  ports.IdentityProvider
	Markers   ports.MarkerStore
	Navigator ports.Navigator
	Cache     ports.DataCache
	// Tokens is optional; a fresh TokenStore is created when nil.
	Tokens  *TokenStore
	Clock   data.TimeProvider
	Config  SessionConfig
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// SessionManager owns process-wide authentication state: the token store, the readiness
// gate, the provider subscription, the periodic validator and failure recovery.
// Construct one per process; it is safe for concurrent use.
type SessionManager struct {
	provider  ports.IdentityProvider
	markers   ports.MarkerStore
	navigator ports.Navigator
	cache     ports.DataCache
	tokens    *TokenStore
	clock     data.TimeProvider
	cfg       SessionConfig
	metrics   statsd.Sink
	logger    *slog.Logger

	validator *sessionValidator

	startOnce     sync.Once
	subscribeOnce sync.Once
	closeOnce     sync.Once

	// lifeCtx is set once at construction and canceled by Close.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu          sync.Mutex
	unsubscribe func()
	fallback    *time.Timer

	// recovering is the per-page-load one-shot recovery guard.
	recovering atomic.Bool
}

var (
	_ ports.TokenSource     = (*SessionManager)(nil)
	_ ports.FailureReporter = (*SessionManager)(nil)
)

// NewSessionManager constructs a SessionManager. Provider, Markers and Navigator are required.
func NewSessionManager(opts SessionManagerOptions) (*SessionManager, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.Markers == nil {
		return nil, errors.New("marker store is required")
	}
	if opts.Navigator == nil {
		return nil, errors.New("navigator is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = NewTokenStore(clock)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &SessionManager{
		provider:  opts.Provider,
		markers:   opts.Markers,
		navigator: opts.Navigator,
		cache:     opts.Cache,
		tokens:    tokens,
		clock:     clock,
		cfg:       opts.Config.withDefaults(),
		metrics:   opts.Metrics,
		logger:    logger.With("component", "session"),
	}
	m.lifeCtx, m.lifeCancel = context.WithCancel(context.Background())
	m.validator = newSessionValidator(validatorOptions{
		interval: m.cfg.ValidateInterval,
		check:    m.validateOnce,
	})
	return m, nil
}

// Tokens exposes the underlying token store.
func (m *SessionManager) Tokens() *TokenStore { return m.tokens }

// Token returns the current access token, if any. It never blocks.
func (m *SessionManager) Token() (string, bool) { return m.tokens.Token() }

// Session returns a copy of the stored session, expired or not.
func (m *SessionManager) Session() domainauth.Session { return m.tokens.Session() }

// IsReady reports whether the initial session state is known.
func (m *SessionManager) IsReady() bool { return m.tokens.IsInitialized() }

// Ready returns a channel closed once the initial session state is known.
func (m *SessionManager) Ready() <-chan struct{} { return m.tokens.Ready() }

// WaitReady blocks until the manager is ready or ctx is done.
func (m *SessionManager) WaitReady(ctx context.Context) error { return m.tokens.WaitReady(ctx) }

// ValidatorRunning reports whether the periodic validator loop is active.
func (m *SessionManager) ValidatorRunning() bool { return m.validator.Running() }

// Start begins the startup handshake. ctx scopes the handshake call only (typically the
// current page context); background work is tied to the manager and ends on Close.
// Calls after the first are no-ops.
func (m *SessionManager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		fallback := time.AfterFunc(m.cfg.InitTimeout, m.onInitTimeout)
		m.mu.Lock()
		m.fallback = fallback
		m.mu.Unlock()

		go func() {
			if m.initialize(ctx) {
				fallback.Stop()
			}
			m.subscribe()
		}()
	})
}

// onInitTimeout resolves readiness when the handshake has not. It also attaches the
// subscription so a hung handshake does not delay change notifications.
func (m *SessionManager) onInitTimeout() {
	if m.lifeCtx.Err() != nil {
		return
	}
	if m.tokens.MarkInitialized() {
		m.logger.Warn("session state unresolved after init timeout; continuing without session",
			"timeout", m.cfg.InitTimeout)
		metrics.EmitSession(m.metrics, metrics.SessionMetric{
			Stage:  metrics.StageInit,
			Result: metrics.ResultTimeout,
		})
	}
	m.subscribe()
}

// initialize performs the one-time handshake with the identity provider. It reports
// whether readiness was resolved; an aborted handshake leaves that to the fallback.
func (m *SessionManager) initialize(ctx context.Context) bool {
	start := m.clock.Now()
	snap, err := m.provider.GetSession(ctx)

	switch {
	case err != nil && apperrors.IsAbort(err):
		// A navigation aborted the call; a concurrent path may already hold a token.
		m.logger.DebugContext(ctx, "session handshake aborted", "error", err)
		metrics.EmitSession(m.metrics, metrics.SessionMetric{Stage: metrics.StageInit, Result: metrics.ResultAborted})
		return false
	case err != nil:
		m.logger.WarnContext(ctx, "session handshake failed; continuing without session", "error", err)
		m.emitInit(metrics.ResultError, start, err)
	case snap.HasToken():
		m.tokens.SetToken(snap.AccessToken, snap.ExpiresIn)
		m.clearMarker(ctx)
		m.logger.InfoContext(ctx, "session recovered", "expires_in", snap.ExpiresIn)
		m.emitInit(metrics.ResultSuccess, start, nil)
	default:
		m.logger.DebugContext(ctx, "no existing session")
		m.emitInit(metrics.ResultAnonymous, start, nil)
	}

	m.tokens.MarkInitialized()
	return true
}

func (m *SessionManager) emitInit(result string, start time.Time, err error) {
	metrics.EmitSession(m.metrics, metrics.SessionMetric{
		Stage:    metrics.StageInit,
		Result:   result,
		Duration: m.clock.Now().Sub(start),
		Err:      err,
	})
}

// subscribe attaches to the provider's change stream exactly once per manager.
func (m *SessionManager) subscribe() {
	m.subscribeOnce.Do(func() {
		ctx := m.lifeCtx
		if ctx.Err() != nil {
			return
		}
		unsubscribe := m.provider.Subscribe(func(evt domainauth.Event) {
			m.dispatch(ctx, evt)
		})

		m.mu.Lock()
		defer m.mu.Unlock()
		if ctx.Err() != nil {
			// Closed while subscribing.
			unsubscribe()
			return
		}
		m.unsubscribe = unsubscribe
	})
}

// Close stops background work and detaches from the provider. Idempotent.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.lifeCancel()
		unsubscribe := m.unsubscribe
		m.unsubscribe = nil
		if m.fallback != nil {
			m.fallback.Stop()
		}
		m.mu.Unlock()

		m.validator.Stop()
		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

func (m *SessionManager) clearMarker(ctx context.Context) {
	if err := m.markers.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.WarnContext(ctx, "clear redirect-suppression marker failed", "error", err)
	}
}
