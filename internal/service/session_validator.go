package service

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
	"github.com/tipsterhq/tipster-web/internal/observability/metrics"
)

// tickerFunc starts a ticker and returns its channel and a stop function.
type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type validatorOptions struct {
	interval time.Duration
	check    func(ctx context.Context)
	// newTicker defaults to a wall-clock ticker.
	newTicker tickerFunc
}

// sessionValidator runs check on a fixed interval. At most one loop runs at a time.
type sessionValidator struct {
	interval  time.Duration
	check     func(ctx context.Context)
	newTicker tickerFunc

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newSessionValidator(opts validatorOptions) *sessionValidator {
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = realTicker
	}
	return &sessionValidator{
		interval:  opts.interval,
		check:     opts.check,
		newTicker: newTicker,
	}
}

// Start launches the loop unless one is already running. It reports whether a loop was started.
func (v *sessionValidator) Start(parent context.Context) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	v.cancel = cancel
	go v.loop(ctx)
	return true
}

// Stop cancels the running loop, if any. It does not wait for an in-flight check.
func (v *sessionValidator) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel == nil {
		return
	}
	v.cancel()
	v.cancel = nil
}

// Running reports whether a loop is active.
func (v *sessionValidator) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancel != nil
}

func (v *sessionValidator) loop(ctx context.Context) {
	ticks, stop := v.newTicker(v.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			v.check(ctx)
		}
	}
}

var errNoUser = errors.New("identity provider returned no user")

// validateOnce asks the provider to confirm the current user server-side. A rejection
// clears the token store; the next outbound request failure then drives recovery.
// loopCtx ends when the validator stops; the call is also bound to the current page so
// a navigation aborts it.
func (m *SessionManager) validateOnce(loopCtx context.Context) {
	if _, ok := m.tokens.Token(); !ok {
		return
	}

	callCtx, cancel := context.WithCancel(m.navigator.Context())
	defer cancel()
	stop := context.AfterFunc(loopCtx, cancel)
	defer stop()

	start := m.clock.Now()
	user, err := m.provider.GetUser(callCtx)
	if err == nil && user == nil {
		err = errNoUser
	}

	result := metrics.ResultSuccess
	switch {
	case err != nil && apperrors.IsAbort(err):
		m.logger.DebugContext(callCtx, "session validation aborted; assuming still valid", "error", err)
		result = metrics.ResultAborted
	case err != nil:
		m.logger.WarnContext(callCtx, "session no longer valid on server; clearing token", "error", err)
		m.tokens.ClearToken()
		result = metrics.ResultInvalid
	}

	metrics.EmitSession(m.metrics, metrics.SessionMetric{
		Stage:    metrics.StageValidation,
		Result:   result,
		Duration: m.clock.Now().Sub(start),
	})
}
