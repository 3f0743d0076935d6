package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tipsterhq/tipster-web/internal/observability/metrics"
)

// ReportRequestFailure is the single entry point the outbound request layer calls with
// the status of a failed API response. Only 401 (session invalid or expired) triggers
// recovery; 403 is left to the calling view. It reports whether recovery ran.
//
// Recovery runs at most once per page load, never on the login page, and never within
// the suppression window of a previous forced logout.
func (m *SessionManager) ReportRequestFailure(ctx context.Context, status int) bool {
	if status != http.StatusUnauthorized {
		return false
	}

	if !m.recovering.CompareAndSwap(false, true) {
		m.logger.DebugContext(ctx, "recovery already in progress; ignoring failure")
		return false
	}

	location := m.navigator.Location()
	if m.isLoginPage(location) {
		m.logger.DebugContext(ctx, "authentication failure on login page; not redirecting")
		m.emitRecovery(metrics.ResultNoop)
		return false
	}

	// Recovery must finish even if the failing request's context is gone.
	rctx := context.WithoutCancel(ctx)
	now := m.clock.Now()

	marker, ok, err := m.markers.Get(rctx)
	if err != nil {
		m.logger.WarnContext(ctx, "read redirect-suppression marker failed", "error", err)
	}
	if ok && marker.Within(now, m.cfg.SuppressionWindow) {
		m.logger.InfoContext(ctx, "forced logout suppressed; recent redirect already happened",
			"marker_set_at", marker.SetAt)
		m.emitRecovery(metrics.ResultSuppressed)
		return false
	}

	if err := m.markers.Set(rctx, now); err != nil {
		m.logger.WarnContext(ctx, "write redirect-suppression marker failed", "error", err)
	}

	m.signOutBestEffort(rctx)
	m.tokens.ClearToken()

	target := m.loginURL(location)
	m.logger.InfoContext(ctx, "session invalid; redirecting to login", "return_to", location)
	m.emitRecovery(metrics.ResultSuccess)
	m.navigator.Reload(target)
	return true
}

// BeginPageLoad resets the per-page-load recovery guard. The navigator calls it at the
// start of every full page load.
func (m *SessionManager) BeginPageLoad() {
	m.recovering.Store(false)
}

func (m *SessionManager) signOutBestEffort(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.SignOutTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.provider.SignOut(sctx) }()

	select {
	case err := <-done:
		if err != nil {
			m.logger.WarnContext(ctx, "provider sign-out failed; continuing", "error", err)
		}
	case <-sctx.Done():
		m.logger.WarnContext(ctx, "provider sign-out timed out; continuing", "timeout", m.cfg.SignOutTimeout)
	}
}

func (m *SessionManager) isLoginPage(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Path == m.cfg.LoginPath
}

func (m *SessionManager) loginURL(returnTo string) string {
	if returnTo == "" {
		returnTo = "/"
	}
	q := url.Values{}
	q.Set(m.cfg.ReturnToParam, returnTo)
	return m.cfg.LoginPath + "?" + q.Encode()
}

func (m *SessionManager) emitRecovery(result string) {
	metrics.EmitSession(m.metrics, metrics.SessionMetric{
		Stage:  metrics.StageRecovery,
		Result: result,
	})
}
