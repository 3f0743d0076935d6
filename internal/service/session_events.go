package service

import (
	"context"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	"github.com/tipsterhq/tipster-web/internal/observability/metrics"
)

// dispatch applies a provider session-change notification to the token store and the
// data cache. It never navigates.
func (m *SessionManager) dispatch(ctx context.Context, evt domainauth.Event) {
	m.logger.DebugContext(ctx, "session event", "kind", evt.Kind, "has_token", evt.Session.HasToken())

	switch evt.Kind {
	case domainauth.EventInitialSession:
		m.onInitialSession(ctx, evt.Session)
	case domainauth.EventSignedIn, domainauth.EventTokenRefreshed:
		m.onSignedIn(ctx, evt.Session)
	case domainauth.EventSignedOut:
		m.onSignedOut(ctx)
	default:
		m.storeSnapshot(evt.Session)
	}

	metrics.EmitSession(m.metrics, metrics.SessionMetric{
		Stage:  metrics.StageEvent,
		Result: metrics.ResultSuccess,
		Kind:   string(evt.Kind),
	})
}

func (m *SessionManager) onInitialSession(ctx context.Context, snap *domainauth.Snapshot) {
	if snap.HasToken() {
		m.tokens.SetToken(snap.AccessToken, snap.ExpiresIn)
		m.clearMarker(ctx)
		m.ensureValidator()
	}
	m.tokens.MarkInitialized()
}

func (m *SessionManager) onSignedIn(ctx context.Context, snap *domainauth.Snapshot) {
	m.storeSnapshot(snap)
	if m.cache != nil {
		if err := m.cache.InvalidateAll(ctx); err != nil {
			m.logger.WarnContext(ctx, "invalidate data cache failed", "error", err)
		}
	}
	m.ensureValidator()
}

func (m *SessionManager) onSignedOut(ctx context.Context) {
	m.tokens.ClearToken()
	if m.cache != nil {
		if err := m.cache.Purge(ctx); err != nil {
			m.logger.WarnContext(ctx, "purge data cache failed", "error", err)
		}
	}
	m.validator.Stop()
}

func (m *SessionManager) storeSnapshot(snap *domainauth.Snapshot) {
	if snap.HasToken() {
		m.tokens.SetToken(snap.AccessToken, snap.ExpiresIn)
		return
	}
	m.tokens.ClearToken()
}

func (m *SessionManager) ensureValidator() {
	if m.lifeCtx.Err() != nil {
		return
	}
	m.validator.Start(m.lifeCtx)
}
