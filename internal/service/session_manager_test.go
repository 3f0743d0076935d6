package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tipsterhq/tipster-web/internal/adapters/memory"
	"github.com/tipsterhq/tipster-web/internal/adapters/navigator"
	"github.com/tipsterhq/tipster-web/internal/data"
	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
	"github.com/tipsterhq/tipster-web/internal/mocks"
	mockauth "github.com/tipsterhq/tipster-web/internal/mocks/auth"
	"github.com/tipsterhq/tipster-web/internal/observability/statsd"
	"github.com/tipsterhq/tipster-web/internal/ports"
	"github.com/tipsterhq/tipster-web/internal/testutil"
)

const waitFor = 2 * time.Second

type managerFixture struct {
	manager  *SessionManager
	provider ports.IdentityProvider
	nav      *navigator.Navigator
	markers  ports.MarkerStore
	cache    *mockauth.RecordingCache
	clock    *data.FixedTimeProvider
	sink     *recordingSink
}

type fixtureOption func(*SessionManagerOptions)

func withConfig(cfg SessionConfig) fixtureOption {
	return func(o *SessionManagerOptions) { o.Config = cfg }
}

func withMarkers(m ports.MarkerStore) fixtureOption {
	return func(o *SessionManagerOptions) { o.Markers = m }
}

func withLocation(loc string) fixtureOption {
	return func(o *SessionManagerOptions) {
		o.Navigator = navigator.New(navigator.Options{Initial: loc, Logger: discardLogger()})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManagerFixture(t *testing.T, provider ports.IdentityProvider, opts ...fixtureOption) *managerFixture {
	t.Helper()

	clock := data.NewFixedTimeProvider(testutil.TestTime())
	cache := &mockauth.RecordingCache{}
	sink := &recordingSink{}
	o := SessionManagerOptions{
		Provider:  provider,
		Markers:   memory.NewMarkerStore(),
		Navigator: navigator.New(navigator.Options{Initial: "/fixtures", Logger: discardLogger()}),
		Cache:     cache,
		Clock:     clock,
		Metrics:   sink,
		Logger:    discardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := NewSessionManager(o)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	nav := o.Navigator.(*navigator.Navigator)
	nav.OnPageLoad(m.BeginPageLoad)

	return &managerFixture{
		manager:  m,
		provider: provider,
		nav:      nav,
		markers:  o.Markers,
		cache:    cache,
		clock:    clock,
		sink:     sink,
	}
}

func waitReady(t *testing.T, m *SessionManager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.WaitReady(ctx), "manager never became ready")
}

// recordingSink captures metric emissions.
type recordingSink struct {
	mu     sync.Mutex
	counts []metricCall
}

type metricCall struct {
	name string
	tags map[string]string
}

func (r *recordingSink) Count(name string, _ int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, metricCall{name: name, tags: tags})
}

func (r *recordingSink) Timing(string, time.Duration, map[string]string) {}

func (r *recordingSink) Gauge(string, float64, map[string]string) {}

func (r *recordingSink) results(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.counts {
		if c.name == name {
			out = append(out, c.tags["result"])
		}
	}
	return out
}

var _ statsd.Sink = (*recordingSink)(nil)

func TestNewSessionManager_RequiresDependencies(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	nav := navigator.New(navigator.Options{})
	markers := memory.NewMarkerStore()

	tests := []struct {
		name    string
		opts    SessionManagerOptions
		wantErr string
	}{
		{
			name:    "provider",
			opts:    SessionManagerOptions{Markers: markers, Navigator: nav},
			wantErr: "identity provider is required",
		},
		{
			name:    "markers",
			opts:    SessionManagerOptions{Provider: provider, Navigator: nav},
			wantErr: "marker store is required",
		},
		{
			name:    "navigator",
			opts:    SessionManagerOptions{Provider: provider, Markers: markers},
			wantErr: "navigator is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewSessionManager(tt.opts)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestSessionConfig_Defaults(t *testing.T) {
	cfg := SessionConfig{}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.InitTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ValidateInterval)
	assert.Equal(t, 5*time.Second, cfg.SuppressionWindow)
	assert.Equal(t, 3*time.Second, cfg.SignOutTimeout)
	assert.Equal(t, "/login", cfg.LoginPath)
	assert.Equal(t, "returnTo", cfg.ReturnToParam)

	custom := SessionConfig{LoginPath: "/signin", InitTimeout: time.Second}.withDefaults()
	assert.Equal(t, "/signin", custom.LoginPath)
	assert.Equal(t, time.Second, custom.InitTimeout)
}

func TestSessionManager_HandshakeWithSession(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(
		testutil.NewSnapshot().WithToken("abc").WithExpiresIn(7200 * time.Second).Build(),
	)
	f := newManagerFixture(t, provider)
	require.NoError(t, f.markers.Set(context.Background(), f.clock.Now()))

	f.manager.Start(context.Background())
	waitReady(t, f.manager)

	tok, ok := f.manager.Token()
	require.True(t, ok)
	assert.Equal(t, "abc", tok)
	assert.True(t, f.manager.IsReady())

	_, markerSet, err := f.markers.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, markerSet, "successful recovery clears the suppression marker")

	f.clock.AddTime(7200 * time.Second)
	_, ok = f.manager.Token()
	assert.False(t, ok)
}

func TestSessionManager_HandshakeWithoutSession(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	f := newManagerFixture(t, provider)

	f.manager.Start(context.Background())
	waitReady(t, f.manager)

	_, ok := f.manager.Token()
	assert.False(t, ok)
	assert.Empty(t, f.nav.History())
}

func TestSessionManager_HandshakeFailureIsNotSurfaced(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	provider.GetSessionFunc = func(context.Context) (*domainauth.Snapshot, error) {
		return nil, errors.New("identity service unreachable")
	}
	f := newManagerFixture(t, provider)

	f.manager.Start(context.Background())
	waitReady(t, f.manager)

	_, ok := f.manager.Token()
	assert.False(t, ok)
	assert.Empty(t, f.nav.History())
	assert.Contains(t, f.sink.results("session.init"), "error")
}

func TestSessionManager_HandshakeAbortStillBecomesReady(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	provider.GetSessionFunc = func(context.Context) (*domainauth.Snapshot, error) {
		return nil, apperrors.MapTransportError(context.Canceled)
	}
	f := newManagerFixture(t, provider)

	f.manager.Start(context.Background())
	waitReady(t, f.manager)

	_, ok := f.manager.Token()
	assert.False(t, ok)
	assert.Empty(t, f.nav.History(), "an aborted handshake never redirects")
	assert.Contains(t, f.sink.results("session.init"), "aborted")
}

func TestSessionManager_HandshakeAbortKeepsConcurrentToken(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)

	var f *managerFixture
	provider.GetSessionFunc = func(context.Context) (*domainauth.Snapshot, error) {
		// Another path stores a token before the handshake is aborted.
		f.manager.Tokens().SetToken("concurrent", time.Hour)
		return nil, apperrors.ErrNavigationAborted
	}
	f = newManagerFixture(t, provider)

	f.manager.Start(context.Background())
	waitReady(t, f.manager)
	require.Eventually(t, func() bool { return provider.Listeners() == 1 }, waitFor, 5*time.Millisecond)

	tok, ok := f.manager.Token()
	require.True(t, ok, "an aborted handshake must not clear a token set elsewhere")
	assert.Equal(t, "concurrent", tok)
}

func TestSessionManager_FallbackTimerUnblocksReadiness(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)

	release := make(chan struct{})
	provider.EXPECT().GetSession(gomock.Any()).DoAndReturn(func(context.Context) (*domainauth.Snapshot, error) {
		<-release
		return &domainauth.Snapshot{AccessToken: "late", ExpiresIn: time.Hour}, nil
	})
	subscribed := make(chan struct{})
	provider.EXPECT().Subscribe(gomock.Any()).DoAndReturn(func(func(domainauth.Event)) func() {
		close(subscribed)
		return func() {}
	})

	f := newManagerFixture(t, provider, withConfig(SessionConfig{InitTimeout: 20 * time.Millisecond}))
	f.manager.Start(context.Background())

	waitReady(t, f.manager)
	_, ok := f.manager.Token()
	assert.False(t, ok, "fallback readiness carries no session")
	assert.Contains(t, f.sink.results("session.init"), "timeout")

	// The fallback attaches the subscription while the handshake is still hung.
	select {
	case <-subscribed:
	case <-time.After(waitFor):
		t.Fatal("subscription was not established while the handshake hung")
	}

	// The hung handshake resolving later still stores its session.
	close(release)
	require.Eventually(t, func() bool {
		tok, ok := f.manager.Token()
		return ok && tok == "late"
	}, waitFor, 5*time.Millisecond)
}

func TestSessionManager_FallbackCoversAbortedHandshake(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)

	provider.EXPECT().GetSession(gomock.Any()).Return(nil, context.Canceled)
	// The subscription delivers no initial snapshot.
	provider.EXPECT().Subscribe(gomock.Any()).Return(func() {})

	f := newManagerFixture(t, provider, withConfig(SessionConfig{InitTimeout: 20 * time.Millisecond}))
	f.manager.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, f.manager.WaitReady(ctx), "fallback must resolve readiness after an aborted handshake")

	_, ok := f.manager.Token()
	assert.False(t, ok)
	assert.Empty(t, f.nav.History())
	require.Eventually(t, func() bool {
		return len(f.sink.results("session.init")) == 2
	}, waitFor, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"aborted", "timeout"}, f.sink.results("session.init"))
}

func TestSessionManager_CloseDisarmsFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)

	provider.EXPECT().GetSession(gomock.Any()).Return(nil, context.Canceled).AnyTimes()
	provider.EXPECT().Subscribe(gomock.Any()).Return(func() {}).AnyTimes()

	f := newManagerFixture(t, provider, withConfig(SessionConfig{InitTimeout: 50 * time.Millisecond}))
	f.manager.Start(context.Background())
	f.manager.Close()
	time.Sleep(150 * time.Millisecond)

	assert.False(t, f.manager.IsReady(), "a closed manager's fallback must not fire")
	assert.NotContains(t, f.sink.results("session.init"), "timeout")
}

func TestSessionManager_StartIsOneShot(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	f := newManagerFixture(t, provider)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.manager.Start(context.Background())
		}()
	}
	wg.Wait()
	waitReady(t, f.manager)

	require.Eventually(t, func() bool { return provider.SubscribeCalls() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, provider.SessionCalls())
	assert.Equal(t, 1, provider.Listeners())
}

func TestSessionManager_CloseDetaches(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(testutil.NewSnapshot().WithToken("abc").Build())
	f := newManagerFixture(t, provider)

	f.manager.Start(context.Background())
	require.Eventually(t, func() bool { return provider.Listeners() == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, f.manager.ValidatorRunning, waitFor, 5*time.Millisecond)

	f.manager.Close()
	f.manager.Close()

	assert.Equal(t, 0, provider.Listeners())
	assert.False(t, f.manager.ValidatorRunning())
}

func TestSessionManager_Events(t *testing.T) {
	t.Run("initial snapshot with token", func(t *testing.T) {
		provider := mockauth.NewFakeIdentityProvider(nil)
		f := newManagerFixture(t, provider)
		ctx := context.Background()
		require.NoError(t, f.markers.Set(ctx, f.clock.Now()))

		f.manager.dispatch(ctx, testutil.NewSnapshot().WithToken("init").Event(domainauth.EventInitialSession))

		tok, ok := f.manager.Token()
		require.True(t, ok)
		assert.Equal(t, "init", tok)
		assert.True(t, f.manager.IsReady())
		assert.True(t, f.manager.ValidatorRunning())
		_, markerSet, _ := f.markers.Get(ctx)
		assert.False(t, markerSet)
	})

	t.Run("initial snapshot without token", func(t *testing.T) {
		f := newManagerFixture(t, mockauth.NewFakeIdentityProvider(nil))

		f.manager.dispatch(context.Background(), domainauth.Event{Kind: domainauth.EventInitialSession})

		_, ok := f.manager.Token()
		assert.False(t, ok)
		assert.True(t, f.manager.IsReady())
		assert.False(t, f.manager.ValidatorRunning())
	})

	for _, kind := range []domainauth.EventKind{domainauth.EventSignedIn, domainauth.EventTokenRefreshed} {
		t.Run(string(kind), func(t *testing.T) {
			f := newManagerFixture(t, mockauth.NewFakeIdentityProvider(nil))

			f.manager.dispatch(context.Background(), testutil.NewSnapshot().WithToken("new").Event(kind))

			tok, ok := f.manager.Token()
			require.True(t, ok)
			assert.Equal(t, "new", tok)
			assert.Equal(t, 1, f.cache.Invalidations())
			assert.Equal(t, 0, f.cache.Purges())
			assert.True(t, f.manager.ValidatorRunning())
			assert.Empty(t, f.nav.History(), "events never navigate")
		})
	}

	t.Run("user updated with and without session", func(t *testing.T) {
		f := newManagerFixture(t, mockauth.NewFakeIdentityProvider(nil))
		ctx := context.Background()

		f.manager.dispatch(ctx, testutil.NewSnapshot().WithToken("profile").Event(domainauth.EventUserUpdated))
		tok, ok := f.manager.Token()
		require.True(t, ok)
		assert.Equal(t, "profile", tok)

		f.manager.dispatch(ctx, domainauth.Event{Kind: domainauth.EventUserUpdated})
		_, ok = f.manager.Token()
		assert.False(t, ok)
		assert.Equal(t, 0, f.cache.Invalidations())
	})

	t.Run("cache errors are tolerated", func(t *testing.T) {
		f := newManagerFixture(t, mockauth.NewFakeIdentityProvider(nil))
		f.cache.Err = errors.New("redis down")

		f.manager.dispatch(context.Background(), testutil.NewSnapshot().WithToken("x").Event(domainauth.EventSignedIn))
		_, ok := f.manager.Token()
		assert.True(t, ok)
	})
}

func TestSessionManager_SignOutEventClearsTokenAndPurgesOnce(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(testutil.NewSnapshot().WithToken("abc").Build())
	f := newManagerFixture(t, provider)

	f.manager.Start(context.Background())
	waitReady(t, f.manager)
	require.Eventually(t, func() bool { return provider.Listeners() == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, f.manager.ValidatorRunning, waitFor, 5*time.Millisecond)

	provider.Publish(domainauth.Event{Kind: domainauth.EventSignedOut})

	_, ok := f.manager.Token()
	assert.False(t, ok)
	assert.Equal(t, 1, f.cache.Purges())
	assert.False(t, f.manager.ValidatorRunning())
	assert.Empty(t, f.nav.History())
}
