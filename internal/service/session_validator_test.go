package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
	mockauth "github.com/tipsterhq/tipster-web/internal/mocks/auth"
)

// manualTicker delivers ticks only when the test sends them.
type manualTicker struct {
	ch       chan time.Time
	interval atomic.Int64
	starts   atomic.Int32
	stops    atomic.Int32
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (mt *manualTicker) start(d time.Duration) (<-chan time.Time, func()) {
	mt.interval.Store(int64(d))
	mt.starts.Add(1)
	return mt.ch, func() { mt.stops.Add(1) }
}

func (mt *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case mt.ch <- time.Time{}:
	case <-time.After(waitFor):
		t.Fatal("validator loop did not take the tick")
	}
}

func (mt *manualTicker) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case mt.ch <- time.Time{}:
		t.Fatal("stopped validator loop took a tick")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSessionValidator_StartsAtMostOnce(t *testing.T) {
	ticker := newManualTicker()
	var checks atomic.Int32
	v := newSessionValidator(validatorOptions{
		interval:  time.Minute,
		check:     func(context.Context) { checks.Add(1) },
		newTicker: ticker.start,
	})
	defer v.Stop()

	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.Start(context.Background()) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.True(t, v.Running())

	ticker.tick(t)
	ticker.tick(t)
	require.Eventually(t, func() bool { return checks.Load() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, int32(1), ticker.starts.Load())
	assert.Equal(t, int64(time.Minute), ticker.interval.Load())
}

func TestSessionValidator_StopHaltsLoop(t *testing.T) {
	ticker := newManualTicker()
	var checks atomic.Int32
	v := newSessionValidator(validatorOptions{
		interval:  time.Minute,
		check:     func(context.Context) { checks.Add(1) },
		newTicker: ticker.start,
	})

	require.True(t, v.Start(context.Background()))
	ticker.tick(t)
	require.Eventually(t, func() bool { return checks.Load() == 1 }, waitFor, time.Millisecond)

	v.Stop()
	v.Stop()
	assert.False(t, v.Running())
	require.Eventually(t, func() bool { return ticker.stops.Load() == 1 }, waitFor, time.Millisecond)
	ticker.assertIdle(t)
	assert.Equal(t, int32(1), checks.Load())

	// A stopped validator can be started again.
	assert.True(t, v.Start(context.Background()))
	ticker.tick(t)
	require.Eventually(t, func() bool { return checks.Load() == 2 }, waitFor, time.Millisecond)
	v.Stop()
}

func TestSessionValidator_ParentCancelStopsLoop(t *testing.T) {
	ticker := newManualTicker()
	var checks atomic.Int32
	v := newSessionValidator(validatorOptions{
		interval:  time.Minute,
		check:     func(context.Context) { checks.Add(1) },
		newTicker: ticker.start,
	})
	defer v.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, v.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return ticker.stops.Load() == 1 }, waitFor, time.Millisecond)
	ticker.assertIdle(t)
	assert.Zero(t, checks.Load())
}

func TestSessionValidator_DefaultsToWallClockTicker(t *testing.T) {
	var checks atomic.Int32
	v := newSessionValidator(validatorOptions{
		interval: time.Millisecond,
		check:    func(context.Context) { checks.Add(1) },
	})
	defer v.Stop()

	require.True(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return checks.Load() >= 1 }, waitFor, time.Millisecond)
}

func TestValidateOnce(t *testing.T) {
	tests := []struct {
		name      string
		getUser   func(ctx context.Context) (*domainauth.User, error)
		wantToken bool
		result    string
	}{
		{
			name:      "valid user keeps token",
			getUser:   func(context.Context) (*domainauth.User, error) { return &domainauth.User{ID: "u1"}, nil },
			wantToken: true,
			result:    "success",
		},
		{
			name:      "rejection clears token",
			getUser:   func(context.Context) (*domainauth.User, error) { return nil, errors.New("session revoked") },
			wantToken: false,
			result:    "invalid",
		},
		{
			name:      "nil user clears token",
			getUser:   func(context.Context) (*domainauth.User, error) { return nil, nil },
			wantToken: false,
			result:    "invalid",
		},
		{
			name:      "abort is inconclusive",
			getUser:   func(context.Context) (*domainauth.User, error) { return nil, context.Canceled },
			wantToken: true,
			result:    "aborted",
		},
		{
			name: "deadline is a genuine failure",
			getUser: func(context.Context) (*domainauth.User, error) {
				return nil, context.DeadlineExceeded
			},
			wantToken: false,
			result:    "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mockauth.NewFakeIdentityProvider(nil)
			provider.GetUserFunc = tt.getUser
			f := newManagerFixture(t, provider)
			f.manager.Tokens().SetToken("tok", time.Hour)

			f.manager.validateOnce(context.Background())

			_, ok := f.manager.Token()
			assert.Equal(t, tt.wantToken, ok)
			assert.Equal(t, []string{tt.result}, f.sink.results("session.validation"))
			assert.Empty(t, f.nav.History(), "validation never redirects")
		})
	}
}

func TestValidateOnce_SkipsWithoutToken(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	f := newManagerFixture(t, provider)

	f.manager.validateOnce(context.Background())
	assert.Equal(t, 0, provider.UserCalls())
}

func TestValidateOnce_NavigationAbortsCall(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	var f *managerFixture
	provider.GetUserFunc = func(ctx context.Context) (*domainauth.User, error) {
		go f.nav.Reload("/fixtures")
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f = newManagerFixture(t, provider)
	f.manager.Tokens().SetToken("tok", time.Hour)

	f.manager.validateOnce(context.Background())

	_, ok := f.manager.Token()
	assert.True(t, ok, "a validation aborted by navigation must not sign the user out")
}

func TestValidateOnce_StopAbortsInFlightCall(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	provider.GetUserFunc = func(ctx context.Context) (*domainauth.User, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := newManagerFixture(t, provider)
	f.manager.Tokens().SetToken("tok", time.Hour)

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.manager.validateOnce(loopCtx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("validation did not stop with its loop")
	}
	_, ok := f.manager.Token()
	assert.True(t, ok)
}

func TestSessionManager_PeriodicValidationClearsRevokedSession(t *testing.T) {
	provider := mockauth.NewFakeIdentityProvider(nil)
	var revoked atomic.Bool
	provider.GetUserFunc = func(context.Context) (*domainauth.User, error) {
		if revoked.Load() {
			return nil, errors.New("session revoked")
		}
		return &domainauth.User{ID: "u1"}, nil
	}
	f := newManagerFixture(t, provider, withConfig(SessionConfig{ValidateInterval: 5 * time.Millisecond}))

	f.manager.dispatch(context.Background(), domainauth.Event{
		Kind:    domainauth.EventSignedIn,
		Session: &domainauth.Snapshot{AccessToken: "tok", ExpiresIn: time.Hour},
	})
	require.True(t, f.manager.ValidatorRunning())
	require.Eventually(t, func() bool { return provider.UserCalls() >= 2 }, waitFor, time.Millisecond)

	_, ok := f.manager.Token()
	require.True(t, ok)

	revoked.Store(true)
	require.Eventually(t, func() bool {
		_, ok := f.manager.Token()
		return !ok
	}, waitFor, time.Millisecond)
	assert.Empty(t, f.nav.History())
}
