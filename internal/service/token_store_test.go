package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipsterhq/tipster-web/internal/data"
	"github.com/tipsterhq/tipster-web/internal/testutil"
)

func TestTokenStore_RoundTripAndExpiry(t *testing.T) {
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	store := NewTokenStore(clock)

	store.SetToken("tok", 3600*time.Second)
	got, ok := store.Token()
	require.True(t, ok)
	assert.Equal(t, "tok", got)

	clock.AddTime(3599 * time.Second)
	_, ok = store.Token()
	assert.True(t, ok)

	clock.AddTime(time.Second)
	_, ok = store.Token()
	assert.False(t, ok, "token must read as absent once expiresAt is reached")

	// Reading an elapsed token does not clear it.
	assert.Equal(t, "tok", store.Session().AccessToken)
}

func TestTokenStore_LastWriterWins(t *testing.T) {
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	store := NewTokenStore(clock)

	store.SetToken("first", time.Hour)
	store.SetToken("second", time.Minute)

	got, ok := store.Token()
	require.True(t, ok)
	assert.Equal(t, "second", got)

	// The latest expiry governs, not the longest one.
	clock.AddTime(2 * time.Minute)
	_, ok = store.Token()
	assert.False(t, ok)
}

func TestTokenStore_SequenceProperty(t *testing.T) {
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	store := NewTokenStore(clock)

	type op struct {
		set     bool
		token   string
		ttl     time.Duration
		advance time.Duration
		want    bool
	}
	ops := []op{
		{set: true, token: "a", ttl: 10 * time.Second, want: true},
		{advance: 5 * time.Second, want: true},
		{set: false, want: false},
		{set: true, token: "b", ttl: time.Second, want: true},
		{advance: time.Second, want: false},
		{set: true, token: "c", ttl: 0, want: false},
		{set: true, token: "d", ttl: -time.Second, want: false},
		{set: true, token: "", ttl: time.Hour, want: false},
		{set: true, token: "e", ttl: time.Hour, want: true},
	}

	for i, o := range ops {
		switch {
		case o.set:
			store.SetToken(o.token, o.ttl)
		case o.advance == 0:
			store.ClearToken()
		}
		clock.AddTime(o.advance)

		_, ok := store.Token()
		assert.Equal(t, o.want, ok, "step %d", i)
	}
}

func TestTokenStore_ClearIsIdempotent(t *testing.T) {
	store := NewTokenStore(nil)
	store.ClearToken()
	store.SetToken("tok", time.Hour)
	store.ClearToken()
	store.ClearToken()

	_, ok := store.Token()
	assert.False(t, ok)
}

func TestTokenStore_MarkInitializedIsIdempotent(t *testing.T) {
	store := NewTokenStore(nil)
	assert.False(t, store.IsInitialized())

	assert.True(t, store.MarkInitialized())
	for i := 0; i < 5; i++ {
		assert.False(t, store.MarkInitialized())
		assert.True(t, store.IsInitialized())
	}

	select {
	case <-store.Ready():
	default:
		t.Fatal("ready channel should be closed")
	}
	require.NoError(t, store.WaitReady(context.Background()))
}

func TestTokenStore_ConcurrentMarkInitializedHasSingleWinner(t *testing.T) {
	store := NewTokenStore(nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.MarkInitialized() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestTokenStore_WaitReadyHonorsContext(t *testing.T) {
	store := NewTokenStore(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, store.WaitReady(ctx), context.DeadlineExceeded)
}

func TestTokenStore_ConcurrentAccess(t *testing.T) {
	store := NewTokenStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.SetToken("tok", time.Hour)
			store.ClearToken()
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Token()
			_ = store.Session()
		}()
	}
	wg.Wait()
}
