package data

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tipsterhq/tipster-web/internal/core"
)

var _ core.CacheRepository = (*MemoryCacheRepo)(nil)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCacheRepo implements the CacheRepository interface in process memory.
// Expired entries are dropped lazily on access.
type MemoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   TimeProvider
}

// NewMemoryCacheRepo creates an empty MemoryCacheRepo. A nil clock uses system time.
func NewMemoryCacheRepo(clock TimeProvider) *MemoryCacheRepo {
	if clock == nil {
		clock = &RealTimeProvider{}
	}
	return &MemoryCacheRepo{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

// Set stores a copy of value. A zero TTL never expires.
func (r *MemoryCacheRepo) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = r.clock.Now().Add(ttl)
	}

	r.mu.Lock()
	r.entries[key] = e
	r.mu.Unlock()
	return nil
}

// Get returns a copy of the stored value, or nil when absent or expired.
func (r *MemoryCacheRepo) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

// Delete removes a key.
func (r *MemoryCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lookupLocked(key)
	delete(r.entries, key)
	return ok, nil
}

// DeletePrefix removes every live key under prefix.
func (r *MemoryCacheRepo) DeletePrefix(_ context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("prefix cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := r.lookupLocked(key); ok {
			n++
		}
		delete(r.entries, key)
	}
	return n, nil
}

// Health always succeeds.
func (r *MemoryCacheRepo) Health(context.Context) error { return nil }

// Len returns the number of live entries.
func (r *MemoryCacheRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.entries {
		if _, ok := r.lookupLocked(key); ok {
			n++
		}
	}
	return n
}

func (r *MemoryCacheRepo) lookupLocked(key string) (memoryEntry, bool) {
	e, ok := r.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !r.clock.Now().Before(e.expiresAt) {
		delete(r.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}
