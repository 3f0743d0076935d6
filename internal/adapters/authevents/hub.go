package authevents

// Package authevents provides the session-change broadcaster shared by identity providers.

import (
	"sort"
	"sync"

	domainauth "github.com/tipsterhq/tipster-web/internal/domain/auth"
)

// SnapshotFunc returns the provider's current session, or nil when signed out.
type SnapshotFunc func() *domainauth.Snapshot

// Hub fans session-change events out to subscribers. Listeners are invoked outside the
// hub's lock, in subscription order, on the publishing goroutine.
type Hub struct {
	snapshot SnapshotFunc

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(domainauth.Event)
}

// NewHub creates a Hub. snapshot supplies the payload of the initial event each new
// subscriber receives; a nil snapshot means the initial event carries no session.
func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		snapshot:  snapshot,
		listeners: make(map[int]func(domainauth.Event)),
	}
}

// Subscribe registers fn and immediately delivers an EventInitialSession to it.
// The returned func removes the listener; calling it more than once is harmless.
func (h *Hub) Subscribe(fn func(domainauth.Event)) func() {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	var initial *domainauth.Snapshot
	if h.snapshot != nil {
		initial = h.snapshot()
	}
	fn(domainauth.Event{Kind: domainauth.EventInitialSession, Session: initial})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers evt to every current listener.
func (h *Hub) Publish(evt domainauth.Event) {
	for _, fn := range h.current() {
		fn(evt)
	}
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *Hub) current() []func(domainauth.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]func(domainauth.Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, h.listeners[id])
	}
	return out
}
