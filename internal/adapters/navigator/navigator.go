package navigator

// Package navigator models the page lifecycle of the single browser context the host serves.

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	apperrors "github.com/tipsterhq/tipster-web/internal/errors"
	"github.com/tipsterhq/tipster-web/internal/ports"
)

var _ ports.Navigator = (*Navigator)(nil)

// Options configures a Navigator.
type Options struct {
	// Initial is the location of the first page; defaults to "/".
	Initial string
	Logger  *slog.Logger
}

// Navigator tracks the current location and the context of the current page.
// A full navigation (Reload) cancels the page context with apperrors.ErrNavigationAborted,
// which aborts every call bound to it, and then runs the page-load hooks.
type Navigator struct {
	logger *slog.Logger

	mu       sync.Mutex
	location string
	ctx      context.Context
	cancel   context.CancelCauseFunc
	loads    int
	hooks    []func()
	history  []string
	notify   chan struct{}
}

// New creates a Navigator positioned on its first page.
func New(opts Options) *Navigator {
	initial := opts.Initial
	if initial == "" {
		initial = "/"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n := &Navigator{
		logger:   logger.With("component", "navigator"),
		location: initial,
		loads:    1,
		notify:   make(chan struct{}),
	}
	n.ctx, n.cancel = context.WithCancelCause(context.Background())
	return n
}

// Location returns the current path with its query string.
func (n *Navigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

// Context returns the current page's context.
func (n *Navigator) Context() context.Context {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ctx
}

// PageLoads returns how many full page loads have happened, counting the first.
func (n *Navigator) PageLoads() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loads
}

// History returns the targets of every full navigation, oldest first.
func (n *Navigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.history))
	copy(out, n.history)
	return out
}

// Changed returns a channel that is closed on the next location change.
func (n *Navigator) Changed() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notify
}

// OnPageLoad registers fn to run at the start of every subsequent full page load.
func (n *Navigator) OnPageLoad(fn func()) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	n.hooks = append(n.hooks, fn)
	n.mu.Unlock()
}

// Reload performs a full navigation to target. In-flight work bound to the previous page
// is canceled; hooks run after the new page context is in place.
func (n *Navigator) Reload(target string) {
	target = normalize(target)

	n.mu.Lock()
	n.cancel(apperrors.ErrNavigationAborted)
	n.ctx, n.cancel = context.WithCancelCause(context.Background())
	n.location = target
	n.loads++
	n.history = append(n.history, target)
	hooks := append([]func(){}, n.hooks...)
	n.signalLocked()
	n.mu.Unlock()

	n.logger.Info("full navigation", "target", target)
	for _, fn := range hooks {
		fn()
	}
}

// Push changes the location without a page load (client-side routing). The page context
// and the page-load hooks are left alone.
func (n *Navigator) Push(target string) {
	target = normalize(target)

	n.mu.Lock()
	n.location = target
	n.signalLocked()
	n.mu.Unlock()

	n.logger.Debug("client-side navigation", "target", target)
}

// Close cancels the current page context.
func (n *Navigator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancel(context.Canceled)
}

func (n *Navigator) signalLocked() {
	close(n.notify)
	n.notify = make(chan struct{})
}

// normalize keeps only the path, query and fragment so a navigator never leaves the host.
func normalize(target string) string {
	u, err := url.Parse(target)
	if err != nil || target == "" {
		return "/"
	}
	u.Scheme, u.Host, u.User = "", "", nil
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
