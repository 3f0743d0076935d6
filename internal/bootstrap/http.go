package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tipsterhq/tipster-web/config"
	httpx "github.com/tipsterhq/tipster-web/internal/http"
	"github.com/tipsterhq/tipster-web/internal/observability/statsd"
)

// HTTPHandlerConfig contains what the local HTTP surface is built from.
type HTTPHandlerConfig struct {
	Services httpx.RouterServices
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// BuildHTTPHandler wraps the router with the standard middleware.
// Order: Recover -> Logging -> Router.
func BuildHTTPHandler(cfg HTTPHandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := httpx.NewRouter(cfg.Services)
	h = httpx.Logging(logger, cfg.Metrics)(h)
	return httpx.Recover(logger)(h)
}

func newServer(handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// serveHTTP runs server on ln until ctx is done, then shuts it down within
// cfg.ShutdownTimeout.
func serveHTTP(ctx context.Context, server *http.Server, ln net.Listener, cfg config.HTTPConfig, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return <-errCh
}
