package bootstrap

import (
	"log/slog"
	"net/http"

	"github.com/tipsterhq/tipster-web/config"
	"github.com/tipsterhq/tipster-web/internal/observability/metrics"
	"github.com/tipsterhq/tipster-web/internal/observability/prom"
	"github.com/tipsterhq/tipster-web/internal/observability/statsd"
)

// Observability holds the metric sinks the app emits to.
type Observability struct {
	// Sink fans out to every enabled backend; nil when none is enabled.
	Sink statsd.Sink
	// Handler serves /metrics when Prometheus is enabled.
	Handler http.Handler

	statsd *statsd.Client
}

// BuildObservability configures the StatsD and Prometheus sinks. A StatsD dial failure
// is logged and that backend skipped; metrics never stop the app from starting.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) *Observability {
	if logger == nil {
		logger = slog.Default()
	}

	obs := &Observability{}
	var sinks metrics.Multi

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Namespace,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			obs.statsd = client
			sinks = append(sinks, client)
		}
	}

	if cfg.Metrics.PrometheusEnabled {
		p := prom.NewSink(prom.SinkOptions{Namespace: cfg.Metrics.Namespace})
		obs.Handler = p.Handler()
		sinks = append(sinks, p)
	}

	switch len(sinks) {
	case 0:
	case 1:
		obs.Sink = sinks[0]
	default:
		obs.Sink = sinks
	}
	return obs
}

// Close flushes and releases the StatsD socket.
func (o *Observability) Close() error {
	if o == nil || o.statsd == nil {
		return nil
	}
	return o.statsd.Close()
}
