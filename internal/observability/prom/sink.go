// Package prom exposes the session metric stream as Prometheus collectors.
package prom

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tipsterhq/tipster-web/internal/observability/statsd"
)

// DefaultLabels are the tag keys carried onto every collector. Tags outside the set
// are dropped to keep label dimensions fixed per metric family.
var DefaultLabels = []string{"stage", "result", "kind", "error_class", "method", "route", "status"}

var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// SinkOptions configures a Sink.
type SinkOptions struct {
	Namespace string
	// Registry defaults to a fresh registry with Go runtime and process collectors.
	Registry *prometheus.Registry
	Labels   []string
	Buckets  []float64
}

// Sink implements statsd.Sink by lazily creating one collector family per metric name.
type Sink struct {
	namespace string
	registry  *prometheus.Registry
	labels    []string
	buckets   []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

var _ statsd.Sink = (*Sink)(nil)

// NewSink builds a Sink.
func NewSink(opts SinkOptions) *Sink {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	labels := opts.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	return &Sink{
		namespace:  metricName(opts.Namespace),
		registry:   reg,
		labels:     append([]string(nil), labels...),
		buckets:    buckets,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the registry collectors are registered with.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Count adds value to the "<name>_total" counter. Negative values are ignored.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	fq := s.fqName(name, "total")
	if fq == "" {
		return
	}

	s.mu.Lock()
	vec, ok := s.counters[fq]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fq,
			Help: "Count of " + name + " events.",
		}, s.labels)
		vec = registerOrExisting(s.registry, vec)
		s.counters[fq] = vec
	}
	s.mu.Unlock()

	vec.With(s.labelValues(tags)).Add(float64(value))
}

// Gauge sets the "<name>" gauge.
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	fq := s.fqName(name, "")
	if fq == "" {
		return
	}

	s.mu.Lock()
	vec, ok := s.gauges[fq]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: fq,
			Help: "Current value of " + name + ".",
		}, s.labels)
		vec = registerOrExisting(s.registry, vec)
		s.gauges[fq] = vec
	}
	s.mu.Unlock()

	vec.With(s.labelValues(tags)).Set(value)
}

// Timing observes value in seconds on the "<name>_seconds" histogram.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	fq := s.fqName(name, "seconds")
	if fq == "" {
		return
	}

	s.mu.Lock()
	vec, ok := s.histograms[fq]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fq,
			Help:    "Latency of " + name + ".",
			Buckets: s.buckets,
		}, s.labels)
		vec = registerOrExisting(s.registry, vec)
		s.histograms[fq] = vec
	}
	s.mu.Unlock()

	vec.With(s.labelValues(tags)).Observe(value.Seconds())
}

func (s *Sink) labelValues(tags map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(s.labels))
	for _, l := range s.labels {
		out[l] = strings.TrimSpace(tags[l])
	}
	return out
}

func (s *Sink) fqName(name, suffix string) string {
	n := metricName(name)
	if n == "" {
		return ""
	}
	if suffix != "" && !strings.HasSuffix(n, "_"+suffix) {
		n += "_" + suffix
	}
	return prometheus.BuildFQName(s.namespace, "", n)
}

// registerOrExisting registers c, returning the already registered collector when an
// identical one exists (e.g. two sinks sharing a registry). A collector that clashes
// with a different family still records but is not exported.
func registerOrExisting[T prometheus.Collector](reg *prometheus.Registry, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	return c
}

// metricName maps a dotted StatsD name onto the Prometheus name charset.
func metricName(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.TrimSpace(name) {
		valid := r == '_' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9' && b.Len() > 0)
		if !valid {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), "_")
}
