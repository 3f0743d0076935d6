package prom

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink() *Sink {
	return NewSink(SinkOptions{Namespace: "tipster", Registry: prometheus.NewRegistry()})
}

func TestMetricName(t *testing.T) {
	tests := map[string]string{
		"session.init":          "session_init",
		" session..recovery. ":  "session_recovery",
		"http/request duration": "http_request_duration",
		"9lives":                "lives",
		"a:b":                   "a:b",
		"...":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, metricName(in), "metricName(%q)", in)
	}
}

func TestSinkCount(t *testing.T) {
	s := newTestSink()

	s.Count("session.init", 1, map[string]string{"stage": "init", "result": "success"})
	s.Count("session.init", 2, map[string]string{"stage": "init", "result": "success", "ignored": "x"})
	s.Count("session.init", 1, map[string]string{"stage": "init", "result": "error", "error_class": "app_unavailable"})
	s.Count("session.init", -5, map[string]string{"stage": "init", "result": "success"})

	vec := s.counters["tipster_session_init_total"]
	require.NotNil(t, vec)
	assert.Equal(t, 2, promtestutil.CollectAndCount(vec))
	assert.Equal(t, 3.0, promtestutil.ToFloat64(vec.With(prometheus.Labels{
		"stage": "init", "result": "success", "kind": "", "error_class": "", "method": "", "route": "", "status": "",
	})))
}

func TestSinkGaugeAndTiming(t *testing.T) {
	s := newTestSink()

	s.Gauge("cache.generation", 4, nil)
	s.Gauge("cache.generation", 7, nil)
	s.Timing("session.validation.duration", 250*time.Millisecond, map[string]string{"stage": "validation"})

	expected := `
# HELP tipster_cache_generation Current value of cache.generation.
# TYPE tipster_cache_generation gauge
tipster_cache_generation{error_class="",kind="",method="",result="",route="",stage="",status=""} 7
`
	require.NoError(t, promtestutil.GatherAndCompare(s.Registry(), strings.NewReader(expected), "tipster_cache_generation"))

	hist := s.histograms["tipster_session_validation_duration_seconds"]
	require.NotNil(t, hist)
	assert.Equal(t, 1, promtestutil.CollectAndCount(hist))
}

func TestSinkSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewSink(SinkOptions{Namespace: "tipster", Registry: reg})
	b := NewSink(SinkOptions{Namespace: "tipster", Registry: reg})

	a.Count("session.event", 1, map[string]string{"kind": "signed_in"})
	b.Count("session.event", 1, map[string]string{"kind": "signed_in"})

	assert.Same(t, a.counters["tipster_session_event_total"], b.counters["tipster_session_event_total"])
	assert.Equal(t, 2.0, promtestutil.ToFloat64(a.counters["tipster_session_event_total"]))
}

func TestSinkHandler(t *testing.T) {
	s := NewSink(SinkOptions{Namespace: "tipster"})
	s.Count("session.recovery", 1, map[string]string{"result": "suppressed"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tipster_session_recovery_total{error_class="",kind="",method="",result="suppressed"`)
	assert.Contains(t, string(body), "go_goroutines")
}
