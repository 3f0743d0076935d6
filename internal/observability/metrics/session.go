package metrics

import (
	"time"

	obserrors "github.com/tipsterhq/tipster-web/internal/observability/errors"
	"github.com/tipsterhq/tipster-web/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess    = "success"
	ResultError      = "error"
	ResultNoop       = "noop"
	ResultAnonymous  = "anonymous"
	ResultTimeout    = "timeout"
	ResultAborted    = "aborted"
	ResultInvalid    = "invalid"
	ResultSuppressed = "suppressed"
)

// Session lifecycle stages.
const (
	StageInit       = "init"
	StageEvent      = "event"
	StageValidation = "validation"
	StageRecovery   = "recovery"
	StageRequest    = "request"
)

// SessionMetric captures details about a session lifecycle step for metric emission.
type SessionMetric struct {
	Stage    string
	Result   string
	Kind     string
	Duration time.Duration
	Err      error
}

// EmitSession emits standardised session lifecycle metrics.
func EmitSession(sink statsd.Sink, in SessionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":  in.Stage,
		"result": in.Result,
	}
	if in.Kind != "" {
		tags["kind"] = in.Kind
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("session."+in.Stage, 1, tags)

	if in.Duration > 0 {
		sink.Timing("session."+in.Stage+".duration", in.Duration, CloneTags(tags))
	}
}

// Multi fans metric calls out to every non-nil sink.
type Multi []statsd.Sink

var _ statsd.Sink = Multi(nil)

// Count implements statsd.Sink.
func (m Multi) Count(name string, value int64, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Count(name, value, CloneTags(tags))
		}
	}
}

// Gauge implements statsd.Sink.
func (m Multi) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Gauge(name, value, CloneTags(tags))
		}
	}
}

// Timing implements statsd.Sink.
func (m Multi) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Timing(name, value, CloneTags(tags))
		}
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
