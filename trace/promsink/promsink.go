// Package promsink exports step/verification counters and histograms via
// prometheus/client_golang, mirroring the corpus's promauto-at-construction
// pattern: metrics are registered once when the sink is built and updated on
// every Emit, independent of whatever sink is carrying the full transcript.
package promsink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anxuanzi/vera-go/trace"
)

// Sink records counts and durations for step and verification events. It
// never fails an Emit call; metric recording errors are not possible with
// client_golang's API, so Sink.Emit always returns nil.
type Sink struct {
	stepsTotal         *prometheus.CounterVec
	stepDuration       prometheus.Histogram
	verificationsTotal *prometheus.CounterVec
	errorsTotal        prometheus.Counter

	stepStarts map[string]time.Time
}

// New registers a fresh set of metrics against reg (use
// prometheus.NewRegistry() in tests to avoid global-registry collisions; use
// prometheus.DefaultRegisterer in production).
func New(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vera_steps_total",
			Help: "Number of agent steps completed, labeled by outcome.",
		}, []string{"outcome"}),
		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vera_step_duration_seconds",
			Help:    "Wall-clock duration of a single agent step.",
			Buckets: prometheus.DefBuckets,
		}),
		verificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vera_verifications_total",
			Help: "Number of verification checks performed, labeled by kind and pass/fail.",
		}, []string{"kind", "passed"}),
		errorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vera_errors_total",
			Help: "Number of error events emitted by the runtime.",
		}),
		stepStarts: make(map[string]time.Time),
	}
}

func (s *Sink) Emit(event trace.Event) error {
	switch event.Type {
	case trace.TypeStepStart:
		s.stepStarts[event.StepID] = time.UnixMilli(event.TimestampMs)

	case trace.TypeStepEnd:
		outcome := "ok"
		if v, ok := event.Data["outcome"].(string); ok && v != "" {
			outcome = v
		}
		s.stepsTotal.WithLabelValues(outcome).Inc()
		if start, ok := s.stepStarts[event.StepID]; ok {
			s.stepDuration.Observe(time.UnixMilli(event.TimestampMs).Sub(start).Seconds())
			delete(s.stepStarts, event.StepID)
		}

	case trace.TypeVerification:
		kind := "custom"
		if v, ok := event.Data["kind"].(string); ok && v != "" {
			kind = v
		}
		passed := "false"
		if v, ok := event.Data["passed"].(bool); ok && v {
			passed = "true"
		}
		s.verificationsTotal.WithLabelValues(kind, passed).Inc()

	case trace.TypeError:
		s.errorsTotal.Inc()
	}
	return nil
}

func (s *Sink) Close() error { return nil }
