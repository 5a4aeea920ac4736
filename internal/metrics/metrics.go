// Package metrics exposes optimization loop activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bayestune"

// Metrics groups the loop collectors. A nil *Metrics records nothing.
type Metrics struct {
	Steps          *prometheus.CounterVec
	ModelFallbacks prometheus.Counter
	StepDuration   prometheus.Histogram
	Observations   prometheus.Gauge
	Resets         prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Optimization steps by resulting loop state.",
		}, []string{"state"}),
		ModelFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fallbacks_total",
			Help:      "Steps that fell back to random selection after a failed model fit.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of one optimization step.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		Observations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observations",
			Help:      "Stored observation count of the most recently stepped session.",
		}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resets_total",
			Help:      "Sessions cleared through reset.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Steps, m.ModelFallbacks, m.StepDuration, m.Observations, m.Resets)
	}
	return m
}

// ObserveStep records a finished step.
func (m *Metrics) ObserveStep(state string, d time.Duration, observations int) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(state).Inc()
	m.StepDuration.Observe(d.Seconds())
	m.Observations.Set(float64(observations))
}

// ObserveFallback records a step that could not use the surrogate model.
func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.ModelFallbacks.Inc()
}

// ObserveReset records a cleared session.
func (m *Metrics) ObserveReset() {
	if m == nil {
		return
	}
	m.Resets.Inc()
}
