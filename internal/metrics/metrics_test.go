package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStep("MODELING", 20*time.Millisecond, 4)
	m.ObserveStep("MODELING", 10*time.Millisecond, 5)
	m.ObserveStep("EXHAUSTED", time.Millisecond, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Steps.WithLabelValues("MODELING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Steps.WithLabelValues("EXHAUSTED")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Observations))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StepDuration))

	expected := `
# HELP bayestune_model_fallbacks_total Steps that fell back to random selection after a failed model fit.
# TYPE bayestune_model_fallbacks_total counter
bayestune_model_fallbacks_total 2
`
	m.ObserveFallback()
	m.ObserveFallback()
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bayestune_model_fallbacks_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep("MODELING", time.Second, 1)
	m.ObserveFallback()
	m.ObserveReset()
}

func TestUnregistered(t *testing.T) {
	m := New(nil)
	m.ObserveReset()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resets))
}
