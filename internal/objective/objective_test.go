package objective

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineBothSignals(t *testing.T) {
	y, err := Combine([]float64{20}, []float64{30, 0, 5, 80}, 50, 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.244, y, 1e-3)
	assert.InDelta(t, 0.24375, y, 1e-12)

	y, err = Combine([]float64{20}, []float64{20, 20}, 50, 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, y, 1e-12)

	y, err = Combine([]float64{0}, []float64{0, 0}, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, 0.0, y)
}

func TestCombineSingleSignal(t *testing.T) {
	y, err := Combine(nil, []float64{30, 60}, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, y, 1e-12)

	y, err = Combine([]float64{60}, nil, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, y, 1e-12)

	// Empty slices count as absent
	y, err = Combine([]float64{}, []float64{30, 60}, 50, 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, y, 1e-12)
}

func TestCombineWeightsAreDirectMultipliers(t *testing.T) {
	y, err := Combine([]float64{100}, []float64{100}, 100, 100)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, y, 1e-12)

	y, err = Combine([]float64{40}, []float64{80}, 100, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, y, 1e-12)
}

func TestCombineNoSignal(t *testing.T) {
	_, err := Combine(nil, nil, 50, 50)
	assert.ErrorIs(t, err, ErrNoQualitySignal)

	_, err = Combine([]float64{}, []float64{}, 50, 50)
	assert.ErrorIs(t, err, ErrNoQualitySignal)
}

func TestCombineRejectsBadInput(t *testing.T) {
	_, err := Combine([]float64{math.NaN()}, nil, 50, 50)
	assert.Error(t, err)

	_, err = Combine([]float64{1}, []float64{1}, -1, 50)
	assert.Error(t, err)

	w := DefaultWeights()
	w.AutoScale = 0
	_, err = w.Combine(nil, []float64{1})
	assert.Error(t, err)
}

func TestCustomScale(t *testing.T) {
	w := DefaultWeights()
	w.ManualScale = 10
	y, err := w.Combine([]float64{6}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, y, 1e-12)
}

func TestManualDeviation(t *testing.T) {
	assert.Equal(t, 3.0, ManualDeviation(5, 8))
	assert.Equal(t, 0.0, ManualDeviation(8, 8))
	assert.Equal(t, 0.0, ManualDeviation(10, 8))
}

func TestRangeDeviation(t *testing.T) {
	// 50 below by 50%, 100 inside, 300 above by 50%
	assert.InDelta(t, 100.0/3, RangeDeviation([]float64{50, 150, 300}, 100, 200), 1e-12)
	assert.Equal(t, 0.0, RangeDeviation([]float64{120, 180}, 100, 200))
	assert.Equal(t, 0.0, RangeDeviation(nil, 100, 200))
}

func TestRangeDeviations(t *testing.T) {
	got := RangeDeviations(
		map[string][]float64{
			"area":     {50, 150},
			"solidity": {0.9},
		},
		map[string]Range{
			"area":     {Min: 100, Max: 200},
			"solidity": {Min: 0.8, Max: 1},
			"unused":   {Min: 0, Max: 1},
		},
		[]string{"area", "missing", "solidity", "unused"},
	)
	assert.Equal(t, []float64{25, 0, 0}, got)
}

func TestEvaluationSignals(t *testing.T) {
	rating := 5.0
	e := &Evaluation{
		Rating: &rating,
		Measurements: map[string][]float64{
			"solidity": {0.9},
			"area":     {50, 150},
		},
		Ranges: map[string]Range{
			"solidity": {Min: 0.8, Max: 1},
			"area":     {Min: 100, Max: 200},
		},
	}

	manual, auto, err := e.Signals()
	require.NoError(t, err)
	// Default threshold 8 minus rating 5
	assert.Equal(t, []float64{3}, manual)
	// Ranges in name order: area, solidity
	assert.Equal(t, []float64{25, 0}, auto)

	y, err := DefaultWeights().Combine(manual, auto)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*0.03+0.5*0.125, y, 1e-12)
}

func TestEvaluationSignals_Empty(t *testing.T) {
	var e *Evaluation
	manual, auto, err := e.Signals()
	require.NoError(t, err)
	assert.Nil(t, manual)
	assert.Nil(t, auto)
}

func TestEvaluationSignals_Invalid(t *testing.T) {
	low, high := 0.0, 11.0
	cases := map[string]*Evaluation{
		"rating too low":    {Rating: &low},
		"rating too high":   {Rating: &high},
		"unranged measure":  {Measurements: map[string][]float64{"area": {1}}},
		"inverted range":    {Ranges: map[string]Range{"area": {Min: 2, Max: 1}}},
		"non-finite values": {Measurements: map[string][]float64{"area": {math.NaN()}}, Ranges: map[string]Range{"area": {Min: 0, Max: 1}}},
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := e.Signals()
			assert.Error(t, err)
		})
	}
}
