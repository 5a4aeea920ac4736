package gp

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sineData(n int) (*mat.Dense, []float64) {
	x := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(i) * 0.5
		x.Set(i, 0, v)
		y[i] = math.Sin(v)
	}
	return x, y
}

func TestInterpolatesTrainingPoints(t *testing.T) {
	x, y := sineData(8)
	model := New(Params{LengthScale: 1, Alpha: 1e-10, Constant: 1})
	require.NoError(t, model.Fit(x, y))

	mean, std, err := model.Predict(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, mean, 1e-3)
	for i, s := range std {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.Less(t, s, 1e-2, "std at training point %d", i)
	}
}

func TestRevertsToPriorFarFromData(t *testing.T) {
	x, y := sineData(6)
	model := New(Params{LengthScale: 0.5, Alpha: 1e-6, Constant: 1})
	require.NoError(t, model.Fit(x, y))

	far := mat.NewDense(1, 1, []float64{1000})
	mean, std, err := model.Predict(far)
	require.NoError(t, err)

	var sum float64
	for _, v := range y {
		sum += v
	}
	yMean := sum / float64(len(y))
	assert.InDelta(t, yMean, mean[0], 1e-9)
	assert.Greater(t, std[0], 0.0)
}

func TestStdNeverNegative(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1e-9,
		1, 1,
		2, 0,
	})
	y := []float64{0.1, 0.1, 0.5, 0.9}
	model := New(Params{LengthScale: 1, Alpha: 1e-2, Constant: 1})
	require.NoError(t, model.Fit(x, y))

	_, std, err := model.Predict(x)
	require.NoError(t, err)
	for _, s := range std {
		assert.False(t, math.IsNaN(s))
		assert.GreaterOrEqual(t, s, 0.0)
	}
}

func TestConstantTargets(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{0, 1, 2})
	model := New(Params{LengthScale: 1, Alpha: 1e-2, Constant: 1})
	require.NoError(t, model.Fit(x, []float64{0.4, 0.4, 0.4}))

	mean, _, err := model.Predict(mat.NewDense(1, 1, []float64{1.5}))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, mean[0], 1e-12)
}

func TestFitRequiresTwoDistinctPoints(t *testing.T) {
	model := New(Params{LengthScale: 1, Alpha: 1e-2, Constant: 1})

	err := model.Fit(mat.NewDense(1, 1, []float64{3}), []float64{1})
	assert.ErrorIs(t, err, ErrModelFit)

	err = model.Fit(mat.NewDense(3, 1, []float64{3, 3, 3}), []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrModelFit)

	_, _, err = model.Predict(mat.NewDense(1, 1, []float64{3}))
	assert.Error(t, err)
}

func TestSingularCovariance(t *testing.T) {
	// Duplicate rows without noise make the Gram matrix singular
	x := mat.NewDense(3, 1, []float64{0, 0, 1})
	model := New(Params{LengthScale: 1, Alpha: 0, Constant: 1})

	err := model.Fit(x, []float64{1, 2, 3})
	require.Error(t, err)

	var fitErr *ModelFitError
	assert.True(t, errors.As(err, &fitErr))
}

func TestInvalidParams(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{0, 1})
	for _, p := range []Params{
		{LengthScale: 0, Alpha: 0.1, Constant: 1},
		{LengthScale: 1, Alpha: -1, Constant: 1},
		{LengthScale: 1, Alpha: 0.1, Constant: 0},
	} {
		assert.ErrorIs(t, New(p).Fit(x, []float64{0, 1}), ErrModelFit, "params %+v", p)
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	x, y := sineData(4)
	model := New(Params{LengthScale: 1, Alpha: 1e-2, Constant: 1})
	require.NoError(t, model.Fit(x, y))

	_, _, err := model.Predict(mat.NewDense(1, 2, nil))
	assert.Error(t, err)
}

func TestLogMarginalLikelihoodPrefersPlausibleLengthScale(t *testing.T) {
	x, y := sineData(10)

	smooth := New(Params{LengthScale: 1, Alpha: 1e-4, Constant: 1})
	require.NoError(t, smooth.Fit(x, y))
	good, err := smooth.LogMarginalLikelihood()
	require.NoError(t, err)

	rough := New(Params{LengthScale: 0.01, Alpha: 1e-4, Constant: 1})
	require.NoError(t, rough.Fit(x, y))
	bad, err := rough.LogMarginalLikelihood()
	require.NoError(t, err)

	assert.False(t, math.IsNaN(good))
	assert.Greater(t, good, bad)
}

func TestKernel(t *testing.T) {
	k := Kernel{LengthScale: 2, Constant: 3}
	assert.Equal(t, 3.0, k.Eval([]float64{1, 1}, []float64{1, 1}))
	// |a-b|^2 = 4, exp(-4/8)
	assert.InDelta(t, 3*math.Exp(-0.5), k.Eval([]float64{0, 0}, []float64{2, 0}), 1e-12)

	gram := k.Gram(mat.NewDense(2, 1, []float64{0, 2}), 0.5)
	assert.Equal(t, 3.5, gram.At(0, 0))
	assert.Equal(t, gram.At(0, 1), gram.At(1, 0))
}
