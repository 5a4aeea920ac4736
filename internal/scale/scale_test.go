package scale

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFitPopulationStats(t *testing.T) {
	m := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})
	s := Fit(m)

	assert.InDelta(t, 2.5, s.Mean[0], 1e-12)
	// Population stddev of 1..4 is sqrt(1.25)
	assert.InDelta(t, 1.118033988749895, s.StdDev[0], 1e-12)
	assert.Equal(t, 10.0, s.Mean[1])
	assert.Equal(t, 0.0, s.StdDev[1])
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	data := make([]float64, 50*3)
	for i := range data {
		data[i] = rng.Float64()*200 - 100
	}
	s := Fit(mat.NewDense(50, 3, data))

	for trial := 0; trial < 100; trial++ {
		v := []float64{rng.NormFloat64() * 50, rng.NormFloat64(), rng.Float64() * 1e3}
		z, err := s.TransformVec(v)
		require.NoError(t, err)
		back, err := s.InverseVec(z)
		require.NoError(t, err)
		assert.InDeltaSlice(t, v, back, 1e-6)
	}
}

func TestMatrixRoundTrip(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{0, 5, 2, 7, 4, 9})
	s := Fit(m)

	z, err := s.Transform(m)
	require.NoError(t, err)

	// Standardized columns have zero mean
	col := mat.Col(nil, 0, z)
	assert.InDelta(t, 0, col[0]+col[1]+col[2], 1e-12)

	back, err := s.Inverse(z)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(m, back, 1e-9))
}

func TestZeroStdDevIsCenteredOnly(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{1, 3, 2, 3, 3, 3})
	s := Fit(m)

	z, err := s.TransformVec([]float64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, z)

	z, err = s.TransformVec([]float64{2, 5})
	require.NoError(t, err)
	assert.Equal(t, 2.0, z[1])

	back, err := s.InverseVec(z)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, back)
}

func TestDimensionMismatch(t *testing.T) {
	s := Fit(mat.NewDense(2, 2, []float64{0, 1, 2, 3}))

	_, err := s.TransformVec([]float64{1})
	assert.Error(t, err)
	_, err = s.InverseVec([]float64{1, 2, 3})
	assert.Error(t, err)
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}
