package space

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuesHalfOpen(t *testing.T) {
	values, err := ParameterSpec{Lower: 0, Upper: 10, Step: 2}.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 4, 6, 8}, values)

	values, err = ParameterSpec{Lower: 1, Upper: 5, Step: 1}.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, values)
}

func TestValuesFractionalStep(t *testing.T) {
	values, err := ParameterSpec{Lower: 0, Upper: 0.3, Step: 0.1}.Values()
	require.NoError(t, err)
	assert.Len(t, values, 3)

	// Upper bound not hit exactly by the step keeps the last partial value
	values, err = ParameterSpec{Lower: 0, Upper: 1, Step: 0.3}.Values()
	require.NoError(t, err)
	assert.Len(t, values, 4)
	assert.InDelta(t, 0.9, values[3], 1e-12)
}

func TestValuesKeepPointsJustBelowUpper(t *testing.T) {
	values, err := ParameterSpec{Lower: 0, Upper: 3.0000000001, Step: 1}.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3}, values)

	values, err = ParameterSpec{Lower: 0.1, Upper: 0.7, Step: 0.2}.Values()
	require.NoError(t, err)
	assert.Len(t, values, 3)
}

func TestInvalidRanges(t *testing.T) {
	cases := map[string]ParameterSpec{
		"zero step":     {Name: "a", Lower: 0, Upper: 1, Step: 0},
		"negative step": {Name: "b", Lower: 0, Upper: 1, Step: -1},
		"empty":         {Name: "c", Lower: 2, Upper: 2, Step: 1},
		"inverted":      {Name: "d", Lower: 3, Upper: 1, Step: 1},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildGrid(Space{spec}, 0, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParameterRange))

			var rangeErr *InvalidParameterRangeError
			require.True(t, errors.As(err, &rangeErr))
			assert.Equal(t, spec.Name, rangeErr.Name)
		})
	}
}

func TestEmptySpaceRejected(t *testing.T) {
	_, err := BuildGrid(Space{}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidParameterRange)
}

func TestGridCandidateCount(t *testing.T) {
	s := Space{
		{Name: "x", Lower: 0, Upper: 10, Step: 2},
		{Name: "y", Lower: 0, Upper: 4, Step: 1},
	}

	grid, err := BuildGrid(s, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, grid.Len())
	assert.Equal(t, int64(20), grid.Total)
	assert.False(t, grid.Sampled)

	seen := make(map[string]int)
	for i := 0; i < grid.Len(); i++ {
		row := grid.Row(i)
		seen[fmt.Sprint(row)]++
	}
	assert.Len(t, seen, 20)
	for x := 0.0; x < 10; x += 2 {
		for y := 0.0; y < 4; y++ {
			assert.Equal(t, 1, seen[fmt.Sprint([]float64{x, y})], "pair (%v,%v)", x, y)
		}
	}

	// Last parameter varies fastest
	assert.Equal(t, []float64{0, 0}, grid.Row(0))
	assert.Equal(t, []float64{0, 1}, grid.Row(1))
	assert.Equal(t, []float64{2, 0}, grid.Row(4))
}

func TestGridCapEnforcement(t *testing.T) {
	s := Space{
		{Name: "a", Lower: 0, Upper: 50, Step: 1},
		{Name: "b", Lower: 0, Upper: 40, Step: 1},
	}
	grid, err := BuildGrid(s, 300, rand.NewPCG(7, 0))
	require.NoError(t, err)
	assert.Equal(t, 300, grid.Len())
	assert.Equal(t, int64(2000), grid.Total)
	assert.True(t, grid.Sampled)

	seen := make(map[[2]float64]bool)
	for i := 0; i < grid.Len(); i++ {
		row := grid.Row(i)
		key := [2]float64{row[0], row[1]}
		assert.False(t, seen[key], "row %v sampled twice", row)
		seen[key] = true

		assert.GreaterOrEqual(t, row[0], 0.0)
		assert.Less(t, row[0], 50.0)
		assert.GreaterOrEqual(t, row[1], 0.0)
		assert.Less(t, row[1], 40.0)
		assert.Equal(t, row[0], float64(int(row[0])))
		assert.Equal(t, row[1], float64(int(row[1])))
	}
}

func TestGridCapRequiresRandomSource(t *testing.T) {
	s := Space{{Name: "a", Lower: 0, Upper: 100, Step: 1}}
	_, err := BuildGrid(s, 10, nil)
	assert.Error(t, err)
}

func TestGridAtCapIsNotSampled(t *testing.T) {
	s := Space{{Name: "a", Lower: 0, Upper: 10, Step: 1}}
	grid, err := BuildGrid(s, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, grid.Len())
	assert.False(t, grid.Sampled)
}

func TestGridCapLargeSpace(t *testing.T) {
	s := Space{
		{Name: "a", Lower: 0, Upper: 100000, Step: 1},
		{Name: "b", Lower: 0, Upper: 10000, Step: 1},
	}

	grid, err := BuildGrid(s, 500, rand.NewPCG(1, 2))
	require.NoError(t, err)
	require.Equal(t, 500, grid.Len())
	assert.Equal(t, int64(1_000_000_000), grid.Total)

	// Rows keep product order, so distinct rows are strictly increasing
	for i := 1; i < grid.Len(); i++ {
		prev, cur := grid.Row(i-1), grid.Row(i)
		assert.True(t, prev[0] < cur[0] || (prev[0] == cur[0] && prev[1] < cur[1]), "rows %v and %v out of order", prev, cur)
	}

	again, err := BuildGrid(s, 500, rand.NewPCG(1, 2))
	require.NoError(t, err)
	assert.Equal(t, grid.Matrix.RawMatrix().Data, again.Matrix.RawMatrix().Data)
}

func TestFingerprint(t *testing.T) {
	a := Space{{Name: "x", Lower: 0, Upper: 10, Step: 2}}
	b := Space{{Name: "x", Lower: 0, Upper: 10, Step: 2}}
	c := Space{{Name: "x", Lower: 0, Upper: 10, Step: 1}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)
}

func TestRoundUsesStepPrecision(t *testing.T) {
	s := Space{
		{Name: "a", Lower: 0, Upper: 1, Step: 0.1},
		{Name: "b", Lower: 0.05, Upper: 1, Step: 0.1},
		{Name: "c", Lower: 1, Upper: 10, Step: 1},
	}

	got := s.Round([]float64{0.30000000000000004, 0.15000000000000002, 3.0000001}, -1)
	assert.Equal(t, []float64{0.3, 0.15, 3}, got)

	got = s.Round([]float64{0.123456, 0.1, 2.56}, 1)
	assert.Equal(t, []float64{0.1, 0.1, 2.6}, got)
}
