// Package scale standardizes parameter vectors with per-column z-scores.
//
// Statistics are always fitted on the candidate set, never on the
// observation history, so that every invocation standardizes history and
// candidates into the same coordinate system.
package scale

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Stats holds column-wise mean and population standard deviation.
type Stats struct {
	Mean   []float64
	StdDev []float64
}

// Fit computes column statistics of m. Columns with zero spread keep a
// stddev of 0 and are transformed by centering only.
func Fit(m mat.Matrix) Stats {
	r, c := m.Dims()
	s := Stats{
		Mean:   make([]float64, c),
		StdDev: make([]float64, c),
	}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		s.StdDev[j] = std
	}
	return s
}

// Dim returns the number of columns the stats were fitted on.
func (s Stats) Dim() int {
	return len(s.Mean)
}

func (s Stats) divisor(j int) float64 {
	if s.StdDev[j] == 0 {
		return 1
	}
	return s.StdDev[j]
}

// TransformVec returns the standardized copy of v.
func (s Stats) TransformVec(v []float64) ([]float64, error) {
	if len(v) != s.Dim() {
		return nil, fmt.Errorf("vector has %d components, stats have %d", len(v), s.Dim())
	}
	out := make([]float64, len(v))
	for j, x := range v {
		out[j] = (x - s.Mean[j]) / s.divisor(j)
	}
	return out, nil
}

// InverseVec maps a standardized vector back to original units.
func (s Stats) InverseVec(v []float64) ([]float64, error) {
	if len(v) != s.Dim() {
		return nil, fmt.Errorf("vector has %d components, stats have %d", len(v), s.Dim())
	}
	out := make([]float64, len(v))
	for j, z := range v {
		out[j] = z*s.divisor(j) + s.Mean[j]
	}
	return out, nil
}

// Transform returns the standardized copy of m, broadcasting over rows.
func (s Stats) Transform(m mat.Matrix) (*mat.Dense, error) {
	return s.apply(m, func(j int, x float64) float64 {
		return (x - s.Mean[j]) / s.divisor(j)
	})
}

// Inverse maps every row of a standardized matrix back to original units.
func (s Stats) Inverse(m mat.Matrix) (*mat.Dense, error) {
	return s.apply(m, func(j int, z float64) float64 {
		return z*s.divisor(j) + s.Mean[j]
	})
}

func (s Stats) apply(m mat.Matrix, fn func(j int, v float64) float64) (*mat.Dense, error) {
	_, c := m.Dims()
	if c != s.Dim() {
		return nil, fmt.Errorf("matrix has %d columns, stats have %d", c, s.Dim())
	}
	var out mat.Dense
	out.Apply(func(_, j int, v float64) float64 {
		return fn(j, v)
	}, m)
	return &out, nil
}
