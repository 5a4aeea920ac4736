package space

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// DefaultMaxCandidates caps the candidate set when no cap is configured.
const DefaultMaxCandidates = 10000

// CandidateSet is the discrete search space for one invocation.
// Rows are parameter vectors in Space order.
type CandidateSet struct {
	// Matrix holds one candidate per row, shape (N, P)
	Matrix *mat.Dense

	// Total is the size of the full Cartesian product before capping
	Total int64

	// Sampled reports whether Matrix is a random subsample of the product
	Sampled bool
}

// Len returns the number of candidates.
func (c *CandidateSet) Len() int {
	r, _ := c.Matrix.Dims()
	return r
}

// Row returns a copy of candidate i.
func (c *CandidateSet) Row(i int) []float64 {
	return mat.Row(nil, i, c.Matrix)
}

// BuildGrid expands the space into the Cartesian product of all parameter
// ranges, last parameter varying fastest. When the product exceeds
// maxCandidates, exactly maxCandidates distinct rows are drawn uniformly
// without replacement from src; the chosen rows keep product order.
func BuildGrid(s Space, maxCandidates int, src rand.Source) (*CandidateSet, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}

	ranges := make([][]float64, len(s))
	total := int64(1)
	for i, p := range s {
		values, err := p.Values()
		if err != nil {
			return nil, &InvalidParameterRangeError{Index: i, Name: p.Name, Reason: err.Error()}
		}
		ranges[i] = values

		if total > math.MaxInt64/int64(len(values)) {
			return nil, &InvalidParameterRangeError{Index: i, Name: p.Name, Reason: "search space size overflows int64"}
		}
		total *= int64(len(values))
	}

	var indices []int
	sampled := false
	if total > int64(maxCandidates) {
		if src == nil {
			return nil, fmt.Errorf("random source required to subsample %d candidates", total)
		}
		if total > math.MaxInt {
			return nil, fmt.Errorf("search space of %d candidates exceeds the platform int range", total)
		}
		indices = make([]int, maxCandidates)
		sampleuv.WithoutReplacement(indices, int(total), src)
		slices.Sort(indices)
		sampled = true
		slog.Debug("Candidate grid subsampled", "total", total, "cap", maxCandidates)
	} else {
		indices = make([]int, total)
		for i := range indices {
			indices[i] = i
		}
	}

	dim := len(s)
	data := make([]float64, len(indices)*dim)
	for row, idx := range indices {
		decodeRow(data[row*dim:(row+1)*dim], idx, ranges)
	}

	return &CandidateSet{
		Matrix:  mat.NewDense(len(indices), dim, data),
		Total:   total,
		Sampled: sampled,
	}, nil
}

// decodeRow writes the product row with flat index idx into dst.
func decodeRow(dst []float64, idx int, ranges [][]float64) {
	for j := len(ranges) - 1; j >= 0; j-- {
		n := len(ranges[j])
		dst[j] = ranges[j][idx%n]
		idx /= n
	}
}
