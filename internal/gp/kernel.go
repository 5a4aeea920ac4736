package gp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kernel is a constant-scaled squared-exponential (RBF) covariance:
//
//	k(a, b) = Constant * exp(-|a-b|^2 / (2 * LengthScale^2))
type Kernel struct {
	LengthScale float64
	Constant    float64
}

// Eval returns k(a, b).
func (k Kernel) Eval(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return k.Constant * math.Exp(-d*d/(2*k.LengthScale*k.LengthScale))
}

// Gram returns the symmetric covariance matrix of the rows of x with
// noise added on the diagonal.
func (k Kernel) Gram(x mat.Matrix, noise float64) *mat.SymDense {
	n, _ := x.Dims()
	rows := rowsOf(x)
	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		gram.SetSym(i, i, k.Constant+noise)
		for j := i + 1; j < n; j++ {
			gram.SetSym(i, j, k.Eval(rows[i], rows[j]))
		}
	}
	return gram
}

// Cross fills dst with k(q, rows[i]) for every training row.
func (k Kernel) Cross(dst []float64, q []float64, rows [][]float64) {
	for i, r := range rows {
		dst[i] = k.Eval(q, r)
	}
}

func rowsOf(x mat.Matrix) [][]float64 {
	n, _ := x.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}
	return rows
}
