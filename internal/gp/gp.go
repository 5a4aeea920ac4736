// Package gp implements Gaussian Process regression with a constant times
// RBF kernel and fixed hyperparameters.
//
// Targets are normalized to zero mean and unit variance before fitting and
// predictions are mapped back to the original scale. The posterior is
// computed through a Cholesky factorization of the noisy Gram matrix.
package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Params are the kernel and noise hyperparameters.
type Params struct {
	LengthScale float64 `json:"length_scale"`
	Alpha       float64 `json:"alpha"`
	Constant    float64 `json:"constant"`
}

// DefaultParams returns a unit RBF kernel with a small noise term.
func DefaultParams() Params {
	return Params{LengthScale: 1, Alpha: 1e-2, Constant: 1}
}

// Validate checks that the parameters describe a usable kernel.
func (p Params) Validate() error {
	if !(p.LengthScale > 0) || math.IsInf(p.LengthScale, 0) {
		return fmt.Errorf("length scale must be positive and finite, got %g", p.LengthScale)
	}
	if p.Alpha < 0 || math.IsNaN(p.Alpha) || math.IsInf(p.Alpha, 0) {
		return fmt.Errorf("alpha must be non-negative and finite, got %g", p.Alpha)
	}
	if !(p.Constant > 0) || math.IsInf(p.Constant, 0) {
		return fmt.Errorf("constant must be positive and finite, got %g", p.Constant)
	}
	return nil
}

// Regressor is a fitted-or-unfitted GP surrogate.
type Regressor struct {
	params Params
	kernel Kernel

	rows   [][]float64
	chol   mat.Cholesky
	weight *mat.VecDense
	yMean  float64
	yStd   float64
	yNorm  *mat.VecDense
	fitted bool
}

// New creates an unfitted regressor.
func New(p Params) *Regressor {
	return &Regressor{
		params: p,
		kernel: Kernel{LengthScale: p.LengthScale, Constant: p.Constant},
	}
}

// Params returns the hyperparameters the regressor was built with.
func (r *Regressor) Params() Params {
	return r.params
}

// Fit trains the model on the rows of x with targets y.
// It fails with a ModelFitError when fewer than two distinct rows are
// supplied or the covariance matrix is not positive definite.
func (r *Regressor) Fit(x mat.Matrix, y []float64) error {
	r.fitted = false
	if err := r.params.Validate(); err != nil {
		return &ModelFitError{Reason: err.Error()}
	}

	n, _ := x.Dims()
	if n != len(y) {
		return &ModelFitError{Reason: fmt.Sprintf("%d rows but %d targets", n, len(y))}
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ModelFitError{Reason: "non-finite target"}
		}
	}

	rows := rowsOf(x)
	if distinctRows(rows) < 2 {
		return &ModelFitError{Reason: "need at least 2 distinct points"}
	}

	mean, std := stat.PopMeanStdDev(y, nil)
	if std == 0 {
		std = 1
	}
	yn := make([]float64, n)
	for i, v := range y {
		yn[i] = (v - mean) / std
	}

	gram := r.kernel.Gram(x, r.params.Alpha)
	if ok := r.chol.Factorize(gram); !ok {
		return &ModelFitError{Reason: "covariance matrix is not positive definite"}
	}

	yNorm := mat.NewVecDense(n, yn)
	var w mat.VecDense
	if err := r.chol.SolveVecTo(&w, yNorm); err != nil {
		return &ModelFitError{Reason: "solve: " + err.Error()}
	}

	r.rows = rows
	r.weight = &w
	r.yNorm = yNorm
	r.yMean = mean
	r.yStd = std
	r.fitted = true
	return nil
}

// Predict returns the posterior mean and standard deviation for every row
// of x in the original target scale. Standard deviations are never negative.
func (r *Regressor) Predict(x mat.Matrix) (mean, std []float64, err error) {
	if !r.fitted {
		return nil, nil, fmt.Errorf("gp: predict called before a successful fit")
	}
	m, c := x.Dims()
	if len(r.rows) > 0 && c != len(r.rows[0]) {
		return nil, nil, fmt.Errorf("gp: query has %d columns, model was fitted on %d", c, len(r.rows[0]))
	}

	n := len(r.rows)
	mean = make([]float64, m)
	std = make([]float64, m)
	kq := mat.NewVecDense(n, nil)
	var v mat.VecDense
	q := make([]float64, c)

	for i := 0; i < m; i++ {
		mat.Row(q, i, x)
		r.kernel.Cross(kq.RawVector().Data, q, r.rows)

		mean[i] = mat.Dot(kq, r.weight)*r.yStd + r.yMean

		if err := r.chol.SolveVecTo(&v, kq); err != nil {
			return nil, nil, fmt.Errorf("gp: solve: %w", err)
		}
		variance := r.params.Constant - mat.Dot(kq, &v)
		if variance < 0 || math.IsNaN(variance) {
			variance = 0
		}
		std[i] = math.Sqrt(variance) * r.yStd
	}
	return mean, std, nil
}

// LogMarginalLikelihood returns log p(y | X, params) of the normalized
// targets for the last successful fit.
func (r *Regressor) LogMarginalLikelihood() (float64, error) {
	if !r.fitted {
		return 0, fmt.Errorf("gp: model is not fitted")
	}
	n := float64(len(r.rows))
	fit := mat.Dot(r.yNorm, r.weight)
	return -0.5*fit - 0.5*r.chol.LogDet() - 0.5*n*math.Log(2*math.Pi), nil
}

func distinctRows(rows [][]float64) int {
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		seen[fmt.Sprint(row)] = struct{}{}
	}
	return len(seen)
}

// ModelFitError reports a surrogate that could not be trained.
// Callers recover by selecting a random candidate.
type ModelFitError struct {
	Reason string
}

func (e *ModelFitError) Error() string {
	return "model fit failed: " + e.Reason
}

func (e *ModelFitError) Is(target error) bool {
	_, ok := target.(*ModelFitError)
	return ok
}

// ErrModelFit matches any ModelFitError with errors.Is.
var ErrModelFit = &ModelFitError{}
