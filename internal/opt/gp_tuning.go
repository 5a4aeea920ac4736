package opt

import (
	"fmt"
	"math"

	"github.com/cwbudde/bayestune/internal/gp"
	"gonum.org/v1/gonum/mat"
)

// failedFitCost is returned for hyperparameters whose GP cannot be fitted.
const failedFitCost = 1e300

// TuneBounds limits the hyperparameter search in log10 space.
type TuneBounds struct {
	LogLengthScale [2]float64
	LogAlpha       [2]float64
}

// DefaultTuneBounds searches length scales in [0.01, 100] and noise in [1e-8, 1].
func DefaultTuneBounds() TuneBounds {
	return TuneBounds{
		LogLengthScale: [2]float64{-2, 2},
		LogAlpha:       [2]float64{-8, 0},
	}
}

// TuneGP searches length scale and alpha that maximize the log marginal
// likelihood of (x, y). The kernel constant is kept from base. It returns
// the tuned parameters and their log marginal likelihood.
func TuneGP(x mat.Matrix, y []float64, base gp.Params, o Optimizer, b TuneBounds) (gp.Params, float64, error) {
	params := func(v []float64) gp.Params {
		p := base
		p.LengthScale = math.Pow(10, v[0])
		p.Alpha = math.Pow(10, v[1])
		return p
	}

	eval := func(v []float64) float64 {
		r := gp.New(params(v))
		if err := r.Fit(x, y); err != nil {
			return failedFitCost
		}
		lml, err := r.LogMarginalLikelihood()
		if err != nil || math.IsNaN(lml) || math.IsInf(lml, 0) {
			return failedFitCost
		}
		return -lml
	}

	lower := []float64{b.LogLengthScale[0], b.LogAlpha[0]}
	upper := []float64{b.LogLengthScale[1], b.LogAlpha[1]}
	best, cost := o.Run(eval, lower, upper, 2)
	if len(best) != 2 || cost >= failedFitCost || math.IsNaN(cost) {
		return base, 0, fmt.Errorf("no hyperparameters in the search box produced a valid fit")
	}
	return params(best), -cost, nil
}
