// Package acquisition scores candidate points under a surrogate model and
// picks the next point to evaluate.
//
// All strategies follow the minimization convention: a lower predicted
// objective is better, and a higher acquisition score is more attractive.
package acquisition

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Predictor is a fitted surrogate that reports posterior mean and
// standard deviation per row.
type Predictor interface {
	Predict(x mat.Matrix) (mean, std []float64, err error)
}

// Kind names an acquisition strategy.
type Kind string

const (
	ExpectedImprovement      Kind = "ei"
	ProbabilityOfImprovement Kind = "pi"
	LowerConfidenceBound     Kind = "lcb"
)

// ParseKind accepts a strategy name as used in configuration.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case ExpectedImprovement, ProbabilityOfImprovement, LowerConfidenceBound:
		return k, nil
	case "":
		return ExpectedImprovement, nil
	}
	return "", fmt.Errorf("unknown acquisition strategy %q", s)
}

// Strategy configures how candidates are scored.
type Strategy struct {
	Kind Kind

	// Xi is the exploration margin for ei and pi. Zero gives the textbook formulas.
	Xi float64

	// Kappa weights the standard deviation for lcb.
	Kappa float64
}

// Scores returns one acquisition value per candidate given posterior
// mean/std and the incumbent best mean. A zero standard deviation always
// scores 0 for ei and pi.
func (s Strategy) Scores(mu, sigma []float64, best float64) ([]float64, error) {
	if len(mu) != len(sigma) {
		return nil, fmt.Errorf("mean has %d entries, std has %d", len(mu), len(sigma))
	}
	out := make([]float64, len(mu))
	for i := range mu {
		switch s.Kind {
		case ExpectedImprovement, "":
			out[i] = EI(mu[i], sigma[i], best, s.Xi)
		case ProbabilityOfImprovement:
			out[i] = PI(mu[i], sigma[i], best, s.Xi)
		case LowerConfidenceBound:
			out[i] = -(mu[i] - s.Kappa*sigma[i])
		default:
			return nil, fmt.Errorf("unknown acquisition strategy %q", s.Kind)
		}
	}
	return out, nil
}

// EI is the expected improvement of a point with posterior (mu, sigma)
// over best when minimizing.
func EI(mu, sigma, best, xi float64) float64 {
	if sigma <= 0 || math.IsNaN(sigma) {
		return 0
	}
	imp := best - mu - xi
	z := imp / sigma
	ei := imp*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
	if math.IsNaN(ei) {
		return 0
	}
	return ei
}

// PI is the probability that a point with posterior (mu, sigma) improves
// on best by at least xi.
func PI(mu, sigma, best, xi float64) float64 {
	if sigma <= 0 || math.IsNaN(sigma) {
		return 0
	}
	return distuv.UnitNormal.CDF((best - mu - xi) / sigma)
}

// Selection is the outcome of Select.
type Selection struct {
	Index int
	Score float64
	Best  float64

	// Ties is the number of candidates sharing the maximum score
	Ties int
}

// Select predicts the incumbent best from the active points, scores every
// candidate and returns the index of a maximal score. Ties are broken
// uniformly at random with rng.
func Select(model Predictor, active, candidates mat.Matrix, s Strategy, rng *rand.Rand) (Selection, error) {
	muActive, _, err := model.Predict(active)
	if err != nil {
		return Selection{}, fmt.Errorf("predict active points: %w", err)
	}
	if len(muActive) == 0 {
		return Selection{}, fmt.Errorf("no active points")
	}
	best := floats.Min(muActive)

	mu, sigma, err := model.Predict(candidates)
	if err != nil {
		return Selection{}, fmt.Errorf("predict candidates: %w", err)
	}
	if len(mu) == 0 {
		return Selection{}, fmt.Errorf("no candidates")
	}

	scores, err := s.Scores(mu, sigma, best)
	if err != nil {
		return Selection{}, err
	}

	idx, ties := ArgMaxTies(scores, rng)
	return Selection{Index: idx, Score: scores[idx], Best: best, Ties: ties}, nil
}

// ArgMaxTies returns a uniformly random index among those holding the
// maximum value, and the size of that tie set. NaN entries never win.
func ArgMaxTies(values []float64, rng *rand.Rand) (int, int) {
	maxVal := math.Inf(-1)
	var tied []int
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			continue
		case v > maxVal:
			maxVal = v
			tied = append(tied[:0], i)
		case v == maxVal:
			tied = append(tied, i)
		}
	}
	if len(tied) == 0 {
		// All NaN: every candidate is equally uninformative
		return rng.Intn(len(values)), len(values)
	}
	if len(tied) == 1 {
		return tied[0], 1
	}
	return tied[rng.Intn(len(tied))], len(tied)
}
