package objective

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// DefaultRatingThreshold is the minimum acceptable manual rating.
const DefaultRatingThreshold = 8

// Range is the accepted interval of one measured feature.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ManualDeviation converts a human accuracy rating into a deviation:
// how far the rating falls short of the acceptance threshold, or 0.
func ManualDeviation(rating, threshold float64) float64 {
	if rating < threshold {
		return threshold - rating
	}
	return 0
}

// RangeDeviation measures how far each value lies outside [lower, upper]
// as a percentage of the violated bound, and returns the mean over all
// values. Values inside the range contribute 0; no values yields 0.
func RangeDeviation(values []float64, lower, upper float64) float64 {
	if len(values) == 0 {
		return 0
	}
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = percentOutside(v, lower, upper)
	}
	return stat.Mean(devs, nil)
}

// RangeDeviations applies RangeDeviation per measurement, giving one
// entry of the automated signal for each measured feature.
func RangeDeviations(measurements map[string][]float64, ranges map[string]Range, order []string) []float64 {
	out := make([]float64, 0, len(order))
	for _, name := range order {
		r, ok := ranges[name]
		if !ok {
			continue
		}
		out = append(out, RangeDeviation(measurements[name], r.Min, r.Max))
	}
	return out
}

// Evaluation carries raw evaluation results: a human rating checked
// against a threshold, and measured feature values checked against their
// accepted ranges.
type Evaluation struct {
	Rating       *float64             `json:"rating,omitempty"`
	Threshold    float64              `json:"threshold,omitempty"`
	Measurements map[string][]float64 `json:"measurements,omitempty"`
	Ranges       map[string]Range     `json:"ranges,omitempty"`
}

// Empty reports whether e carries nothing to evaluate.
func (e *Evaluation) Empty() bool {
	return e == nil || (e.Rating == nil && len(e.Measurements) == 0 && len(e.Ranges) == 0)
}

// Signals converts the evaluation into manual and automated signal
// entries. The rating yields one manual deviation; every range yields one
// automated deviation, in name order. A zero threshold means
// DefaultRatingThreshold.
func (e *Evaluation) Signals() (manual, auto []float64, err error) {
	if e.Empty() {
		return nil, nil, nil
	}

	if e.Rating != nil {
		threshold := e.Threshold
		if threshold == 0 {
			threshold = DefaultRatingThreshold
		}
		r := *e.Rating
		if math.IsNaN(r) || r < 1 || r > 10 {
			return nil, nil, fmt.Errorf("rating must be between 1 and 10, got %g", r)
		}
		if math.IsNaN(threshold) || threshold < 1 || threshold > 10 {
			return nil, nil, fmt.Errorf("threshold must be between 1 and 10, got %g", threshold)
		}
		manual = []float64{ManualDeviation(r, threshold)}
	}

	for name, values := range e.Measurements {
		if _, ok := e.Ranges[name]; !ok {
			return nil, nil, fmt.Errorf("measurement %q has no range", name)
		}
		if err := checkFinite(name, values); err != nil {
			return nil, nil, err
		}
	}
	names := make([]string, 0, len(e.Ranges))
	for name, r := range e.Ranges {
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min > r.Max {
			return nil, nil, fmt.Errorf("range %q: min %g exceeds max %g", name, r.Min, r.Max)
		}
		names = append(names, name)
	}
	slices.Sort(names)
	if len(names) > 0 {
		auto = RangeDeviations(e.Measurements, e.Ranges, names)
	}
	return manual, auto, nil
}

func percentOutside(v, lower, upper float64) float64 {
	switch {
	case v < lower:
		if lower == 0 {
			return 100
		}
		return (lower - v) * 100 / math.Abs(lower)
	case v > upper:
		if upper == 0 {
			return 100
		}
		return (v - upper) * 100 / math.Abs(upper)
	}
	return 0
}
