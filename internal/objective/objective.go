// Package objective turns heterogeneous quality signals into the single
// scalar the optimizer minimizes. Zero is perfect quality.
package objective

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrNoQualitySignal is returned when an invocation carries neither a
// manual rating nor an automated deviation.
var ErrNoQualitySignal = errors.New("no quality signal supplied")

// Weights configures the combination of manual and automated signals.
// Weights are percentages applied as direct multipliers; they are not
// required to sum to 100.
type Weights struct {
	Manual float64 `json:"weight_manual" yaml:"weight_manual"`
	Auto   float64 `json:"weight_auto" yaml:"weight_auto"`

	// ManualScale and AutoScale normalize the mean of each signal
	ManualScale float64 `json:"manual_scale" yaml:"manual_scale"`
	AutoScale   float64 `json:"auto_scale" yaml:"auto_scale"`
}

// DefaultWeights weighs both signals equally and normalizes by 100.
func DefaultWeights() Weights {
	return Weights{Manual: 50, Auto: 50, ManualScale: 100, AutoScale: 100}
}

// Validate rejects negative weights and non-positive scales.
func (w Weights) Validate() error {
	if w.Manual < 0 || w.Auto < 0 || math.IsNaN(w.Manual) || math.IsNaN(w.Auto) {
		return fmt.Errorf("weights must be non-negative, got manual=%g auto=%g", w.Manual, w.Auto)
	}
	if !(w.ManualScale > 0) || !(w.AutoScale > 0) {
		return fmt.Errorf("scales must be positive, got manual=%g auto=%g", w.ManualScale, w.AutoScale)
	}
	return nil
}

// Combine folds the signals into one objective value. An empty slice
// means the signal is absent.
//
//   - both present:  Manual/100*mean(manual)/ManualScale + Auto/100*mean(auto)/AutoScale
//   - manual only:   mean(manual)/ManualScale
//   - auto only:     mean(auto)/AutoScale
//
// Single signals ignore the weights. The result is not clamped.
func (w Weights) Combine(manual, auto []float64) (float64, error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}
	if err := checkFinite("manual", manual); err != nil {
		return 0, err
	}
	if err := checkFinite("auto", auto); err != nil {
		return 0, err
	}

	switch {
	case len(manual) > 0 && len(auto) > 0:
		m := stat.Mean(manual, nil) / w.ManualScale
		a := stat.Mean(auto, nil) / w.AutoScale
		return w.Manual/100*m + w.Auto/100*a, nil
	case len(manual) > 0:
		return stat.Mean(manual, nil) / w.ManualScale, nil
	case len(auto) > 0:
		return stat.Mean(auto, nil) / w.AutoScale, nil
	default:
		return 0, ErrNoQualitySignal
	}
}

// Combine applies DefaultWeights with the given weight pair.
func Combine(manual, auto []float64, wManual, wAuto float64) (float64, error) {
	w := DefaultWeights()
	w.Manual, w.Auto = wManual, wAuto
	return w.Combine(manual, auto)
}

func checkFinite(name string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s signal %d is not finite", name, i)
		}
	}
	return nil
}
