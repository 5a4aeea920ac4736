package space

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxRangeLen bounds a single parameter's discretized range.
const maxRangeLen = 1 << 24

// ParameterSpec describes one tunable parameter as the half-open range
// [Lower, Lower+Step, Lower+2*Step, ...) < Upper.
type ParameterSpec struct {
	Name  string  `json:"name" yaml:"name"`
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
	Step  float64 `json:"step" yaml:"step"`
}

// Space is the ordered list of tunable parameters for one session.
// The order fixes the layout of every parameter vector.
type Space []ParameterSpec

// Len returns the number of values in the spec's discretized range.
func (p ParameterSpec) Len() (int, error) {
	if math.IsNaN(p.Lower) || math.IsNaN(p.Upper) || math.IsNaN(p.Step) ||
		math.IsInf(p.Lower, 0) || math.IsInf(p.Upper, 0) || math.IsInf(p.Step, 0) {
		return 0, fmt.Errorf("bounds and step must be finite")
	}
	if p.Step <= 0 {
		return 0, fmt.Errorf("step must be positive, got %g", p.Step)
	}
	if p.Upper <= p.Lower {
		return 0, fmt.Errorf("upper bound %g must exceed lower bound %g", p.Upper, p.Lower)
	}

	r := (p.Upper - p.Lower) / p.Step
	if r > maxRangeLen+1 {
		return 0, fmt.Errorf("range has %.0f values, limit is %d", math.Ceil(r), maxRangeLen)
	}

	// A value is in range when it lies below upper by more than rounding
	// noise, so (0, 0.3, 0.1) yields 3 values and (0, 3.0000000001, 1) yields 4
	limit := p.Upper - 1e-12*math.Max(p.Step, math.Abs(p.Upper))
	n := int(math.Ceil(r))
	for n > 1 && p.Lower+float64(n-1)*p.Step >= limit {
		n--
	}
	for p.Lower+float64(n)*p.Step < limit {
		n++
	}
	if n > maxRangeLen {
		return 0, fmt.Errorf("range has %d values, limit is %d", n, maxRangeLen)
	}
	return n, nil
}

// Values expands the spec into its discretized range.
func (p ParameterSpec) Values() ([]float64, error) {
	n, err := p.Len()
	if err != nil {
		return nil, err
	}

	values := make([]float64, n)
	for k := range values {
		// Multiply instead of accumulating to avoid drift
		values[k] = p.Lower + float64(k)*p.Step
	}
	return values, nil
}

// Decimals returns the number of decimal places needed to represent every
// value in the range exactly as written in the spec.
func (p ParameterSpec) Decimals() int {
	return max(decimals(p.Lower), decimals(p.Step))
}

func decimals(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return min(len(s)-i-1, 10)
}

// Validate checks every spec and returns the first InvalidParameterRangeError.
func (s Space) Validate() error {
	if len(s) == 0 {
		return &InvalidParameterRangeError{Index: -1, Reason: "no parameters configured"}
	}
	for i, p := range s {
		if _, err := p.Len(); err != nil {
			return &InvalidParameterRangeError{Index: i, Name: p.Name, Reason: err.Error()}
		}
	}
	return nil
}

// Dim returns the number of parameters.
func (s Space) Dim() int {
	return len(s)
}

// Names returns parameter names in order.
func (s Space) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// Fingerprint identifies the space. Histories recorded under a different
// fingerprint were produced for a different search space.
func (s Space) Fingerprint() string {
	h := sha256.New()
	for _, p := range s {
		fmt.Fprintf(h, "%s|%s|%s|%s;",
			p.Name,
			strconv.FormatFloat(p.Lower, 'g', -1, 64),
			strconv.FormatFloat(p.Upper, 'g', -1, 64),
			strconv.FormatFloat(p.Step, 'g', -1, 64),
		)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Round rounds each coordinate of x to the precision of its parameter.
// A non-negative override applies the same number of decimals to every
// coordinate.
func (s Space) Round(x []float64, override int) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		d := override
		if d < 0 && i < len(s) {
			d = s[i].Decimals()
		}
		if d < 0 {
			out[i] = v
			continue
		}
		out[i] = roundTo(v, d)
	}
	return out
}

func roundTo(v float64, d int) float64 {
	scale := math.Pow(10, float64(d))
	return math.Round(v*scale) / scale
}

// InvalidParameterRangeError reports a spec that yields an empty or
// malformed range.
type InvalidParameterRangeError struct {
	Index  int
	Name   string
	Reason string
}

func (e *InvalidParameterRangeError) Error() string {
	if e.Index < 0 {
		return "invalid parameter range: " + e.Reason
	}
	name := e.Name
	if name == "" {
		name = "#" + strconv.Itoa(e.Index)
	}
	return "invalid parameter range for " + name + ": " + e.Reason
}

func (e *InvalidParameterRangeError) Is(target error) bool {
	_, ok := target.(*InvalidParameterRangeError)
	return ok
}

// ErrInvalidParameterRange matches any InvalidParameterRangeError with errors.Is.
var ErrInvalidParameterRange = &InvalidParameterRangeError{}
