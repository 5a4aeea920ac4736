package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bayestune/internal/objective"
	"github.com/cwbudde/bayestune/internal/tuner"
)

var (
	stepSession   string
	stepX         []float64
	stepManual    []float64
	stepAuto      []float64
	stepRating    float64
	stepThreshold float64
	stepMeasures  []string
	stepRanges    []string
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Record one observation and print the next parameters",
	Long: `Records the quality of the parameters last applied and prints the next
parameters to try as JSON. Once the iteration budget is spent the result
reports done and carries the best parameters observed.

Quality can be given as ready deviations (--manual, --auto) or as raw
evaluation results: a --rating checked against --threshold, and --measure
values checked against their accepted --range.`,
	RunE: runStep,
}

func init() {
	stepCmd.Flags().StringVar(&stepSession, "session", "", "Session ID (required)")
	stepCmd.Flags().Float64SliceVar(&stepX, "x", nil, "Current parameter values, comma separated (required)")
	stepCmd.Flags().Float64SliceVar(&stepManual, "manual", nil, "Manual ratings 1..10, comma separated")
	stepCmd.Flags().Float64SliceVar(&stepAuto, "auto", nil, "Automated deviations 0..100 percent, comma separated")
	stepCmd.Flags().Float64Var(&stepRating, "rating", 0, "Manual rating 1..10, converted to a deviation from --threshold")
	stepCmd.Flags().Float64Var(&stepThreshold, "threshold", objective.DefaultRatingThreshold, "Minimum acceptable rating")
	stepCmd.Flags().StringArrayVar(&stepMeasures, "measure", nil, "Measured values as name=v1,v2,... (repeatable)")
	stepCmd.Flags().StringArrayVar(&stepRanges, "range", nil, "Accepted range as name=min:max (repeatable)")

	stepCmd.MarkFlagRequired("session")
	stepCmd.MarkFlagRequired("x")
	rootCmd.AddCommand(stepCmd)
}

func runStep(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	pub := openPublisher()
	defer pub.Close()

	t, err := newTuner(st, nil, pub)
	if err != nil {
		return err
	}

	var rating *float64
	if cmd != nil && cmd.Flags().Changed("rating") {
		rating = &stepRating
	}
	eval, err := parseEvaluation(rating, stepThreshold, stepMeasures, stepRanges)
	if err != nil {
		return err
	}

	res, err := t.Step(ctx, stepSession, tuner.Input{X: stepX, Manual: stepManual, Auto: stepAuto, Evaluation: eval})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// parseEvaluation builds the raw evaluation from the step flags; nil when
// none were given.
func parseEvaluation(rating *float64, threshold float64, measures, ranges []string) (*objective.Evaluation, error) {
	e := &objective.Evaluation{Rating: rating, Threshold: threshold}

	for _, m := range measures {
		name, list, ok := strings.Cut(m, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("measure %q: expected name=v1,v2,...", m)
		}
		if e.Measurements == nil {
			e.Measurements = make(map[string][]float64)
		}
		for _, field := range strings.Split(list, ",") {
			if field = strings.TrimSpace(field); field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("measure %q: %w", m, err)
			}
			e.Measurements[name] = append(e.Measurements[name], v)
		}
	}

	for _, r := range ranges {
		name, bounds, ok := strings.Cut(r, "=")
		lo, hi, ok2 := strings.Cut(bounds, ":")
		if !ok || !ok2 || name == "" {
			return nil, fmt.Errorf("range %q: expected name=min:max", r)
		}
		minV, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", r, err)
		}
		maxV, err := strconv.ParseFloat(hi, 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", r, err)
		}
		if e.Ranges == nil {
			e.Ranges = make(map[string]objective.Range)
		}
		e.Ranges[name] = objective.Range{Min: minV, Max: maxV}
	}

	if e.Empty() {
		return nil, nil
	}
	return e, nil
}
