package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bayestune/internal/space"
	"github.com/cwbudde/bayestune/internal/store"
	"github.com/cwbudde/bayestune/internal/tuner"
)

var (
	simNoise float64
	simSeed  int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a complete session against a synthetic objective",
	Long: `Runs a full session in memory against a noisy quadratic objective with a
hidden optimum and reports the best parameters found. Useful for checking
how a parameter space and optimizer settings behave before tuning a real
system.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Float64Var(&simNoise, "noise", 1.0, "Standard deviation of the deviation noise, in percent")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 42, "Random seed for the hidden optimum and noise")
	rootCmd.AddCommand(simulateCmd)
}

// syntheticObjective reports the scaled squared distance to a hidden target
// as a 0..100 percent deviation.
type syntheticObjective struct {
	space  space.Space
	target []float64
	noise  float64
	rng    *rand.Rand
}

func newSyntheticObjective(s space.Space, noise float64, rng *rand.Rand) *syntheticObjective {
	target := make([]float64, len(s))
	for i, p := range s {
		values, _ := p.Values()
		target[i] = values[rng.Intn(len(values))]
	}
	return &syntheticObjective{space: s, target: target, noise: noise, rng: rng}
}

func (o *syntheticObjective) Deviation(x []float64) float64 {
	var d float64
	for i, p := range o.space {
		u := (x[i] - o.target[i]) / (p.Upper - p.Lower)
		d += u * u
	}
	d = 100*d/float64(len(o.space)) + o.noise*o.rng.NormFloat64()
	return math.Max(0, math.Min(100, d))
}

// simulate drives t until the session is exhausted and returns the final result.
func simulate(ctx context.Context, t *tuner.Tuner, sessionID string, obj *syntheticObjective) (*tuner.Result, error) {
	x := make([]float64, len(obj.space))
	for i, p := range obj.space {
		x[i] = p.Lower
	}

	for {
		res, err := t.Step(ctx, sessionID, tuner.Input{X: x, Auto: []float64{obj.Deviation(x)}})
		if err != nil {
			return nil, err
		}
		if res.Done {
			return res, nil
		}
		x = res.Params
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if len(cfg.Parameters) == 0 {
		return fmt.Errorf("no parameters configured; use --param or the parameters section of the config file")
	}

	st := store.NewMemoryStore()
	defer st.Close()

	t, err := tuner.New(cfg.TunerConfig(), st, tuner.WithLogger(logger))
	if err != nil {
		return err
	}

	obj := newSyntheticObjective(cfg.Parameters, simNoise, rand.New(rand.NewSource(simSeed)))
	slog.Info("Starting simulation", "parameters", cfg.Parameters.Names(), "iterations", cfg.Optimizer.MaxIterations)

	start := time.Now()
	res, err := simulate(commandContext(cmd), t, "simulation", obj)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	slog.Info("Simulation complete",
		"elapsed", elapsed,
		"best_y", res.Best.Y,
		"best_params", res.Params,
		"target", obj.target,
	)

	fmt.Printf("Best after %d iterations: %v (objective %.4f, hidden optimum %v, %s)\n",
		res.Iteration, res.Params, res.Best.Y, obj.target, elapsed.Round(time.Millisecond))
	return nil
}
