package tuner

import (
	"fmt"

	"github.com/cwbudde/bayestune/internal/acquisition"
	"github.com/cwbudde/bayestune/internal/gp"
	"github.com/cwbudde/bayestune/internal/objective"
	"github.com/cwbudde/bayestune/internal/space"
)

const (
	DefaultMaxIterations   = 20
	DefaultOffsetThreshold = 2
)

// Config holds the loop settings shared by every session of a Tuner.
type Config struct {
	Space space.Space

	// MaxIterations caps the number of stored observations per session
	MaxIterations int

	// OffsetThreshold is the history length up to which candidates are
	// picked at random instead of by the model
	OffsetThreshold int

	// CandidateCap bounds the candidate grid; 0 uses space.DefaultMaxCandidates
	CandidateCap int

	GP       gp.Params
	Strategy acquisition.Strategy
	Weights  objective.Weights

	// Seed makes suggestions reproducible; 0 draws fresh randomness
	Seed int64

	// RoundDecimals rounds suggestions to a fixed number of decimals.
	// Negative values round each parameter to the precision of its step.
	RoundDecimals int

	Tune TuneConfig
}

// TuneConfig enables hyperparameter search with the mayfly optimizer
// before each model fit.
type TuneConfig struct {
	Enabled    bool
	Iterations int
	Population int
}

// DefaultConfig returns the standard settings for s.
func DefaultConfig(s space.Space) Config {
	return Config{
		Space:           s,
		MaxIterations:   DefaultMaxIterations,
		OffsetThreshold: DefaultOffsetThreshold,
		CandidateCap:    space.DefaultMaxCandidates,
		GP:              gp.DefaultParams(),
		Strategy:        acquisition.Strategy{Kind: acquisition.ExpectedImprovement, Kappa: 2},
		Weights:         objective.DefaultWeights(),
		RoundDecimals:   -1,
		Tune:            TuneConfig{Iterations: 30, Population: 20},
	}
}

func (c Config) withDefaults() Config {
	if c.CandidateCap <= 0 {
		c.CandidateCap = space.DefaultMaxCandidates
	}
	if c.Strategy.Kind == "" {
		c.Strategy.Kind = acquisition.ExpectedImprovement
	}
	if c.Tune.Enabled {
		if c.Tune.Iterations <= 0 {
			c.Tune.Iterations = 30
		}
		if c.Tune.Population <= 0 {
			c.Tune.Population = 20
		}
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Space.Validate(); err != nil {
		return err
	}
	if c.MaxIterations < 2 {
		return fmt.Errorf("max iterations must be at least 2, got %d", c.MaxIterations)
	}
	if c.OffsetThreshold < 0 {
		return fmt.Errorf("offset threshold must be non-negative, got %d", c.OffsetThreshold)
	}
	if err := c.GP.Validate(); err != nil {
		return err
	}
	if _, err := acquisition.ParseKind(string(c.Strategy.Kind)); err != nil {
		return err
	}
	if c.Strategy.Xi < 0 || c.Strategy.Kappa < 0 {
		return fmt.Errorf("acquisition xi and kappa must be non-negative")
	}
	return c.Weights.Validate()
}
