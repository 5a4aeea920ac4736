package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/bayestune/internal/acquisition"
	"github.com/cwbudde/bayestune/internal/events"
	"github.com/cwbudde/bayestune/internal/gp"
	"github.com/cwbudde/bayestune/internal/objective"
	"github.com/cwbudde/bayestune/internal/space"
	"github.com/cwbudde/bayestune/internal/store"
	"github.com/cwbudde/bayestune/internal/tuner"
)

type Config struct {
	Store      StoreConfig       `yaml:"store"`
	Optimizer  OptimizerConfig   `yaml:"optimizer"`
	Objective  objective.Weights `yaml:"objective"`
	Parameters space.Space       `yaml:"parameters"`
	Server     ServerConfig      `yaml:"server"`
	Events     EventsConfig      `yaml:"events"`
	Logging    LoggingConfig     `yaml:"logging"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresURL   string `yaml:"postgres_url"`
	LockTimeoutMs int    `yaml:"lock_timeout_ms"`
}

type OptimizerConfig struct {
	MaxIterations   int     `yaml:"max_iterations"`
	OffsetThreshold int     `yaml:"offset_threshold"`
	CandidateCap    int     `yaml:"candidate_cap"`
	LengthScale     float64 `yaml:"length_scale"`
	Alpha           float64 `yaml:"alpha"`
	Constant        float64 `yaml:"constant"`
	Acquisition     string  `yaml:"acquisition"`
	Xi              float64 `yaml:"xi"`
	Kappa           float64 `yaml:"kappa"`
	Seed            int64   `yaml:"seed"`
	RoundDecimals   int     `yaml:"round_decimals"`

	TuneHyperparameters bool `yaml:"tune_hyperparameters"`
	TuneIterations      int  `yaml:"tune_iterations"`
	TunePopulation      int  `yaml:"tune_population"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Store.LockTimeoutMs) * time.Millisecond
}

// StoreOptions translates the store section for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.Store.Backend,
		Dir:         c.Store.Dir,
		SQLitePath:  c.Store.SQLitePath,
		PostgresURL: c.Store.PostgresURL,
		LockTimeout: c.LockTimeout(),
	}
}

// TunerConfig translates the optimizer, objective and parameters sections.
func (c *Config) TunerConfig() tuner.Config {
	o := c.Optimizer
	return tuner.Config{
		Space:           c.Parameters,
		MaxIterations:   o.MaxIterations,
		OffsetThreshold: o.OffsetThreshold,
		CandidateCap:    o.CandidateCap,
		GP: gp.Params{
			LengthScale: o.LengthScale,
			Alpha:       o.Alpha,
			Constant:    o.Constant,
		},
		Strategy: acquisition.Strategy{
			Kind:  acquisition.Kind(o.Acquisition),
			Xi:    o.Xi,
			Kappa: o.Kappa,
		},
		Weights:       c.Objective,
		Seed:          o.Seed,
		RoundDecimals: o.RoundDecimals,
		Tune: tuner.TuneConfig{
			Enabled:    o.TuneHyperparameters,
			Iterations: o.TuneIterations,
			Population: o.TunePopulation,
		},
	}
}

// Default returns the built-in configuration without a parameter space.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:       store.BackendFS,
			Dir:           "./data",
			SQLitePath:    "./data/bayestune.db",
			LockTimeoutMs: int(store.DefaultLockTimeout / time.Millisecond),
		},
		Optimizer: OptimizerConfig{
			MaxIterations:   tuner.DefaultMaxIterations,
			OffsetThreshold: tuner.DefaultOffsetThreshold,
			CandidateCap:    space.DefaultMaxCandidates,
			LengthScale:     1.0,
			Alpha:           1e-2,
			Constant:        1.0,
			Acquisition:     string(acquisition.ExpectedImprovement),
			Kappa:           2.0,
			RoundDecimals:   -1,
			TuneIterations:  30,
			TunePopulation:  20,
		},
		Objective: objective.DefaultWeights(),
		Server: ServerConfig{
			Addr: ":8080",
		},
		Events: EventsConfig{
			SubjectPrefix: events.DefaultSubjectPrefix,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BAYESTUNE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("BAYESTUNE_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("BAYESTUNE_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("BAYESTUNE_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("BAYESTUNE_LOCK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.LockTimeoutMs = n
		}
	}
	if v := os.Getenv("BAYESTUNE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.MaxIterations = n
		}
	}
	if v := os.Getenv("BAYESTUNE_OFFSET_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.OffsetThreshold = n
		}
	}
	if v := os.Getenv("BAYESTUNE_CANDIDATE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.CandidateCap = n
		}
	}
	if v := os.Getenv("BAYESTUNE_LENGTH_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Optimizer.LengthScale = f
		}
	}
	if v := os.Getenv("BAYESTUNE_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Optimizer.Alpha = f
		}
	}
	if v := os.Getenv("BAYESTUNE_ACQUISITION"); v != "" {
		cfg.Optimizer.Acquisition = v
	}
	if v := os.Getenv("BAYESTUNE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Optimizer.Seed = n
		}
	}
	if v := os.Getenv("BAYESTUNE_TUNE_HYPERPARAMETERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Optimizer.TuneHyperparameters = b
		}
	}
	if v := os.Getenv("BAYESTUNE_WEIGHT_MANUAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Objective.Manual = f
		}
	}
	if v := os.Getenv("BAYESTUNE_WEIGHT_AUTO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Objective.Auto = f
		}
	}
	if v := os.Getenv("BAYESTUNE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("BAYESTUNE_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("BAYESTUNE_SUBJECT_PREFIX"); v != "" {
		cfg.Events.SubjectPrefix = v
	}
	if v := os.Getenv("BAYESTUNE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BAYESTUNE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the sections independently of a parameter space.
// The space itself is validated by the tuner, since the CLI may supply it
// on the command line.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendFS, store.BackendSQLite, store.BackendPostgres, store.BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.LockTimeoutMs < 0 {
		return fmt.Errorf("lock_timeout_ms must be non-negative")
	}

	o := c.Optimizer
	if o.MaxIterations < 2 {
		return fmt.Errorf("max_iterations must be at least 2, got %d", o.MaxIterations)
	}
	if o.OffsetThreshold < 0 {
		return fmt.Errorf("offset_threshold must be non-negative, got %d", o.OffsetThreshold)
	}
	if o.CandidateCap < 1 {
		return fmt.Errorf("candidate_cap must be at least 1, got %d", o.CandidateCap)
	}
	if err := (gp.Params{LengthScale: o.LengthScale, Alpha: o.Alpha, Constant: o.Constant}).Validate(); err != nil {
		return err
	}
	if _, err := acquisition.ParseKind(o.Acquisition); err != nil {
		return err
	}
	if err := c.Objective.Validate(); err != nil {
		return err
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
