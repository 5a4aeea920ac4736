package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/bayestune/internal/acquisition"
)

var envVars = []string{
	"BAYESTUNE_STORE_BACKEND", "BAYESTUNE_STORE_DIR", "BAYESTUNE_SQLITE_PATH",
	"BAYESTUNE_POSTGRES_URL", "BAYESTUNE_LOCK_TIMEOUT_MS", "BAYESTUNE_MAX_ITERATIONS",
	"BAYESTUNE_OFFSET_THRESHOLD", "BAYESTUNE_CANDIDATE_CAP", "BAYESTUNE_LENGTH_SCALE",
	"BAYESTUNE_ALPHA", "BAYESTUNE_ACQUISITION", "BAYESTUNE_SEED",
	"BAYESTUNE_TUNE_HYPERPARAMETERS", "BAYESTUNE_WEIGHT_MANUAL", "BAYESTUNE_WEIGHT_AUTO",
	"BAYESTUNE_ADDR", "BAYESTUNE_NATS_URL", "BAYESTUNE_SUBJECT_PREFIX",
	"BAYESTUNE_LOG_LEVEL", "BAYESTUNE_LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != "fs" {
		t.Errorf("expected fs backend, got %s", cfg.Store.Backend)
	}
	if cfg.LockTimeout() != 10*time.Second {
		t.Errorf("expected 10s lock timeout, got %v", cfg.LockTimeout())
	}
	if cfg.Optimizer.MaxIterations != 20 {
		t.Errorf("expected max iterations 20, got %d", cfg.Optimizer.MaxIterations)
	}
	if cfg.Optimizer.OffsetThreshold != 2 {
		t.Errorf("expected offset threshold 2, got %d", cfg.Optimizer.OffsetThreshold)
	}
	if cfg.Optimizer.CandidateCap != 10000 {
		t.Errorf("expected candidate cap 10000, got %d", cfg.Optimizer.CandidateCap)
	}
	if cfg.Optimizer.LengthScale != 1.0 || cfg.Optimizer.Alpha != 1e-2 {
		t.Errorf("unexpected GP defaults: %+v", cfg.Optimizer)
	}
	if cfg.Optimizer.Acquisition != "ei" {
		t.Errorf("expected ei, got %s", cfg.Optimizer.Acquisition)
	}
	if cfg.Optimizer.RoundDecimals != -1 {
		t.Errorf("expected round decimals -1, got %d", cfg.Optimizer.RoundDecimals)
	}
	if cfg.Objective.Manual != 50 || cfg.Objective.Auto != 50 {
		t.Errorf("expected 50/50 weights, got %+v", cfg.Objective)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Events.NATSURL != "" {
		t.Errorf("expected events disabled, got %s", cfg.Events.NATSURL)
	}
	if cfg.Events.SubjectPrefix != "bayestune" {
		t.Errorf("expected subject prefix bayestune, got %s", cfg.Events.SubjectPrefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bayestune.yaml")
	data := `
store:
  backend: sqlite
  sqlite_path: /tmp/history.db
optimizer:
  max_iterations: 30
  acquisition: lcb
  kappa: 1.5
  seed: 99
objective:
  weight_manual: 70
  weight_auto: 30
parameters:
  - name: gain
    lower: 0
    upper: 1
    step: 0.1
  - name: offset
    lower: -5
    upper: 5
    step: 1
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != "sqlite" || cfg.Store.SQLitePath != "/tmp/history.db" {
		t.Errorf("unexpected store section: %+v", cfg.Store)
	}
	if cfg.Optimizer.MaxIterations != 30 {
		t.Errorf("expected max iterations 30, got %d", cfg.Optimizer.MaxIterations)
	}
	// Unset keys keep their defaults
	if cfg.Optimizer.OffsetThreshold != 2 {
		t.Errorf("expected offset threshold to stay 2, got %d", cfg.Optimizer.OffsetThreshold)
	}
	if cfg.Objective.ManualScale != 100 {
		t.Errorf("expected manual scale to stay 100, got %v", cfg.Objective.ManualScale)
	}
	if len(cfg.Parameters) != 2 || cfg.Parameters[1].Name != "offset" || cfg.Parameters[0].Step != 0.1 {
		t.Errorf("unexpected parameters: %+v", cfg.Parameters)
	}

	tc := cfg.TunerConfig()
	if tc.Strategy.Kind != acquisition.LowerConfidenceBound || tc.Strategy.Kappa != 1.5 {
		t.Errorf("unexpected strategy: %+v", tc.Strategy)
	}
	if tc.Seed != 99 || tc.Weights.Manual != 70 {
		t.Errorf("unexpected tuner config: %+v", tc)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("tuner config does not validate: %v", err)
	}

	opts := cfg.StoreOptions()
	if opts.Backend != "sqlite" || opts.LockTimeout != 10*time.Second {
		t.Errorf("unexpected store options: %+v", opts)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BAYESTUNE_STORE_BACKEND", "memory")
	t.Setenv("BAYESTUNE_MAX_ITERATIONS", "12")
	t.Setenv("BAYESTUNE_ALPHA", "0.5")
	t.Setenv("BAYESTUNE_SEED", "7")
	t.Setenv("BAYESTUNE_TUNE_HYPERPARAMETERS", "true")
	t.Setenv("BAYESTUNE_NATS_URL", "nats://localhost:4222")
	t.Setenv("BAYESTUNE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Optimizer.MaxIterations != 12 {
		t.Errorf("expected 12, got %d", cfg.Optimizer.MaxIterations)
	}
	if cfg.Optimizer.Alpha != 0.5 {
		t.Errorf("expected alpha 0.5, got %v", cfg.Optimizer.Alpha)
	}
	if cfg.Optimizer.Seed != 7 || !cfg.Optimizer.TuneHyperparameters {
		t.Errorf("unexpected optimizer: %+v", cfg.Optimizer)
	}
	if cfg.Events.NATSURL != "nats://localhost:4222" {
		t.Errorf("unexpected nats url %s", cfg.Events.NATSURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadEnvIgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("BAYESTUNE_MAX_ITERATIONS", "many")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Optimizer.MaxIterations != 20 {
		t.Errorf("expected default to survive, got %d", cfg.Optimizer.MaxIterations)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("optimizer: [unclosed"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"max iterations":  func(c *Config) { c.Optimizer.MaxIterations = 1 },
		"length scale":    func(c *Config) { c.Optimizer.LengthScale = 0 },
		"negative alpha":  func(c *Config) { c.Optimizer.Alpha = -1 },
		"candidate cap":   func(c *Config) { c.Optimizer.CandidateCap = 0 },
		"offset":          func(c *Config) { c.Optimizer.OffsetThreshold = -1 },
		"negative weight": func(c *Config) { c.Objective.Manual = -5 },
		"backend":         func(c *Config) { c.Store.Backend = "redis" },
		"acquisition":     func(c *Config) { c.Optimizer.Acquisition = "ucb" },
		"log format":      func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected %s to be rejected", name)
			}
		})
	}
}

func TestValidateAllowsZeroOffset(t *testing.T) {
	cfg := Default()
	cfg.Optimizer.OffsetThreshold = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected offset threshold 0 to be accepted, got %v", err)
	}
}
