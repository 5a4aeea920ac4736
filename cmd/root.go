package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bayestune/internal/config"
	"github.com/cwbudde/bayestune/internal/events"
	"github.com/cwbudde/bayestune/internal/metrics"
	"github.com/cwbudde/bayestune/internal/store"
	"github.com/cwbudde/bayestune/internal/tuner"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	paramFlags []string
	dataDir    string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bayestune",
	Short: "Sequential Bayesian optimization of tunable parameters",
	Long: `bayestune suggests the next parameter values to try, one iteration at
a time, from a Gaussian process fitted to the quality of everything tried
so far. History is stored per session so that each invocation may run in
a fresh process.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, loaded); err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		// Stdout carries command output, logs go to stderr
		logger = newLogger(os.Stderr, cfg.Logging)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().StringArrayVarP(&paramFlags, "param", "p", nil, "Tunable parameter as name:lower:upper:step (repeatable, replaces configured parameters)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Base directory for the filesystem store")
}

// applyFlags lets command-line flags override the loaded configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Logging.Format = logFormat
	}
	if flags.Changed("data-dir") {
		c.Store.Dir = dataDir
	}
	if len(paramFlags) > 0 {
		s, err := parseParams(paramFlags)
		if err != nil {
			return err
		}
		c.Parameters = s
	}
	return nil
}

func newLogger(w io.Writer, lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// commandContext returns the command context, or Background for commands
// invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// openStore opens the configured observation store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return st, nil
}

// openPublisher logs every session event and also publishes to NATS
// when configured.
func openPublisher() events.Publisher {
	pubs := events.Fanout{events.NewLogPublisher(logger)}
	if cfg.Events.NATSURL == "" {
		return pubs
	}
	nc, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
	if err != nil {
		logger.Warn("NATS event publishing disabled", "error", err)
		return pubs
	}
	return append(pubs, nc)
}

// newTuner builds a tuner over st from the loaded configuration.
func newTuner(st store.Store, m *metrics.Metrics, pub events.Publisher) (*tuner.Tuner, error) {
	if len(cfg.Parameters) == 0 {
		return nil, fmt.Errorf("no parameters configured; use --param or the parameters section of the config file")
	}
	return tuner.New(cfg.TunerConfig(), st,
		tuner.WithLogger(logger),
		tuner.WithMetrics(m),
		tuner.WithPublisher(pub),
	)
}
