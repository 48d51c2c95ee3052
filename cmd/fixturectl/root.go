package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-guest-fixture/internal/config"
	"github.com/woxQAQ/wasm-guest-fixture/internal/harness"
)

// options are the persistent flags every subcommand shares.
type options struct {
	configPath string
	logLevel   string
	fixture    string
	budget     time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "fixturectl",
		Short: "Check WebAssembly guest fixtures",
		Long: `fixturectl loads WebAssembly guest fixtures and exercises them through
their exported ABI: the malloc/free allocator, the shared BUFFER, the compute
exports, execution budgets, and panic messages delivered through env.sig.

Fixtures live in directories holding a manifest.yaml and the .wasm it names.`,
		Example: `  # Run every check against the only fixture found
  fixturectl check

  # Check a named fixture and print JSON
  fixturectl check --fixture rust-reference --json

  # Call one export under a 10ms budget
  fixturectl call endless_loop --budget 10ms

  # Show a fixture's imports and exports
  fixturectl inspect --config fixturectl.yaml`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to the configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVarP(&opts.fixture, "fixture", "f", "", "Fixture to act on (default: the configured or only fixture)")
	flags.DurationVar(&opts.budget, "budget", 0, "Execution budget per call (overrides manifest and config)")

	cmd.AddCommand(
		newCheckCommand(opts),
		newCallCommand(opts),
		newInspectCommand(opts),
	)
	return cmd
}

// loadConfig reads the configuration and applies flag overrides.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.fixture != "" {
		cfg.Fixture = o.fixture
	}
	if o.budget < 0 {
		return nil, fmt.Errorf("--budget must not be negative")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds a development logger for debug, production otherwise.
// Both write to stderr so stdout carries only command output.
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = atomic
	return zcfg.Build()
}

// session is what a subcommand runs against.
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	harness *harness.Harness
}

// open loads configuration and fixtures. The caller must close the session.
func (o *options) open(ctx context.Context) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Debug("Starting fixturectl",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	h, err := harness.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	h.SetBudget(o.budget)

	if err := h.Load(ctx); err != nil {
		_ = h.Close(context.Background())
		_ = logger.Sync()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, harness: h}, nil
}

func (s *session) close() {
	if err := s.harness.Close(context.Background()); err != nil {
		s.logger.Error("Failed to close harness", zap.Error(err))
	}
	_ = s.logger.Sync()
}
