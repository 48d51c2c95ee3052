// Package harness loads guest fixtures and checks them against the fixture
// ABI: allocator, shared buffer, compute exports, budgets and panic signals.
package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-guest-fixture/internal/config"
	"github.com/woxQAQ/wasm-guest-fixture/internal/fixture"
	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm"
	"github.com/woxQAQ/wasm-guest-fixture/pkg/report"
)

// Harness owns the Wasm runtime and the fixtures loaded into it.
type Harness struct {
	cfg         *config.Config
	logger      *zap.Logger
	wasmRuntime *wasm.Runtime
	manager     *fixture.Manager

	// budget overrides every other call budget when non-zero.
	budget time.Duration
}

// New creates the runtime described by cfg. Fixtures are not loaded yet.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Harness, error) {
	wasmConfig := &wasm.RuntimeConfig{
		MemoryPages:  cfg.Wasm.MemoryPages,
		DebugEnabled: cfg.Wasm.Debug,
		CacheDir:     cfg.Wasm.CacheDir,
		MaxInstances: cfg.Wasm.MaxInstances,
		CallBudget:   cfg.Wasm.CallBudget,
	}

	wasmRuntime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	hostFuncs := wasm.NewHostFunctions(logger)

	logger.Info("Harness initialized",
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
		zap.Duration("call_budget", cfg.Wasm.CallBudget),
	)

	return &Harness{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "harness")),
		wasmRuntime: wasmRuntime,
		manager:     fixture.NewManager(cfg, wasmRuntime, hostFuncs, logger),
	}, nil
}

// SetBudget makes every instance the harness creates use budget. Zero
// restores the manifest and runtime defaults.
func (h *Harness) SetBudget(budget time.Duration) {
	h.budget = budget
}

// Load discovers the fixtures under the configured paths.
func (h *Harness) Load(ctx context.Context) error {
	return h.manager.LoadAll(ctx)
}

// Manager returns the fixture manager.
func (h *Harness) Manager() *fixture.Manager {
	return h.manager
}

// Fixture resolves name, or the default fixture when name is empty.
func (h *Harness) Fixture(name string) (*fixture.Fixture, error) {
	if name == "" {
		return h.manager.Default()
	}
	return h.manager.GetFixture(name)
}

// Instantiate creates an instance of the named fixture.
func (h *Harness) Instantiate(ctx context.Context, name string) (*wasm.Instance, error) {
	f, err := h.Fixture(name)
	if err != nil {
		return nil, err
	}
	return h.manager.InstantiateWithBudget(ctx, f.Name(), h.budget)
}

// Check runs the conformance suite against the named fixture.
func (h *Harness) Check(ctx context.Context, name string) (*report.Summary, error) {
	f, err := h.Fixture(name)
	if err != nil {
		return nil, err
	}

	spawn := func(ctx context.Context, budget time.Duration) (*wasm.Instance, error) {
		if budget == 0 {
			budget = h.budget
		}
		return h.manager.InstantiateWithBudget(ctx, f.Name(), budget)
	}

	h.logger.Info("Checking fixture",
		zap.String("fixture", f.Name()),
		zap.String("toolchain", f.Toolchain()),
	)
	return NewSuite(f.Name(), spawn, DefaultSuiteConfig(), h.logger).Run(ctx)
}

// CallRequest names one export and its arguments.
type CallRequest struct {
	Export string
	Params []uint64
	// Input, when set, is written to BUFFER as a NUL-terminated string
	// before the call.
	Input *string
}

// CallResult is the outcome of one exported call.
type CallResult struct {
	Results []uint64
	Signals []wasm.Signal
	State   wasm.State
	// Output is BUFFER up to its first NUL after the call. It is only read
	// when the request had Input and the instance survived.
	Output   string
	Duration time.Duration
}

// Call invokes one export on a fresh instance of the named fixture. Signals
// are returned even when the call fails.
func (h *Harness) Call(ctx context.Context, name string, req CallRequest) (*CallResult, error) {
	inst, err := h.Instantiate(ctx, name)
	if err != nil {
		return nil, err
	}
	defer inst.Close(context.Background())

	var buf *wasm.SharedBuffer
	if req.Input != nil {
		if buf, err = inst.Buffer(); err != nil {
			return nil, err
		}
		if err := buf.WriteCString(*req.Input); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	results, callErr := inst.Call(ctx, req.Export, req.Params...)
	res := &CallResult{
		Results:  results,
		Signals:  inst.Signals(),
		State:    inst.State(),
		Duration: time.Since(start),
	}
	if callErr != nil {
		return res, callErr
	}

	if buf != nil {
		if res.Output, err = buf.ReadCString(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Close gracefully shuts down the harness.
func (h *Harness) Close(ctx context.Context) error {
	h.logger.Info("Shutting down harness")

	if err := h.manager.Shutdown(ctx); err != nil {
		h.logger.Error("Failed to shutdown fixtures", zap.Error(err))
		return err
	}

	h.logger.Info("Harness shutdown complete")
	return nil
}
