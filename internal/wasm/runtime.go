package wasm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// Runtime manages the wazero runtime lifecycle.
// It's a singleton that creates a single wazero.Runtime for the entire application.
type Runtime struct {
	// wazero runtime (singleton)
	runtime wazero.Runtime

	// On-disk compilation cache, nil when CacheDir is empty.
	cache wazero.CompilationCache

	// Compiled module cache (key: module name/path -> value: compiled module)
	modules sync.Map // map[string]*CompiledModule

	// Active instances (for cleanup on shutdown)
	// key: instance ID -> value: *Instance
	instances sync.Map

	// The env host module, instantiated on first use.
	hostMu  sync.Mutex
	hostMod bool

	// Configuration
	config *RuntimeConfig

	// Logger
	logger *zap.Logger

	// Shutdown management
	closeOnce sync.Once
	closed    chan struct{}
}

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	// Memory limit per instance (in pages, 64KB each). Zero means the
	// WebAssembly maximum.
	MemoryPages uint32

	// Keep DWARF-derived source locations in trap stack traces.
	DebugEnabled bool

	// Compilation cache directory (for persistent caching)
	// If empty, uses in-memory caching only
	CacheDir string

	// Maximum number of concurrent instances. Zero means unlimited.
	MaxInstances int

	// Execution budget for a single exported call. Zero means no budget.
	CallBudget time.Duration
}

// CompiledModule wraps a wazero.CompiledModule with metadata.
type CompiledModule struct {
	// wazero compiled module
	Module wazero.CompiledModule

	// Module metadata
	Name      string
	Source    string // File path or identifier
	SizeBytes int64

	// Compilation timestamp
	CompiledAt int64
}

// NewRuntime creates and initializes a new wazero runtime.
// This should be called once during application startup.
func NewRuntime(ctx context.Context, logger *zap.Logger, config *RuntimeConfig) (*Runtime, error) {
	if config == nil {
		config = DefaultRuntimeConfig()
	}

	// Closing a module when its context is done is what turns a call
	// deadline into an execution budget: wazero checks the context at
	// loop headers and function entries.
	rc := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithDebugInfoEnabled(config.DebugEnabled)
	if config.MemoryPages > 0 {
		rc = rc.WithMemoryLimitPages(config.MemoryPages)
	}

	var cache wazero.CompilationCache
	if config.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(config.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache %s: %w", config.CacheDir, err)
		}
		cache = c
		rc = rc.WithCompilationCache(cache)
	}

	r := wazero.NewRuntimeWithConfig(ctx, rc)

	// Guests built by the Go toolchain import WASI.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	runtime := &Runtime{
		runtime: r,
		cache:   cache,
		config:  config,
		logger:  logger.With(zap.String("component", "wasm-runtime")),
		closed:  make(chan struct{}),
	}

	runtime.logger.Info("Wasm runtime initialized",
		zap.Uint32("memory_pages", config.MemoryPages),
		zap.Bool("debug_enabled", config.DebugEnabled),
		zap.String("cache_dir", config.CacheDir),
		zap.Int("max_instances", config.MaxInstances),
		zap.Duration("call_budget", config.CallBudget),
	)

	return runtime, nil
}

// DefaultRuntimeConfig returns sensible defaults.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MemoryPages:  1024, // 64MB
		DebugEnabled: false,
		CacheDir:     "",
		MaxInstances: 100,
		CallBudget:   time.Second,
	}
}

// Config returns the runtime configuration.
func (r *Runtime) Config() RuntimeConfig {
	return *r.config
}

// Close gracefully shuts down the runtime.
// Safe to call multiple times (idempotent).
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.logger.Info("Shutting down Wasm runtime")

		// Close all active instances first
		r.instances.Range(func(key, value any) bool {
			if inst, ok := value.(*Instance); ok {
				if closeErr := inst.Close(ctx); closeErr != nil {
					r.logger.Warn("Failed to close instance",
						zap.String("instance_id", key.(string)),
						zap.Error(closeErr),
					)
				}
			}
			return true
		})

		// Close the runtime (closes compiled modules)
		err = r.runtime.Close(ctx)

		if r.cache != nil {
			if cacheErr := r.cache.Close(ctx); cacheErr != nil && err == nil {
				err = cacheErr
			}
		}

		close(r.closed)
		r.logger.Info("Wasm runtime shutdown complete")
	})

	return err
}

// ensureHostModule instantiates the env host module once per runtime. The
// first HostFunctionsImpl wins; every instance of this runtime signals into it.
func (r *Runtime) ensureHostModule(ctx context.Context, h *HostFunctionsImpl) error {
	r.hostMu.Lock()
	defer r.hostMu.Unlock()
	if r.hostMod {
		return nil
	}

	builder := r.runtime.NewHostModuleBuilder(abi.ImportModule)
	h.export(builder)
	if _, err := builder.Instantiate(ctx); err != nil {
		return &HostFunctionError{FunctionName: abi.ImportModule + "." + abi.ImportSig, Err: err}
	}
	r.hostMod = true
	return nil
}

// GetCompiledModule retrieves a compiled module from cache.
func (r *Runtime) GetCompiledModule(name string) (*CompiledModule, bool) {
	if val, ok := r.modules.Load(name); ok {
		if mod, ok := val.(*CompiledModule); ok {
			return mod, true
		}
	}
	return nil, false
}

// StoreCompiledModule stores a compiled module in cache.
func (r *Runtime) StoreCompiledModule(module *CompiledModule) {
	r.modules.Store(module.Name, module)
}

// GetInstance retrieves an active instance.
func (r *Runtime) GetInstance(instanceID string) (*Instance, bool) {
	if val, ok := r.instances.Load(instanceID); ok {
		return val.(*Instance), true
	}
	return nil, false
}

// StoreInstance stores an active instance.
func (r *Runtime) StoreInstance(instanceID string, instance *Instance) {
	r.instances.Store(instanceID, instance)
}

// DeleteInstance removes an instance from tracking.
func (r *Runtime) DeleteInstance(instanceID string) {
	r.instances.Delete(instanceID)
}

// InstanceCount returns the number of tracked instances.
func (r *Runtime) InstanceCount() int {
	n := 0
	r.instances.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// IsClosed returns whether the runtime has been closed.
func (r *Runtime) IsClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
