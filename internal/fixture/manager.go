package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-guest-fixture/internal/config"
	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm"
)

// Manager manages fixture lifecycle.
type Manager struct {
	cfg         *config.Config
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new fixture manager.
func NewManager(
	cfg *config.Config,
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctionsImpl,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, hostFuncs, logger),
		logger:      logger.With(zap.String("component", "fixture-manager")),
	}
}

// LoadAll discovers and loads all fixtures from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("fixtures already loaded")
	}

	m.logger.Info("Loading fixtures",
		zap.Strings("paths", m.cfg.FixturePaths),
	)

	fixtures, err := m.loader.DiscoverFixtures(ctx, m.cfg.FixturePaths)
	if err != nil {
		var none *NoFixturesFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No fixtures found in configured paths",
				zap.Strings("paths", m.cfg.FixturePaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, fixture := range fixtures {
		if err := m.registry.Register(fixture); err != nil {
			m.logger.Error("Failed to register fixture",
				zap.String("name", fixture.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Fixtures loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// LoadDir loads one fixture directory and registers it.
func (m *Manager) LoadDir(ctx context.Context, dir string) (*Fixture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fixture, err := m.loader.LoadFixture(ctx, dir)
	if err != nil {
		return nil, err
	}
	if err := m.registry.Register(fixture); err != nil {
		return nil, err
	}
	return fixture, nil
}

// GetFixture retrieves a fixture by name.
func (m *Manager) GetFixture(name string) (*Fixture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fixture, ok := m.registry.Get(name)
	if !ok {
		return nil, &FixtureNotFoundError{FixtureName: name}
	}

	return fixture, nil
}

// Default returns the configured fixture, or the only loaded one.
func (m *Manager) Default() (*Fixture, error) {
	if m.cfg.Fixture != "" {
		return m.GetFixture(m.cfg.Fixture)
	}

	fixtures := m.registry.List()
	switch len(fixtures) {
	case 0:
		return nil, &NoFixturesFoundError{Paths: m.cfg.FixturePaths}
	case 1:
		return fixtures[0], nil
	}
	return nil, fmt.Errorf("%d fixtures loaded, select one by name", len(fixtures))
}

// FindFixtureForToolchain finds a fixture built with a toolchain.
func (m *Manager) FindFixtureForToolchain(toolchain string) (*Fixture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fixtures := m.registry.LookupByToolchain(toolchain)
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture found for toolchain '%s'", toolchain)
	}

	return fixtures[0], nil
}

// Instantiate creates a new instance of a fixture. The manifest budget, when
// set, overrides the runtime's.
func (m *Manager) Instantiate(ctx context.Context, fixtureName string) (*wasm.Instance, error) {
	return m.InstantiateWithBudget(ctx, fixtureName, 0)
}

// InstantiateWithBudget creates an instance whose calls run under budget.
// Zero falls back to the manifest budget, then the runtime's.
func (m *Manager) InstantiateWithBudget(ctx context.Context, fixtureName string, budget time.Duration) (*wasm.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fixture, ok := m.registry.Get(fixtureName)
	if !ok {
		return nil, &FixtureNotFoundError{FixtureName: fixtureName}
	}

	if budget == 0 {
		budget = fixture.Budget()
	}

	return m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: fixture.Compiled.Name,
		Budget:     budget,
	})
}

// Shutdown gracefully shuts down all fixtures.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down fixture manager")

	// Runtime close handles instance cleanup
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Fixture manager shutdown complete")
	return nil
}

// Registry returns the fixture registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether fixtures have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
