package fixture

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry manages loaded fixtures.
type Registry struct {
	sync.RWMutex
	fixtures    map[string]*Fixture   // name -> fixture
	byToolchain map[string][]*Fixture // toolchain -> fixtures
	logger      *zap.Logger
}

// NewRegistry creates a new fixture registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		fixtures:    make(map[string]*Fixture),
		byToolchain: make(map[string][]*Fixture),
		logger:      logger.With(zap.String("component", "fixture-registry")),
	}
}

// Register adds a fixture to the registry.
func (r *Registry) Register(fixture *Fixture) error {
	r.Lock()
	defer r.Unlock()

	name := fixture.Manifest.Name

	if _, exists := r.fixtures[name]; exists {
		return &FixtureAlreadyRegisteredError{FixtureName: name}
	}

	r.fixtures[name] = fixture

	toolchain := fixture.Manifest.Toolchain
	r.byToolchain[toolchain] = append(r.byToolchain[toolchain], fixture)

	r.logger.Info("Fixture registered",
		zap.String("name", name),
		zap.String("toolchain", toolchain),
	)

	return nil
}

// Get retrieves a fixture by name.
func (r *Registry) Get(name string) (*Fixture, bool) {
	r.RLock()
	defer r.RUnlock()

	fixture, ok := r.fixtures[name]
	return fixture, ok
}

// LookupByToolchain finds fixtures built with a toolchain.
func (r *Registry) LookupByToolchain(toolchain string) []*Fixture {
	r.RLock()
	defer r.RUnlock()

	fixtures := r.byToolchain[toolchain]
	result := make([]*Fixture, len(fixtures))
	copy(result, fixtures)
	return result
}

// List returns all registered fixtures sorted by name.
func (r *Registry) List() []*Fixture {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Fixture, 0, len(r.fixtures))
	for _, fixture := range r.fixtures {
		result = append(result, fixture)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Unregister removes a fixture from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	fixture, ok := r.fixtures[name]
	if !ok {
		return
	}

	toolchain := fixture.Manifest.Toolchain
	fixtures := r.byToolchain[toolchain]
	for i, f := range fixtures {
		if f.Manifest.Name == name {
			r.byToolchain[toolchain] = append(fixtures[:i:i], fixtures[i+1:]...)
			break
		}
	}

	delete(r.fixtures, name)

	r.logger.Info("Fixture unregistered", zap.String("name", name))
}

// Count returns the number of registered fixtures.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.fixtures)
}
