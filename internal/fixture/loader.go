package fixture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm"
)

// Loader handles loading fixtures from disk.
type Loader struct {
	runtime      *wasm.Runtime
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new fixture loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		runtime:      runtime,
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "fixture-loader")),
	}
}

// LoadFixture loads a single fixture from a directory and checks that the
// compiled module matches its manifest.
func (l *Loader) LoadFixture(ctx context.Context, dir string) (*Fixture, error) {
	l.logger.Debug("Loading fixture", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading fixture",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("toolchain", manifest.Toolchain),
	)

	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.WasmPath())
	if err != nil {
		return nil, &FixtureLoadError{
			FixtureName: manifest.Name,
			Err:         err,
		}
	}

	if err := checkABI(manifest, compiled); err != nil {
		return nil, &FixtureLoadError{
			FixtureName: manifest.Name,
			Err:         err,
		}
	}

	if kb := int((compiled.SizeBytes + 1023) / 1024); manifest.Wasm.Size > 0 && kb != manifest.Wasm.Size {
		l.logger.Warn("Wasm size differs from manifest",
			zap.String("name", manifest.Name),
			zap.Int("manifest_kb", manifest.Wasm.Size),
			zap.Int("actual_kb", kb),
		)
	}

	fixture := &Fixture{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Fixture loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
	)

	return fixture, nil
}

// checkABI verifies the declared exports and the env.sig import. BUFFER may
// be a global, which a compiled module does not describe, so only its
// function form is required to match.
func checkABI(m *Manifest, compiled *wasm.CompiledModule) error {
	if !compiled.ImportsFunction(abi.ImportModule, abi.ImportSig) {
		return &MissingImportError{FixtureName: m.Name, Module: abi.ImportModule, Name: abi.ImportSig}
	}

	info := compiled.Inspect()
	for _, name := range m.Exports {
		switch name {
		case abi.ExportBuffer:
			continue
		case abi.ExportMemory:
			if !slices.Contains(info.Memories, name) {
				return &MissingExportError{FixtureName: m.Name, Export: name}
			}
		default:
			if !compiled.ExportsFunction(name) {
				return &MissingExportError{FixtureName: m.Name, Export: name}
			}
		}
	}
	return nil
}

// DiscoverFixtures scans directories for fixtures. Each subdirectory holding
// a manifest is one fixture.
func (l *Loader) DiscoverFixtures(ctx context.Context, paths []string) ([]*Fixture, error) {
	var fixtures []*Fixture
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning fixture directory", zap.String("path", basePath))

		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Fixture path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			fixtureDir := filepath.Join(basePath, entry.Name())

			fixture, err := l.LoadFixture(ctx, fixtureDir)
			if err != nil {
				l.logger.Error("Failed to load fixture",
					zap.String("dir", fixtureDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			fixtures = append(fixtures, fixture)
		}
	}

	if len(fixtures) > 0 && len(errs) > 0 {
		l.logger.Warn("Some fixtures failed to load",
			zap.Int("loaded", len(fixtures)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(fixtures) == 0 {
		return nil, &NoFixturesFoundError{Paths: paths}
	}

	return fixtures, nil
}
