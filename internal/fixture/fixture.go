package fixture

import (
	"slices"
	"time"

	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm"
)

// Fixture is a loaded guest fixture: its manifest and compiled module.
type Fixture struct {
	// Manifest is the parsed fixture metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the fixture was loaded
	LoadedAt time.Time
}

// Name returns the fixture name.
func (f *Fixture) Name() string {
	return f.Manifest.Name
}

// Toolchain returns the toolchain the fixture was built with.
func (f *Fixture) Toolchain() string {
	return f.Manifest.Toolchain
}

// Version returns the fixture version.
func (f *Fixture) Version() string {
	return f.Manifest.Version
}

// Exports returns the ABI exports the fixture declares.
func (f *Fixture) Exports() []string {
	return f.Manifest.Exports
}

// Provides reports whether the fixture declares an export.
func (f *Fixture) Provides(export string) bool {
	return slices.Contains(f.Manifest.Exports, export)
}

// Budget returns the per-call budget the manifest asks for, or zero.
func (f *Fixture) Budget() time.Duration {
	return f.Manifest.Budget
}
