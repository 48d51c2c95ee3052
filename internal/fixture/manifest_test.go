package fixture

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm/wasmtest"
)

func TestParseManifest_Valid(t *testing.T) {
	dir := writeValidFixture(t, t.TempDir(), "reference")

	m, err := ParseManifest(dir)
	require.NoError(t, err)

	assert.Equal(t, "reference", m.Name)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, "rust", m.Toolchain)
	assert.Equal(t, "fixture.wasm", m.Wasm.File)
	assert.Equal(t, 250*time.Millisecond, m.Budget)
	assert.Len(t, m.Exports, 11)
	assert.Equal(t, dir, m.Dir())
}

func TestParseManifest_DefaultExports(t *testing.T) {
	manifest := `name: minimal
version: 0.1.0
toolchain: go
wasm:
  file: fixture.wasm
`
	dir := writeFixture(t, t.TempDir(), "minimal", manifest, wasmtest.Fixture())

	m, err := ParseManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, abi.RequiredExports, m.Exports)
	assert.Zero(t, m.Budget)
}

func TestParseManifest_NotFound(t *testing.T) {
	_, err := ParseManifest(t.TempDir())

	var notFound *ManifestNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	dir := writeFixture(t, t.TempDir(), "broken", "name: [unterminated\n", nil)

	_, err := ParseManifest(dir)

	var parseErr *ManifestParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseManifest_Validation(t *testing.T) {
	const base = `name: %s
version: %s
toolchain: %s
wasm:
  file: fixture.wasm
`
	tests := []struct {
		name     string
		manifest string
		field    string
	}{
		{"missing name", fmt.Sprintf(base, `""`, "1.0.0", "go"), "name"},
		{"missing version", fmt.Sprintf(base, "x", `""`, "go"), "version"},
		{"unknown toolchain", fmt.Sprintf(base, "x", "1.0.0", "zig"), "toolchain"},
		{"negative budget", fmt.Sprintf(base, "x", "1.0.0", "go") + "budget: -1s\n", "budget"},
		{"unknown export", fmt.Sprintf(base, "x", "1.0.0", "go") + "exports: [memory, BUFFER, malloc, free, byte, set_byte, fibonacci, endless_loop, to_lower_case, frobnicate]\n", "exports"},
		{"duplicate export", fmt.Sprintf(base, "x", "1.0.0", "go") + "exports: [memory, BUFFER, malloc, malloc, free, byte, set_byte, fibonacci, endless_loop, to_lower_case]\n", "exports"},
		{"required export missing", fmt.Sprintf(base, "x", "1.0.0", "go") + "exports: [memory, BUFFER, malloc, free]\n", "exports"},
		{"missing wasm file", "name: x\nversion: 1.0.0\ntoolchain: go\n", "wasm.file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFixture(t, t.TempDir(), "x", tt.manifest, wasmtest.Fixture())

			_, err := ParseManifest(dir)

			var validation *ManifestValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.field, validation.Field)
		})
	}
}

func TestParseManifest_WasmNotFound(t *testing.T) {
	dir := writeFixture(t, t.TempDir(), "nowasm", fmt.Sprintf(validManifest, "nowasm"), nil)

	_, err := ParseManifest(dir)

	var notFound *WasmNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "fixture.wasm", notFound.WasmFile)
}
