package fixture

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm/wasmtest"
)

const validManifest = `name: %s
version: 1.0.0
toolchain: rust
description: reference fixture
wasm:
  file: fixture.wasm
exports: [memory, BUFFER, malloc, free, byte, set_byte, fibonacci, endless_loop, to_lower_case, buffer_byte, abort]
budget: 250ms
`

// writeFixture lays out a fixture directory under base and returns its path.
func writeFixture(t *testing.T, base, name, manifest string, wasmBytes []byte) string {
	t.Helper()
	dir := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644))
	if wasmBytes != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "fixture.wasm"), wasmBytes, 0o644))
	}
	return dir
}

func writeValidFixture(t *testing.T, base, name string) string {
	t.Helper()
	return writeFixture(t, base, name, fmt.Sprintf(validManifest, name), wasmtest.Fixture())
}
