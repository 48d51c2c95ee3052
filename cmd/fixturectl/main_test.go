package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm/wasmtest"
	"github.com/woxQAQ/wasm-guest-fixture/pkg/report"
)

// writeWorkspace creates one reference fixture and a config file pointing at
// it, and returns the config path.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "fixtures", "reference")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	manifest := `name: reference
version: 1.0.0
toolchain: rust
wasm:
  file: fixture.wasm
exports: [memory, BUFFER, malloc, free, byte, set_byte, fibonacci, endless_loop, to_lower_case, buffer_byte, abort]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixture.wasm"), wasmtest.Fixture(), 0o644))

	cfg := fmt.Sprintf("fixture_paths:\n  - %s\nlog_level: error\nwasm:\n  call_budget: 5s\n",
		filepath.Join(base, "fixtures"))
	cfgPath := filepath.Join(base, "fixturectl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"20", "0x10", "0b11", "0o17"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{20, 16, 3, 15}, params)

	_, err = parseParams([]string{"1", "-1"})
	assert.ErrorContains(t, err, "argument 2")
}

func TestRenderSummary(t *testing.T) {
	var s report.Summary
	s.Fixture = "reference"
	s.Add(report.Result{Name: "P1 fibonacci", Status: report.StatusPassed, Duration: time.Millisecond})
	s.Add(report.Result{Name: "S6 panic", Status: report.StatusFailed, Detail: "no location", Signals: []string{"panicked at x.go:1:\n"}})

	out := renderSummary(&s)
	for _, want := range []string{"Fixture reference", "P1 fibonacci", "S6 panic", "no location", "1 passed", "1 failed", "0 skipped"} {
		assert.Contains(t, out, want)
	}
}

func TestCheckCommandJSON(t *testing.T) {
	cfgPath := writeWorkspace(t)

	out, err := execute(t, "check", "--config", cfgPath, "--json")
	require.NoError(t, err)

	var summary report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "reference", summary.Fixture)
	assert.Equal(t, 13, summary.Passed)
	assert.Zero(t, summary.Failed)
}

func TestCheckCommandTable(t *testing.T) {
	cfgPath := writeWorkspace(t)

	out, err := execute(t, "check", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "13 passed")
}

func TestCheckCommandUnknownFixture(t *testing.T) {
	cfgPath := writeWorkspace(t)

	_, err := execute(t, "check", "--config", cfgPath, "--fixture", "missing")
	assert.ErrorContains(t, err, "missing")
}

func TestCallCommand(t *testing.T) {
	cfgPath := writeWorkspace(t)

	out, err := execute(t, "call", "fibonacci", "15", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "result[0] = 987")
	assert.Contains(t, out, "state running")
}

func TestCallCommandInput(t *testing.T) {
	cfgPath := writeWorkspace(t)

	out, err := execute(t, "call", "to_lower_case", "--input", "HELLO, World!", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, `BUFFER = "hello, world!"`)
}

func TestCallCommandPanic(t *testing.T) {
	cfgPath := writeWorkspace(t)

	out, err := execute(t, "call", "buffer_byte", "70000", "--budget", "100ms", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, out, "panicked at fixture.wat:42:")
	assert.Contains(t, out, "state panicked")
}

func TestCallCommandBadArgument(t *testing.T) {
	_, err := execute(t, "call", "fibonacci", "ten")
	assert.ErrorContains(t, err, "argument 1")
}

func TestInspectCommand(t *testing.T) {
	cfgPath := writeWorkspace(t)

	out, err := execute(t, "inspect", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "reference 1.0.0 (rust)")
	assert.Contains(t, out, "env.sig")
	assert.Contains(t, out, "(i64) -> ()")
	assert.Contains(t, out, "(i32) -> (i32)")
}

func TestInspectCommandJSON(t *testing.T) {
	cfgPath := writeWorkspace(t)

	out, err := execute(t, "inspect", "--all", "--json", "--config", cfgPath)
	require.NoError(t, err)

	var result []inspection
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result, 1)
	assert.Equal(t, "reference", result[0].Name)
	assert.Equal(t, []string{"memory"}, result[0].Module.Memories)

	var names []string
	for _, fn := range result[0].Module.Exports {
		names = append(names, fn.Name)
	}
	assert.Contains(t, names, "fibonacci")
	assert.True(t, strings.Contains(strings.Join(names, ","), "to_lower_case"))
}

func TestNegativeBudgetRejected(t *testing.T) {
	cfgPath := writeWorkspace(t)

	_, err := execute(t, "check", "--config", cfgPath, "--budget", "-1s")
	assert.ErrorContains(t, err, "budget")
}
