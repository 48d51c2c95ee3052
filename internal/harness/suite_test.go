package harness

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm"
	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm/wasmtest"
	"github.com/woxQAQ/wasm-guest-fixture/pkg/report"
)

// spawnerFor compiles wasmBytes into a fresh runtime and returns a Spawner
// over it.
func spawnerFor(t *testing.T, wasmBytes []byte) Spawner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := wasm.NewRuntime(ctx, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { runtime.Close(context.Background()) })

	_, err = wasm.NewModuleLoader(runtime, logger).LoadModuleFromMemory(ctx, "fixture", wasmBytes)
	require.NoError(t, err)

	manager := wasm.NewInstanceManager(runtime, wasm.NewHostFunctions(logger), logger)
	return func(ctx context.Context, budget time.Duration) (*wasm.Instance, error) {
		if budget == 0 {
			budget = 10 * time.Second
		}
		return manager.Instantiate(ctx, &wasm.InstanceConfig{ModuleName: "fixture", Budget: budget})
	}
}

func runSuite(t *testing.T, wasmBytes []byte) *report.Summary {
	t.Helper()
	suite := NewSuite("reference", spawnerFor(t, wasmBytes), DefaultSuiteConfig(), zaptest.NewLogger(t))
	summary, err := suite.Run(context.Background())
	require.NoError(t, err)
	return summary
}

func TestReferenceFibonacci(t *testing.T) {
	tests := map[uint32]uint32{0: 1, 1: 1, 2: 2, 10: 89, 15: 987, 20: 10946, 30: 1346269}
	for n, want := range tests {
		assert.Equal(t, want, ReferenceFibonacci(n), "fib(%d)", n)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	require.Len(t, names, 13)
	assert.True(t, strings.HasPrefix(names[0], "P1 "))
	assert.True(t, strings.HasPrefix(names[len(names)-1], "S6 "))
}

func TestSuite_ReferenceFixturePasses(t *testing.T) {
	summary := runSuite(t, wasmtest.Fixture())

	for _, r := range summary.Results {
		assert.Equal(t, report.StatusPassed, r.Status, "%s: %s", r.Name, r.Detail)
	}
	assert.Equal(t, "reference", summary.Fixture)
	assert.Equal(t, 13, summary.Passed)
	assert.True(t, summary.OK())

	var panicChecks int
	for _, r := range summary.Results {
		if strings.HasPrefix(r.Name, "P7 ") || strings.HasPrefix(r.Name, "S6 ") {
			panicChecks++
			assert.Equal(t, []string{wasmtest.PanicText}, r.Signals, r.Name)
		} else {
			assert.Empty(t, r.Signals, r.Name)
		}
	}
	assert.Equal(t, 2, panicChecks)
}

func TestSuite_BufferFunctionForm(t *testing.T) {
	summary := runSuite(t, wasmtest.FixtureWith(wasmtest.Options{BufferFunction: true}))
	assert.Equal(t, 13, summary.Passed)
}

func TestSuite_SkipsMissingVariants(t *testing.T) {
	summary := runSuite(t, wasmtest.FixtureWith(wasmtest.Options{OmitVariants: true}))

	assert.Equal(t, 11, summary.Passed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, summary.Failed)
	for _, r := range summary.Results {
		if r.Status == report.StatusSkipped {
			assert.Contains(t, r.Detail, "buffer_byte")
		}
	}
}

func TestSuite_SilentPanicFails(t *testing.T) {
	// Without env.sig the parked guest is only a timeout.
	summary := runSuite(t, wasmtest.FixtureWith(wasmtest.Options{OmitSig: true}))

	assert.Equal(t, 2, summary.Failed)
	assert.False(t, summary.OK())
	for _, r := range summary.Results {
		if r.Status == report.StatusFailed {
			assert.Contains(t, r.Detail, "want a panic")
		}
	}
}

func TestSuite_LowerCaseWritingPastNULFails(t *testing.T) {
	summary := runSuite(t, wasmtest.FixtureWith(wasmtest.Options{ClobberTail: true}))

	failed := map[string]bool{}
	for _, r := range summary.Results {
		if r.Status == report.StatusFailed {
			failed[r.Name] = true
			assert.Contains(t, r.Detail, "offset 65535", r.Name)
		}
	}
	assert.Equal(t, map[string]bool{
		"P5 to_lower_case only touches A-Z before the first NUL": true,
		"S1 mixed text lower-cases up to the NUL":                true,
		"S2 empty text is unchanged":                             true,
		"S3 a full buffer of A lower-cases entirely":             true,
	}, failed)

	idempotent, ok := summary.Get("P4 to_lower_case is idempotent")
	require.True(t, ok)
	assert.Equal(t, report.StatusPassed, idempotent.Status)
}

func TestSuite_SpawnError(t *testing.T) {
	spawnErr := errors.New("no runtime")
	suite := NewSuite("broken", func(context.Context, time.Duration) (*wasm.Instance, error) {
		return nil, spawnErr
	}, DefaultSuiteConfig(), zaptest.NewLogger(t))

	summary, err := suite.Run(context.Background())
	require.ErrorIs(t, err, spawnErr)
	assert.Empty(t, summary.Results)
}

func TestSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	suite := NewSuite("reference", spawnerFor(t, wasmtest.Fixture()), DefaultSuiteConfig(), zaptest.NewLogger(t))
	_, err := suite.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
