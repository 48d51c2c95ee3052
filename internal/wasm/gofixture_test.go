package wasm

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// goFixture loads the guest built from cmd/fixture. Build it with
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o testdata/fixture.wasm ./cmd/fixture
func goFixture(t *testing.T, budget time.Duration) *Instance {
	t.Helper()
	path := os.Getenv("FIXTURE_WASM")
	if path == "" {
		path = "../../testdata/fixture.wasm"
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.Skipf("Go fixture not built at %s", path)
	}
	require.NoError(t, err)
	return newFixtureEnv(t, nil).instantiate(t, data, budget)
}

func TestGoFixtureCompute(t *testing.T) {
	inst := goFixture(t, 30*time.Second)
	ctx := context.Background()

	for n, want := range map[uint32]uint32{0: 1, 1: 1, 10: 89, 15: 987, 20: 10946} {
		got, err := inst.Fibonacci(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, want, got, "fibonacci(%d)", n)
	}

	buf, err := inst.Buffer()
	require.NoError(t, err)
	require.NoError(t, buf.Write(0, []byte("HELLO, World!\x00KEEP")))
	require.NoError(t, inst.ToLowerCase(ctx))
	got, err := buf.Read(0, 18)
	require.NoError(t, err)
	assert.Equal(t, "hello, world!\x00KEEP", string(got))
}

func TestGoFixtureAllocator(t *testing.T) {
	inst := goFixture(t, testBudget)
	ctx := context.Background()

	a, err := inst.WriteBytes(ctx, []byte("round trip"))
	require.NoError(t, err)
	v, err := inst.Byte(ctx, a.Ptr)
	require.NoError(t, err)
	assert.Equal(t, byte('r'), v)
	require.NoError(t, inst.SetByte(ctx, a.Ptr, 'R'))
	data, err := inst.ReadAllocation(a)
	require.NoError(t, err)
	assert.Equal(t, "Round trip", string(data))
	require.NoError(t, inst.Release(ctx, a))

	again, err := inst.Malloc(ctx, a.Cap)
	require.NoError(t, err)
	assert.Equal(t, a.Ptr, again)
}

func TestGoFixtureDoubleFreeTraps(t *testing.T) {
	inst := goFixture(t, testBudget)
	ctx := context.Background()

	p, err := inst.Malloc(ctx, 16)
	require.NoError(t, err)
	_, err = inst.Malloc(ctx, 16)
	require.NoError(t, err)
	require.NoError(t, inst.Free(ctx, p, 16))

	err = inst.Free(ctx, p, 16)
	var trap *TrapError
	require.ErrorAs(t, err, &trap)
	assert.Empty(t, inst.Signals())
}

func TestGoFixturePanic(t *testing.T) {
	inst := goFixture(t, 200*time.Millisecond)

	_, err := inst.BufferByte(context.Background(), abi.BufferSize+4464)
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Contains(t, panicErr.Message, "panicked at ")
	assert.Contains(t, panicErr.Message, "exports_wasip1.go:")
	assert.Contains(t, panicErr.Message, "index out of range [70000] with length 65536")
	assert.Equal(t, StatePanicked, inst.State())
}

func TestGoFixtureEndlessLoop(t *testing.T) {
	inst := goFixture(t, 10*time.Millisecond)

	var timeout *TimeoutError
	require.ErrorAs(t, inst.EndlessLoop(context.Background()), &timeout)
	assert.Empty(t, inst.Signals())
}

func TestGoFixtureByteAtOffsetZero(t *testing.T) {
	inst := goFixture(t, testBudget)
	ctx := context.Background()

	orig, err := inst.Byte(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, inst.SetByte(ctx, 0, orig^0x5a))

	got, err := inst.Byte(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, orig^0x5a, got)
	require.NoError(t, inst.SetByte(ctx, 0, orig))

	assert.Empty(t, inst.Signals())
	assert.Equal(t, StateRunning, inst.State())
}

func TestGoFixtureByteOutOfMemoryTraps(t *testing.T) {
	inst := goFixture(t, testBudget)

	mem, err := inst.Memory()
	require.NoError(t, err)
	_, err = inst.Byte(context.Background(), mem.Size())

	var trap *TrapError
	require.ErrorAs(t, err, &trap)
	assert.Empty(t, inst.Signals())
	assert.Equal(t, StateTerminated, inst.State())
}
