package wasm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/experimental/wazerotest"
	"go.uber.org/zap/zaptest"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

func newSigModule(name string) (*wazerotest.Module, *wazerotest.Memory) {
	mem := wazerotest.NewMemory(abi.PageSize)
	mod := wazerotest.NewModule(mem)
	mod.ModuleName = name
	return mod, mem
}

func TestSigDeliversCopy(t *testing.T) {
	h := NewHostFunctions(zaptest.NewLogger(t))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.now = func() time.Time { return at }

	mod, mem := newSigModule("inst-1")
	box := h.register("inst-1")

	copy(mem.Bytes[100:], "panicked at a.go:1:\nboom\n")
	p := abi.NewFatPtr(100, 25)
	h.Sig(context.Background(), mod, uint64(p))

	// The guest reusing the range must not change what was delivered.
	copy(mem.Bytes[100:], "XXXXXXXXXXXXXXXXXXXXXXXXX")

	signals := box.since(0)
	require.Len(t, signals, 1)
	s := signals[0]
	assert.Equal(t, "inst-1", s.InstanceID)
	assert.Equal(t, "panicked at a.go:1:\nboom\n", s.Text)
	assert.Equal(t, []byte("panicked at a.go:1:\nboom\n"), s.Raw)
	assert.Equal(t, p, s.Ptr)
	assert.True(t, s.Valid)
	assert.Equal(t, at, s.At)
}

func TestSigEmptyMessage(t *testing.T) {
	h := NewHostFunctions(zaptest.NewLogger(t))
	mod, _ := newSigModule("inst-1")
	box := h.register("inst-1")

	h.Sig(context.Background(), mod, uint64(abi.NewFatPtr(0, 0)))

	signals := box.since(0)
	require.Len(t, signals, 1)
	assert.Empty(t, signals[0].Text)
	assert.True(t, signals[0].Valid)
}

func TestSigInvalidUTF8(t *testing.T) {
	h := NewHostFunctions(zaptest.NewLogger(t))
	mod, mem := newSigModule("inst-1")
	box := h.register("inst-1")

	copy(mem.Bytes, []byte{'o', 'k', 0xff, 0xfe})
	h.Sig(context.Background(), mod, uint64(abi.NewFatPtr(0, 4)))

	signals := box.since(0)
	require.Len(t, signals, 1)
	assert.False(t, signals[0].Valid)
	assert.Equal(t, FallbackSignalText, signals[0].Text)
	assert.Equal(t, []byte{'o', 'k', 0xff, 0xfe}, signals[0].Raw)
}

func TestSigOutOfRangeIsDropped(t *testing.T) {
	h := NewHostFunctions(zaptest.NewLogger(t))
	mod, _ := newSigModule("inst-1")
	box := h.register("inst-1")

	h.Sig(context.Background(), mod, uint64(abi.NewFatPtr(abi.PageSize-4, 8)))
	h.Sig(context.Background(), mod, uint64(abi.NewFatPtr(0xffff_fff0, 0xffff)))

	assert.Zero(t, box.len())
}

func TestSigRoutesByInstance(t *testing.T) {
	h := NewHostFunctions(zaptest.NewLogger(t))
	modA, memA := newSigModule("a")
	modB, memB := newSigModule("b")
	boxA := h.register("a")
	boxB := h.register("b")

	copy(memA.Bytes, "from a")
	copy(memB.Bytes, "from b")
	h.Sig(context.Background(), modA, uint64(abi.NewFatPtr(0, 6)))
	h.Sig(context.Background(), modB, uint64(abi.NewFatPtr(0, 6)))
	h.Sig(context.Background(), modB, uint64(abi.NewFatPtr(0, 4)))

	require.Equal(t, 1, boxA.len())
	require.Equal(t, 2, boxB.len())
	assert.Equal(t, "from a", boxA.since(0)[0].Text)
	assert.Equal(t, "from", boxB.since(1)[0].Text)

	// Unregistered instances are dropped without panicking.
	h.unregister("a")
	h.Sig(context.Background(), modA, uint64(abi.NewFatPtr(0, 6)))
	assert.Equal(t, 1, boxA.len())
}

func TestInboxSince(t *testing.T) {
	var box inbox
	assert.Nil(t, box.since(0))

	box.push(Signal{Text: "one"})
	box.push(Signal{Text: "two"})

	got := box.since(1)
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].Text)
	assert.Nil(t, box.since(2))

	// Snapshots are copies.
	got[0].Text = "changed"
	assert.Equal(t, "two", box.since(1)[0].Text)
}
