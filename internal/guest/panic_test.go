package guest

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

func TestPanicMessageTruncates(t *testing.T) {
	var m PanicMessage
	long := strings.Repeat("x", abi.PanicMessageSize+100)

	n, err := m.WriteString(long)
	require.NoError(t, err)
	assert.Equal(t, len(long), n)
	assert.Equal(t, abi.PanicMessageSize, m.Len())
	assert.True(t, m.Truncated())

	// Writes after the scratch is full are dropped.
	m.WriteString("tail")
	require.NoError(t, m.WriteByte('!'))
	assert.Equal(t, long[:abi.PanicMessageSize], m.String())
}

func TestPanicMessageKeepsPrefix(t *testing.T) {
	var m PanicMessage
	m.WriteString("head ")
	m.Write([]byte(strings.Repeat("y", abi.PanicMessageSize)))
	assert.True(t, strings.HasPrefix(m.String(), "head y"))
	assert.Len(t, m.Bytes(), abi.PanicMessageSize)
}

func TestPanicMessageTrimsSplitRune(t *testing.T) {
	var m PanicMessage
	m.WriteString(strings.Repeat("a", abi.PanicMessageSize-1))
	m.WriteString("é")

	b := m.Bytes()
	assert.True(t, utf8.Valid(b))
	assert.Len(t, b, abi.PanicMessageSize-1)
}

func TestPanicMessageFallback(t *testing.T) {
	var m PanicMessage
	m.WriteString("bad \xff bytes")
	assert.Equal(t, FallbackText, m.String())
}

func TestFormatPanic(t *testing.T) {
	tests := []struct {
		name  string
		value any
		file  string
		line  int
		want  string
	}{
		{
			name:  "string",
			value: "boom",
			file:  "cmd/fixture/exports.go",
			line:  42,
			want:  "panicked at cmd/fixture/exports.go:42:\nboom\n",
		},
		{
			name:  "unknown location",
			value: "boom",
			want:  "panicked at <unknown>:\nboom\n",
		},
		{
			name:  "error value is not rendered",
			value: errors.New("user error"),
			file:  "a.go",
			line:  1,
			want:  "panicked at a.go:1:\nnon-string panic value\n",
		},
		{
			name:  "line zero",
			value: "x",
			file:  "a.go",
			want:  "panicked at a.go:0:\nx\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m PanicMessage
			FormatPanic(&m, tt.value, tt.file, tt.line)
			assert.Equal(t, tt.want, m.String())
		})
	}
}

//go:noinline
func explode() {
	panic("boom")
}

//go:noinline
func indexOutOfRange(b []byte, i int) byte {
	return b[i]
}

func recoverSite(fn func()) (value any, file string, line int) {
	func() {
		defer func() {
			value = recover()
			file, line = PanicSite()
		}()
		fn()
	}()
	return value, file, line
}

func TestPanicSite(t *testing.T) {
	value, file, line := recoverSite(explode)
	assert.Equal(t, "boom", value)
	assert.Equal(t, "panic_test.go", filepath.Base(file))
	assert.Positive(t, line)
}

func TestPanicSiteRuntimeError(t *testing.T) {
	value, file, line := recoverSite(func() { indexOutOfRange(make([]byte, 4), 7) })
	require.NotNil(t, value)
	assert.Equal(t, "panic_test.go", filepath.Base(file))
	assert.Positive(t, line)

	var m PanicMessage
	FormatPanic(&m, value, file, line)
	assert.Contains(t, m.String(), "panicked at ")
	assert.Contains(t, m.String(), "index out of range [7] with length 4")
}

func TestPanicSiteOutsidePanic(t *testing.T) {
	file, line := PanicSite()
	assert.Empty(t, file)
	assert.Zero(t, line)
}

func TestFormatPanicAllocations(t *testing.T) {
	outOfRange, _, _ := recoverSite(func() { indexOutOfRange(make([]byte, 4), 7) })
	_, ok := outOfRange.(runtime.Error)
	require.True(t, ok, "want a runtime.Error, got %T", outOfRange)

	userErr := errors.New("user error")

	var m PanicMessage
	format := func(value any) func() {
		return func() {
			m = PanicMessage{}
			FormatPanic(&m, value, "cmd/fixture/exports_wasip1.go", 42)
			_ = m.Payload()
		}
	}

	assert.Zero(t, testing.AllocsPerRun(100, format("boom")), "string value")
	assert.Zero(t, testing.AllocsPerRun(100, format(userErr)), "non-string value")

	// The runtime builds its own error text; that string is the only
	// allocation on the path.
	assert.LessOrEqual(t, testing.AllocsPerRun(100, format(outOfRange)), float64(1), "runtime.Error value")
}
