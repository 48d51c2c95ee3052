package guest

import (
	"runtime"
	"strings"
	"unicode/utf8"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// FallbackText is signalled instead of a panic message whose retained prefix
// is not valid UTF-8.
const FallbackText = "panic message is not valid UTF-8"

var fallbackBytes = []byte(FallbackText)

// Fault is the panic value raised by Trap. Export glue must never turn a
// Fault into a signalled panic.
type Fault string

func (f Fault) Error() string {
	return "trap: " + string(f)
}

// Trap aborts the guest. It panics with a Fault, which the export glue lets
// escape so the runtime terminates the instance.
func Trap(reason string) {
	panic(Fault(reason))
}

// PanicMessage is a fixed-size scratch for formatting a panic message without
// touching the heap. Writes past the capacity are dropped; the prefix already
// written is kept.
type PanicMessage struct {
	buf       [abi.PanicMessageSize]byte
	off       int
	truncated bool
}

// Write appends p, dropping whatever does not fit. It always reports the full
// length so formatters keep going.
func (m *PanicMessage) Write(p []byte) (int, error) {
	n := copy(m.buf[m.off:], p)
	m.off += n
	if n < len(p) {
		m.truncated = true
	}
	return len(p), nil
}

// WriteString is Write for strings.
func (m *PanicMessage) WriteString(s string) (int, error) {
	n := copy(m.buf[m.off:], s)
	m.off += n
	if n < len(s) {
		m.truncated = true
	}
	return len(s), nil
}

// WriteByte appends c if there is room.
func (m *PanicMessage) WriteByte(c byte) error {
	if m.off == len(m.buf) {
		m.truncated = true
		return nil
	}
	m.buf[m.off] = c
	m.off++
	return nil
}

func (m *PanicMessage) writeUint(v uint64) {
	var digits [20]byte
	i := len(digits)
	for {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	m.Write(digits[i:])
}

// Len returns the number of bytes kept.
func (m *PanicMessage) Len() int {
	return m.off
}

// Truncated reports whether any write was cut short.
func (m *PanicMessage) Truncated() bool {
	return m.truncated
}

// Bytes returns the kept prefix. When truncation split a multi-byte UTF-8
// sequence, the partial sequence is left out.
func (m *PanicMessage) Bytes() []byte {
	b := m.buf[:m.off]
	if !m.truncated || utf8.Valid(b) {
		return b
	}
	for k := 1; k < utf8.UTFMax && k <= len(b); k++ {
		if utf8.Valid(b[:len(b)-k]) {
			return b[:len(b)-k]
		}
	}
	return b
}

// Payload returns what the panic handler signals: the kept prefix when it is
// valid UTF-8, FallbackText otherwise.
func (m *PanicMessage) Payload() []byte {
	if b := m.Bytes(); utf8.Valid(b) {
		return b
	}
	return fallbackBytes
}

// String returns the payload as a string.
func (m *PanicMessage) String() string {
	return string(m.Payload())
}

// FormatPanic writes
//
//	panicked at <file>:<line>:
//	<message>
//
// into m. Only string and runtime.Error values are rendered; anything else is
// described generically so no user-defined method runs on the panic path.
func FormatPanic(m *PanicMessage, value any, file string, line int) {
	m.WriteString("panicked at ")
	if file == "" {
		m.WriteString("<unknown>")
	} else {
		m.WriteString(file)
		m.WriteByte(':')
		m.writeUint(uint64(line))
	}
	m.WriteString(":\n")

	switch v := value.(type) {
	case string:
		m.WriteString(v)
	case runtime.Error:
		// The runtime formats bounds and nil errors into a fresh string. It
		// is the one heap allocation on this path.
		m.WriteString(v.Error())
	default:
		m.WriteString("non-string panic value")
	}
	m.WriteByte('\n')
}

// PanicSite returns the file and line of the code that started the current
// panic. It must be called, directly or indirectly, from a deferred function
// while the goroutine is panicking; otherwise it returns "", 0.
func PanicSite() (file string, line int) {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	panicking := false
	for {
		f, more := frames.Next()
		switch {
		case !panicking:
			panicking = f.Function == "runtime.gopanic"
		case !strings.HasPrefix(f.Function, "runtime."):
			return f.File, f.Line
		}
		if !more {
			return "", 0
		}
	}
}
