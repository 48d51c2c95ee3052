package wasm

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// Memory copies bytes between the host and a guest's linear memory.
//
// Every read returns a copy: wazero's Read returns a view that is invalidated
// by the next memory.grow and mutated by the guest.
type Memory struct {
	mem api.Memory
}

// NewMemory creates a memory helper.
func NewMemory(module api.Module) *Memory {
	return &Memory{mem: module.Memory()}
}

// Size returns the current size of linear memory in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// ReadString reads up to maxLen bytes and stops at the first NUL.
func (m *Memory) ReadString(ptr uint32, maxLen uint32) (string, bool) {
	buf, ok := m.mem.Read(ptr, maxLen)
	if !ok {
		return "", false
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), true
}

// ReadBytes reads raw bytes from Wasm memory.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, bool) {
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	return bytes.Clone(buf), true
}

// ReadFatPtr reads the range a FatPtr names.
func (m *Memory) ReadFatPtr(p abi.FatPtr) ([]byte, bool) {
	return m.ReadBytes(p.Unpack())
}

// WriteBytes copies data into Wasm memory at ptr.
func (m *Memory) WriteBytes(ptr uint32, data []byte) error {
	if !m.mem.Write(ptr, data) {
		return &MemoryAccessError{Operation: "write", Address: ptr, Length: uint32(len(data))}
	}
	return nil
}

// WriteString copies s into Wasm memory at ptr, without a terminator.
func (m *Memory) WriteString(ptr uint32, s string) error {
	if !m.mem.WriteString(ptr, s) {
		return &MemoryAccessError{Operation: "write", Address: ptr, Length: uint32(len(s))}
	}
	return nil
}
