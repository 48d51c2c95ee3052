package wasm

import (
	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// SharedBuffer is the guest's BUFFER region. Offsets are relative to the
// start of the buffer and every access is bounds-checked against its size.
type SharedBuffer struct {
	inst *Instance
	addr uint32
}

// Addr returns the buffer's offset in linear memory.
func (b *SharedBuffer) Addr() uint32 {
	return b.addr
}

// Size returns the buffer size in bytes.
func (b *SharedBuffer) Size() uint32 {
	return abi.BufferSize
}

// FatPtr returns a FatPtr naming length bytes of the buffer from offset.
func (b *SharedBuffer) FatPtr(offset, length uint32) abi.FatPtr {
	return abi.NewFatPtr(b.addr+offset, length)
}

func (b *SharedBuffer) check(op string, offset, length uint32) error {
	if uint64(offset)+uint64(length) > abi.BufferSize {
		return &MemoryAccessError{Operation: op, Address: b.addr + offset, Length: length}
	}
	return nil
}

// Read copies length bytes from offset.
func (b *SharedBuffer) Read(offset, length uint32) ([]byte, error) {
	if err := b.check("buffer read", offset, length); err != nil {
		return nil, err
	}
	return b.inst.ReadAllocation(Allocation{Ptr: b.addr + offset, Cap: length})
}

// Write copies data to offset.
func (b *SharedBuffer) Write(offset uint32, data []byte) error {
	if err := b.check("buffer write", offset, uint32(len(data))); err != nil {
		return err
	}
	return b.inst.withMemory(func(m *Memory) error {
		return m.WriteBytes(b.addr+offset, data)
	})
}

// WriteCString writes s followed by a NUL at offset 0.
func (b *SharedBuffer) WriteCString(s string) error {
	data := make([]byte, len(s)+1)
	copy(data, s)
	if uint64(len(data)) > abi.BufferSize {
		return &MemoryAccessError{Operation: "buffer write", Address: b.addr, Length: uint32(len(data))}
	}
	return b.Write(0, data)
}

// ReadCString reads from offset 0 up to the first NUL or the end of the
// buffer.
func (b *SharedBuffer) ReadCString() (string, error) {
	var s string
	err := b.inst.withMemory(func(m *Memory) error {
		var ok bool
		if s, ok = m.ReadString(b.addr, abi.BufferSize); !ok {
			return &MemoryAccessError{Operation: "buffer read", Address: b.addr, Length: abi.BufferSize}
		}
		return nil
	})
	return s, err
}

// Bytes copies the whole buffer.
func (b *SharedBuffer) Bytes() ([]byte, error) {
	return b.Read(0, abi.BufferSize)
}
