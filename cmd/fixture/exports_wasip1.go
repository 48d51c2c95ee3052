package main

import (
	"unsafe"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
	"github.com/woxQAQ/wasm-guest-fixture/internal/guest"
)

// heapSize is the size of the region malloc hands out.
const heapSize = 4 << 20

var (
	buffer [abi.BufferSize]byte
	heap   [heapSize]byte

	arena = guest.NewArena(heap[:], offsetOf(&heap[0]))
)

func offsetOf(p *byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(p)))
}

//go:wasmexport BUFFER
func bufferOffset() uint32 {
	return offsetOf(&buffer[0])
}

//go:wasmexport malloc
func malloc(capacity uint32) uint32 {
	return arena.Alloc(capacity)
}

//go:wasmexport free
func free(ptr, capacity uint32) {
	arena.Free(ptr, capacity)
}

// rawPointer turns a linear-memory offset into a pointer. Deriving it from a
// global keeps the compiler from inserting a nil check, so offset 0 is an
// ordinary address and out-of-range offsets trap in the engine.
func rawPointer(ptr uint32) *byte {
	base := unsafe.Pointer(&buffer[0])
	return (*byte)(unsafe.Add(base, int(ptr)-int(bufferOffset())))
}

//go:wasmexport byte
func loadByte(ptr uint32) uint32 {
	defer guard()
	return uint32(*rawPointer(ptr))
}

//go:wasmexport set_byte
func storeByte(ptr, value uint32) {
	defer guard()
	*rawPointer(ptr) = byte(value)
}

//go:wasmexport fibonacci
func fibonacci(n uint32) uint32 {
	defer guard()
	return guest.Fibonacci(n)
}

//go:wasmexport endless_loop
func endlessLoop() {
	for {
	}
}

//go:wasmexport to_lower_case
func toLowerCase() {
	defer guard()
	guest.ToLowerCase(buffer[:])
}

//go:wasmexport buffer_byte
func bufferByte(offset uint32) uint32 {
	defer guard()
	return uint32(buffer[offset])
}

//go:wasmexport abort
func abort() {
	guest.Trap("abort")
}

// guard is the panic handler. It formats the panic into a stack scratch,
// signals it to the host and parks. Faults are re-raised so the runtime
// terminates the instance instead.
func guard() {
	v := recover()
	if v == nil {
		return
	}
	if f, ok := v.(guest.Fault); ok {
		panic(f)
	}

	var m guest.PanicMessage
	file, line := guest.PanicSite()
	guest.FormatPanic(&m, v, file, line)

	p := m.Payload()
	sig(uint64(abi.NewFatPtr(offsetOf(unsafe.SliceData(p)), uint32(len(p)))))
	for {
	}
}
