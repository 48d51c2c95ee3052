// Package wasmtest assembles WebAssembly fixtures for host tests without an
// external toolchain.
package wasmtest

import (
	"github.com/tetratelabs/wazero/api"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// Layout of the reference fixture's linear memory.
const (
	// PanicTextAddr is where the data segment holding the panic text lives.
	PanicTextAddr = 16
	// BufferAddr is the offset of BUFFER.
	BufferAddr = 1024
	// HeapBase is the first offset malloc hands out.
	HeapBase = BufferAddr + abi.BufferSize
	// MemoryPages is the initial memory size.
	MemoryPages = 3
)

// PanicText is what buffer_byte signals for an out-of-range offset.
const PanicText = "panicked at fixture.wat:42:\nbuffer_byte: offset out of range\n"

// Options selects fixture variants.
type Options struct {
	// BufferFunction exports BUFFER as a nullary function returning its
	// address, the way Go guests do, instead of as an i32 global.
	BufferFunction bool

	// OmitVariants drops buffer_byte and abort.
	OmitVariants bool

	// OmitSig drops the env.sig import. buffer_byte then parks without
	// signalling.
	OmitSig bool

	// ClobberTail makes to_lower_case also zero the last BUFFER byte, a
	// fault only a whole-buffer comparison notices.
	ClobberTail bool
}

// Fixture returns the reference fixture with both variant exports and an
// exported BUFFER global.
func Fixture() []byte {
	return FixtureWith(Options{})
}

// FixtureWith assembles the reference fixture.
//
// malloc is a bump allocator over the memory after BUFFER that grows memory
// on demand and traps on exhaustion. free traps on ranges that were never
// handed out and returns the most recent allocation to the bump pointer, so
// paired malloc/free in LIFO order restores the heap exactly. Memory handed
// out again is not zeroed.
func FixtureWith(opts Options) []byte {
	var b Builder

	i32 := api.ValueTypeI32
	tSig := b.Type([]api.ValueType{api.ValueTypeI64}, nil)
	tUnary := b.Type([]api.ValueType{i32}, []api.ValueType{i32})
	tBinary := b.Type([]api.ValueType{i32, i32}, nil)
	tVoid := b.Type(nil, nil)

	sig := ^uint32(0)
	if !opts.OmitSig {
		sig = b.ImportFunc(abi.ImportModule, abi.ImportSig, tSig)
	}

	b.Memory(MemoryPages)
	buffer := b.GlobalI32(false, BufferAddr)
	brk := b.GlobalI32(true, HeapBase)
	b.Data(PanicTextAddr, []byte(PanicText))

	b.ExportMemory(abi.ExportMemory)
	if opts.BufferFunction {
		fn := b.Func(b.Type(nil, []api.ValueType{i32}), nil, new(Asm).GlobalGet(buffer))
		b.ExportFunc(abi.ExportBuffer, fn)
	} else {
		b.ExportGlobal(abi.ExportBuffer, buffer)
	}

	b.ExportFunc(abi.ExportMalloc, b.Func(tUnary, []api.ValueType{i32, i32, i32, i32}, mallocBody(brk)))
	b.ExportFunc(abi.ExportFree, b.Func(tBinary, []api.ValueType{i32, i32}, freeBody(brk)))

	b.ExportFunc(abi.ExportByte, b.Func(tUnary, nil,
		new(Asm).LocalGet(0).I32Load8U()))
	b.ExportFunc(abi.ExportSetByte, b.Func(tBinary, nil,
		new(Asm).LocalGet(0).LocalGet(1).I32Store8()))

	fib := b.NextFunc()
	b.ExportFunc(abi.ExportFibonacci, b.Func(tUnary, nil, new(Asm).
		LocalGet(0).I32Const(2).I32LtU().
		If(BlockI32).
		I32Const(1).
		Else().
		LocalGet(0).I32Const(1).I32Sub().Call(fib).
		LocalGet(0).I32Const(2).I32Sub().Call(fib).
		I32Add().
		End()))

	b.ExportFunc(abi.ExportEndlessLoop, b.Func(tVoid, nil, new(Asm).
		Loop(BlockEmpty).Br(0).End()))

	b.ExportFunc(abi.ExportToLowerCase, b.Func(tVoid, []api.ValueType{i32, i32}, lowerBody(buffer, opts.ClobberTail)))

	if !opts.OmitVariants {
		b.ExportFunc(abi.ExportBufferByte, b.Func(tUnary, nil, bufferByteBody(buffer, sig)))
		b.ExportFunc(abi.ExportAbort, b.Func(tVoid, nil, new(Asm).Unreachable()))
	}

	return b.Bytes()
}

// mallocBody: locals 0 cap, 1 ptr, 2 size, 3 new brk, 4 page delta.
func mallocBody(brk uint32) *Asm {
	a := new(Asm)
	alignSize(a, 0, 2)
	return a.
		// size < cap means cap+7 wrapped.
		LocalGet(2).LocalGet(0).I32LtU().
		If(BlockEmpty).Unreachable().End().
		GlobalGet(brk).LocalSet(1).
		LocalGet(1).LocalGet(2).I32Add().LocalTee(3).
		LocalGet(1).I32LtU().
		If(BlockEmpty).Unreachable().End().
		// delta = pages(new brk) - memory.size
		LocalGet(3).I32Const(1).I32Sub().I32Const(16).I32ShrU().I32Const(1).I32Add().
		MemorySize().I32Sub().LocalTee(4).
		I32Const(0).I32GtS().
		If(BlockEmpty).
		LocalGet(4).MemoryGrow().I32Const(-1).I32Eq().
		If(BlockEmpty).Unreachable().End().
		End().
		LocalGet(3).GlobalSet(brk).
		LocalGet(1)
}

// freeBody: locals 0 ptr, 1 cap, 2 size, 3 end.
func freeBody(brk uint32) *Asm {
	a := new(Asm)
	alignSize(a, 1, 2)
	return a.
		LocalGet(0).I32Const(HeapBase).I32LtU().
		LocalGet(0).I32Const(7).I32And().
		I32Or().
		If(BlockEmpty).Unreachable().End().
		LocalGet(0).LocalGet(2).I32Add().LocalTee(3).
		GlobalGet(brk).I32GtU().
		LocalGet(3).LocalGet(0).I32LtU().
		I32Or().
		If(BlockEmpty).Unreachable().End().
		LocalGet(3).GlobalGet(brk).I32Eq().
		If(BlockEmpty).LocalGet(0).GlobalSet(brk).End()
}

// alignSize sets local dst to local src rounded up to 8, or 8 when zero.
func alignSize(a *Asm, src, dst uint32) {
	a.LocalGet(src).I32Const(7).I32Add().I32Const(-8).I32And().LocalTee(dst).
		I32Eqz().
		If(BlockEmpty).I32Const(8).LocalSet(dst).End()
}

// lowerBody: locals 0 index, 1 current byte.
func lowerBody(buffer uint32, clobberTail bool) *Asm {
	a := new(Asm).
		Block(BlockEmpty).
		Loop(BlockEmpty).
		LocalGet(0).I32Const(abi.BufferSize).I32GeU().BrIf(1).
		GlobalGet(buffer).LocalGet(0).I32Add().I32Load8U().LocalTee(1).
		I32Eqz().BrIf(1).
		LocalGet(1).I32Const('A').I32Sub().I32Const(26).I32LtU().
		If(BlockEmpty).
		GlobalGet(buffer).LocalGet(0).I32Add().
		LocalGet(1).I32Const('a' - 'A').I32Add().
		I32Store8().
		End().
		LocalGet(0).I32Const(1).I32Add().LocalSet(0).
		Br(0).
		End().
		End()
	if clobberTail {
		a.GlobalGet(buffer).I32Const(abi.BufferSize - 1).I32Add().I32Const(0).I32Store8()
	}
	return a
}

// bufferByteBody signals PanicText and parks when the offset is out of
// range, mirroring a guest panic handler.
func bufferByteBody(buffer, sig uint32) *Asm {
	a := new(Asm).
		LocalGet(0).I32Const(abi.BufferSize).I32GeU().
		If(BlockEmpty)
	if sig != ^uint32(0) {
		a.I64Const(int64(abi.NewFatPtr(PanicTextAddr, uint32(len(PanicText))))).Call(sig)
	}
	return a.
		Loop(BlockEmpty).Br(0).End().
		End().
		GlobalGet(buffer).LocalGet(0).I32Add().I32Load8U()
}
