package wasmtest

// Asm appends WebAssembly instructions. Methods return the receiver so
// bodies read top to bottom.
type Asm struct {
	code []byte
}

// Block types.
const (
	BlockEmpty byte = 0x40
	BlockI32   byte = 0x7f
)

// Bytes returns the encoded instructions.
func (a *Asm) Bytes() []byte { return a.code }

// Op appends raw opcodes.
func (a *Asm) Op(ops ...byte) *Asm {
	a.code = append(a.code, ops...)
	return a
}

func (a *Asm) idx(op byte, i uint32) *Asm {
	a.code = append(append(a.code, op), encodeULEB128(i)...)
	return a
}

func (a *Asm) Unreachable() *Asm { return a.Op(0x00) }
func (a *Asm) Block(t byte) *Asm { return a.Op(0x02, t) }
func (a *Asm) Loop(t byte) *Asm { return a.Op(0x03, t) }
func (a *Asm) If(t byte) *Asm { return a.Op(0x04, t) }
func (a *Asm) Else() *Asm { return a.Op(0x05) }
func (a *Asm) End() *Asm { return a.Op(0x0b) }
func (a *Asm) Br(depth uint32) *Asm { return a.idx(0x0c, depth) }
func (a *Asm) BrIf(depth uint32) *Asm { return a.idx(0x0d, depth) }
func (a *Asm) Call(fn uint32) *Asm { return a.idx(0x10, fn) }
func (a *Asm) LocalGet(i uint32) *Asm { return a.idx(0x20, i) }
func (a *Asm) LocalSet(i uint32) *Asm { return a.idx(0x21, i) }
func (a *Asm) LocalTee(i uint32) *Asm { return a.idx(0x22, i) }
func (a *Asm) GlobalGet(i uint32) *Asm { return a.idx(0x23, i) }
func (a *Asm) GlobalSet(i uint32) *Asm { return a.idx(0x24, i) }
func (a *Asm) I32Load8U() *Asm { return a.Op(0x2d, 0x00, 0x00) }
func (a *Asm) I32Store8() *Asm { return a.Op(0x3a, 0x00, 0x00) }
func (a *Asm) MemorySize() *Asm { return a.Op(0x3f, 0x00) }
func (a *Asm) MemoryGrow() *Asm { return a.Op(0x40, 0x00) }
func (a *Asm) I32Eqz() *Asm { return a.Op(0x45) }
func (a *Asm) I32Eq() *Asm { return a.Op(0x46) }
func (a *Asm) I32LtU() *Asm { return a.Op(0x49) }
func (a *Asm) I32GtS() *Asm { return a.Op(0x4a) }
func (a *Asm) I32GtU() *Asm { return a.Op(0x4b) }
func (a *Asm) I32GeU() *Asm { return a.Op(0x4f) }
func (a *Asm) I32Add() *Asm { return a.Op(0x6a) }
func (a *Asm) I32Sub() *Asm { return a.Op(0x6b) }
func (a *Asm) I32And() *Asm { return a.Op(0x71) }
func (a *Asm) I32Or() *Asm { return a.Op(0x72) }
func (a *Asm) I32Shl() *Asm { return a.Op(0x74) }
func (a *Asm) I32ShrU() *Asm { return a.Op(0x76) }

// I32Const appends i32.const v.
func (a *Asm) I32Const(v int32) *Asm {
	a.code = append(append(a.code, 0x41), encodeSLEB128(v)...)
	return a
}

// I64Const appends i64.const v.
func (a *Asm) I64Const(v int64) *Asm {
	a.code = append(append(a.code, 0x42), encodeSLEB128(v)...)
	return a
}
