package wasm

import "fmt"

// FatPtr packs a linear memory offset and a length into one 64-bit value so a
// byte slice can cross the ABI as a single i64.
//
//	bit 63 ........ bit 32 | bit 31 ........ bit 0
//	     offset (u32)      |      length (u32)
//
// A FatPtr carries no ownership. The range it names is only valid for as long
// as the side that produced it says so.
type FatPtr uint64

// NewFatPtr packs offset and length.
func NewFatPtr(offset, length uint32) FatPtr {
	return FatPtr(uint64(offset)<<32 | uint64(length))
}

// Offset returns the start of the range in linear memory.
func (p FatPtr) Offset() uint32 {
	return uint32(p >> 32)
}

// Len returns the length of the range in bytes.
func (p FatPtr) Len() uint32 {
	return uint32(p & 0xffff_ffff)
}

// Unpack returns offset and length.
func (p FatPtr) Unpack() (offset, length uint32) {
	return p.Offset(), p.Len()
}

// End returns the first offset past the range. ok is false when that offset
// does not fit in 32 bits.
func (p FatPtr) End() (end uint32, ok bool) {
	e := uint64(p.Offset()) + uint64(p.Len())
	if e > 0xffff_ffff {
		return 0, false
	}
	return uint32(e), true
}

func (p FatPtr) String() string {
	return fmt.Sprintf("%#x+%d", p.Offset(), p.Len())
}
