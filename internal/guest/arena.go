package guest

import "encoding/binary"

const (
	// Align is the alignment of every offset the arena hands out, and the
	// granularity of block sizes.
	Align = 8

	// nilBlock terminates the free list.
	nilBlock = ^uint32(0)
)

// Arena hands out ranges of a fixed region of linear memory.
//
// The caller retains the capacity of each allocation and passes it back to
// Free; the arena keeps no per-allocation header or size table. Freed blocks
// hold the free list in-band: the first 8 bytes of a free block store the
// offset of the next free block and the block's size. The list is sorted by
// address and adjacent free blocks are always coalesced, and a free block that
// reaches the bump pointer is returned to it.
//
// Faults (exhaustion, double free, a range that was never handed out) call
// Trap.
type Arena struct {
	mem  []byte
	base uint32

	start uint32
	brk   uint32
	head  uint32
}

// ArenaStats is a snapshot of an arena's bookkeeping.
type ArenaStats struct {
	Capacity   uint32
	Brk        uint32
	FreeBlocks int
	FreeBytes  uint32
}

// NewArena returns an arena over mem, whose first byte lives at linear memory
// offset base.
func NewArena(mem []byte, base uint32) *Arena {
	start := (Align - base%Align) % Align
	if base+start == 0 {
		start += Align
	}
	if uint64(len(mem)) > uint64(^uint32(0)-base) {
		mem = mem[:^uint32(0)-base]
	}
	return &Arena{
		mem:   mem,
		base:  base,
		start: start,
		brk:   start,
		head:  nilBlock,
	}
}

// blockSize rounds a requested capacity up to the arena's block granularity.
// Zero-sized requests still get a block so the returned offset is distinct.
func blockSize(capacity uint32) (uint32, bool) {
	if capacity == 0 {
		return Align, true
	}
	n := (uint64(capacity) + Align - 1) &^ (Align - 1)
	if n > uint64(^uint32(0)) {
		return 0, false
	}
	return uint32(n), true
}

// Alloc reserves at least capacity bytes and returns the linear memory
// offset of the range. The range is zeroed.
func (a *Arena) Alloc(capacity uint32) uint32 {
	size, ok := blockSize(capacity)
	if !ok {
		Trap("malloc: capacity overflows the address space")
	}

	prev := nilBlock
	for cur := a.head; cur != nilBlock; cur = a.next(cur) {
		n := a.size(cur)
		if n < size {
			prev = cur
			continue
		}
		if n > size {
			rest := cur + size
			a.setNode(rest, a.next(cur), n-size)
			a.link(prev, rest)
		} else {
			a.link(prev, a.next(cur))
		}
		clear(a.mem[cur : cur+size])
		return a.base + cur
	}

	if uint64(a.brk)+uint64(size) > uint64(len(a.mem)) {
		Trap("malloc: out of memory")
	}
	off := a.brk
	a.brk += size
	clear(a.mem[off : off+size])
	return a.base + off
}

// Free releases a range previously returned by Alloc for the same capacity.
func (a *Arena) Free(ptr, capacity uint32) {
	size, ok := blockSize(capacity)
	if !ok {
		Trap("free: capacity overflows the address space")
	}
	if ptr < a.base+a.start {
		Trap("free: pointer outside the arena")
	}
	off := ptr - a.base
	if (off-a.start)%Align != 0 {
		Trap("free: misaligned pointer")
	}
	if uint64(off)+uint64(size) > uint64(a.brk) {
		Trap("free: range was never allocated")
	}

	beforePrev, prev, cur := nilBlock, nilBlock, a.head
	for cur != nilBlock && cur < off {
		beforePrev, prev, cur = prev, cur, a.next(cur)
	}
	if prev != nilBlock && prev+a.size(prev) > off {
		Trap("free: double free")
	}
	if cur != nilBlock && off+size > cur {
		Trap("free: double free")
	}

	start, end := off, off+size
	before := prev
	if cur != nilBlock && end == cur {
		end += a.size(cur)
		cur = a.next(cur)
	}
	if prev != nilBlock && prev+a.size(prev) == start {
		start = prev
		before = beforePrev
	}

	// Nothing can follow a block that ends at the bump pointer.
	if end == a.brk {
		a.link(before, nilBlock)
		a.brk = start
		return
	}
	a.setNode(start, cur, end-start)
	a.link(before, start)
}

// Stats reports the arena's current bookkeeping.
func (a *Arena) Stats() ArenaStats {
	s := ArenaStats{
		Capacity: uint32(len(a.mem)) - a.start,
		Brk:      a.brk - a.start,
	}
	for cur := a.head; cur != nilBlock; cur = a.next(cur) {
		s.FreeBlocks++
		s.FreeBytes += a.size(cur)
	}
	return s
}

func (a *Arena) next(off uint32) uint32 {
	return binary.LittleEndian.Uint32(a.mem[off:])
}

func (a *Arena) size(off uint32) uint32 {
	return binary.LittleEndian.Uint32(a.mem[off+4:])
}

func (a *Arena) setNode(off, next, size uint32) {
	binary.LittleEndian.PutUint32(a.mem[off:], next)
	binary.LittleEndian.PutUint32(a.mem[off+4:], size)
}

func (a *Arena) link(prev, next uint32) {
	if prev == nilBlock {
		a.head = next
		return
	}
	binary.LittleEndian.PutUint32(a.mem[prev:], next)
}
