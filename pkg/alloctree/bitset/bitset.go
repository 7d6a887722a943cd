// Package bitset implements the Bit-set Allocator (C6): one region obtained
// once from a Memory Source, carved into fixed-size blocks whose
// used/free state is tracked one bit per block, with multi-block requests
// satisfied by a contiguous run of clear bits.
//
// The free/used bitmap and its word-at-a-time run search are grounded on
// other_examples' cloudwego gopkg/unsafex malloc bitmap allocator: the
// same next-fit cursor, the same "scan whole 64-bit words, only fall back
// to bit-by-bit on a mixed word" shape. Two differences from that example,
// both deliberate and noted here rather than in-line: the bitmap here is an
// ordinary Go []uint64 rather than bytes laid out at the front of the
// arena (this suite already has segtree and multitree demonstrating
// in-place raw-memory structures; a plain slice keeps this one simple), and
// blocks carry no magic-number header, since double-free detection is
// out of scope for this component (the spec leaves it to the caller, the
// way every other allocator in this suite trusts its Allocate/Deallocate
// contract).
package bitset

import (
	"unsafe"

	"github.com/alloctree/alloctree/pkg/alloctree"
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/alloctree/errs"
	"github.com/alloctree/alloctree/pkg/alloctree/source"
	"github.com/alloctree/alloctree/pkg/res"
)

// Bitset carves one Source-obtained region into numBlocks fixed-size
// blocks. blockSize must be a power of two; requests larger than blockSize
// are satisfied by a run of contiguous blocks.
type Bitset struct {
	src       source.Source
	base      addr.Address
	blockSize int
	numBlocks int
	words     []uint64
	next      int // next-fit cursor, in block indices
}

// New obtains numBlocks*blockSize bytes (blockSize must be a power of two)
// from src and returns a Bitset over it, or the *errs.Error the Source
// failed with.
func New(src source.Source, blockSize, numBlocks int) res.Result[*Bitset] {
	if !addr.IsPow2(blockSize) {
		return res.Err[*Bitset](errs.New(errs.Misconfigured, "bitset: block size %d is not a power of two", blockSize))
	}

	obtained := src.Obtain(blockSize * numBlocks)
	if obtained.IsErr() {
		return res.Err[*Bitset](obtained.Err)
	}

	return res.Ok(&Bitset{
		src:       src,
		base:      obtained.Unwrap(),
		blockSize: blockSize,
		numBlocks: numBlocks,
		words:     make([]uint64, (numBlocks+63)/64),
	})
}

func (b *Bitset) addrAt(idx int) addr.Address { return b.base.Add(idx * b.blockSize) }

func (b *Bitset) isSet(idx int) bool {
	return b.words[idx>>6]&(uint64(1)<<uint(idx&63)) != 0
}

// setRange marks [idx, idx+count) used (set) or free (!set).
func (b *Bitset) setRange(idx, count int, set bool) {
	for count > 0 {
		word := idx >> 6
		bit := idx & 63
		n := min(64-bit, count)
		mask := ((uint64(1) << uint(n)) - 1) << uint(bit)

		if set {
			b.words[word] |= mask
		} else {
			b.words[word] &^= mask
		}

		idx += n
		count -= n
	}
}

// findFreeRun finds `need` contiguous clear bits starting no earlier than
// from, scanning whole words at a time and only falling back to
// bit-by-bit on a mixed (partially set) word. Returns -1 if no run of that
// length exists anywhere from `from` to the end.
func (b *Bitset) findFreeRun(from, need int) int {
	runStart, runLen := -1, 0
	i := from

	for i < b.numBlocks {
		word := i >> 6
		if i&63 == 0 && i+64 <= b.numBlocks {
			val := b.words[word]
			switch val {
			case 0:
				if runStart == -1 {
					runStart = i
				}
				runLen += 64
				if runLen >= need {
					return runStart
				}
				i += 64
				continue
			case ^uint64(0):
				runStart, runLen = -1, 0
				i += 64
				continue
			}
		}

		if b.isSet(i) {
			runStart, runLen = -1, 0
		} else {
			if runStart == -1 {
				runStart = i
			}
			runLen++
			if runLen >= need {
				return runStart
			}
		}
		i++
	}

	return -1
}

// Allocate implements the suite-wide Allocator contract.
func (b *Bitset) Allocate(size, align int) res.Result[addr.Address] {
	if size == 0 {
		return res.Ok(addr.Sentinel)
	}

	need := (max(size, align) + b.blockSize - 1) / b.blockSize
	if need > b.numBlocks {
		return res.Err[addr.Address](errs.New(errs.CapacityExceeded,
			"bitset: request (size %d, align %d) needs %d blocks, only %d exist", size, align, need, b.numBlocks))
	}

	for _, start := range []int{b.next, 0} {
		for idx := start; idx >= 0 && idx <= b.numBlocks-need; {
			found := b.findFreeRun(idx, need)
			if found == -1 {
				break
			}

			p := b.addrAt(found)
			if !p.AlignedTo(align) {
				idx = found + 1
				continue
			}

			b.setRange(found, need, true)
			b.next = found + need
			if b.next >= b.numBlocks {
				b.next = 0
			}

			return res.Ok(p)
		}
	}

	return res.Err[addr.Address](errs.Of(errs.OutOfMemory))
}

// Deallocate implements the suite-wide Allocator contract.
func (b *Bitset) Deallocate(size, align int, p addr.Address) {
	if p == addr.Sentinel {
		return
	}

	need := (max(size, align) + b.blockSize - 1) / b.blockSize
	idx := p.Sub(b.base) / b.blockSize
	b.setRange(idx, need, false)
}

// GrowingRealloc implements the suite-wide Allocator contract. It grows in
// place when the immediately following blocks are free, otherwise
// allocates fresh, copies, and frees the old run.
func (b *Bitset) GrowingRealloc(newSize, align, curSize int, p addr.Address) res.Result[addr.Address] {
	oldNeed := (max(curSize, align) + b.blockSize - 1) / b.blockSize
	newNeed := (max(newSize, align) + b.blockSize - 1) / b.blockSize
	if newNeed <= oldNeed {
		return res.Ok(p)
	}

	idx := p.Sub(b.base) / b.blockSize
	extra := newNeed - oldNeed
	if idx+oldNeed+extra <= b.numBlocks {
		free := true
		for i := idx + oldNeed; i < idx+oldNeed+extra; i++ {
			if b.isSet(i) {
				free = false
				break
			}
		}

		if free {
			b.setRange(idx+oldNeed, extra, true)
			return res.Ok(p)
		}
	}

	fresh := b.Allocate(newSize, align)
	if fresh.IsErr() {
		return fresh
	}

	copy(bytesAt(fresh.Unwrap(), newSize), bytesAt(p, curSize))
	b.Deallocate(curSize, align, p)
	return fresh
}

// ShrinkingRealloc implements the suite-wide Allocator contract: it frees
// the trailing blocks no longer needed and returns p unchanged.
func (b *Bitset) ShrinkingRealloc(newSize, align, curSize int, p addr.Address) addr.Address {
	oldNeed := (max(curSize, align) + b.blockSize - 1) / b.blockSize
	newNeed := (max(newSize, align) + b.blockSize - 1) / b.blockSize
	if newNeed >= oldNeed {
		return p
	}

	idx := p.Sub(b.base) / b.blockSize
	b.setRange(idx+newNeed, oldNeed-newNeed, false)
	return p
}

// MemoryRange implements the suite-wide LocalAllocator contract.
func (b *Bitset) MemoryRange() (from, to addr.Address) {
	return b.base, b.base.Add(b.blockSize * b.numBlocks)
}

// Release returns this instance's entire backing region to its Source. The
// Bitset must not be used afterward.
func (b *Bitset) Release() {
	b.src.Release(b.blockSize*b.numBlocks, b.base)
}

func bytesAt(a addr.Address, size int) []byte {
	return unsafe.Slice((*byte)(a.Ptr()), size)
}

var _ alloctree.LocalAllocator = (*Bitset)(nil)
