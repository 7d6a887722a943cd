// Package arenasrc implements the Arena Source (C2): one region obtained
// once from a Memory Source, carved into fixed-size slots. Freed slots are
// threaded into a free list through their own first machine word — the same
// technique the teacher's pkg/arena/recycle.go uses for its per-size-class
// free lists, here applied to a single slot size per instance, the way
// original_source's arena_memory_source threads an UnallocatedBlock's
// next_available_slot_index through the freed block itself.
package arenasrc

import (
	"unsafe"

	"github.com/alloctree/alloctree/pkg/alloctree"
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/alloctree/errs"
	"github.com/alloctree/alloctree/pkg/alloctree/source"
	"github.com/alloctree/alloctree/pkg/res"
)

// ArenaSource carves a single Source-obtained region into fixed-size slots.
// Every Allocate/Deallocate pair must agree on a size no larger than the
// slot size this instance was constructed with; a request that would need a
// larger slot fails with CapacityExceeded rather than growing the region.
type ArenaSource struct {
	src      source.Source
	slotSize int
	base     addr.Address
	end      addr.Address

	// watermark is the address of the first never-yet-touched slot; slots
	// before it are either live or on the free list.
	watermark addr.Address

	// free is the head of the free list, or addr.Null when empty. Each
	// freed slot's first word holds the address of the next freed slot.
	free addr.Address
}

// minSlotSize is the smallest slot size that can hold a free-list link.
var minSlotSize = int(unsafe.Sizeof(addr.Address(0)))

// New obtains slotCount*slotSize bytes (slotSize rounded up to at least a
// pointer's width) from src and returns an ArenaSource over it, or the
// *errs.Error the Source failed with.
func New(src source.Source, slotSize, slotCount int) res.Result[*ArenaSource] {
	slotSize = max(slotSize, minSlotSize)
	slotSize = addr.RoundUp(slotSize, minSlotSize)

	region := slotSize * slotCount
	obtained := src.Obtain(region)
	if obtained.IsErr() {
		return res.Err[*ArenaSource](obtained.Err)
	}

	base := obtained.Unwrap()
	return res.Ok(&ArenaSource{
		src:       src,
		slotSize:  slotSize,
		base:      base,
		end:       base.Add(region),
		watermark: base,
		free:      addr.Null,
	})
}

// SlotSize returns the fixed size of every slot this instance hands out.
func (a *ArenaSource) SlotSize() int { return a.slotSize }

// Allocate implements the suite-wide Allocator contract. size and align
// must each be at most SlotSize.
func (a *ArenaSource) Allocate(size, align int) res.Result[addr.Address] {
	if size == 0 {
		return res.Ok(addr.Sentinel)
	}

	if size > a.slotSize || align > a.slotSize {
		return res.Err[addr.Address](errs.New(errs.CapacityExceeded,
			"arenasrc: request (size %d, align %d) exceeds slot size %d", size, align, a.slotSize))
	}

	if a.free != addr.Null {
		p := a.free
		a.free = *addr.Cast[addr.Address](p)
		return res.Ok(p)
	}

	if a.watermark.Add(a.slotSize) > a.end {
		return res.Err[addr.Address](errs.Of(errs.OutOfMemory))
	}

	p := a.watermark
	a.watermark = a.watermark.Add(a.slotSize)
	return res.Ok(p)
}

// Deallocate implements the suite-wide Allocator contract: it links p onto
// the free list by writing the list's current head into p's first word.
func (a *ArenaSource) Deallocate(size, align int, p addr.Address) {
	if p == addr.Sentinel {
		return
	}

	*addr.Cast[addr.Address](p) = a.free
	a.free = p
}

// GrowingRealloc succeeds in place as long as the grown size still fits in
// one slot; every slot from this instance is already SlotSize bytes, so no
// copy is ever needed.
func (a *ArenaSource) GrowingRealloc(newSize, align, curSize int, p addr.Address) res.Result[addr.Address] {
	if newSize > a.slotSize || align > a.slotSize {
		return res.Err[addr.Address](errs.New(errs.CapacityExceeded,
			"arenasrc: grown request (size %d, align %d) exceeds slot size %d", newSize, align, a.slotSize))
	}

	return res.Ok(p)
}

// ShrinkingRealloc always returns p unchanged: every slot is a fixed size,
// so shrinking within it needs nothing.
func (a *ArenaSource) ShrinkingRealloc(newSize, align, curSize int, p addr.Address) addr.Address {
	return p
}

// MemoryRange implements the suite-wide LocalAllocator contract.
func (a *ArenaSource) MemoryRange() (from, to addr.Address) {
	return a.base, a.end
}

// Release returns this instance's entire backing region to its Source. The
// ArenaSource must not be used afterward.
func (a *ArenaSource) Release() {
	a.src.Release(int(a.end.Sub(a.base)), a.base)
}

var _ alloctree.LocalAllocator = (*ArenaSource)(nil)
