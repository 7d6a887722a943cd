// Package alloctree defines the Allocator contract every component in this
// suite (C2 arena source, C3 bump region, C5 multi-tree, C6 bit-set) is
// built to satisfy, so the switcher (C7) can hold any of them behind one
// generic type parameter.
package alloctree

import (
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/res"
)

// Allocator is the minimal shape every memory allocator in this suite
// implements: allocate, deallocate, and resize in place or via
// allocate-copy-free.
type Allocator interface {
	// Allocate returns a region of at least size bytes aligned to align, or
	// an *errs.Error of kind OutOfMemory or CapacityExceeded. A size of
	// zero always succeeds with [addr.Sentinel].
	Allocate(size, align int) res.Result[addr.Address]

	// Deallocate returns a region previously returned by Allocate (or a
	// realloc call) with the same size and align it was last allocated or
	// resized to. Deallocating [addr.Sentinel] is a no-op.
	Deallocate(size, align int, p addr.Address)

	// GrowingRealloc resizes p (currently curSize bytes) up to newSize
	// bytes, copying contents if a fresh address is needed.
	GrowingRealloc(newSize, align, curSize int, p addr.Address) res.Result[addr.Address]

	// ShrinkingRealloc resizes p (currently curSize bytes) down to newSize
	// bytes. It never fails and never moves the allocation.
	ShrinkingRealloc(newSize, align, curSize int, p addr.Address) addr.Address
}

// LocalAllocator is an Allocator that owns one contiguous address range,
// the shape the switcher (C7) needs to decide pointer-containment routing
// for its thread-local and coroutine-local slots.
type LocalAllocator interface {
	Allocator

	// MemoryRange returns the half-open range [from, to) this instance's
	// memory lies in.
	MemoryRange() (from, to addr.Address)
}
