// Package adapt implements the Adaptors (C8): translating between this
// suite's [alloctree.Allocator] contract and the two shapes Go and cgo
// programs actually expect an allocator to have — a package-level
// Malloc/Free pair, and a raw size/align function pair a C library or
// syscall wrapper hands back.
//
// Grounded on original_source's adaptors package (allocator_adaptor.rs,
// alloc_to_allocator_adaptor.rs, global_alloc_to_allocator_adaptor.rs): one
// adaptor wraps a core Allocator to present the shape the *caller* of an
// allocator expects (GlobalMalloc, here), the other wraps a foreign
// allocator to present the shape this suite's Allocator contract expects
// (FromRaw, here) — the two directions original_source keeps as separate
// types rather than one bidirectional wrapper.
package adapt

import (
	"unsafe"

	"github.com/alloctree/alloctree/pkg/alloctree"
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/alloctree/errs"
	"github.com/alloctree/alloctree/pkg/res"
)

// GlobalMalloc wraps an [alloctree.Allocator] to present the
// Malloc/Free/Realloc shape a cgo-facing or package-level global allocator
// is expected to have.
type GlobalMalloc[A alloctree.Allocator] struct {
	Allocator A
}

// Malloc allocates size bytes aligned to align, returning a raw pointer (or
// nil on failure — the error detail is discarded, matching malloc(3)'s own
// contract).
func (g GlobalMalloc[A]) Malloc(size, align int) unsafe.Pointer {
	r := g.Allocator.Allocate(size, align)
	if r.IsErr() {
		return nil
	}

	p := r.Unwrap()
	if p == addr.Sentinel {
		return nil
	}

	return p.Ptr()
}

// Free releases a pointer previously returned by Malloc with the same size
// and align it was allocated with.
func (g GlobalMalloc[A]) Free(ptr unsafe.Pointer, size, align int) {
	if ptr == nil {
		return
	}

	g.Allocator.Deallocate(size, align, addr.FromPtr(ptr))
}

// Realloc resizes ptr (currently curSize bytes) to newSize bytes, choosing
// the suite's growing or shrinking path depending on direction.
func (g GlobalMalloc[A]) Realloc(ptr unsafe.Pointer, newSize, align, curSize int) unsafe.Pointer {
	if ptr == nil {
		return g.Malloc(newSize, align)
	}

	p := addr.FromPtr(ptr)

	if newSize <= curSize {
		return g.Allocator.ShrinkingRealloc(newSize, align, curSize, p).Ptr()
	}

	r := g.Allocator.GrowingRealloc(newSize, align, curSize, p)
	if r.IsErr() {
		return nil
	}

	return r.Unwrap().Ptr()
}

// RawAllocFunc is the shape a foreign allocator (a cgo wrapper, a raw
// syscall-backed allocator) exposes: allocate size bytes aligned to align,
// or report an error.
type RawAllocFunc func(size, align int) (unsafe.Pointer, error)

// RawFreeFunc releases a pointer previously returned by a RawAllocFunc.
type RawFreeFunc func(ptr unsafe.Pointer, size, align int)

// FromRaw adapts a foreign allocate/free function pair to this suite's
// [alloctree.Allocator] contract. Realloc is implemented in terms of
// allocate-copy-free, since a raw function pair offers no in-place resize.
type FromRaw struct {
	Alloc RawAllocFunc
	Free  RawFreeFunc
}

// Allocate implements the suite-wide Allocator contract.
func (f FromRaw) Allocate(size, align int) res.Result[addr.Address] {
	if size == 0 {
		return res.Ok(addr.Sentinel)
	}

	ptr, err := f.Alloc(size, align)
	if err != nil {
		return res.Err[addr.Address](errs.New(errs.OutOfMemory, "adapt: raw allocator failed: %s", err))
	}

	return res.Ok(addr.FromPtr(ptr))
}

// Deallocate implements the suite-wide Allocator contract.
func (f FromRaw) Deallocate(size, align int, p addr.Address) {
	if p == addr.Sentinel || !p.Valid() {
		return
	}

	f.Free(p.Ptr(), size, align)
}

// GrowingRealloc implements the suite-wide Allocator contract by
// allocating fresh, copying, and freeing the old block.
func (f FromRaw) GrowingRealloc(newSize, align, curSize int, p addr.Address) res.Result[addr.Address] {
	fresh := f.Allocate(newSize, align)
	if fresh.IsErr() {
		return fresh
	}

	if p.Valid() {
		copy(unsafe.Slice((*byte)(fresh.Unwrap().Ptr()), newSize), unsafe.Slice((*byte)(p.Ptr()), curSize))
		f.Deallocate(curSize, align, p)
	}

	return fresh
}

// ShrinkingRealloc implements the suite-wide Allocator contract: a raw
// function pair offers no in-place shrink, so the original block is kept.
func (f FromRaw) ShrinkingRealloc(newSize, align, curSize int, p addr.Address) addr.Address {
	return p
}

// ZeroGuard wraps any [alloctree.Allocator] so that a zero-byte request
// always and only ever returns [addr.Sentinel], without delegating to the
// wrapped allocator at all. Every allocator built directly in this suite,
// [FromRaw] included, already does this inline; ZeroGuard gives any other
// Allocator the same guarantee by composition.
type ZeroGuard[A alloctree.Allocator] struct {
	Allocator A
}

// Allocate implements the suite-wide Allocator contract.
func (z ZeroGuard[A]) Allocate(size, align int) res.Result[addr.Address] {
	if size == 0 {
		return res.Ok(addr.Sentinel)
	}

	return z.Allocator.Allocate(size, align)
}

// Deallocate implements the suite-wide Allocator contract.
func (z ZeroGuard[A]) Deallocate(size, align int, p addr.Address) {
	if p == addr.Sentinel {
		return
	}

	z.Allocator.Deallocate(size, align, p)
}

// GrowingRealloc implements the suite-wide Allocator contract.
func (z ZeroGuard[A]) GrowingRealloc(newSize, align, curSize int, p addr.Address) res.Result[addr.Address] {
	if p == addr.Sentinel {
		return z.Allocator.Allocate(newSize, align)
	}

	return z.Allocator.GrowingRealloc(newSize, align, curSize, p)
}

// ShrinkingRealloc implements the suite-wide Allocator contract.
func (z ZeroGuard[A]) ShrinkingRealloc(newSize, align, curSize int, p addr.Address) addr.Address {
	if p == addr.Sentinel || newSize == 0 {
		if p != addr.Sentinel {
			z.Allocator.Deallocate(curSize, align, p)
		}
		return addr.Sentinel
	}

	return z.Allocator.ShrinkingRealloc(newSize, align, curSize, p)
}

var (
	_ alloctree.Allocator = FromRaw{}
	_ alloctree.Allocator = ZeroGuard[alloctree.Allocator]{}
)
