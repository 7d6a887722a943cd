//go:build go1.22

package arena

import (
	"unsafe"

	"github.com/alloctree/alloctree/pkg/alloctree"
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/alloctree/errs"
	"github.com/alloctree/alloctree/pkg/alloctree/source"
	"github.com/alloctree/alloctree/pkg/res"
)

// Region is a monotonic cursor over a single region obtained once from a
// [source.Source]: the Bump Allocator. It never recycles released memory —
// Deallocate is a no-op — and it never grows past
// its initial region; once exhausted, Allocate reports CapacityExceeded
// rather than going back to the Source for more.
//
// Region keeps a next/end bump cursor over one addr.Address span, so it has
// a single fixed
// [Region.MemoryRange] and can be installed directly as a switcher local
// slot for short-lived scopes (spec: "C3 is offered as an alternate for
// short-lived scopes").
type Region struct {
	src  source.Source
	base addr.Address
	next addr.Address
	end  addr.Address
	size int
}

// NewRegion obtains a size-byte region from src and returns a bump allocator
// over it, or the *errs.Error the Source failed with.
func NewRegion(src source.Source, size int) res.Result[*Region] {
	obtained := src.Obtain(size)
	if obtained.IsErr() {
		return res.Err[*Region](obtained.Err)
	}

	base := obtained.Unwrap()
	return res.Ok(&Region{
		src:  src,
		base: base,
		next: base,
		end:  base.Add(size),
		size: size,
	})
}

// Allocate implements the suite-wide Allocator contract.
func (r *Region) Allocate(size, align int) res.Result[addr.Address] {
	if size == 0 {
		return res.Ok(addr.Sentinel)
	}

	next := r.next.RoundUpTo(align)
	if next.Add(size) > r.end {
		return res.Err[addr.Address](errs.Of(errs.CapacityExceeded))
	}

	r.next = next.Add(size)
	return res.Ok(next)
}

// Deallocate is a no-op: a bump allocator has nothing to return memory to
// short of releasing the whole region back to its Source.
func (r *Region) Deallocate(size, align int, p addr.Address) {}

// GrowingRealloc always allocates a fresh block and copies, since Region
// tracks no per-allocation bookkeeping to tell whether p was the most recent
// allocation (the only case a bump allocator could grow in place).
func (r *Region) GrowingRealloc(newSize, align, curSize int, p addr.Address) res.Result[addr.Address] {
	fresh := r.Allocate(newSize, align)
	if fresh.IsOk() && p.Valid() {
		copy(bytesAt(fresh.Unwrap(), newSize), bytesAt(p, curSize))
	}

	return fresh
}

// ShrinkingRealloc returns p unchanged: a bump allocator cannot reclaim a
// shrunk tail without a free list.
func (r *Region) ShrinkingRealloc(newSize, align, curSize int, p addr.Address) addr.Address {
	return p
}

// MemoryRange implements the suite-wide LocalAllocator contract.
func (r *Region) MemoryRange() (from, to addr.Address) {
	return r.base, r.end
}

// Release returns this Region's entire backing span to its Source. The
// Region must not be used afterward.
func (r *Region) Release() {
	r.src.Release(r.size, r.base)
}

func bytesAt(a addr.Address, size int) []byte {
	return unsafe.Slice((*byte)(a.Ptr()), size)
}

var _ alloctree.LocalAllocator = (*Region)(nil)
