//go:build unix

package source

import (
	"golang.org/x/sys/unix"

	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/alloctree/errs"
	"github.com/alloctree/alloctree/pkg/alloctree/numa"
	"github.com/alloctree/alloctree/pkg/res"
)

// Mmap is a [Source] that obtains anonymous, page-granularity mappings
// directly from the OS via mmap(2). Regions obtained this way are outside
// the Go heap entirely, so they need no garbage-collector pinning the way
// [Heap] regions do.
//
// Slow: every Obtain/Release is a system call. It exists as the backing
// store for the arena, multi-tree, and bit-set allocators, which amortize
// that cost over many small allocations.
//
// Mmap never frees memory it obtains back to the OS proactively; Release
// is the only way a region is returned.
type Mmap struct {
	lock   bool
	mflags int
	numa   numa.Policy
}

// NewMmap constructs an Mmap source. When lock is true, obtained regions are
// mlock'd so the process fails fast on memory pressure instead of being
// swapped out. No NUMA policy is attached; see [Mmap.WithNUMA].
func NewMmap(lock bool) *Mmap {
	return &Mmap{
		lock:   lock,
		mflags: unix.MAP_PRIVATE | unix.MAP_ANON,
		numa:   numa.None{},
	}
}

// WithNUMA attaches a NUMA placement policy applied to every region this
// Mmap obtains from then on (existing regions are unaffected). It returns m
// for chaining at construction time.
func (m *Mmap) WithNUMA(p numa.Policy) *Mmap {
	m.numa = p
	return m
}

// Obtain implements [Source]. size is rounded up to the system page size by
// the kernel.
func (m *Mmap) Obtain(size int) res.Result[addr.Address] {
	if size <= 0 {
		return res.Err[addr.Address](errs.New(errs.SourceExhausted, "mmap source: size must be positive, got %d", size))
	}

	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, m.mflags)
	if err != nil {
		return res.Err[addr.Address](errs.New(errs.SourceExhausted, "mmap(%d): %v", size, err))
	}

	if m.lock {
		if err := unix.Mlock(b); err != nil {
			_ = unix.Munmap(b)
			return res.Err[addr.Address](errs.New(errs.SourceExhausted, "mlock(%d): %v", size, err))
		}
	}

	p := addr.FromPtr(unsafeSliceData(b))

	if err := m.numa.Bind(p, size); err != nil {
		_ = unix.Munmap(b)
		return res.Err[addr.Address](errs.New(errs.SourceExhausted, "mbind(%d): %v", size, err))
	}

	return res.Ok(p)
}

// Release implements [Source].
func (m *Mmap) Release(size int, p addr.Address) {
	if !p.Valid() {
		return
	}

	b := unsafeSlice(p, size)

	if m.lock {
		_ = unix.Munlock(b)
	}

	_ = unix.Munmap(b)
}
