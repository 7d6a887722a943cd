// Package source implements Memory Source (C1): obtaining and releasing the
// large aligned regions every other allocator in this module is built on
// top of.
package source

import (
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/res"
)

// Source obtains and releases large, page-or-arena-granularity regions. It
// is the one component in this suite allowed to be slow: obtain/release
// calls may hit the OS (mmap/munmap) and are treated as uncancellable.
//
// A Source owns every region it obtains; each must be released exactly
// once, with the same size it was obtained with.
type Source interface {
	// Obtain returns a region of at least size bytes, aligned to at least
	// [MinAlign], or an *errs.Error of kind SourceExhausted.
	Obtain(size int) res.Result[addr.Address]

	// Release returns a region previously obtained from this Source. It is
	// infallible.
	Release(size int, p addr.Address)
}

// MinAlign is the minimum alignment every Source implementation guarantees
// for an obtained region: large enough to host a segtree.Node with its
// parent-pointer low bit free for the colour tag (see
// pkg/alloctree/segtree's package doc).
const MinAlign = 16
