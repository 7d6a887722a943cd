package source

import (
	"unsafe"

	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/alloctree/errs"
	"github.com/alloctree/alloctree/pkg/res"
	"github.com/alloctree/alloctree/internal/xsync"
)

// Heap is a pure-Go [Source] that obtains regions from the Go heap instead of
// the OS. It has no mmap/munmap system calls to make, so it is the Source
// used by tests and by platforms [Mmap] does not cover.
//
// Handing out a uintptr [addr.Address] derived from a Go-managed slice would
// normally leave that memory uncollectable-but-also-unreferenced: the
// garbage collector does not see a uintptr as a pointer. Heap works around
// this by keeping the slice backing every outstanding region alive in live,
// keyed by the address it handed out, until the matching Release.
type Heap struct {
	live  xsync.Map[addr.Address, []byte]
	pools xsync.Map[int, *xsync.Pool[[]byte]]
}

// NewHeap constructs an empty Heap source.
func NewHeap() *Heap {
	return &Heap{}
}

func (h *Heap) poolFor(size int) *xsync.Pool[[]byte] {
	pool, _ := h.pools.LoadOrStore(size, func() *xsync.Pool[[]byte] {
		return &xsync.Pool[[]byte]{
			New: func() *[]byte {
				b := make([]byte, size+MinAlign)
				return &b
			},
		}
	})

	return pool
}

// Obtain implements [Source].
func (h *Heap) Obtain(size int) res.Result[addr.Address] {
	if size <= 0 {
		return res.Err[addr.Address](errs.New(errs.SourceExhausted, "heap source: size must be positive, got %d", size))
	}

	buf := h.poolFor(size).Get()
	a := addr.FromPtr(unsafe.Pointer(unsafe.SliceData(*buf))).RoundUpTo(MinAlign)
	h.live.Store(a, *buf)

	return res.Ok(a)
}

// Release implements [Source]. size must match the size Obtain was called
// with to produce p.
func (h *Heap) Release(size int, p addr.Address) {
	if !p.Valid() {
		return
	}

	buf, ok := h.live.LoadAndDelete(p)
	if !ok {
		return
	}

	h.poolFor(size).Put(&buf)
}
