//go:build !unix

package source

import (
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
	"github.com/alloctree/alloctree/pkg/alloctree/errs"
	"github.com/alloctree/alloctree/pkg/alloctree/numa"
	"github.com/alloctree/alloctree/pkg/res"
)

// Mmap is unavailable on this platform; every call fails with
// errs.SourceExhausted. Use [Heap] instead.
type Mmap struct{}

// NewMmap constructs a non-functional Mmap source on platforms without an
// mmap(2) equivalent wired up.
func NewMmap(lock bool) *Mmap { return &Mmap{} }

// WithNUMA is a no-op on this platform, kept for API parity with the unix
// build.
func (m *Mmap) WithNUMA(p numa.Policy) *Mmap { return m }

func (m *Mmap) Obtain(size int) res.Result[addr.Address] {
	return res.Err[addr.Address](errs.New(errs.SourceExhausted, "mmap source: unsupported on this platform"))
}

func (m *Mmap) Release(size int, p addr.Address) {}
