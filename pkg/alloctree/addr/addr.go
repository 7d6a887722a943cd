// Package addr defines the memory-address and layout primitives shared by
// every allocator in this module.
//
// An [Address] is a plain integer, not a Go pointer: the segregated-tree
// core (pkg/alloctree/segtree) and the bit-set allocator (pkg/alloctree/bitset)
// must be able to name addresses that have no live Go value backing them
// (e.g. the midpoint of a block being split in two), without fighting the
// garbage collector or tripping the race detector over aliased *byte values.
// Conversion to and from a real pointer happens only at the Memory Source
// boundary (pkg/alloctree/source) and when a node is cast in place out of
// free memory (pkg/alloctree/segtree), via [Cast] and [Of].
package addr

import (
	"math/bits"
	"unsafe"

	"github.com/alloctree/alloctree/pkg/xunsafe"
	"github.com/alloctree/alloctree/pkg/xunsafe/layout"
)

// Address is a non-null byte address, or the distinguished [Sentinel] value
// representing a zero-sized allocation. It shares its representation with
// [xunsafe.Addr][byte], so the arithmetic and rounding below is delegated to
// that type rather than re-derived here.
type Address uintptr

// xu views a as a byte-scaled xunsafe address.
func (a Address) xu() xunsafe.Addr[byte] { return xunsafe.Addr[byte](a) }

// Sentinel is the canonical "zero-sized allocation" result: a single
// distinguished non-null address (all ones). No component may dereference
// it.
const Sentinel Address = ^Address(0)

// Null is the invalid, never-returned-to-callers zero address. It is
// distinct from [Sentinel]: Null means "no address", Sentinel means
// "a zero-byte allocation".
const Null Address = 0

// Valid reports whether a is usable as a real, dereferenceable address:
// neither [Null] nor [Sentinel].
func (a Address) Valid() bool { return a != Null && a != Sentinel }

// Add returns a+n.
func (a Address) Add(n int) Address { return Address(a.xu().Add(n)) }

// Sub returns a-b, as a plain byte count.
func (a Address) Sub(b Address) int { return a.xu().Sub(b.xu()) }

// AlignedTo reports whether a is a multiple of align, which must be a power
// of two.
func (a Address) AlignedTo(align int) bool { return a.xu().Padding(align) == 0 }

// RoundUpTo rounds a up to the nearest multiple of align, a power of two.
func (a Address) RoundUpTo(align int) Address { return Address(a.xu().RoundUpTo(align)) }

// In reports whether a lies in the half-open range [from, to).
func (a Address) In(from, to Address) bool { return a >= from && a < to }

// Ptr converts a real (non-sentinel, non-null) address into an unsafe
// pointer, for handing back to a caller or passing to a syscall.
func (a Address) Ptr() unsafe.Pointer { return unsafe.Pointer(a.xu().AssertValid()) }

// Of returns the [Address] of a Go value. The value must not be moved by the
// garbage collector for as long as the returned address is in use (true of
// anything allocated out of an [addr]-managed region, since that memory is
// never itself moved).
func Of[T any](p *T) Address { return Address(xunsafe.AddrOf(p)) }

// Cast reinterprets a as a pointer to T. a must be [Address.Valid].
func Cast[T any](a Address) *T { return xunsafe.Addr[T](a).AssertValid() }

// FromPtr wraps a raw unsafe pointer obtained from a syscall or cgo call.
func FromPtr(p unsafe.Pointer) Address { return Address(uintptr(p)) }

// Layout is the (size, alignment) pair of a memory request. Size is
// non-negative; Align is always a power of two.
type Layout = layout.Layout

// LayoutOf returns the layout of a requested size at the given alignment.
func LayoutOf(size, align int) Layout { return Layout{Size: size, Align: align} }

// RoundUp rounds size up to the nearest multiple of align.
func RoundUp(size, align int) int { return layout.RoundUp(size, align) }

// RoundDown rounds size down to the nearest multiple of align.
func RoundDown(size, align int) int { return layout.RoundDown(size, align) }

// IsPow2 reports whether n is a power of two. Zero is not a power of two.
func IsPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// CeilPow2 returns the smallest power of two >= n. n must be >= 1.
func CeilPow2(n int) int {
	if n <= 1 {
		return 1
	}

	return 1 << Log2Ceil(n)
}

// Log2Ceil returns ceil(log2(n)) for n >= 1.
func Log2Ceil(n int) int {
	if n <= 1 {
		return 0
	}

	return bits.Len(uint(n) - 1)
}

// Log2Floor returns floor(log2(n)) for n >= 1.
func Log2Floor(n int) int { return bits.Len(uint(n)) - 1 }
