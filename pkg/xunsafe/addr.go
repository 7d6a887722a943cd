//go:build go1.20

package xunsafe

import (
	"fmt"
	"math/bits"
	"unsafe"
)

// Addr is a type-tagged memory address: a uintptr carrying its pointee type
// as a phantom type parameter, so that arithmetic on it is scaled by
// sizeof(T) the way ordinary Go pointer arithmetic would be, while still
// being comparable, zero-value-safe, and usable as a map key or struct
// field without pinning anything for the GC.
//
// An Addr does not keep its pointee alive; whatever it points into must be
// kept reachable by other means for as long as the Addr is used.
type Addr[T any] uintptr

// AddrOf returns the address of the value pointed to by p.
func AddrOf[T any](p *T) Addr[T] {
	return Addr[T](uintptr(unsafe.Pointer(p)))
}

// EndOf returns the address one past the last element of s.
func EndOf[T any](s []T) Addr[T] {
	return AddrOf(unsafe.SliceData(s)).Add(len(s))
}

// AssertValid reinterprets a as a live *T.
//
// The caller is asserting that a was derived from a pointer into memory that
// is still reachable; this function cannot check that for you.
func (a Addr[T]) AssertValid() *T {
	return (*T)(unsafe.Pointer(uintptr(a))) //nolint:govet
}

// Add returns a advanced by n elements of T.
func (a Addr[T]) Add(n int) Addr[T] {
	var z T
	return a.ByteAdd(int(unsafe.Sizeof(z)) * n)
}

// ByteAdd returns a advanced by n raw bytes.
func (a Addr[T]) ByteAdd(n int) Addr[T] {
	return Addr[T](int(a) + n)
}

// Sub returns the distance from b to a, in elements of T.
func (a Addr[T]) Sub(b Addr[T]) int {
	var z T
	size := int(unsafe.Sizeof(z))
	if size == 0 {
		return 0
	}

	return (int(a) - int(b)) / size
}

// Padding returns the number of bytes needed to round a up to align, a power
// of two.
func (a Addr[T]) Padding(align int) int {
	return int(a.RoundUpTo(align)) - int(a)
}

// RoundUpTo rounds a up to the nearest multiple of align, a power of two.
func (a Addr[T]) RoundUpTo(align int) Addr[T] {
	mask := uintptr(align - 1)
	return Addr[T]((uintptr(a) + mask) &^ mask)
}

// SignBit reports whether the top bit of a is set.
func (a Addr[T]) SignBit() bool {
	return uintptr(a)>>(bits.UintSize-1) != 0
}

// SignBitMask returns all-ones if a's sign bit is set, all-zeros otherwise.
func (a Addr[T]) SignBitMask() Addr[T] {
	if a.SignBit() {
		return ^Addr[T](0)
	}

	return Addr[T](0)
}

// ClearSignBit returns a with its top bit cleared.
func (a Addr[T]) ClearSignBit() Addr[T] {
	return a &^ (Addr[T](1) << (bits.UintSize - 1))
}

// String formats a as a hex address, e.g. "0x12345678".
func (a Addr[T]) String() string {
	return fmt.Sprintf("%#x", uintptr(a))
}
