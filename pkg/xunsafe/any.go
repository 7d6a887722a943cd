package xunsafe

import (
	"reflect"
	"testing"
	"unsafe"
)

// AnyData returns the data word of the interface value v: either a pointer
// to the boxed value, or the dynamic value itself reinterpreted as a
// pointer, for types whose representation is already pointer-shaped (see
// [IsDirectAny]).
func AnyData(v any) unsafe.Pointer {
	return (*[2]unsafe.Pointer)(unsafe.Pointer(&v))[1]
}

// AnyType returns the address of v's runtime type descriptor. It is only
// meaningful for identity comparison between two interface values' dynamic
// types, and as the typ argument to [MakeAny].
func AnyType(v any) uintptr {
	return uintptr((*[2]unsafe.Pointer)(unsafe.Pointer(&v))[0])
}

// AnyBytes returns the bytes backing v's dynamic value, without copying. It
// is nil for a nil interface.
func AnyBytes(v any) []byte {
	if v == nil {
		return nil
	}

	size := reflect.TypeOf(v).Size()
	if size == 0 {
		return []byte{}
	}

	data := AnyData(v)
	if IsDirectAny(v) {
		// The data word is the value itself, not a pointer to it.
		return unsafe.Slice((*byte)(unsafe.Pointer(&data)), size)
	}

	return unsafe.Slice((*byte)(data), size)
}

// MakeAny reassembles an interface value out of a type word (as returned by
// [AnyType]) and a data word (as returned by [AnyData]).
func MakeAny(typ uintptr, data unsafe.Pointer) any {
	var v any
	words := (*[2]unsafe.Pointer)(unsafe.Pointer(&v))
	words[0] = unsafe.Pointer(typ) //nolint:govet
	words[1] = data
	return v
}

func isDirectKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan, reflect.Func, reflect.Map, reflect.Interface:
		return true
	case reflect.Struct:
		return t.NumField() == 1 && isDirectKind(t.Field(0).Type)
	case reflect.Array:
		return t.Len() == 1 && isDirectKind(t.Elem())
	default:
		return false
	}
}

// IsDirectAny reports whether v's dynamic type is stored directly in the
// interface's data word rather than boxed on the heap: pointers, maps,
// chans, funcs, interfaces, and single-field wrappers around any of those.
func IsDirectAny(v any) bool {
	if v == nil {
		return false
	}

	return isDirectKind(reflect.TypeOf(v))
}

// IsDirect reports whether T is stored directly in an interface's data word;
// see [IsDirectAny].
func IsDirect[T any]() bool {
	return isDirectKind(reflect.TypeFor[T]())
}

// AssertInlinedAny fails t if storing a T in an any allocates, i.e. if T is
// not [IsDirect].
func AssertInlinedAny[T any](t *testing.T) {
	t.Helper()

	var z T
	var sink any
	allocs := testing.AllocsPerRun(100, func() {
		sink = z
	})
	_ = sink

	if allocs > 0 {
		t.Fatalf("expected %T to be stored inline in an any, got %v allocs/op", z, allocs)
	}
}
