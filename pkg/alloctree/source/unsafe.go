package source

import (
	"unsafe"

	"github.com/alloctree/alloctree/pkg/alloctree/addr"
)

func unsafeSliceData(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}

func unsafeSlice(p addr.Address, size int) []byte {
	return unsafe.Slice((*byte)(p.Ptr()), size)
}
