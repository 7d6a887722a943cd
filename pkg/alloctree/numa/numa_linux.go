//go:build linux

package numa

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/alloctree/alloctree/pkg/alloctree/addr"
)

// Bind implements [Policy]: it binds the page range [p, p+size) to this
// Settings' mode via mbind(2). A no-op (returning nil) when Nodes is
// empty, matching original_source's NO_MODE_FLAGS_NODEMASK_MAXNODE short
// circuit.
func (s Settings) Bind(p addr.Address, size int) error {
	mode, nodemask, hasMask, flags := s.modeAndFlags()
	if !hasMask {
		return nil
	}

	// maxnode is the nodemask's bit width in bits, plus one per mbind(2)'s
	// own convention (see original_source's mask_and_size).
	maxnode := uintptr(unsafe.Sizeof(nodemask))*8 + 1

	_, _, errno := unix.Syscall6(unix.SYS_MBIND,
		uintptr(p.Ptr()), uintptr(size),
		uintptr(mode), uintptr(unsafe.Pointer(&nodemask)), maxnode, uintptr(flags))
	if errno != 0 {
		return errno
	}

	return nil
}
