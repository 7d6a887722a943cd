//go:build !linux

package numa

import "github.com/alloctree/alloctree/pkg/alloctree/addr"

// Bind implements [Policy] as a no-op outside Linux: NUMA placement is a
// Linux/Android kernel facility (original_source gates the same way on
// target_os), and every other platform this module targets has no
// mbind(2) equivalent.
func (s Settings) Bind(p addr.Address, size int) error {
	return nil
}
