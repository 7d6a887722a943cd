package segtree

import (
	"fmt"
	"io"
	"iter"

	"github.com/alloctree/alloctree/pkg/alloctree/addr"
)

// IterateForward walks the tree from lowest to highest address. Safe for the
// usual "find a candidate, maybe stop" loop; not safe across a Remove of the
// node just yielded (take Next before removing).
func (t *Tree) IterateForward() iter.Seq[addr.Address] {
	return func(yield func(addr.Address) bool) {
		for p := t.first; p != addr.Null; p = t.Next(p) {
			if !yield(p) {
				return
			}
		}
	}
}

// IterateReverse walks the tree from highest to lowest address.
func (t *Tree) IterateReverse() iter.Seq[addr.Address] {
	return func(yield func(addr.Address) bool) {
		if t.root == addr.Null {
			return
		}

		for p := maximum(t.root); p != addr.Null; p = t.Previous(p) {
			if !yield(p) {
				return
			}
		}
	}
}

// Dump renders the tree's in-order address sequence to w, one address per
// line. Used only for debug dumps — IterateForward already pays for the
// Next/Previous walk this needs, so Dump adds nothing but the formatting.
func (t *Tree) Dump(w io.Writer) error {
	for p := range t.IterateForward() {
		if _, err := fmt.Fprintf(w, "%#x\n", uintptr(p)); err != nil {
			return err
		}
	}

	return nil
}
