// Package segtree implements the segregated-tree core (C4): an
// address-ordered red-black tree whose nodes are embedded in the free
// memory they describe, with no separate bookkeeping allocation.
//
// Node layout and the parent-pointer/colour bit-packing are grounded on
// original_source's red-black tree (node.rs, parent_and_color.rs): a node's
// colour is packed into the otherwise-unused low bit of its parent address,
// the same trick the teacher's pkg/arena/art/node.Ref[T] uses to pack a type
// tag into a pointer's low bits. This requires every node address to be
// aligned to at least 2 bytes; multitree's minimum block size (64 bytes,
// a power of two larger than sizeof(Node)) guarantees that with room to
// spare.
package segtree

import (
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
)

// color is packed into the low bit of a Node's parent address.
type color uintptr

const (
	red   color = 0
	black color = 1
)

// Size is sizeof(Node): the smallest block that can be held in a Tree, since
// every free block must be able to host a Node in place.
const Size = 3 * 8

// Node is a red-black tree node living in place at the start of a free
// memory block. It has no fields beyond left/right/parent+colour: the block
// it describes is implicit (its own address, and the size class the Tree
// holding it is for).
type Node struct {
	left, right addr.Address
	pc          addr.Address // parent address, low bit holds colour
}

func at(p addr.Address) *Node {
	return addr.Cast[Node](p)
}

// addrOf returns the address of the block n lives in: n's own address, since
// a Node is placed at the very start of its block.
func addrOf(n *Node) addr.Address {
	return addr.Of(n)
}

func (n *Node) parent() addr.Address { return addr.Address(uintptr(n.pc) &^ 1) }
func (n *Node) color() color         { return color(uintptr(n.pc) & 1) }

func (n *Node) setParentColor(parent addr.Address, c color) {
	n.pc = addr.Address((uintptr(parent) &^ 1) | uintptr(c))
}

func (n *Node) setParent(parent addr.Address) { n.setParentColor(parent, n.color()) }
func (n *Node) setColor(c color)               { n.setParentColor(n.parent(), c) }

// reset clears a node back to a freshly-placed state. Not required for
// correctness (every field is set on insert) but it zeroes stale pointers in
// memory that debug tooling or a crash dump might otherwise walk into.
func reset(p addr.Address) {
	n := at(p)
	n.left, n.right, n.pc = addr.Null, addr.Null, addr.Null
}

func colorOf(p addr.Address) color {
	if p == addr.Null {
		return black
	}

	return at(p).color()
}
