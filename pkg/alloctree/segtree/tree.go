package segtree

import (
	"github.com/alloctree/alloctree/pkg/alloctree/addr"
)

// Tree is an address-ordered red-black tree of free blocks all belonging to
// the same size class. It keeps a cached pointer to its leftmost (lowest
// address) node so the common "grab any free block of this size" path in
// multitree never has to walk down from the root.
type Tree struct {
	root  addr.Address
	first addr.Address
}

// Empty reports whether the tree holds no blocks.
func (t *Tree) Empty() bool { return t.root == addr.Null }

// First returns the lowest-address block in the tree, or addr.Null if empty.
// multitree's exact-size-class sweep always tries this block first.
func (t *Tree) First() addr.Address { return t.first }

func left(p addr.Address) addr.Address  { return at(p).left }
func right(p addr.Address) addr.Address { return at(p).right }

func setLeft(p, child addr.Address) {
	at(p).left = child
	if child != addr.Null {
		at(child).setParent(p)
	}
}

func setRight(p, child addr.Address) {
	at(p).right = child
	if child != addr.Null {
		at(child).setParent(p)
	}
}

func minimum(p addr.Address) addr.Address {
	for left(p) != addr.Null {
		p = left(p)
	}

	return p
}

func maximum(p addr.Address) addr.Address {
	for right(p) != addr.Null {
		p = right(p)
	}

	return p
}

// Next returns the in-order successor of p: the next higher address in the
// tree, or addr.Null if p is the maximum.
func (t *Tree) Next(p addr.Address) addr.Address {
	if right(p) != addr.Null {
		return minimum(right(p))
	}

	x, par := p, at(p).parent()
	for par != addr.Null && x == right(par) {
		x, par = par, at(par).parent()
	}

	return par
}

// Previous returns the in-order predecessor of p: the next lower address in
// the tree, or addr.Null if p is the minimum.
func (t *Tree) Previous(p addr.Address) addr.Address {
	if left(p) != addr.Null {
		return maximum(left(p))
	}

	x, par := p, at(p).parent()
	for par != addr.Null && x == left(par) {
		x, par = par, at(par).parent()
	}

	return par
}

// Find reports whether key is present in the tree, returning its address if
// so (always key itself, since nodes are addressed by their own location)
// or addr.Null if not found.
func (t *Tree) Find(key addr.Address) addr.Address {
	x := t.root
	for x != addr.Null {
		switch {
		case key < x:
			x = left(x)
		case key > x:
			x = right(x)
		default:
			return x
		}
	}

	return addr.Null
}

func (t *Tree) rotateLeft(x addr.Address) {
	y := right(x)
	at(x).right = left(y)
	if left(y) != addr.Null {
		at(left(y)).setParent(x)
	}

	at(y).setParent(at(x).parent())
	t.replaceInParent(x, y)
	setLeft(y, x)
}

func (t *Tree) rotateRight(x addr.Address) {
	y := left(x)
	at(x).left = right(y)
	if right(y) != addr.Null {
		at(right(y)).setParent(x)
	}

	at(y).setParent(at(x).parent())
	t.replaceInParent(x, y)
	setRight(y, x)
}

// replaceInParent points x's parent (or the tree root) at y, without
// touching y's own children.
func (t *Tree) replaceInParent(x, y addr.Address) {
	par := at(x).parent()
	switch {
	case par == addr.Null:
		t.root = y
	case x == left(par):
		at(par).left = y
	default:
		at(par).right = y
	}
}

// Insert places p (already carrying the key it was allocated at: its own
// address) into the tree.
func (t *Tree) Insert(p addr.Address) {
	reset(p)
	at(p).setColor(red)

	if t.root == addr.Null {
		t.root = p
		t.first = p
		at(p).setParentColor(addr.Null, black)
		return
	}

	x := t.root
	var par addr.Address
	goLeft := false
	for x != addr.Null {
		par = x
		if p < x {
			goLeft = true
			x = left(x)
		} else {
			goLeft = false
			x = right(x)
		}
	}

	at(p).setParent(par)
	if goLeft {
		at(par).left = p
	} else {
		at(par).right = p
	}

	if t.first == addr.Null || p < t.first {
		t.first = p
	}

	t.insertFixup(p)
}

func (t *Tree) insertFixup(z addr.Address) {
	for at(z).parent() != addr.Null && colorOf(at(z).parent()) == red {
		par := at(z).parent()
		gp := at(par).parent()

		if par == left(gp) {
			uncle := right(gp)
			if colorOf(uncle) == red {
				at(par).setColor(black)
				at(uncle).setColor(black)
				at(gp).setColor(red)
				z = gp
				continue
			}

			if z == right(par) {
				z = par
				t.rotateLeft(z)
				par = at(z).parent()
				gp = at(par).parent()
			}

			at(par).setColor(black)
			at(gp).setColor(red)
			t.rotateRight(gp)
		} else {
			uncle := left(gp)
			if colorOf(uncle) == red {
				at(par).setColor(black)
				at(uncle).setColor(black)
				at(gp).setColor(red)
				z = gp
				continue
			}

			if z == left(par) {
				z = par
				t.rotateRight(z)
				par = at(z).parent()
				gp = at(par).parent()
			}

			at(par).setColor(black)
			at(gp).setColor(red)
			t.rotateLeft(gp)
		}
	}

	at(t.root).setColor(black)
}

// Remove deletes p (which must be present) from the tree.
func (t *Tree) Remove(p addr.Address) {
	if t.first == p {
		t.first = t.Next(p)
	}

	y := p
	yOrigColor := colorOf(y)
	var x, xPar addr.Address

	switch {
	case left(p) == addr.Null:
		x = right(p)
		xPar = at(p).parent()
		t.replaceInParent(p, x)
		if x != addr.Null {
			at(x).setParent(xPar)
		}
	case right(p) == addr.Null:
		x = left(p)
		xPar = at(p).parent()
		t.replaceInParent(p, x)
		if x != addr.Null {
			at(x).setParent(xPar)
		}
	default:
		y = minimum(right(p))
		yOrigColor = colorOf(y)
		x = right(y)

		if at(y).parent() == p {
			xPar = y
		} else {
			xPar = at(y).parent()
			t.replaceInParent(y, x)
			if x != addr.Null {
				at(x).setParent(xPar)
			}
			at(y).right = right(p)
			at(right(p)).setParent(y)
		}

		t.replaceInParent(p, y)
		at(y).setParent(at(p).parent())
		at(y).left = left(p)
		at(left(p)).setParent(y)
		at(y).setColor(colorOf(p))
	}

	if yOrigColor == black {
		t.removeFixup(x, xPar)
	}

	reset(p)
}

// removeFixup restores the red-black invariants after a black node was
// spliced out. x may be addr.Null (a deleted leaf's missing child); xPar
// carries x's parent in that case, since a null x has no parent pointer of
// its own to read.
func (t *Tree) removeFixup(x, xPar addr.Address) {
	for x != t.root && colorOf(x) == black {
		if xPar == addr.Null {
			break
		}

		if x == left(xPar) {
			sib := right(xPar)
			if colorOf(sib) == red {
				at(sib).setColor(black)
				at(xPar).setColor(red)
				t.rotateLeft(xPar)
				sib = right(xPar)
			}

			if colorOf(left(sib)) == black && colorOf(right(sib)) == black {
				at(sib).setColor(red)
				x = xPar
				xPar = at(x).parent()
				continue
			}

			if colorOf(right(sib)) == black {
				if left(sib) != addr.Null {
					at(left(sib)).setColor(black)
				}
				at(sib).setColor(red)
				t.rotateRight(sib)
				sib = right(xPar)
			}

			at(sib).setColor(colorOf(xPar))
			at(xPar).setColor(black)
			if right(sib) != addr.Null {
				at(right(sib)).setColor(black)
			}
			t.rotateLeft(xPar)
			x = t.root
		} else {
			sib := left(xPar)
			if colorOf(sib) == red {
				at(sib).setColor(black)
				at(xPar).setColor(red)
				t.rotateRight(xPar)
				sib = left(xPar)
			}

			if colorOf(right(sib)) == black && colorOf(left(sib)) == black {
				at(sib).setColor(red)
				x = xPar
				xPar = at(x).parent()
				continue
			}

			if colorOf(left(sib)) == black {
				if right(sib) != addr.Null {
					at(right(sib)).setColor(black)
				}
				at(sib).setColor(red)
				t.rotateLeft(sib)
				sib = left(xPar)
			}

			at(sib).setColor(colorOf(xPar))
			at(xPar).setColor(black)
			if left(sib) != addr.Null {
				at(left(sib)).setColor(black)
			}
			t.rotateRight(xPar)
			x = t.root
		}
	}

	if x != addr.Null {
		at(x).setColor(black)
	}
}
