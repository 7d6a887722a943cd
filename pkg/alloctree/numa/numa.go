// Package numa is the NUMA policy glue seam for [source.Mmap]: a node set
// and allocation policy a caller can attach to a Source so that pages it
// obtains are bound, preferred, or interleaved across specific NUMA nodes
// once backed by real physical memory.
//
// Grounded on original_source's memory_sources/mmap/numa package
// (numa_node_bit_set.rs, numa_settings.rs): the node bitmask and mode-flag
// shape (MPOL_F_STATIC_NODES/MPOL_F_RELATIVE_NODES, MPOL_MF_STRICT/MOVE)
// are carried over unchanged, since they are Linux kernel ABI constants,
// not implementation choices. Outside Linux, original_source's NumaSettings
// collapses to a no-op, which Settings.Bind here does too.
package numa

import (
	"fmt"

	"github.com/alloctree/alloctree/pkg/alloctree/addr"
)

// Policy is the external NUMA placement seam a Memory Source may
// optionally consult when obtaining a region: where new pages should
// preferably land, and how to pin pages already obtained to that
// placement. [None] is the default, no-op implementation; [Settings] is
// the real mbind(2)-backed one.
type Policy interface {
	// PreferredNode returns the node new allocations should favor, or -1
	// for no preference.
	PreferredNode() int

	// Bind applies this policy to the page range [p, p+size).
	Bind(p addr.Address, size int) error
}

// None is the default [Policy]: no node preference, and Bind is a no-op.
// A [source.Mmap] with no policy attached behaves exactly as it did before
// NUMA support existed.
type None struct{}

// PreferredNode implements [Policy].
func (None) PreferredNode() int { return -1 }

// Bind implements [Policy].
func (None) Bind(p addr.Address, size int) error { return nil }

// NodeSet is a bitmask of NUMA node indices, node 0 in the low bit. The
// zero value is the empty set, meaning "no preference — allocate on the
// local node."
type NodeSet uint64

// Insert adds node to the set.
func (s NodeSet) Insert(node uint) NodeSet { return s | NodeSet(1)<<node }

// Remove removes node from the set.
func (s NodeSet) Remove(node uint) NodeSet { return s &^ (NodeSet(1) << node) }

// Has reports whether node is a member of the set.
func (s NodeSet) Has(node uint) bool { return s&(NodeSet(1)<<node) != 0 }

// IsEmpty reports whether the set has no members.
func (s NodeSet) IsEmpty() bool { return s == 0 }

// Mode selects how pages are placed across the nodes named by a [NodeSet].
// The numeric values match Linux's MPOL_* constants so Settings can pass
// them straight through to mbind(2).
type Mode int32

const (
	// ModeDefault leaves placement to the kernel's ordinary local-node
	// policy; the NodeSet is ignored.
	ModeDefault Mode = 0

	// ModeBind restricts allocation to exactly the nodes in the set,
	// failing (under Strict) rather than falling back to another node.
	ModeBind Mode = 2

	// ModeInterleave rotates allocations round-robin across the nodes in
	// the set, for workloads that spread one large structure evenly.
	ModeInterleave Mode = 3

	// ModePreferred allocates from the first node in the set when
	// possible, falling back to another node rather than failing.
	ModePreferred Mode = 1
)

const (
	mpolFStaticNodes   = 1 << 15
	mpolFRelativeNodes = 1 << 14
	mpolMFStrict       = 1 << 0
	mpolMFMove         = 1 << 1
)

// Settings bundles a placement [Mode] over a [NodeSet] with the
// static/relative node-numbering and strictness flags mbind(2) exposes. It
// implements [Policy]. The zero value is ModeDefault over the empty
// NodeSet: no NUMA preference at all, matching original_source's
// Default::default() for NumaNodeBitSet.
type Settings struct {
	Mode  Mode
	Nodes NodeSet

	// StaticNodes and RelativeNodes select how Nodes' indices are
	// interpreted; see original_source's field docs — Linux does not remap
	// a static nodemask when the thread's cpuset context changes, while a
	// relative one is reinterpreted against the thread's current cpuset.
	StaticNodes   bool
	RelativeNodes bool

	// Strict forces migration to the requested nodes (or failure) rather
	// than allowing the kernel to place pages wherever is convenient.
	Strict bool
}

func (s Settings) String() string {
	if s.Nodes.IsEmpty() {
		return "numa: no preference (local node)"
	}

	return fmt.Sprintf("numa: mode=%d nodes=%#x strict=%v", s.Mode, s.Nodes, s.Strict)
}

// PreferredNode implements [Policy]: the lowest-numbered node in the set,
// or -1 if the set is empty.
func (s Settings) PreferredNode() int {
	if s.Nodes.IsEmpty() {
		return -1
	}

	for node := uint(0); node < 64; node++ {
		if s.Nodes.Has(node) {
			return int(node)
		}
	}

	return -1
}

func (s Settings) modeAndFlags() (mode int32, nodemask uint64, hasMask bool, flags uint32) {
	if s.Nodes.IsEmpty() {
		return 0, 0, false, 0
	}

	mode = int32(s.Mode)
	if s.StaticNodes {
		mode |= mpolFStaticNodes
	}
	if s.RelativeNodes {
		mode |= mpolFRelativeNodes
	}

	if s.Strict {
		flags = mpolMFStrict | mpolMFMove
	}

	return mode, uint64(s.Nodes), true, flags
}

var (
	_ Policy = None{}
	_ Policy = Settings{}
)
