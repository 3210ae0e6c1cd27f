// Package inode implements the persistent, content-addressed index tree
// (spec §3.4, §4.C): branch and leaf nodes, lazy async resolution behind a
// shared LRU, reindex of novelty into new leaves/branches, and the garbage
// log that tracks superseded node addresses.
//
// The tree shape generalizes core/storage.go's flat content-addressed
// blob store (CIDv1 address, disk-backed cache) to a tree of such blobs,
// and reuses the same hashing/caching idioms at each node.
package inode

import (
	"context"
	"fmt"
	"sort"

	"flureedb/catalog"
	"flureedb/flake"
	"flureedb/fset"
)

// Kind tags whether a Node is a branch (routes to children) or a leaf
// (holds flakes directly).
type Kind uint8

const (
	KindLeaf Kind = iota
	KindBranch
)

// Ref is an unresolved pointer to a child node: its content address plus the
// two bounds a branch needs to binary-search without resolving the child
// (spec §3.4).
type Ref struct {
	Address catalog.Address
	First   flake.Flake
	RHS     *flake.Flake
}

// Node is a resolved branch or leaf of the persistent index tree.
type Node struct {
	Kind    Kind
	Address catalog.Address // empty until the node has been written
	First   flake.Flake
	RHS     *flake.Flake
	T       flake.T // base t: the newest transaction merged into this node

	Children []Ref      // branch only, ordered by First under the tree's comparator
	Flakes   *fset.Set  // leaf only
	History  []flake.Flake // leaf only: flakes superseded by a later reindex of this leaf
}

// NewLeaf builds a leaf node (unwritten: Address is empty until Write).
func NewLeaf(cmp flake.Comparator, t flake.T, flakes *fset.Set, history []flake.Flake) (*Node, error) {
	if flakes == nil || flakes.Size() == 0 {
		return nil, fmt.Errorf("inode: leaf must hold at least one flake")
	}
	items := flakes.ToSlice()
	return &Node{
		Kind:    KindLeaf,
		First:   items[0],
		T:       t,
		Flakes:  flakes,
		History: history,
	}, nil
}

// NewBranch builds a branch node from already-ordered children.
func NewBranch(t flake.T, children []Ref) (*Node, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("inode: branch must have at least one child")
	}
	return &Node{
		Kind:     KindBranch,
		First:    children[0].First,
		T:        t,
		Children: children,
	}, nil
}

// CheckInvariant verifies comparator(First, RHS) < 0 (spec §3.4's node
// invariant), when RHS is present.
func (n *Node) CheckInvariant(cmp flake.Comparator) error {
	if n.RHS == nil {
		return nil
	}
	if cmp(n.First, *n.RHS) >= 0 {
		return fmt.Errorf("inode: node invariant violated: first-flake not < rhs")
	}
	return nil
}

// Ref summarizes n as a child reference. n must already be written
// (Address non-empty).
func (n *Node) Ref() Ref {
	return Ref{Address: n.Address, First: n.First, RHS: n.RHS}
}

// ResolveHistory returns the flakes a later reindex of this leaf physically
// superseded (spec §3.4's "resolve-history: async history-list"). History is
// stored inline on the leaf rather than behind a separate content address,
// so this never touches the store, but keeps the ctx parameter and async
// naming to match the other resolution operations this node supports.
func (n *Node) ResolveHistory(ctx context.Context) ([]flake.Flake, error) {
	if n.Kind != KindLeaf {
		return nil, fmt.Errorf("inode: resolve-history is leaf-only")
	}
	return append([]flake.Flake(nil), n.History...), nil
}

// ResolveToT rewinds n to the state it held as of t (spec §3.4's
// "resolve-to-t(t, novelty, ...): async Node'"). It replays every flake the
// leaf currently holds, every flake History remembers superseding, and any
// caller-supplied novelty not yet folded into this leaf, keeping only
// entries at or before t and re-applying SPO-winner resolution — exactly
// the operation db.TimeView needs once a retraction has been physically
// merged into the tree by a later reindex, at which point the original
// assertion is no longer reachable through n.Flakes alone.
func (n *Node) ResolveToT(ctx context.Context, cmp flake.Comparator, t flake.T, novelty []flake.Flake) (*Node, error) {
	if n.Kind != KindLeaf {
		return nil, fmt.Errorf("inode: resolve-to-t is leaf-only")
	}
	combined := make([]flake.Flake, 0, n.Flakes.Size()+len(n.History)+len(novelty))
	combined = append(combined, n.Flakes.ToSlice()...)
	combined = append(combined, n.History...)
	combined = append(combined, novelty...)

	inHorizon := make([]flake.Flake, 0, len(combined))
	for _, f := range combined {
		if !f.T.NewerThan(t) {
			inHorizon = append(inHorizon, f)
		}
	}
	winners := spoWinners(inHorizon)
	if len(winners) == 0 {
		return nil, nil
	}
	sort.Slice(winners, func(i, j int) bool { return cmp(winners[i], winners[j]) < 0 })
	return NewLeaf(cmp, t, fset.FromSlice(cmp, winners), n.History)
}

// spoWinners collapses flakes sharing (s, p, o) to the one with the
// smallest t (the most recent write as of the horizon already applied by
// the caller), dropping the group if that winner is a retraction — the same
// resolution db.dedupeLatest applies to query results, duplicated here
// since inode cannot import db (db already imports inode).
func spoWinners(flakes []flake.Flake) []flake.Flake {
	type bucket struct {
		rep    flake.Flake
		winner flake.Flake
		has    bool
	}
	buckets := make(map[uint64][]*bucket)

	for _, f := range flakes {
		h := f.SPOHash()
		var b *bucket
		for _, cand := range buckets[h] {
			if cand.rep.EqualSPO(f) {
				b = cand
				break
			}
		}
		if b == nil {
			b = &bucket{rep: f}
			buckets[h] = append(buckets[h], b)
		}
		if !b.has || f.T.NewerThan(b.winner.T) {
			b.winner = f
			b.has = true
		}
	}

	out := make([]flake.Flake, 0, len(flakes))
	for _, group := range buckets {
		for _, b := range group {
			if b.winner.Op {
				out = append(out, b.winner)
			}
		}
	}
	return out
}
