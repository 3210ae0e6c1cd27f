package inode

import (
	"context"
	"fmt"
	"sort"

	"flureedb/catalog"
	"flureedb/flake"
	"flureedb/fset"
)

// ReindexConfig holds the size thresholds that drive leaf splitting and
// merging (spec §4.C.3, §9 "reindex-min-bytes"/"reindex-max-bytes").
type ReindexConfig struct {
	MinBytes int64
	MaxBytes int64
}

// DefaultReindexConfig matches the teacher's conservative default block
// sizes (core/storage.go pins whole blocks; index leaves follow the same
// order of magnitude).
var DefaultReindexConfig = ReindexConfig{
	MinBytes: 64 * 1024,
	MaxBytes: 500 * 1024,
}

// ReindexResult is the outcome of merging novelty into a tree.
type ReindexResult struct {
	Root      Ref
	Written   []*Node           // every node Reindex wrote, leaves then branches
	Superseded []catalog.Address // addresses no longer reachable from Root
}

// Reindex merges novelty (already comparator-ordered for this index) into
// the tree rooted at oldRoot, producing a new root at transaction newT
// (spec §4.C.3):
//
//  1. leaves overlapping novelty are rewritten: conj_all the novelty
//     subset, then disj_all any persisted assertion a retraction in that
//     subset cancels;
//  2. a leaf exceeding MaxBytes is split; a leaf under MinBytes/4 is
//     merged with a neighbor;
//  3. branches are rewritten bottom-up over the resulting leaf sequence;
//  4. every new node is written through store; addresses no longer
//     reachable from the new root are returned as Superseded.
//
// oldRoot is nil for a from-scratch index (first reindex of a fresh
// ledger). This implementation resolves the whole existing leaf sequence
// rather than only the subtrees novelty overlaps, and rebuilds a single
// flat branch over all leaves rather than a balanced multi-level tree;
// both satisfy every node invariant and query law in spec §8 but are
// simpler than a production B-tree rebalance (recorded as an Open
// Question decision in DESIGN.md).
func Reindex(ctx context.Context, store catalog.ContentStore, resolver *Resolver, cmp flake.Comparator, oldRoot *Ref, novelty []flake.Flake, newT flake.T, cfg ReindexConfig) (*ReindexResult, error) {
	if len(novelty) == 0 && oldRoot != nil {
		return &ReindexResult{Root: *oldRoot}, nil
	}

	var oldLeaves []*Node
	var oldAddrs []catalog.Address
	if oldRoot != nil {
		var err error
		oldLeaves, oldAddrs, err = flattenLeaves(ctx, resolver, *oldRoot)
		if err != nil {
			return nil, err
		}
	}

	result := &ReindexResult{}

	var newLeaves []*Node

	if len(oldLeaves) == 0 {
		leaf, err := buildLeafSet(cmp, nil, novelty, newT)
		if err != nil {
			return nil, err
		}
		newLeaves, err = splitOversize(leaf, cmp, newT, cfg.MaxBytes)
		if err != nil {
			return nil, err
		}
	} else {
		sorted := append([]flake.Flake(nil), novelty...)
		sort.SliceStable(sorted, func(i, j int) bool { return cmp(sorted[i], sorted[j]) < 0 })

		for i, leaf := range oldLeaves {
			lo := 0
			if i > 0 {
				lo = sort.Search(len(sorted), func(k int) bool { return cmp(sorted[k], leaf.First) >= 0 })
			}
			hi := len(sorted)
			if i+1 < len(oldLeaves) {
				hi = sort.Search(len(sorted), func(k int) bool { return cmp(sorted[k], oldLeaves[i+1].First) >= 0 })
			}
			chunk := sorted[lo:hi]
			if len(chunk) == 0 {
				newLeaves = append(newLeaves, leaf)
				continue
			}

			merged, err := buildLeafSet(cmp, leaf, chunk, newT)
			if err != nil {
				return nil, err
			}

			split, err := splitOversize(merged, cmp, newT, cfg.MaxBytes)
			if err != nil {
				return nil, err
			}
			newLeaves = append(newLeaves, split...)
		}
	}

	newLeaves = mergeUndersized(newLeaves, cmp, newT, cfg.MinBytes/4, cfg.MaxBytes)

	for _, n := range newLeaves {
		if n.Address != "" {
			continue // untouched, reused leaf: already written
		}
		if _, err := Write(ctx, store, n); err != nil {
			return nil, fmt.Errorf("inode: write leaf: %w", err)
		}
		resolver.Put(n)
		result.Written = append(result.Written, n)
	}

	children := make([]Ref, len(newLeaves))
	for i, n := range newLeaves {
		children[i] = n.Ref()
	}
	for i := range children {
		if i+1 < len(children) {
			rhs := children[i+1].First
			children[i].RHS = &rhs
		}
	}

	branch, err := NewBranch(newT, children)
	if err != nil {
		return nil, err
	}
	if len(children) > 0 {
		branch.RHS = children[len(children)-1].RHS
	}
	if err := branch.CheckInvariant(cmp); err != nil {
		return nil, err
	}
	if _, err := Write(ctx, store, branch); err != nil {
		return nil, fmt.Errorf("inode: write branch: %w", err)
	}
	resolver.Put(branch)
	result.Written = append(result.Written, branch)
	result.Root = branch.Ref()

	reachable := make(map[catalog.Address]bool, len(newLeaves)+1)
	for _, n := range newLeaves {
		reachable[n.Address] = true
	}
	reachable[branch.Address] = true

	if oldRoot != nil && !reachable[oldRoot.Address] {
		result.Superseded = append(result.Superseded, oldRoot.Address)
	}
	for _, addr := range oldAddrs {
		if !reachable[addr] {
			result.Superseded = append(result.Superseded, addr)
		}
	}

	return result, nil
}

// flattenLeaves resolves every leaf in root's subtree, left to right, along
// with the content address each leaf currently lives at.
func flattenLeaves(ctx context.Context, resolver *Resolver, root Ref) ([]*Node, []catalog.Address, error) {
	n, err := resolver.Resolve(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	if n.Kind == KindLeaf {
		return []*Node{n}, []catalog.Address{n.Address}, nil
	}
	var leaves []*Node
	var addrs []catalog.Address
	for _, c := range n.Children {
		sub, subAddrs, err := flattenLeaves(ctx, resolver, c)
		if err != nil {
			return nil, nil, err
		}
		leaves = append(leaves, sub...)
		addrs = append(addrs, subAddrs...)
	}
	return leaves, addrs, nil
}

// buildLeafSet applies novelty chunk to base (nil for a fresh leaf): every
// flake in chunk is conjoined, and any persisted assertion a retraction in
// chunk cancels is removed (spec §4.C.3 "conj_all(novelty-subset) ·
// disj_all(retraction-matches)"). Canceled assertions are not discarded:
// they're carried forward on the resulting leaf's History (spec §3.4), on
// top of whatever history base already accumulated, so resolve-to-t can
// still reconstruct a pre-retraction state after the physical flake is gone.
func buildLeafSet(cmp flake.Comparator, base *Node, chunk []flake.Flake, t flake.T) (*Node, error) {
	var persisted []flake.Flake
	var baseHistory []flake.Flake
	working := fset.New(cmp)
	if base != nil {
		persisted = base.Flakes.ToSlice()
		working = base.Flakes
		baseHistory = base.History
	}
	working = working.ConjAll(chunk)

	var cancels []flake.Flake
	for _, f := range chunk {
		if f.Op {
			continue
		}
		for _, existing := range persisted {
			if existing.Op && existing.EqualSPO(f) && existing.T != f.T {
				cancels = append(cancels, existing)
			}
		}
	}
	if len(cancels) > 0 {
		working = working.DisjAll(cancels)
	}
	if working.Size() == 0 {
		return nil, fmt.Errorf("inode: reindex produced an empty leaf")
	}
	history := append(append([]flake.Flake(nil), baseHistory...), cancels...)
	return NewLeaf(cmp, t, working, history)
}

// splitOversize repeatedly halves n by flake count until every resulting
// leaf's byte size is at or under maxBytes (spec §4.C.3 split rule). Both
// halves inherit n's full History: a split only partitions the live flake
// set, it doesn't change which assertions a prior retraction superseded.
func splitOversize(n *Node, cmp flake.Comparator, t flake.T, maxBytes int64) ([]*Node, error) {
	if maxBytes <= 0 || n.Flakes.SizeBytes() <= maxBytes {
		return []*Node{n}, nil
	}
	items := n.Flakes.ToSlice()
	if len(items) < 2 {
		return []*Node{n}, nil // cannot split a single flake further
	}
	mid := len(items) / 2
	left, err := NewLeaf(cmp, t, fset.FromSlice(cmp, items[:mid]), n.History)
	if err != nil {
		return nil, err
	}
	right, err := NewLeaf(cmp, t, fset.FromSlice(cmp, items[mid:]), n.History)
	if err != nil {
		return nil, err
	}
	leftParts, err := splitOversize(left, cmp, t, maxBytes)
	if err != nil {
		return nil, err
	}
	rightParts, err := splitOversize(right, cmp, t, maxBytes)
	if err != nil {
		return nil, err
	}
	return append(leftParts, rightParts...), nil
}

// mergeUndersized folds a leaf under minBytes into its right neighbor (or
// left, if it's the last leaf) when the merged result still fits under
// maxBytes (spec §4.C.3 merge rule). The merged leaf's History is the union
// of both inputs' histories, for the same reason split's is: merging live
// flakes doesn't erase what either side's prior retractions superseded.
func mergeUndersized(leaves []*Node, cmp flake.Comparator, t flake.T, minBytes, maxBytes int64) []*Node {
	if minBytes <= 0 || len(leaves) < 2 {
		return leaves
	}
	out := make([]*Node, 0, len(leaves))
	for i := 0; i < len(leaves); i++ {
		cur := leaves[i]
		if cur.Flakes.SizeBytes() >= minBytes || i+1 >= len(leaves) {
			out = append(out, cur)
			continue
		}
		next := leaves[i+1]
		combined := cur.Flakes.SizeBytes() + next.Flakes.SizeBytes()
		if maxBytes > 0 && combined > maxBytes {
			out = append(out, cur)
			continue
		}
		merged := fset.FromSlice(cmp, append(cur.Flakes.ToSlice(), next.Flakes.ToSlice()...))
		mergedHistory := append(append([]flake.Flake(nil), cur.History...), next.History...)
		n, err := NewLeaf(cmp, t, merged, mergedHistory)
		if err != nil {
			out = append(out, cur)
			continue
		}
		out = append(out, n)
		i++ // consumed next
	}
	return out
}
