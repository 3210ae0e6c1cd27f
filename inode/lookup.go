package inode

import (
	"context"
	"sort"

	"flureedb/flake"
)

// Lookup descends from root to the leaf that would contain target, per
// spec §4.C.2: binary search on first-flake, choosing the greatest child
// whose first-flake <= target, or (when strictlyAfter) the next child.
func Lookup(ctx context.Context, r *Resolver, cmp flake.Comparator, root Ref, target flake.Flake, strictlyAfter bool) (*Node, error) {
	n, err := r.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	for n.Kind == KindBranch {
		idx := childIndex(cmp, n.Children, target, strictlyAfter)
		n, err = r.Resolve(ctx, n.Children[idx])
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// childIndex finds the greatest child whose First <= target, or the next
// child over if strictlyAfter asks for the first child strictly after
// target.
func childIndex(cmp flake.Comparator, children []Ref, target flake.Flake, strictlyAfter bool) int {
	// children[i].First is ascending under cmp by construction (spec §3.4:
	// "children of a branch partition the flake space contiguously").
	i := sort.Search(len(children), func(i int) bool {
		return cmp(children[i].First, target) > 0
	})
	// i is the first child whose First > target; the greatest child with
	// First <= target is i-1.
	idx := i - 1
	if idx < 0 {
		idx = 0
	}
	if strictlyAfter && idx+1 < len(children) {
		idx++
	}
	return idx
}
