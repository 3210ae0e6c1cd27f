package db

import (
	"context"

	"flureedb/flake"
	"flureedb/inode"
)

// TimeTraveler is the as-of capability DB implements (spec §9). AsyncDB
// has its own AsOf returning a deferred *AsyncDB, so it does not satisfy
// this interface.
type TimeTraveler interface {
	AsOf(queryT flake.T) *TimeView
}

// TimeView restricts d to the state as of queryT without rebuilding any
// index: every Match result is filtered to flakes committed at queryT or
// before (spec §4.H "as-of(t) returns ... applies time-travel to the
// underlying DB", §8 scenario S1).
type TimeView struct {
	db     *DB
	queryT flake.T
}

// AsOf returns a time-bound view over d. Because t only ever decreases,
// "at or before queryT" means t >= queryT (spec §3.1's decreasing-t
// convention).
func (d *DB) AsOf(queryT flake.T) *TimeView {
	return &TimeView{db: d, queryT: queryT}
}

// Match resolves persisted leaves with resolve-to-t awareness (via
// matchLeavesAsOf) rather than DB.matchRaw's plain leaf scan, then drops any
// flake newer than the view's horizon and re-applies SPO-winner resolution
// over what remains, so a retraction that happened after queryT never
// hides its target and a write that happened after queryT never appears.
//
// Plain DB.matchRaw is not enough here: once a leaf has been rewritten by a
// later reindex, a retraction folded into that leaf physically removes the
// assertion it cancels (fset.Set.DisjAll in inode.buildLeafSet) — the
// assertion is gone from the leaf's current flake set, not just shadowed by
// a newer t. Reading that leaf's current flakes can never recover it; only
// replaying Flakes ∪ History through Node.ResolveToT can (spec §3.4).
func (v *TimeView) Match(ctx context.Context, resolver *inode.Resolver, idx flake.IndexName, lo, hi flake.Flake) ([]flake.Flake, error) {
	cmp := idx.Comparator()

	var persisted []flake.Flake
	if root, ok := v.db.Index[idx]; ok && root.Address != "" {
		var err error
		persisted, err = matchLeavesAsOf(ctx, resolver, root, lo, hi, cmp, v.queryT)
		if err != nil {
			return nil, err
		}
	}
	novel := v.db.Novelty.Set(idx).Range(lo, hi)

	merged := make([]flake.Flake, 0, len(persisted)+len(novel))
	merged = append(merged, persisted...)
	merged = append(merged, novel...)

	var inHorizon []flake.Flake
	for _, f := range merged {
		if !f.T.NewerThan(v.queryT) {
			inHorizon = append(inHorizon, f)
		}
	}
	out := dedupeLatest(inHorizon)
	sortFlakes(out, cmp)
	return out, nil
}

// matchLeavesAsOf is matchLeaves with resolve-to-t awareness: a leaf whose
// own T is newer than queryT (it was rewritten by a reindex that happened
// after the queried time) is replayed back to queryT via Node.ResolveToT
// instead of having its current flake set read directly.
func matchLeavesAsOf(ctx context.Context, resolver *inode.Resolver, root inode.Ref, lo, hi flake.Flake, cmp flake.Comparator, queryT flake.T) ([]flake.Flake, error) {
	n, err := resolver.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	if n.Kind == inode.KindLeaf {
		return leafRangeAsOf(ctx, n, lo, hi, cmp, queryT)
	}

	var out []flake.Flake
	for _, child := range n.Children {
		if child.RHS != nil && cmp(*child.RHS, lo) <= 0 {
			continue
		}
		if cmp(child.First, hi) > 0 {
			break
		}
		leaf, err := resolver.Resolve(ctx, child)
		if err != nil {
			return nil, err
		}
		fs, err := leafRangeAsOf(ctx, leaf, lo, hi, cmp, queryT)
		if err != nil {
			return nil, err
		}
		out = append(out, fs...)
	}
	return out, nil
}

func leafRangeAsOf(ctx context.Context, n *inode.Node, lo, hi flake.Flake, cmp flake.Comparator, queryT flake.T) ([]flake.Flake, error) {
	if !n.T.NewerThan(queryT) {
		return n.Flakes.Range(lo, hi), nil
	}
	replayed, err := n.ResolveToT(ctx, cmp, queryT, nil)
	if err != nil {
		return nil, err
	}
	if replayed == nil {
		return nil, nil
	}
	return replayed.Flakes.Range(lo, hi), nil
}
