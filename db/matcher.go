package db

import (
	"context"
	"sort"

	"flureedb/flake"
	"flureedb/inode"
)

// Matcher is the range-query contract shared by DB, the time-traveling
// view, and asyncdb.AsyncDB (spec §9 "matcher over triple patterns").
type Matcher interface {
	Match(ctx context.Context, resolver *inode.Resolver, idx flake.IndexName, lo, hi flake.Flake) ([]flake.Flake, error)
}

// Match returns every flake in [lo, hi] under idx's comparator, merging
// the persistent tree with novelty not yet reindexed (spec §8 properties
// 9-10: range-query laws hold over the union of both).
func (d *DB) Match(ctx context.Context, resolver *inode.Resolver, idx flake.IndexName, lo, hi flake.Flake) ([]flake.Flake, error) {
	raw, err := d.matchRaw(ctx, resolver, idx, lo, hi)
	if err != nil {
		return nil, err
	}
	out := dedupeLatest(raw)
	sortFlakes(out, idx.Comparator())
	return out, nil
}

// matchRaw merges the persistent tree with novelty over [lo, hi] without
// deduping SPO winners, so TimeView can filter by horizon first.
func (d *DB) matchRaw(ctx context.Context, resolver *inode.Resolver, idx flake.IndexName, lo, hi flake.Flake) ([]flake.Flake, error) {
	cmp := idx.Comparator()

	var persisted []flake.Flake
	if root, ok := d.Index[idx]; ok && root.Address != "" {
		leaves, err := matchLeaves(ctx, resolver, root, lo, hi, cmp)
		if err != nil {
			return nil, err
		}
		persisted = leaves
	}

	novel := d.Novelty.Set(idx).Range(lo, hi)

	merged := make([]flake.Flake, 0, len(persisted)+len(novel))
	merged = append(merged, persisted...)
	merged = append(merged, novel...)
	return merged, nil
}

func sortFlakes(fs []flake.Flake, cmp flake.Comparator) {
	sort.SliceStable(fs, func(i, j int) bool { return cmp(fs[i], fs[j]) < 0 })
}

// matchLeaves resolves root (a branch or a lone leaf, per inode's flat
// reindex layout) and collects every leaf's in-range flakes whose child
// bounds intersect [lo, hi].
func matchLeaves(ctx context.Context, resolver *inode.Resolver, root inode.Ref, lo, hi flake.Flake, cmp flake.Comparator) ([]flake.Flake, error) {
	n, err := resolver.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	if n.Kind == inode.KindLeaf {
		return n.Flakes.Range(lo, hi), nil
	}

	var out []flake.Flake
	for _, child := range n.Children {
		if child.RHS != nil && cmp(*child.RHS, lo) <= 0 {
			continue // RHS is an exclusive upper bound; <= lo means nothing in child reaches lo
		}
		if cmp(child.First, hi) > 0 {
			break // children are ordered; nothing further can intersect
		}
		leaf, err := resolver.Resolve(ctx, child)
		if err != nil {
			return nil, err
		}
		out = append(out, leaf.Flakes.Range(lo, hi)...)
	}
	return out, nil
}

// dedupeLatest collapses flakes that share (s,p,o) to the one with the
// smallest t (the most recent write), dropping the group entirely if that
// winner is a retraction. Grouping is by SPOHash (with an EqualSPO check
// against collisions) rather than adjacency, since under the tspo
// comparator same-(s,p,o) entries are not sorted next to each other.
func dedupeLatest(flakes []flake.Flake) []flake.Flake {
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
