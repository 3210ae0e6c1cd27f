package fset

import "flureedb/flake"

// Novelty holds the flakes staged for a DB but not yet merged into the
// persistent index trees (spec §3.5, §4.D): one Set per index order, all
// five always holding the same flake population.
type Novelty struct {
	sets map[flake.IndexName]*Set
}

// NewNovelty returns an empty novelty buffer with one set per index order.
func NewNovelty() *Novelty {
	n := &Novelty{sets: make(map[flake.IndexName]*Set, len(flake.AllIndexes))}
	for _, idx := range flake.AllIndexes {
		n.sets[idx] = New(idx.Comparator())
	}
	return n
}

// Set returns the sorted set for the given index order.
func (n *Novelty) Set(idx flake.IndexName) *Set { return n.sets[idx] }

// Add inserts fs into all five orderings, keeping them in lock-step (spec
// §4.D: "adding to the DB inserts into all five").
func (n *Novelty) Add(fs ...flake.Flake) *Novelty {
	out := &Novelty{sets: make(map[flake.IndexName]*Set, len(flake.AllIndexes))}
	for _, idx := range flake.AllIndexes {
		out.sets[idx] = n.sets[idx].ConjAll(fs)
	}
	return out
}

// Size is novelty.size from spec §4.D: the byte size of the spot ordering
// alone, used for reindex threshold decisions.
func (n *Novelty) Size() int64 {
	return n.sets[flake.Spot].SizeBytes()
}

// Count returns the number of staged flakes (same across all five orders).
func (n *Novelty) Count() int {
	return n.sets[flake.Spot].Size()
}

// Empty reports whether no flakes are staged.
func (n *Novelty) Empty() bool { return n.Count() == 0 }

// Clear returns a fresh, empty novelty buffer — used after a successful
// reindex of all five orders (spec §4.G.3).
func (n *Novelty) Clear() *Novelty { return NewNovelty() }

// ClearIndex returns a novelty buffer with only idx reset to empty, leaving
// the other four orderings untouched. Reindex normally clears all five at
// once, but a partial reindex (one order over threshold, others not) needs
// this.
func (n *Novelty) ClearIndex(idx flake.IndexName) *Novelty {
	out := &Novelty{sets: make(map[flake.IndexName]*Set, len(flake.AllIndexes))}
	for _, name := range flake.AllIndexes {
		if name == idx {
			out.sets[name] = New(idx.Comparator())
		} else {
			out.sets[name] = n.sets[name]
		}
	}
	return out
}
