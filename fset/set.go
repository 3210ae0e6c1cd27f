// Package fset implements the in-memory sorted flake collections that back
// novelty buffers and persistent-index leaves (spec §4.A/§4.B): ordered
// insert/remove/contains, range scans, split-at-key, and bounded take, all
// driven by one of the five flake.Comparator orders.
package fset

import (
	"sort"

	"flureedb/flake"
)

// Set is an immutable, ordered collection of flakes under one comparator.
// Every mutator returns a new Set; the receiver is never modified, so older
// Sets (and the DB values that hold them) remain valid forever (spec §3.7).
type Set struct {
	cmp   flake.Comparator
	items []flake.Flake
}

// New returns an empty set ordered by cmp.
func New(cmp flake.Comparator) *Set {
	return &Set{cmp: cmp}
}

// FromSlice builds a set from an unsorted slice of flakes, deduplicating
// flakes the comparator considers equal (later entries win).
func FromSlice(cmp flake.Comparator, fs []flake.Flake) *Set {
	return New(cmp).ConjAll(fs)
}

func (s *Set) search(f flake.Flake) (idx int, found bool) {
	idx = sort.Search(len(s.items), func(i int) bool {
		return s.cmp(s.items[i], f) >= 0
	})
	found = idx < len(s.items) && s.cmp(s.items[idx], f) == 0
	return idx, found
}

// Insert returns a new set with f inserted. If an equal-under-comparator
// flake already exists, it is replaced.
func (s *Set) Insert(f flake.Flake) *Set {
	idx, found := s.search(f)
	out := make([]flake.Flake, 0, len(s.items)+1)
	out = append(out, s.items[:idx]...)
	out = append(out, f)
	if found {
		out = append(out, s.items[idx+1:]...)
	} else {
		out = append(out, s.items[idx:]...)
	}
	return &Set{cmp: s.cmp, items: out}
}

// Remove returns a new set with f removed, if present.
func (s *Set) Remove(f flake.Flake) *Set {
	idx, found := s.search(f)
	if !found {
		return s
	}
	out := make([]flake.Flake, 0, len(s.items)-1)
	out = append(out, s.items[:idx]...)
	out = append(out, s.items[idx+1:]...)
	return &Set{cmp: s.cmp, items: out}
}

// Contains reports whether a comparator-equal flake is present.
func (s *Set) Contains(f flake.Flake) bool {
	_, found := s.search(f)
	return found
}

// Size returns the number of flakes in the set.
func (s *Set) Size() int { return len(s.items) }

// SizeBytes sums flake.Flake.SizeBytes over the set (spec §4.A).
func (s *Set) SizeBytes() int64 {
	var total int64
	for _, f := range s.items {
		total += int64(f.SizeBytes())
	}
	return total
}

// ToSlice returns the set's flakes in comparator order. The caller must not
// mutate the result.
func (s *Set) ToSlice() []flake.Flake { return s.items }

// Range returns every flake f with lo <= f <= hi under the set's
// comparator, inclusive on both ends.
func (s *Set) Range(lo, hi flake.Flake) []flake.Flake {
	start := sort.Search(len(s.items), func(i int) bool {
		return s.cmp(s.items[i], lo) >= 0
	})
	end := sort.Search(len(s.items), func(i int) bool {
		return s.cmp(s.items[i], hi) > 0
	})
	if start >= end {
		return nil
	}
	return s.items[start:end]
}

// SplitAtKey partitions the set into (left, right) where left contains
// every flake <= f (inclusive of a comparator-equal match) and right
// contains everything strictly greater.
func (s *Set) SplitAtKey(f flake.Flake) (left, right *Set) {
	idx := sort.Search(len(s.items), func(i int) bool {
		return s.cmp(s.items[i], f) > 0
	})
	left = &Set{cmp: s.cmp, items: s.items[:idx]}
	right = &Set{cmp: s.cmp, items: s.items[idx:]}
	return left, right
}

// Take returns a new set holding the first n flakes (or fewer, if the set
// is smaller), preserving set semantics.
func (s *Set) Take(n int) *Set {
	if n >= len(s.items) {
		return s
	}
	if n <= 0 {
		return New(s.cmp)
	}
	return &Set{cmp: s.cmp, items: s.items[:n]}
}

// ConjAll bulk-inserts fs, merging comparator-equal entries (last write
// wins) in roughly O(n log n) rather than one O(n) insert per flake.
func (s *Set) ConjAll(fs []flake.Flake) *Set {
	if len(fs) == 0 {
		return s
	}
	merged := make([]flake.Flake, 0, len(s.items)+len(fs))
	merged = append(merged, s.items...)
	merged = append(merged, fs...)
	sort.SliceStable(merged, func(i, j int) bool { return s.cmp(merged[i], merged[j]) < 0 })
	out := merged[:0]
	for i, f := range merged {
		if i > 0 && s.cmp(merged[i-1], f) == 0 {
			out[len(out)-1] = f // later entry wins
			continue
		}
		out = append(out, f)
	}
	return &Set{cmp: s.cmp, items: out}
}

// DisjAll bulk-removes every flake in fs that matches (by full comparator
// equality) an entry already in the set.
func (s *Set) DisjAll(fs []flake.Flake) *Set {
	if len(fs) == 0 || len(s.items) == 0 {
		return s
	}
	drop := FromSlice(s.cmp, fs)
	out := make([]flake.Flake, 0, len(s.items))
	for _, f := range s.items {
		if !drop.Contains(f) {
			out = append(out, f)
		}
	}
	return &Set{cmp: s.cmp, items: out}
}

// Iterator walks a Set in comparator order without materializing a copy.
type Iterator struct {
	items []flake.Flake
	pos   int
}

// Iterate returns a lazy ordered view over the set (spec §4.A "range...
// returning a lazy ordered view").
func (s *Set) Iterate() *Iterator { return &Iterator{items: s.items} }

// Next returns the next flake and true, or the zero value and false once
// exhausted.
func (it *Iterator) Next() (flake.Flake, bool) {
	if it.pos >= len(it.items) {
		return flake.Flake{}, false
	}
	f := it.items[it.pos]
	it.pos++
	return f, true
}
