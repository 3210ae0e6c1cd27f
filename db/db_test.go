package db

import (
	"context"
	"testing"

	"flureedb/catalog"
	"flureedb/flake"
	"flureedb/inode"
)

func sid(t *testing.T, collection int32, n uint64) flake.SID {
	s, err := flake.NewSID(collection, n)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func assertFlake(t *testing.T, s, p uint64, o float64, txn int64) flake.Flake {
	return flake.New(sid(t, 1, s), sid(t, flake.PredicateCollection, p), flake.NumberObject(o), flake.T(txn), true, flake.NoMeta)
}

func retractFlake(t *testing.T, s, p uint64, o float64, txn int64) flake.Flake {
	return flake.New(sid(t, 1, s), sid(t, flake.PredicateCollection, p), flake.NumberObject(o), flake.T(txn), false, flake.NoMeta)
}

func spotBounds(t *testing.T, s uint64) (flake.Flake, flake.Flake) {
	lo := flake.New(sid(t, 1, s), sid(t, flake.PredicateCollection, 0), flake.NumberObject(-1e18), flake.T(1<<40), true, flake.NoMeta)
	hi := flake.New(sid(t, 1, s), sid(t, flake.PredicateCollection, uint64(1<<43)), flake.NumberObject(1e18), flake.T(-(1 << 40)), true, flake.NoMeta)
	return lo, hi
}

func TestMatchMergesNoveltyAndPersisted(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemCatalog("memory")
	resolver, err := inode.NewResolver(store, flake.Spot.Comparator(), 64)
	if err != nil {
		t.Fatal(err)
	}

	d := New("alice/main", "main", 0, 500*1024)
	d = d.WithNovelty(flake.T(-1), assertFlake(t, 1, 1, 10, -1))

	gc := inode.NewGarbageLogSet(3)
	indexed, err := d.Reindex(ctx, store, resolver, gc, flake.T(-1))
	if err != nil {
		t.Fatal(err)
	}
	if indexed.NeedsReindex() {
		t.Fatal("novelty should be empty right after reindex")
	}

	indexed = indexed.WithNovelty(flake.T(-2), assertFlake(t, 2, 1, 20, -2))

	lo1, hi1 := spotBounds(t, 1)
	persisted, err := indexed.Match(ctx, resolver, flake.Spot, lo1, hi1)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 1 || persisted[0].O.Num != 10 {
		t.Fatalf("expected the persisted flake for subject 1, got %+v", persisted)
	}

	lo2, hi2 := spotBounds(t, 2)
	novel, err := indexed.Match(ctx, resolver, flake.Spot, lo2, hi2)
	if err != nil {
		t.Fatal(err)
	}
	if len(novel) != 1 || novel[0].O.Num != 20 {
		t.Fatalf("expected the novelty flake for subject 2, got %+v", novel)
	}
}

func TestMatchAppliesRetractionAcrossCommits(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemCatalog("memory")
	resolver, err := inode.NewResolver(store, flake.Spot.Comparator(), 64)
	if err != nil {
		t.Fatal(err)
	}

	d := New("alice/main", "main", 0, 500*1024)
	d = d.WithNovelty(flake.T(-1), assertFlake(t, 1, 1, 1, -1))
	gc := inode.NewGarbageLogSet(3)
	d, err = d.Reindex(ctx, store, resolver, gc, flake.T(-1))
	if err != nil {
		t.Fatal(err)
	}

	d = d.WithNovelty(flake.T(-2), assertFlake(t, 1, 1, 2, -2), retractFlake(t, 1, 1, 1, -2))

	lo, hi := spotBounds(t, 1)
	results, err := d.Match(ctx, resolver, flake.Spot, lo, hi)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].O.Num != 2 {
		t.Fatalf("expected only the surviving assertion (o=2), got %+v", results)
	}
}

func TestAsOfExcludesLaterCommits(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemCatalog("memory")
	resolver, err := inode.NewResolver(store, flake.Spot.Comparator(), 64)
	if err != nil {
		t.Fatal(err)
	}

	d := New("alice/main", "main", 0, 500*1024)
	d = d.WithNovelty(flake.T(-1), assertFlake(t, 1, 1, 1, -1))
	gc := inode.NewGarbageLogSet(3)
	d, err = d.Reindex(ctx, store, resolver, gc, flake.T(-1))
	if err != nil {
		t.Fatal(err)
	}
	d = d.WithNovelty(flake.T(-2), assertFlake(t, 1, 1, 2, -2), retractFlake(t, 1, 1, 1, -2))

	lo, hi := spotBounds(t, 1)

	view := d.AsOf(flake.T(-1))
	results, err := view.Match(ctx, resolver, flake.Spot, lo, hi)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].O.Num != 1 {
		t.Fatalf("as-of(-1) should see only the original assertion (o=1), got %+v", results)
	}

	current, err := d.Match(ctx, resolver, flake.Spot, lo, hi)
	if err != nil {
		t.Fatal(err)
	}
	if len(current) != 1 || current[0].O.Num != 2 {
		t.Fatalf("current state should see o=2, got %+v", current)
	}
}

// TestAsOfSurvivesRetractionMergedByASecondReindex covers the case
// TestAsOfExcludesLaterCommits doesn't: the retraction must be physically
// merged into the leaf by a second reindex (inode.buildLeafSet's
// working.DisjAll) before as-of is asked about the time before it happened.
// Without the leaf's History recording what it superseded, as-of(-1) would
// come back empty instead of returning the pre-retraction assertion.
func TestAsOfSurvivesRetractionMergedByASecondReindex(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemCatalog("memory")
	resolver, err := inode.NewResolver(store, flake.Spot.Comparator(), 64)
	if err != nil {
		t.Fatal(err)
	}
	gc := inode.NewGarbageLogSet(3)

	d := New("alice/main", "main", 0, 500*1024)
	d = d.WithNovelty(flake.T(-1), assertFlake(t, 1, 1, 1, -1))
	d, err = d.Reindex(ctx, store, resolver, gc, flake.T(-1))
	if err != nil {
		t.Fatal(err)
	}

	// Retract the t=-1 assertion and merge it into the tree with a second
	// reindex, physically removing it from the leaf's live flake set.
	d = d.WithNovelty(flake.T(-2), retractFlake(t, 1, 1, 1, -2), assertFlake(t, 2, 1, 20, -2))
	d, err = d.Reindex(ctx, store, resolver, gc, flake.T(-2))
	if err != nil {
		t.Fatal(err)
	}

	lo, hi := spotBounds(t, 1)

	// Confirm the retraction really was physically merged: the current
	// persisted+novelty state no longer carries the o=1 assertion.
	current, err := d.Match(ctx, resolver, flake.Spot, lo, hi)
	if err != nil {
		t.Fatal(err)
	}
	if len(current) != 0 {
		t.Fatalf("expected the retracted assertion gone from current state, got %+v", current)
	}

	view := d.AsOf(flake.T(-1))
	asOf, err := view.Match(ctx, resolver, flake.Spot, lo, hi)
	if err != nil {
		t.Fatal(err)
	}
	if len(asOf) != 1 || asOf[0].O.Num != 1 {
		t.Fatalf("as-of(-1) should still recover the pre-retraction assertion (o=1) via leaf history, got %+v", asOf)
	}
}
