package indexer

import (
	"context"
	"testing"

	"flureedb/catalog"
	"flureedb/db"
	"flureedb/flake"
)

func sid(t *testing.T, collection int32, n uint64) flake.SID {
	s, err := flake.NewSID(collection, n)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIndexSkipsWhenBelowThreshold(t *testing.T) {
	store := catalog.NewMemCatalog("memory")
	ix, err := New(store, 3)
	if err != nil {
		t.Fatal(err)
	}

	d := db.New("alice/main", "main", 100*1024, 500*1024)
	f := flake.New(sid(t, 1, 1), sid(t, flake.PredicateCollection, 1), flake.NumberObject(1), flake.T(-1), true, flake.NoMeta)
	d = d.WithNovelty(flake.T(-1), f)

	out, err := ix.Index(context.Background(), d, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.NeedsReindex() != d.NeedsReindex() {
		t.Fatal("expected Index to no-op below the reindex threshold")
	}
	if out.Commit.Index != nil {
		t.Fatal("expected no index pointer to be attached when skipped")
	}
}

func TestIndexReindexesAndAttachesPointer(t *testing.T) {
	store := catalog.NewMemCatalog("memory")
	ix, err := New(store, 3)
	if err != nil {
		t.Fatal(err)
	}

	d := db.New("alice/main", "main", 10, 500*1024) // tiny threshold forces reindex
	f := flake.New(sid(t, 1, 1), sid(t, flake.PredicateCollection, 1), flake.NumberObject(1), flake.T(-1), true, flake.NoMeta)
	d = d.WithNovelty(flake.T(-1), f)

	changes := make(chan catalog.Address, 16)
	out, err := ix.Index(context.Background(), d, changes)
	if err != nil {
		t.Fatal(err)
	}

	if out.NeedsReindex() {
		t.Fatal("expected novelty to be cleared after reindex")
	}
	if out.Commit.Index == nil {
		t.Fatal("expected a new index pointer to be attached")
	}
	if len(changes) == 0 {
		t.Fatal("expected at least one address emitted on the changes channel")
	}
}
