package ledger

import (
	"context"
	"testing"
	"time"

	"flureedb/branch"
	"flureedb/catalog"
	"flureedb/db"
	"flureedb/flake"
	"flureedb/nameservice"
)

func sid(t *testing.T, collection int32, n uint64) flake.SID {
	s, err := flake.NewSID(collection, n)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestLedger(t *testing.T) (*Ledger, *nameservice.MemNameservice) {
	store := catalog.NewMemCatalog("memory")
	pub := nameservice.NewMemNameservice()
	l := Create(Config{
		Alias:            "alice/main",
		CommitCatalog:    store,
		IndexCatalog:     store,
		PrimaryPublisher: pub,
		Indexing:         branch.IndexingOpts{Disabled: true, MinBytes: 100 * 1024, MaxBytes: 500 * 1024},
	})
	return l, pub
}

func TestCreateSeedsGenesisCommit(t *testing.T) {
	l, _ := newTestLedger(t)
	d, err := l.CurrentDB("")
	if err != nil {
		t.Fatal(err)
	}
	if d.T != 0 {
		t.Fatalf("expected genesis t=0, got %v", d.T)
	}
	if d.Commit.ID == "" {
		t.Fatal("expected genesis commit to have a computed id")
	}
}

func TestCommitAdvancesBranchAndPublishes(t *testing.T) {
	l, pub := newTestLedger(t)

	d, err := l.CurrentDB("")
	if err != nil {
		t.Fatal(err)
	}
	f := flake.New(sid(t, 1, 1), sid(t, flake.PredicateCollection, 1), flake.NumberObject(7), flake.T(-1), true, flake.NoMeta)
	next := d.WithNovelty(flake.T(-1), f)

	c, err := l.Commit(context.Background(), next, CommitOpts{Message: "first write"})
	if err != nil {
		t.Fatal(err)
	}
	if c.T != flake.T(-1) {
		t.Fatalf("expected committed t=-1, got %v", c.T)
	}

	got, err := l.CurrentDB("")
	if err != nil {
		t.Fatal(err)
	}
	if got.Commit.ID != c.ID {
		t.Fatalf("expected branch to carry the new commit, got %q want %q", got.Commit.ID, c.ID)
	}
	if !pub.PublishedLedger("alice/main") {
		t.Fatal("expected the commit to be published")
	}
}

func TestCommitRejectsWrongT(t *testing.T) {
	l, _ := newTestLedger(t)
	d, err := l.CurrentDB("")
	if err != nil {
		t.Fatal(err)
	}
	bad := d.WithNovelty(flake.T(-5)) // skips ahead, breaking the chain
	if _, err := l.Commit(context.Background(), bad, CommitOpts{}); err == nil {
		t.Fatal("expected a hash-chain validation error for a t that doesn't decrement by one")
	}
}

func TestNotifyRecognizesCurrentCommit(t *testing.T) {
	l, _ := newTestLedger(t)
	d, _ := l.CurrentDB("")

	outcome, err := l.Notify(context.Background(), "main", d.Commit)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != NotifyCurrent {
		t.Fatalf("expected NotifyCurrent, got %v", outcome)
	}
}

func TestTriggerIndexRejectsWhenIndexingDisabled(t *testing.T) {
	l, _ := newTestLedger(t) // newTestLedger disables indexing
	if err := l.TriggerIndex(context.Background(), ""); err == nil {
		t.Fatal("expected an error triggering indexing on a disabled branch")
	}
}

func TestTriggerIndexEnqueuesCurrentDBWithoutCommitValidation(t *testing.T) {
	store := catalog.NewMemCatalog("memory")
	pub := nameservice.NewMemNameservice()

	indexed := make(chan *db.DB, 4)
	indexFn := func(ctx context.Context, d *db.DB, changes chan<- catalog.Address) (*db.DB, error) {
		out := *d
		indexed <- &out
		return &out, nil
	}

	l := Create(Config{
		Alias:            "alice/main",
		CommitCatalog:    store,
		IndexCatalog:     store,
		PrimaryPublisher: pub,
		Indexing:         branch.IndexingOpts{MinBytes: 100 * 1024, MaxBytes: 500 * 1024},
		IndexFn:          indexFn,
	})

	current, err := l.CurrentDB("")
	if err != nil {
		t.Fatal(err)
	}

	// Before the fix, TriggerIndex routed through UpdateCommit and always
	// failed hash-chain validation since it re-submitted the branch's own
	// current commit as if it were a new one.
	if err := l.TriggerIndex(context.Background(), ""); err != nil {
		t.Fatalf("TriggerIndex should enqueue the current db without commit validation, got: %v", err)
	}

	select {
	case got := <-indexed:
		if got.Commit.ID != current.Commit.ID {
			t.Fatalf("expected indexFn to run against the branch's current commit %q, got %q", current.Commit.ID, got.Commit.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("TriggerIndex did not enqueue a job for indexFn to consume")
	}
}
