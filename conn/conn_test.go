package conn

import (
	"context"
	"testing"
	"time"

	"flureedb/branch"
	"flureedb/catalog"
	"flureedb/ledger"
	"flureedb/nameservice"
)

func newTestLedger(t *testing.T, alias string) *ledger.Ledger {
	store := catalog.NewMemCatalog("memory")
	pub := nameservice.NewMemNameservice()
	return ledger.Create(ledger.Config{
		Alias:            alias,
		CommitCatalog:    store,
		IndexCatalog:     store,
		PrimaryPublisher: pub,
		Indexing:         branch.IndexingOpts{Disabled: true, MinBytes: 100 * 1024, MaxBytes: 500 * 1024},
	})
}

func TestRegisterLedgerCachesSecondCaller(t *testing.T) {
	loader := func(ctx context.Context, alias string) (*ledger.Ledger, <-chan nameservice.SubscriptionMessage, error) {
		return newTestLedger(t, alias), nil, nil
	}
	r := New(loader, 0, time.Minute)

	cached1, p1 := r.RegisterLedger("alice/main")
	if cached1 {
		t.Fatal("expected the first registration to be uncached")
	}
	cached2, p2 := r.RegisterLedger("alice/main")
	if !cached2 {
		t.Fatal("expected the second registration to hit the cache")
	}
	if p1 != p2 {
		t.Fatal("expected both registrations to share the same promise")
	}
}

func TestLoadLedgerFulfillsAndCaches(t *testing.T) {
	var loads int
	loader := func(ctx context.Context, alias string) (*ledger.Ledger, <-chan nameservice.SubscriptionMessage, error) {
		loads++
		return newTestLedger(t, alias), nil, nil
	}
	r := New(loader, 0, time.Minute)

	ctx := context.Background()
	l1, err := r.LoadLedger(ctx, "bob/main")
	if err != nil {
		t.Fatal(err)
	}
	l2, err := r.LoadLedger(ctx, "bob/main")
	if err != nil {
		t.Fatal(err)
	}
	if l1 != l2 {
		t.Fatal("expected the same ledger instance on a cached load")
	}
	if loads != 1 {
		t.Fatalf("expected the loader to run exactly once, ran %d times", loads)
	}
}

func TestReleaseLedgerClearsState(t *testing.T) {
	loader := func(ctx context.Context, alias string) (*ledger.Ledger, <-chan nameservice.SubscriptionMessage, error) {
		return newTestLedger(t, alias), nil, nil
	}
	r := New(loader, 0, time.Minute)
	ctx := context.Background()
	if _, err := r.LoadLedger(ctx, "carol/main"); err != nil {
		t.Fatal(err)
	}

	r.ReleaseLedger("carol/main")

	cached, _ := r.RegisterLedger("carol/main")
	if cached {
		t.Fatal("expected release to clear the registry entry, so re-registering is uncached")
	}
}

func TestIdleCleanupReleasesPastTimeout(t *testing.T) {
	loader := func(ctx context.Context, alias string) (*ledger.Ledger, <-chan nameservice.SubscriptionMessage, error) {
		return newTestLedger(t, alias), nil, nil
	}
	r := New(loader, 0, 10*time.Millisecond)
	ctx := context.Background()
	if _, err := r.LoadLedger(ctx, "dave/main"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)
	r.sweepIdle()

	cached, _ := r.RegisterLedger("dave/main")
	if cached {
		t.Fatal("expected idle sweep to release the ledger past its timeout")
	}
}

func TestIdleCleanupSkipsWhileIndexing(t *testing.T) {
	loader := func(ctx context.Context, alias string) (*ledger.Ledger, <-chan nameservice.SubscriptionMessage, error) {
		return newTestLedger(t, alias), nil, nil
	}
	r := New(loader, 0, 10*time.Millisecond)
	ctx := context.Background()
	if _, err := r.LoadLedger(ctx, "erin/main"); err != nil {
		t.Fatal(err)
	}

	pub := nameservice.NewMemNameservice()
	if err := pub.IndexStart(ctx, "erin/main", "host:1"); err != nil {
		t.Fatal(err)
	}
	r.SetPublication("erin/main", pub)

	time.Sleep(20 * time.Millisecond)
	r.sweepIdle()

	cached, _ := r.RegisterLedger("erin/main")
	if !cached {
		t.Fatal("expected the ledger to remain cached while indexing is in progress")
	}
}
