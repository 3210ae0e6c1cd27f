// Package branch implements the atomic branch-state cell (spec §4.F):
// the current commit and DB pair, plus the single-consumer index queue
// that feeds the indexer.
package branch

import (
	"context"
	"fmt"
	"sync"

	"flureedb/asyncdb"
	"flureedb/catalog"
	"flureedb/commit"
	"flureedb/db"
	"flureedb/pkg/ferr"

	"github.com/sirupsen/logrus"
)

// IndexingOpts mirrors the immutable indexing-opts map a Branch is
// constructed with (spec §4.F): thresholds and the disable switch are
// fixed for the branch's lifetime.
type IndexingOpts struct {
	Disabled bool
	MinBytes int64
	MaxBytes int64
	MaxOld   int
}

// IndexFunc is the indexer capability a Branch drives its queue against
// (spec §4.G's `indexer.index(db, changes-ch) -> async DB'`). The branch
// passes its changes channel through; indexer.Index emits each new index
// root address on it. IndexFunc must always return a concrete DB, never a
// deferred handle.
type IndexFunc func(ctx context.Context, d *db.DB, changes chan<- catalog.Address) (*db.DB, error)

// state is the atomic {commit, current-db} cell.
type state struct {
	commit commit.Commit
	db     *db.DB
}

// Result is what a completed (or failed) indexing job reports back,
// mirroring §4.F.3's `{:status, :commit, :db}` / `{:status, :error}`.
type Result struct {
	Status string // "success" or "error"
	Commit commit.Commit
	DB     *db.DB
	Err    error
}

// Branch is the atomic cell plus its index queue (spec §4.F). Name is the
// branch name within its ledger (e.g. "main").
type Branch struct {
	Name string
	Opts IndexingOpts

	mu    sync.Mutex
	state state

	queue   chan *db.DB // sliding buffer of size 1, per §4.F.3
	changes chan<- catalog.Address
	complete chan<- Result

	lastIdx commit.Commit
	hasLast bool

	closed bool
	wg     sync.WaitGroup
}

// New returns a Branch seeded with an initial commit/db pair and starts
// its index-queue consumer unless indexing is disabled. changes and
// complete are optional observer channels (may be nil); indexFn is the
// indexer capability driving each job.
func New(name string, initial commit.Commit, initialDB *db.DB, opts IndexingOpts, indexFn IndexFunc, changes chan<- catalog.Address, complete chan<- Result) *Branch {
	b := &Branch{
		Name:     name,
		Opts:     opts,
		state:    state{commit: initial, db: initialDB},
		queue:    make(chan *db.DB, 1),
		changes:  changes,
		complete: complete,
	}
	if !opts.Disabled && indexFn != nil {
		b.wg.Add(1)
		go b.consume(context.Background(), indexFn)
	}
	return b
}

// Current returns the branch's current {commit, db} pair.
func (b *Branch) Current() (commit.Commit, *db.DB) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.commit, b.state.db
}

// UpdateCommit implements spec §4.F.1: validate the hash chain, decide
// between a direct publish and a rebase onto a newer index, then (unless
// indexing is disabled) enqueue the result for reindexing.
func (b *Branch) UpdateCommit(ctx context.Context, newDB *db.DB) error {
	b.mu.Lock()
	current := b.state.commit
	b.mu.Unlock()

	next := newDB.Commit
	var prevPtr *commit.Commit
	if current.ID != "" {
		prevPtr = &current
	}
	if err := commit.Validate(prevPtr, next); err != nil {
		return err
	}

	publish := newDB
	if next.HasNewerIndexThan(&current) {
		rebased, err := b.rebaseOntoNewerIndex(ctx, newDB)
		if err != nil {
			return fmt.Errorf("branch: rebase onto newer index: %w", err)
		}
		publish = rebased
	}

	b.mu.Lock()
	b.state = state{commit: publish.Commit, db: publish}
	b.mu.Unlock()

	if !b.Opts.Disabled {
		b.enqueue(publish)
	}
	return nil
}

// enqueue implements the sliding-buffer-of-1 semantics: a full queue means
// a stale pending job gets dropped in favor of the newest DB.
func (b *Branch) enqueue(d *db.DB) {
	select {
	case b.queue <- d:
	default:
		select {
		case <-b.queue:
		default:
		}
		select {
		case b.queue <- d:
		default:
		}
	}
}

// TriggerIndex implements spec §4.I's "trigger-index!": manually enqueue
// the branch's current db for reindexing. Unlike UpdateCommit, there is no
// new commit to validate or rebase here — the db is already live — so this
// goes straight to the same sliding-buffer-of-1 queue UpdateCommit feeds.
// A disabled branch has no consumer draining the queue, so triggering
// returns a KindInvalidRequest error rather than a silent enqueue nothing
// will ever read.
func (b *Branch) TriggerIndex() error {
	if b.Opts.Disabled {
		return ferr.New(ferr.KindInvalidRequest, fmt.Sprintf("branch %s: indexing is disabled", b.Name))
	}
	b.mu.Lock()
	d := b.state.db
	b.mu.Unlock()
	b.enqueue(d)
	return nil
}

// rebaseOntoNewerIndex wraps newDB, which already carries the newer index
// pointer, in a resolved AsyncDB and returns the concrete db it resolves
// to (§4.F.1). No other commit's state is merged into it.
func (b *Branch) rebaseOntoNewerIndex(ctx context.Context, newDB *db.DB) (*db.DB, error) {
	a := asyncdb.Resolved(b.Name, b.Name, newDB)
	resolved, err := a.Get(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := resolved.(*db.DB)
	if !ok {
		return nil, ferr.New(ferr.KindUnexpectedError, "rebase target resolved to a non-concrete db")
	}
	return d, nil
}

// ApplyIndexResult implements §4.F.2: reconcile an indexer result against
// the branch's live commit, replacing state, rebasing, or rejecting a
// stale future index as appropriate.
func (b *Branch) ApplyIndexResult(ctx context.Context, indexed *db.DB) error {
	b.mu.Lock()
	current := b.state.commit
	b.mu.Unlock()

	switch {
	case current.T == indexed.Commit.T:
		if indexed.Commit.HasNewerIndexThan(&current) {
			b.mu.Lock()
			b.state = state{commit: indexed.Commit, db: indexed}
			b.mu.Unlock()
		}
		return nil
	case current.T.NewerThan(indexed.Commit.T):
		// commits advanced while indexing ran: keep current's commit, but
		// carry indexed's index pointer forward onto the live db.
		b.mu.Lock()
		merged := *b.state.db
		merged.Index = indexed.Index
		merged.Commit.Index = indexed.Commit.Index
		b.state = state{commit: merged.Commit, db: &merged}
		b.mu.Unlock()
		return nil
	default:
		logrus.Warnf("branch %s: rejecting index result from the future (indexed t=%v, current t=%v)", b.Name, indexed.Commit.T, current.T)
		return ferr.New(ferr.KindInvalidCommit, "index result is newer than the branch's current commit")
	}
}

// consume is the index-queue consumer loop (spec §4.F.3).
func (b *Branch) consume(ctx context.Context, indexFn IndexFunc) {
	defer b.wg.Done()
	for d := range b.queue {
		d = b.useLatestIndex(d)

		var res Result
		indexed, err := indexFn(ctx, d, b.changes)
		if err != nil {
			logrus.Warnf("branch %s: indexing failed: %v", b.Name, err)
			res = Result{Status: "error", Err: err}
		} else {
			prevCommit, _ := b.Current()
			if err := b.ApplyIndexResult(ctx, indexed); err != nil {
				res = Result{Status: "error", Err: err}
			} else {
				nowCommit, nowDB := b.Current()
				res = Result{Status: "success", Commit: nowCommit, DB: nowDB}
				if prevCommit.ID != nowCommit.ID {
					b.mu.Lock()
					b.lastIdx = nowCommit
					b.hasLast = true
					b.mu.Unlock()
				}
			}
		}
		if b.complete != nil {
			select {
			case b.complete <- res:
			default:
			}
		}
	}
}

// useLatestIndex returns d unchanged unless d's t matches the commit of
// the last recorded indexing job (one that changed the branch's commit id)
// and that commit carries a newer index than d's, in which case it
// returns the branch's current db to avoid redundant work (spec §4.F.3).
func (b *Branch) useLatestIndex(d *db.DB) *db.DB {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasLast {
		return d
	}
	if d.Commit.T == b.lastIdx.T && b.lastIdx.HasNewerIndexThan(&d.Commit) {
		return b.state.db
	}
	return d
}

// Close stops the index-queue consumer and waits for it to exit.
func (b *Branch) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.queue)
	b.wg.Wait()
}
