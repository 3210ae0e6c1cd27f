// Package asyncdb implements the deferred-resolution database handle
// (spec §4.H): a one-shot cell that will eventually hold either a DB or
// an error, with every capability method awaiting resolution before
// delegating.
package asyncdb

import (
	"context"
	"sync"

	"flureedb/catalog"
	"flureedb/commit"
	"flureedb/db"
	"flureedb/flake"
	"flureedb/inode"
	"flureedb/pkg/ferr"
)

// AsyncDB is the handle {alias, branch, commit, t, db-chan} from spec
// §4.H. Alias, Branch, and T are readable synchronously (spec: "Every
// capability method ... await db-chan ... as-of/latest-t/aliases are
// synchronous" — here latest-t and aliases never block because they are
// captured at construction, before the underlying DB is necessarily
// resolved).
type AsyncDB struct {
	Alias  string
	Branch string

	mu         sync.RWMutex
	commitMeta commit.Commit
	t          flake.T

	once     sync.Once
	done     chan struct{}
	resolved db.Matcher
	err      error
}

// New returns an unresolved handle. t and c are the best-known commit
// metadata at creation time (e.g. from the branch state the caller just
// read), readable synchronously via LatestT/CommitMeta before resolution
// completes.
func New(alias, branch string, t flake.T, c commit.Commit) *AsyncDB {
	return &AsyncDB{
		Alias:      alias,
		Branch:     branch,
		commitMeta: c,
		t:          t,
		done:       make(chan struct{}),
	}
}

// Resolved returns an already-resolved handle wrapping d directly, useful
// when a caller has a concrete DB in hand but needs to satisfy an
// AsyncDB-shaped contract.
func Resolved(alias, branch string, d *db.DB) *AsyncDB {
	a := New(alias, branch, d.T, d.Commit)
	a.Resolve(d, nil)
	return a
}

// Resolve delivers the final value. Only the first call has any effect
// (single-delivery semantics); later calls are silently ignored, matching
// a promise cell rather than a channel that could be double-written.
func (a *AsyncDB) Resolve(d *db.DB, err error) {
	a.once.Do(func() {
		a.mu.Lock()
		a.resolved = d
		a.err = err
		if d != nil {
			a.t = d.T
			a.commitMeta = d.Commit
		}
		a.mu.Unlock()
		close(a.done)
	})
}

// ResolveSnapshot delivers a non-DB Matcher (e.g. a db.TimeView produced
// by AsOf) as the final value.
func (a *AsyncDB) ResolveSnapshot(snap db.Matcher, err error) {
	a.once.Do(func() {
		a.mu.Lock()
		a.resolved = snap
		a.err = err
		a.mu.Unlock()
		close(a.done)
	})
}

// Get awaits resolution and returns the underlying value, or the error it
// was resolved with, or ctx's error if ctx is done first.
func (a *AsyncDB) Get(ctx context.Context) (db.Matcher, error) {
	select {
	case <-a.done:
		a.mu.RLock()
		defer a.mu.RUnlock()
		return a.resolved, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LatestT returns the handle's best-known t without blocking on
// resolution (spec §4.H: "latest-t" is synchronous).
func (a *AsyncDB) LatestT() flake.T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.t
}

// CommitMeta returns the handle's best-known commit without blocking.
func (a *AsyncDB) CommitMeta() commit.Commit {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.commitMeta
}

// Match awaits resolution, propagates any resolution error, and delegates
// to the underlying value (spec §4.H's capability-method contract).
func (a *AsyncDB) Match(ctx context.Context, resolver *inode.Resolver, idx flake.IndexName, lo, hi flake.Flake) ([]flake.Flake, error) {
	v, err := a.Get(ctx)
	if err != nil {
		return nil, err
	}
	return v.Match(ctx, resolver, idx, lo, hi)
}

// AsOf returns a new AsyncDB immediately, non-blocking; its own
// resolution applies time-travel to the underlying DB once that resolves
// (spec §4.H: "as-of(t) returns a new AsyncDB whose resolution applies
// time-travel to the underlying DB").
func (a *AsyncDB) AsOf(queryT flake.T) *AsyncDB {
	next := New(a.Alias, a.Branch, queryT, a.CommitMeta())
	go func() {
		v, err := a.Get(context.Background())
		if err != nil {
			next.ResolveSnapshot(nil, err)
			return
		}
		underlying, ok := v.(*db.DB)
		if !ok {
			next.ResolveSnapshot(nil, ferr.New(ferr.KindInvalidRequest, "as-of requires a concrete db, not another view"))
			return
		}
		next.ResolveSnapshot(underlying.AsOf(queryT), nil)
	}()
	return next
}

// Reindex requires the underlying value to be a concrete *db.DB (not
// already a time-traveled view) and delegates to db.DB.Reindex once
// resolved.
func (a *AsyncDB) Reindex(ctx context.Context, store catalog.ContentStore, resolver *inode.Resolver, gcs map[flake.IndexName]*inode.GarbageLog, newT flake.T) (*db.DB, error) {
	v, err := a.Get(ctx)
	if err != nil {
		return nil, err
	}
	underlying, ok := v.(*db.DB)
	if !ok {
		return nil, ferr.New(ferr.KindInvalidRequest, "reindex requires a concrete db, not a time-traveled view")
	}
	return underlying.Reindex(ctx, store, resolver, gcs, newT)
}
