// Package db implements the immutable DB snapshot value (spec §3.5) and the
// small orthogonal capability traits (matcher, time traveler, indexable)
// (spec §9 "Polymorphism"). DB satisfies all three; asyncdb.AsyncDB
// satisfies only Matcher.
package db

import (
	"flureedb/commit"
	"flureedb/flake"
	"flureedb/fset"
	"flureedb/inode"
)

// Stats are coarse, best-effort accounting figures used for policy
// thresholds (spec §4.B "this need not be exact").
type Stats struct {
	FlakeCount int64
	SizeBytes  int64
}

// DB is an immutable snapshot: alias, branch, t, commit, the five
// persistent index roots, novelty, stats, schema, and policy (spec §3.5).
// Older DBs remain valid views forever; nothing here is ever mutated in
// place (spec §3.7).
type DB struct {
	Alias  string
	Branch string
	T      flake.T
	Commit commit.Commit

	Index map[flake.IndexName]inode.Ref // persistent roots; zero Ref means "no index yet"

	Novelty *fset.Novelty

	Stats  Stats
	Schema map[string]any // opaque: the schema/JSON-LD context compiler is an external collaborator
	Policy any            // opaque: policy/ACL evaluation is out of scope (spec §1 non-goals)

	ReindexMinBytes int64
	ReindexMaxBytes int64
}

// New builds the genesis DB for alias/branch: empty indexes, empty
// novelty, t at genesis (0).
func New(alias, branch string, reindexMin, reindexMax int64) *DB {
	return &DB{
		Alias:           alias,
		Branch:          branch,
		T:               flake.T(0),
		Index:           make(map[flake.IndexName]inode.Ref, len(flake.AllIndexes)),
		Novelty:         fset.NewNovelty(),
		ReindexMinBytes: reindexMin,
		ReindexMaxBytes: reindexMax,
	}
}

// WithNovelty returns a new DB with fs added to novelty and t advanced,
// leaving d untouched (spec §3.7: DBs are values).
func (d *DB) WithNovelty(t flake.T, fs ...flake.Flake) *DB {
	next := *d
	next.T = t
	next.Novelty = d.Novelty.Add(fs...)
	return &next
}

// WithCommit returns a new DB carrying c as its commit.
func (d *DB) WithCommit(c commit.Commit) *DB {
	next := *d
	next.Commit = c
	return &next
}
