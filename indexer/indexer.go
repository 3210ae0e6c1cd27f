// Package indexer implements the async reindex pipeline (spec §4.G): fold
// novelty into the five persistent trees, write the produced nodes
// through the index catalog, and attach a new index pointer to the
// commit. It always returns a concrete DB, never a deferred handle.
package indexer

import (
	"context"
	"fmt"

	"flureedb/catalog"
	"flureedb/commit"
	"flureedb/db"
	"flureedb/flake"
	"flureedb/inode"
)

// Indexer holds the shared collaborators every reindex needs: the
// content store nodes are written to, the resolver sharing its cache
// with query paths, and one garbage log per index tracking superseded
// roots.
type Indexer struct {
	Store    catalog.ContentStore
	Resolver *inode.Resolver
	Garbage  map[flake.IndexName]*inode.GarbageLog
}

// New builds an Indexer backed by store, with a fresh resolver and
// garbage-log set retaining up to maxOld historical roots per index.
func New(store catalog.ContentStore, maxOld int) (*Indexer, error) {
	resolver, err := inode.NewResolver(store, flake.Spot.Comparator(), 4096)
	if err != nil {
		return nil, fmt.Errorf("indexer: new resolver: %w", err)
	}
	return &Indexer{
		Store:    store,
		Resolver: resolver,
		Garbage:  inode.NewGarbageLogSet(maxOld),
	}, nil
}

// Index implements spec §4.G: reindex every index whose novelty has
// crossed the reindex-min-bytes threshold, write new nodes through the
// store, and return a DB carrying the new index pointer on its commit.
// Only the new root address of each index is emitted on changes; the
// addresses of the other nodes a reindex writes are not.
func (ix *Indexer) Index(ctx context.Context, d *db.DB, changes chan<- catalog.Address) (*db.DB, error) {
	if !d.NeedsReindex() {
		return d, nil
	}

	before := d.Stats
	next, err := d.Reindex(ctx, ix.Store, ix.Resolver, ix.Garbage, d.T)
	if err != nil {
		return nil, fmt.Errorf("indexer: reindex: %w", err)
	}

	if changes != nil {
		for _, idxName := range flake.AllIndexes {
			root := next.Index[idxName]
			if root.Address == "" {
				continue
			}
			select {
			case changes <- root.Address:
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				// best-effort: a full changes channel must never block
				// indexing itself (spec §4.G is about correctness of the
				// index, not guaranteed delivery of replication events).
			}
		}
	}

	spotRoot := next.Index[flake.Spot]
	indexPtr := &commit.IndexRef{
		ID:      string(spotRoot.Address),
		Address: spotRoot.Address,
		Data: commit.DataRef{
			ID:     string(spotRoot.Address),
			T:      d.T,
			Flakes: int(next.Stats.FlakeCount - before.FlakeCount),
			Size:   int(next.Stats.SizeBytes - before.SizeBytes),
		},
	}

	result := next.WithCommit(withIndex(next.Commit, indexPtr))
	return result, nil
}

func withIndex(c commit.Commit, idx *commit.IndexRef) commit.Commit {
	c.Index = idx
	return c
}
