package db

import (
	"context"
	"fmt"

	"flureedb/catalog"
	"flureedb/flake"
	"flureedb/fset"
	"flureedb/inode"
)

// Indexable is the reindex capability (spec §4.G): take the current
// novelty and fold it into the persistent trees, returning a DB with
// cleared novelty and updated index pointers.
type Indexable interface {
	NeedsReindex() bool
	Reindex(ctx context.Context, store catalog.ContentStore, resolver *inode.Resolver, gcs map[flake.IndexName]*inode.GarbageLog, newT flake.T) (*DB, error)
}

// NeedsReindex reports whether novelty has reached ReindexMinBytes,
// measured by the spot index alone (spec §4.A "novelty.size = sum of
// size_bytes for the spot index only"). Empty novelty never needs a
// reindex, even with a zero threshold.
func (d *DB) NeedsReindex() bool {
	return !d.Novelty.Empty() && d.Novelty.Size() >= d.ReindexMinBytes
}

// Reindex merges novelty into every one of the five persistent trees
// (spec §4.G steps 1-3) and records superseded addresses in gcs, keyed by
// index — each tree has its own independent root chain. It always returns
// a concrete DB, never a deferred handle (spec §4.G step 4).
func (d *DB) Reindex(ctx context.Context, store catalog.ContentStore, resolver *inode.Resolver, gcs map[flake.IndexName]*inode.GarbageLog, newT flake.T) (*DB, error) {
	cfg := inode.ReindexConfig{MinBytes: d.ReindexMinBytes, MaxBytes: d.ReindexMaxBytes}

	newIndex := make(map[flake.IndexName]inode.Ref, len(flake.AllIndexes))
	for _, idxName := range flake.AllIndexes {
		var oldRoot *inode.Ref
		if r, ok := d.Index[idxName]; ok && r.Address != "" {
			rc := r
			oldRoot = &rc
		}
		novelty := d.Novelty.Set(idxName).ToSlice()

		res, err := inode.Reindex(ctx, store, resolver, idxName.Comparator(), oldRoot, novelty, newT, cfg)
		if err != nil {
			return nil, fmt.Errorf("db: reindex %s: %w", idxName, err)
		}
		newIndex[idxName] = res.Root

		if gc := gcs[idxName]; gc != nil {
			if _, err := gc.RecordReindex(ctx, newT, res.Root.Address, res.Superseded); err != nil {
				return nil, fmt.Errorf("db: record garbage for %s: %w", idxName, err)
			}
		}
	}

	spot := d.Novelty.Set(flake.Spot)
	next := *d
	next.Index = newIndex
	next.Novelty = fset.NewNovelty()
	next.Stats = Stats{
		FlakeCount: d.Stats.FlakeCount + int64(spot.Size()),
		SizeBytes:  d.Stats.SizeBytes + spot.SizeBytes(),
	}
	return &next, nil
}
