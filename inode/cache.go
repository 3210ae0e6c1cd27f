package inode

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"flureedb/catalog"
	"flureedb/flake"
)

// Resolver is the shared cache of resolved index nodes (spec §3.4, §4.C.1,
// §5 "Shared resources"): keyed by content address, so races are harmless,
// with concurrent resolves of the same address sharing one in-flight read.
// Each NewResolver call builds an independent cache; indexer.New creates
// one per Indexer, shared by every DB that Indexer reindexes.
type Resolver struct {
	store catalog.ContentStore
	cmp   flake.Comparator

	cache *lru.Cache[catalog.Address, *Node]

	mu       sync.Mutex
	inflight map[catalog.Address]*inflightEntry
}

type inflightEntry struct {
	done chan struct{}
	node *Node
	err  error
}

// NewResolver builds a Resolver over store using cmp to rebuild leaf flake
// sets, with an LRU of the given capacity (entries, not bytes).
func NewResolver(store catalog.ContentStore, cmp flake.Comparator, capacity int) (*Resolver, error) {
	if capacity <= 0 {
		capacity = 4096
	}
	c, err := lru.New[catalog.Address, *Node](capacity)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		store:    store,
		cmp:      cmp,
		cache:    c,
		inflight: make(map[catalog.Address]*inflightEntry),
	}, nil
}

// Resolve returns the Node at ref.Address, reading through the cache and
// de-duplicating concurrent resolves of the same address (spec §3.4
// "resolution is async and cached behind a shared LRU... idempotent:
// multiple concurrent resolves share one in-flight future").
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (*Node, error) {
	if ref.Address == "" {
		return nil, errNoAddress
	}
	if n, ok := r.cache.Get(ref.Address); ok {
		return n, nil
	}

	r.mu.Lock()
	if e, ok := r.inflight[ref.Address]; ok {
		r.mu.Unlock()
		<-e.done
		return e.node, e.err
	}
	e := &inflightEntry{done: make(chan struct{})}
	r.inflight[ref.Address] = e
	r.mu.Unlock()

	data, err := r.store.ReadBytes(ctx, ref.Address)
	var n *Node
	if err == nil {
		n, err = decodeNode(r.cmp, data)
	}

	e.node, e.err = n, err
	close(e.done)

	r.mu.Lock()
	delete(r.inflight, ref.Address)
	r.mu.Unlock()

	if err != nil {
		// Entry is never cached on failure, so the next call retries.
		return nil, err
	}
	n.Address = ref.Address
	r.cache.Add(ref.Address, n)
	return n, nil
}

// Put seeds the cache with an already-resolved node, used right after a
// reindex writes new nodes so the writer doesn't immediately re-fetch them.
func (r *Resolver) Put(n *Node) {
	if n.Address == "" {
		return
	}
	r.cache.Add(n.Address, n)
}

var errNoAddress = resolverError("inode: cannot resolve a node with no address")

type resolverError string

func (e resolverError) Error() string { return string(e) }
