package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// MemCatalog is an in-process ContentStore/ByteStore, used by tests and by
// components that don't need durability (spec §8 property 8: content-address
// determinism — writing the same bytes twice yields the same address).
type MemCatalog struct {
	method string // e.g. "memory"

	mu       sync.RWMutex
	content  map[Address][]byte
	byPath   map[string][]byte
}

// NewMemCatalog returns an empty in-memory catalog addressed under
// fluree:<method>://<cid>.
func NewMemCatalog(method string) *MemCatalog {
	return &MemCatalog{
		method:  method,
		content: make(map[Address][]byte),
		byPath:  make(map[string][]byte),
	}
}

func hashCID(data []byte) (string, error) {
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("catalog: hash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, digest).String(), nil
}

func (m *MemCatalog) address(hash string) Address {
	return BuildAddress(Location{Method: m.method}, hash)
}

func (m *MemCatalog) ContentWriteBytes(_ context.Context, data []byte) (Address, string, error) {
	hash, err := hashCID(data)
	if err != nil {
		return "", "", err
	}
	addr := m.address(hash)
	m.mu.Lock()
	m.content[addr] = data
	m.mu.Unlock()
	return addr, hash, nil
}

func (m *MemCatalog) ReadBytes(_ context.Context, addr Address) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.content[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *MemCatalog) Delete(_ context.Context, addr Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, addr)
	return nil
}

func (m *MemCatalog) WritePath(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPath[path] = data
	return nil
}

func (m *MemCatalog) ReadPath(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.byPath[path]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// ListPathsRecursive returns every stored path with the given prefix,
// sorted lexically.
func (m *MemCatalog) ListPathsRecursive(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p := range m.byPath {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
