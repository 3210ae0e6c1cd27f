package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const defaultReadCacheEntries = 4_096

// FileCatalog is an on-disk content store, generalizing core/storage.go's
// Pin/Retrieve (IPFS-gateway-backed, disk-LRU-cached) to a local directory
// with no gateway round trip: content-write hashes and writes the file once,
// an in-memory LRU guards repeat reads the same way the teacher's diskLRU
// guards gateway fetches.
type FileCatalog struct {
	dir    string
	method string
	logger *logrus.Logger

	mu    sync.Mutex
	cache *lru.Cache[Address, []byte]
}

// NewFileCatalog creates (if needed) dir and returns a FileCatalog rooted
// there, addressed under fluree:<method>://<cid>.
func NewFileCatalog(dir, method string, cacheEntries int, lg *logrus.Logger) (*FileCatalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("catalog: mkdir %s: %w", dir, err)
	}
	if cacheEntries <= 0 {
		cacheEntries = defaultReadCacheEntries
	}
	cache, err := lru.New[Address, []byte](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("catalog: lru: %w", err)
	}
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &FileCatalog{dir: dir, method: method, logger: lg, cache: cache}, nil
}

func (f *FileCatalog) pathFor(hash string) string {
	return filepath.Join(f.dir, hash)
}

func (f *FileCatalog) address(hash string) Address {
	return BuildAddress(Location{Method: f.method}, hash)
}

func (f *FileCatalog) hashOf(addr Address) (string, error) {
	_, path, err := ParseAddress(addr)
	if err != nil {
		return "", err
	}
	return path, nil
}

func (f *FileCatalog) ContentWriteBytes(_ context.Context, data []byte) (Address, string, error) {
	hash, err := hashCID(data)
	if err != nil {
		return "", "", err
	}
	addr := f.address(hash)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cache.Get(addr); !ok {
		if err := os.WriteFile(f.pathFor(hash), data, 0o644); err != nil {
			return "", "", fmt.Errorf("catalog: write %s: %w", hash, err)
		}
		f.cache.Add(addr, data)
	}
	f.logger.Debugf("catalog: wrote %s (%d bytes)", addr, len(data))
	return addr, hash, nil
}

func (f *FileCatalog) ReadBytes(_ context.Context, addr Address) ([]byte, error) {
	f.mu.Lock()
	if b, ok := f.cache.Get(addr); ok {
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()

	hash, err := f.hashOf(addr)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.pathFor(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: read %s: %w", addr, err)
	}
	f.mu.Lock()
	f.cache.Add(addr, b)
	f.mu.Unlock()
	return b, nil
}

func (f *FileCatalog) Delete(_ context.Context, addr Address) error {
	hash, err := f.hashOf(addr)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.cache.Remove(addr)
	f.mu.Unlock()
	if err := os.Remove(f.pathFor(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("catalog: delete %s: %w", addr, err)
	}
	f.logger.Debugf("catalog: deleted %s", addr)
	return nil
}

func (f *FileCatalog) WritePath(_ context.Context, path string, data []byte) error {
	full := filepath.Join(f.dir, "paths", filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("catalog: mkdir %s: %w", filepath.Dir(full), err)
	}
	return os.WriteFile(full, data, 0o644)
}

func (f *FileCatalog) ReadPath(_ context.Context, path string) ([]byte, error) {
	full := filepath.Join(f.dir, "paths", filepath.FromSlash(path))
	b, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// ListPathsRecursive lists every replicated path under prefix, sorted.
func (f *FileCatalog) ListPathsRecursive(_ context.Context, prefix string) ([]string, error) {
	root := filepath.Join(f.dir, "paths")
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
