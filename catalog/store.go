package catalog

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when an address or path has no stored bytes.
var ErrNotFound = errors.New("catalog: not found")

// ContentStore is a content-addressed store keyed by the hash of what was
// written (spec §6.1: content-write-bytes / read-json / read-bytes / delete).
type ContentStore interface {
	// ContentWriteBytes hashes data, stores it under the resulting address,
	// and returns both.
	ContentWriteBytes(ctx context.Context, data []byte) (Address, string, error)
	ReadBytes(ctx context.Context, addr Address) ([]byte, error)
	Delete(ctx context.Context, addr Address) error
}

// ByteStore is a path-addressed store for replicated bytes that are not
// content-hashed (spec §6.1: write-bytes / read-bytes). Named WritePath /
// ReadPath rather than WriteBytes / ReadBytes so one type can implement both
// ContentStore and ByteStore without a method-signature collision.
type ByteStore interface {
	WritePath(ctx context.Context, path string, data []byte) error
	ReadPath(ctx context.Context, path string) ([]byte, error)
}

// Lister optionally supports recursive prefix listing (spec §6.1, optional).
type Lister interface {
	ListPathsRecursive(ctx context.Context, prefix string) ([]string, error)
}

// ReadJSON reads addr from cs and unmarshals it into v. It takes no
// keywordize flag: in Go, map keys are already strings.
func ReadJSON(ctx context.Context, cs ContentStore, addr Address, v any) error {
	b, err := cs.ReadBytes(ctx, addr)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// WriteJSON marshals v and content-writes it through cs.
func WriteJSON(ctx context.Context, cs ContentStore, v any) (Address, string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", "", err
	}
	return cs.ContentWriteBytes(ctx, b)
}
