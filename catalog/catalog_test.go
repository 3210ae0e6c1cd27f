package catalog

import (
	"context"
	"testing"
)

func TestParseAddressRoundTrip(t *testing.T) {
	addr := Address("fluree:myid/main:file:aux1://abc123")
	loc, path, err := ParseAddress(addr)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if loc.Identifier != "myid/main" || loc.Method != "file" || len(loc.Aux) != 1 || loc.Aux[0] != "aux1" {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if path != "abc123" {
		t.Fatalf("path = %q, want abc123", path)
	}
	if BuildAddress(loc, path) != addr {
		t.Fatalf("round trip mismatch: %s", BuildAddress(loc, path))
	}
}

func TestParseAddressRejectsMissingScheme(t *testing.T) {
	if _, _, err := ParseAddress("not-an-address"); err == nil {
		t.Fatal("expected error for missing \"://\"")
	}
}

func TestMemCatalogContentAddressDeterminism(t *testing.T) {
	ctx := context.Background()
	c := NewMemCatalog("memory")
	data := []byte("hello world")

	addr1, hash1, err := c.ContentWriteBytes(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	addr2, hash2, err := c.ContentWriteBytes(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if addr1 != addr2 || hash1 != hash2 {
		t.Fatalf("content-address determinism violated: %s != %s", addr1, addr2)
	}

	got, err := c.ReadBytes(ctx, addr1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("ReadBytes returned %q, want %q", got, data)
	}
}

func TestMemCatalogDeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	c := NewMemCatalog("memory")
	addr, _, err := c.ContentWriteBytes(ctx, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, addr); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ReadBytes(ctx, addr); err != ErrNotFound {
		t.Fatalf("ReadBytes after delete = %v, want ErrNotFound", err)
	}
}

func TestFileCatalogPersistsAndCaches(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCatalog(dir, "file", 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	addr, _, err := c.ContentWriteBytes(ctx, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}

	// A second catalog instance over the same directory must see the bytes
	// on disk even with a cold cache.
	c2, err := NewFileCatalog(dir, "file", 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c2.ReadBytes(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("ReadBytes = %q", got)
	}
}

func TestFileCatalogWritePathReadPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCatalog(dir, "file", 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WritePath(ctx, "ns/alias/head", []byte("addr-bytes")); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadPath(ctx, "ns/alias/head")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "addr-bytes" {
		t.Fatalf("ReadPath = %q", got)
	}
	paths, err := c.ListPathsRecursive(ctx, "ns/")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "ns/alias/head" {
		t.Fatalf("ListPathsRecursive = %v", paths)
	}
}
