// Package catalog implements the content-addressed storage contract of
// spec §6.1: address parsing, content-hash writes, and pluggable backends.
// The hashing scheme (CIDv1, raw codec, sha2-256) and FileCatalog's
// in-memory LRU read cache mirror core/storage.go's Pin/Retrieve (with its
// disk LRU) in the teacher repo, which wraps an IPFS gateway the same way.
package catalog

import (
	"fmt"
	"strings"
)

// Address is a content or replicated-byte-store address of the form
// fluree[:identifier]:method[:aux…]://<path> (spec §6.1).
type Address string

// Location is the parsed left-hand side of an Address.
type Location struct {
	Identifier string // optional; contains "/" and no ":"
	Method     string
	Aux        []string
}

// ParseAddress splits addr on the first "://"; the left side is the
// location, the right side is the path. The location is then split on ":"
// into "fluree", an optional identifier, a method, and optional auxiliary
// components.
func ParseAddress(addr Address) (Location, string, error) {
	s := string(addr)
	idx := strings.Index(s, "://")
	if idx < 0 {
		return Location{}, "", fmt.Errorf("catalog: address %q missing \"://\"", addr)
	}
	locPart, path := s[:idx], s[idx+3:]

	tokens := strings.Split(locPart, ":")
	if len(tokens) < 2 || tokens[0] != "fluree" {
		return Location{}, "", fmt.Errorf("catalog: address %q must start with \"fluree:\"", addr)
	}
	rest := tokens[1:]

	var loc Location
	if len(rest) > 0 && strings.Contains(rest[0], "/") && !strings.Contains(rest[0], ":") {
		loc.Identifier = rest[0]
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return Location{}, "", fmt.Errorf("catalog: address %q missing method", addr)
	}
	loc.Method = rest[0]
	loc.Aux = append([]string(nil), rest[1:]...)

	return loc, path, nil
}

// String reconstructs the location prefix (everything before "://").
func (l Location) String() string {
	parts := []string{"fluree"}
	if l.Identifier != "" {
		parts = append(parts, l.Identifier)
	}
	parts = append(parts, l.Method)
	parts = append(parts, l.Aux...)
	return strings.Join(parts, ":")
}

// BuildAddress joins a location and path into a full Address.
func BuildAddress(l Location, path string) Address {
	return Address(l.String() + "://" + path)
}
