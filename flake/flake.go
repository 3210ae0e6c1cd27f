// Package flake implements the immutable flake tuple (spec §3.2): the
// atomic subject/predicate/object/transaction/op/meta assertion that every
// index, commit, and query in the engine is ultimately built from.
package flake

import (
	"encoding/json"
	"hash/fnv"
	"math"
)

// Meta is the optional "m" position. A flake may carry no metadata, an
// integer sort key, or a structured map; either way Meta exposes a single
// SortKey used by range scans and size accounting (spec §3.2, §4.A).
type Meta struct {
	present bool
	sortKey int64
	data    map[string]any
}

// NoMeta is the zero value: metadata absent.
var NoMeta = Meta{}

// IntMeta constructs metadata whose sort key is the integer itself.
func IntMeta(v int64) Meta { return Meta{present: true, sortKey: v} }

// MapMeta constructs metadata from a map; the sort key is the hash of its
// canonical JSON encoding.
func MapMeta(m map[string]any) Meta {
	meta := Meta{present: true, data: m}
	if b, err := json.Marshal(sortedMapForJSON(m)); err == nil {
		h := fnv.New64a()
		h.Write(b)
		meta.sortKey = int64(h.Sum64())
	}
	return meta
}

func (m Meta) Present() bool    { return m.present }
func (m Meta) SortKey() int64   { return m.sortKey }
func (m Meta) Map() map[string]any { return m.data }

func (m Meta) sizeBytes() int {
	if !m.present {
		return 1
	}
	if m.data == nil {
		return 2 * 8
	}
	b, err := json.Marshal(sortedMapForJSON(m.data))
	if err != nil {
		return 2 * 8
	}
	return 2 * len(b)
}

// sortedMapForJSON is a deterministic encoding helper; Go's encoding/json
// already sorts map keys, this just documents the expectation at call sites.
func sortedMapForJSON(m map[string]any) map[string]any { return m }

// Flake is the immutable 6-tuple (s, p, o, t, op, m).
type Flake struct {
	S  SID
	P  SID
	O  Object
	T  T
	Op bool
	M  Meta
}

// New constructs a flake. op=true asserts, op=false retracts.
func New(s, p SID, o Object, t T, op bool, m Meta) Flake {
	return Flake{S: s, P: p, O: o, T: t, Op: op, M: m}
}

// EqualSPO reports equality over (s, p, o) only, per spec §3.2.
func (f Flake) EqualSPO(other Flake) bool {
	return f.S == other.S && f.P == other.P && CompareObject(f.O, other.O) == 0
}

func writeInt64To(h interface{ Write([]byte) (int, error) }, v int64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
}

func (f Flake) writeSPO(h interface{ Write([]byte) (int, error) }) {
	writeInt64To(h, int64(f.S))
	writeInt64To(h, int64(f.P))
	h.Write([]byte{byte(f.O.Kind)})
	switch f.O.Kind {
	case KindRef:
		writeInt64To(h, int64(f.O.Ref))
	case KindNumber:
		writeInt64To(h, int64(math.Float64bits(f.O.Num)))
	case KindBool:
		if f.O.Bool {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindBytes:
		h.Write(f.O.Bytes)
	case KindTagged:
		h.Write([]byte(f.O.Datatype))
		h.Write([]byte(f.O.Str))
	case KindString:
		h.Write([]byte(f.O.Str))
	}
}

// SPOHash hashes only the (s, p, o) position, matching EqualSPO. Reindex and
// time-travel use it to find the flake(s) that assert or retract the same
// statement across different transactions.
func (f Flake) SPOHash() uint64 {
	h := fnv.New64a()
	f.writeSPO(h)
	return h.Sum64()
}

// Hash hashes the full 6-tuple sequence.
func (f Flake) Hash() uint64 {
	h := fnv.New64a()
	f.writeSPO(h)
	writeInt64To(h, int64(f.T))
	if f.Op {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	writeInt64To(h, f.M.sortKey)
	return h.Sum64()
}

// SizeBytes estimates the on-disk footprint of f: 37 + o-size + m-size
// (spec §4.A). This is used for reindex threshold accounting, not for exact
// storage billing.
func (f Flake) SizeBytes() int {
	return 37 + f.O.sizeBytes() + f.M.sizeBytes()
}
