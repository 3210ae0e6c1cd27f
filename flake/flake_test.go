package flake

import (
	"sort"
	"testing"
)

func sid(t *testing.T, coll int32, n uint64) SID {
	t.Helper()
	s, err := NewSID(coll, n)
	if err != nil {
		t.Fatalf("NewSID(%d,%d): %v", coll, n, err)
	}
	return s
}

func TestSIDPacking(t *testing.T) {
	s := sid(t, 7, 42)
	if got := s.Collection(); got != 7 {
		t.Fatalf("Collection() = %d, want 7", got)
	}
	if got := s.Index(); got != 42 {
		t.Fatalf("Index() = %d, want 42", got)
	}
}

func TestSIDOverflow(t *testing.T) {
	if _, err := NewSID(1<<19, 0); err == nil {
		t.Fatal("expected error for collection overflow")
	}
	if _, err := NewSID(0, 1<<44); err == nil {
		t.Fatal("expected error for index overflow")
	}
}

func TestTxnDirection(t *testing.T) {
	t0 := T(0)
	t1 := t0.Next()
	if t1 != -1 {
		t.Fatalf("Next() = %d, want -1", t1)
	}
	if !t1.NewerThan(t0) {
		t.Fatal("t1 should be newer than t0")
	}
	if !t0.OlderThan(t1) {
		t.Fatal("t0 should be older than t1")
	}
}

func TestCompareObjectStringBeatsNumber(t *testing.T) {
	if CompareObject(StringObject("1"), NumberObject(999)) <= 0 {
		t.Fatal("string object must sort after number object regardless of lexical value")
	}
}

func TestEqualSPOIgnoresTAndOp(t *testing.T) {
	s, p := sid(t, 1, 1), sid(t, 0, 5)
	a := New(s, p, NumberObject(1), 0, true, NoMeta)
	b := New(s, p, NumberObject(1), -5, false, IntMeta(3))
	if !a.EqualSPO(b) {
		t.Fatal("flakes with identical (s,p,o) should be EqualSPO regardless of t/op/m")
	}
}

func TestSortOrdersAreTotalAndDistinct(t *testing.T) {
	s1, s2 := sid(t, 1, 1), sid(t, 1, 2)
	p1, p2 := sid(t, 0, 1), sid(t, 0, 2)
	fs := []Flake{
		New(s2, p1, NumberObject(1), 0, true, NoMeta),
		New(s1, p2, NumberObject(2), -1, true, NoMeta),
		New(s1, p1, NumberObject(3), -2, false, NoMeta),
	}
	for _, idx := range AllIndexes {
		cmp := idx.Comparator()
		cp := append([]Flake(nil), fs...)
		sort.SliceStable(cp, func(i, j int) bool { return cmp(cp[i], cp[j]) < 0 })
		for i := 0; i < len(cp)-1; i++ {
			if cmp(cp[i], cp[i+1]) > 0 {
				t.Fatalf("index %s not sorted after SliceStable: %v", idx, cp)
			}
		}
	}
}

func TestSizeBytesStringFormula(t *testing.T) {
	f := New(sid(t, 1, 1), sid(t, 0, 1), StringObject("hello"), 0, true, NoMeta)
	want := 37 + (38 + 2*5) + 1
	if got := f.SizeBytes(); got != want {
		t.Fatalf("SizeBytes() = %d, want %d", got, want)
	}
}
