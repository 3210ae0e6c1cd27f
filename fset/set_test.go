package fset

import (
	"testing"

	"flureedb/flake"
)

func mustSID(t *testing.T, coll int32, n uint64) flake.SID {
	t.Helper()
	s, err := flake.NewSID(coll, n)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSetInsertRemoveContains(t *testing.T) {
	s := New(flake.Spot.Comparator())
	p := mustSID(t, 0, 1)
	f1 := flake.New(mustSID(t, 1, 1), p, flake.NumberObject(1), 0, true, flake.NoMeta)
	f2 := flake.New(mustSID(t, 1, 2), p, flake.NumberObject(2), 0, true, flake.NoMeta)

	s2 := s.Insert(f1).Insert(f2)
	if s.Size() != 0 {
		t.Fatal("original set mutated by Insert")
	}
	if s2.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s2.Size())
	}
	if !s2.Contains(f1) || !s2.Contains(f2) {
		t.Fatal("expected both flakes present")
	}
	s3 := s2.Remove(f1)
	if s3.Size() != 1 || s3.Contains(f1) {
		t.Fatal("Remove did not remove f1")
	}
	if s2.Size() != 2 {
		t.Fatal("Remove mutated the original set")
	}
}

func TestSetRangeSubjectScan(t *testing.T) {
	// property 9: range(spot, [s,min,min], [s,max,max]) = all flakes with subject s
	p := mustSID(t, 0, 1)
	target := mustSID(t, 1, 5)
	other := mustSID(t, 1, 6)

	cmp := flake.Spot.Comparator()
	s := New(cmp)
	var all []flake.Flake
	for i := 0; i < 3; i++ {
		f := flake.New(target, p, flake.NumberObject(float64(i)), flake.T(-i), true, flake.NoMeta)
		all = append(all, f)
		s = s.Insert(f)
	}
	s = s.Insert(flake.New(other, p, flake.NumberObject(0), 0, true, flake.NoMeta))

	lo := flake.New(target, mustSID(t, 0, 0), flake.NumberObject(-1e300), flake.T(1<<62), false, flake.NoMeta)
	hi := flake.New(target, mustSID(t, 0, 1<<18), flake.NumberObject(1e300), flake.T(-(1<<62)), true, flake.IntMeta(1<<62))

	got := s.Range(lo, hi)
	if len(got) != len(all) {
		t.Fatalf("Range returned %d flakes, want %d", len(got), len(all))
	}
	for _, f := range got {
		if f.S != target {
			t.Fatalf("Range leaked a flake from subject %v", f.S)
		}
	}
}

func TestSetSplitAtKey(t *testing.T) {
	p := mustSID(t, 0, 1)
	cmp := flake.Spot.Comparator()
	s := New(cmp)
	var fs []flake.Flake
	for i := 0; i < 5; i++ {
		f := flake.New(mustSID(t, 1, uint64(i)), p, flake.NumberObject(float64(i)), 0, true, flake.NoMeta)
		fs = append(fs, f)
	}
	s = s.ConjAll(fs)
	left, right := s.SplitAtKey(fs[2])
	if left.Size()+right.Size() != 5 {
		t.Fatalf("split lost flakes: left=%d right=%d", left.Size(), right.Size())
	}
	if !left.Contains(fs[2]) {
		t.Fatal("split should be left-inclusive of the key")
	}
}

func TestNoveltyFiveOrdersInLockstep(t *testing.T) {
	n := NewNovelty()
	p := mustSID(t, 0, 1)
	f := flake.New(mustSID(t, 1, 1), p, flake.StringObject("x"), 0, true, flake.NoMeta)
	n2 := n.Add(f)
	for _, idx := range flake.AllIndexes {
		if n2.Set(idx).Size() != 1 || !n2.Set(idx).Contains(f) {
			t.Fatalf("index %s missing added flake", idx)
		}
	}
	if n.Count() != 0 {
		t.Fatal("Add mutated the original novelty buffer")
	}
}

func TestNoveltySizeIsSpotOnly(t *testing.T) {
	n := NewNovelty()
	p := mustSID(t, 0, 1)
	f := flake.New(mustSID(t, 1, 1), p, flake.StringObject("hello"), 0, true, flake.NoMeta)
	n = n.Add(f)
	want := n.Set(flake.Spot).SizeBytes()
	if n.Size() != want {
		t.Fatalf("Novelty.Size() = %d, want spot size %d", n.Size(), want)
	}
}
