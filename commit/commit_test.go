package commit

import (
	"testing"
	"time"

	"flureedb/catalog"
	"flureedb/flake"
	"flureedb/pkg/ferr"
)

func genesisCommit(t *testing.T) Commit {
	c := Commit{
		Alias:  "alice/main",
		Branch: "main",
		T:      flake.T(-1),
		Data:   DataRef{ID: "data-1", Address: "fluree:memory:data-1", T: flake.T(-1), Flakes: 1, Size: 37},
		Time:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		V:      DataVersion,
	}
	identified, err := Identify(c)
	if err != nil {
		t.Fatal(err)
	}
	return identified
}

func TestValidateAcceptsGenesisCommit(t *testing.T) {
	c := genesisCommit(t)
	if err := Validate(nil, c); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejectsGenesisWithPrevious(t *testing.T) {
	c := genesisCommit(t)
	c.Previous = &Ref{ID: "bogus"}
	if err := Validate(nil, c); !ferr.Is(err, ferr.KindInvalidCommit) {
		t.Fatalf("expected db/invalid-commit, got %v", err)
	}
}

func TestValidateChecksHashChain(t *testing.T) {
	c1 := genesisCommit(t)

	c2 := Commit{
		Alias:    "alice/main",
		Branch:   "main",
		T:        flake.T(-2),
		Previous: &Ref{ID: c1.ID, Address: c1.Address},
		Data:     DataRef{ID: "data-2", Address: "fluree:memory:data-2", T: flake.T(-2), Flakes: 2, Size: 74},
		Time:     time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		V:        DataVersion,
	}
	c2, err := Identify(c2)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(&c1, c2); err != nil {
		t.Fatal(err)
	}

	badT := c2
	badT.T = flake.T(-5)
	if err := Validate(&c1, badT); !ferr.Is(err, ferr.KindInvalidCommit) {
		t.Fatal("expected t-decrement violation to be rejected")
	}

	badPrev := c2
	badPrev.Previous = &Ref{ID: "not-c1"}
	if err := Validate(&c1, badPrev); !ferr.Is(err, ferr.KindInvalidCommit) {
		t.Fatal("expected previous.id mismatch to be rejected")
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	c1 := genesisCommit(t)
	c2 := Commit{
		Alias:    "alice/main",
		Branch:   "main",
		T:        flake.T(-2),
		Previous: &Ref{ID: c1.ID, Address: c1.Address},
		Data:     DataRef{ID: "data-2", Address: "fluree:memory:data-2", T: flake.T(-2), Flakes: 2, Size: 74},
		Index: &IndexRef{
			ID:      "idx-1",
			Address: "fluree:memory:idx-1",
			Data:    DataRef{T: flake.T(-2), Flakes: 3, Size: 900},
		},
		Time:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Message:    "second commit",
		Tag:        []string{"b", "a"},
		Author:     "alice",
		Annotation: map[string]any{"source": "test"},
		NS:         []catalog.Address{"fluree:ns:1"},
		V:          DataVersion,
	}
	c2, err := Identify(c2)
	if err != nil {
		t.Fatal(err)
	}

	canon, err := Canonical(c2)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseCanonical(canon)
	if err != nil {
		t.Fatal(err)
	}

	if parsed.Alias != c2.Alias || parsed.Branch != c2.Branch || parsed.T != c2.T {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, c2)
	}
	if parsed.Previous == nil || parsed.Previous.ID != c1.ID {
		t.Fatalf("previous pointer lost in round trip: %+v", parsed.Previous)
	}
	if parsed.Index == nil || parsed.Index.Data.Flakes != 3 {
		t.Fatalf("index pointer lost in round trip: %+v", parsed.Index)
	}
	if parsed.Message != c2.Message || parsed.Author != c2.Author {
		t.Fatalf("scalar fields lost in round trip: %+v", parsed)
	}
	if len(parsed.Tag) != 2 {
		t.Fatalf("tags lost in round trip: %+v", parsed.Tag)
	}
}

func TestCanonicalIsDeterministic(t *testing.T) {
	c := genesisCommit(t)
	a, err := Canonical(c)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Canonical(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatal("canonical encoding must be stable across calls")
	}
}

func TestHasNewerIndexThan(t *testing.T) {
	older := &Commit{Index: &IndexRef{Data: DataRef{T: flake.T(-1)}}}
	newer := &Commit{Index: &IndexRef{Data: DataRef{T: flake.T(-5)}}}
	none := &Commit{}

	if !newer.HasNewerIndexThan(older) {
		t.Fatal("smaller (more negative) t should be newer")
	}
	if older.HasNewerIndexThan(newer) {
		t.Fatal("older index must not appear newer than a newer one")
	}
	if !older.HasNewerIndexThan(none) {
		t.Fatal("any index is newer than no index")
	}
	if none.HasNewerIndexThan(older) {
		t.Fatal("no index can never be newer")
	}
}
