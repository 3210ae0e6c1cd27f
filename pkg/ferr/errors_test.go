package ferr

import (
	"errors"
	"testing"
)

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(KindTimeout, nil, "x"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIsMatchesKindThroughWrap(t *testing.T) {
	base := errors.New("catalog unreachable")
	err := Wrap(KindUnavailable, base, "reading commit")
	if !Is(err, KindUnavailable) {
		t.Fatal("expected Is to match the wrapped kind")
	}
	if Is(err, KindTimeout) {
		t.Fatal("Is should not match an unrelated kind")
	}
	if !errors.Is(err, base) {
		t.Fatal("Unwrap chain should reach the original cause")
	}
}
