package commit

import "flureedb/pkg/ferr"

// Validate checks the hash-chain invariant (spec §3.6, §8 property 1):
// a non-genesis commit's previous.id must equal prev's id, and its t must
// be exactly prev's t minus one. prev is nil for the genesis commit, in
// which case next.Previous must also be nil.
func Validate(prev *Commit, next Commit) error {
	if next.Data.ID == "" && next.Data.Address == "" {
		return ferr.New(ferr.KindInvalidCommit, "commit has no data")
	}
	if next.Data.T != next.T {
		return ferr.New(ferr.KindInvalidCommit, "data.t must equal commit t")
	}

	if prev == nil {
		if next.Previous != nil {
			return ferr.New(ferr.KindInvalidCommit, "genesis commit must not carry a previous pointer")
		}
		return nil
	}

	if next.Previous == nil || next.Previous.ID != prev.ID {
		return ferr.New(ferr.KindInvalidCommit, "previous.id does not match the prior commit's id")
	}
	if next.T != prev.T.Next() {
		return ferr.New(ferr.KindInvalidCommit, "t must decrement by exactly one from the prior commit")
	}
	return nil
}
