package flake

import "fmt"

// SID is a packed subject or predicate identifier: 63 usable bits laid out
// as (collection_id << sidIndexBits) | n. See spec §3.1.
type SID int64

const (
	sidIndexBits      = 44
	sidIndexMask      = (int64(1) << sidIndexBits) - 1
	sidMaxCollection  = (int64(1) << 19) - 1
	sidMaxIndex       = (int64(1) << sidIndexBits) - 1
	PredicateCollection int32 = 0
	// TxnCollection is the reserved collection id whose subjects span the
	// full negative range (transaction-scoped subjects).
	TxnCollection int32 = -1
)

// NewSID packs a collection id and an in-collection index into a SID.
func NewSID(collection int32, n uint64) (SID, error) {
	if int64(collection) > sidMaxCollection {
		return 0, fmt.Errorf("flake: collection id %d exceeds max %d", collection, sidMaxCollection)
	}
	if int64(n) > sidMaxIndex {
		return 0, fmt.Errorf("flake: subject index %d exceeds max %d", n, sidMaxIndex)
	}
	return SID(int64(collection)<<sidIndexBits | int64(n)), nil
}

// Collection extracts the collection id packed into the SID.
func (s SID) Collection() int32 {
	if s < 0 {
		return TxnCollection
	}
	return int32(int64(s) >> sidIndexBits)
}

// Index extracts the in-collection index packed into the SID.
func (s SID) Index() uint64 {
	return uint64(int64(s) & sidIndexMask)
}

// IsPredicate reports whether s lives in the reserved predicate collection.
func (s SID) IsPredicate() bool {
	return s.Collection() == PredicateCollection
}

func (s SID) String() string {
	return fmt.Sprintf("%d:%d", s.Collection(), s.Index())
}
