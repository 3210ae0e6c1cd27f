package flake

// Comparator totally orders flakes. It returns <0, 0, >0 the way
// sort.Interface / bytes.Compare do.
type Comparator func(a, b Flake) int

func cascade(cmps ...Comparator) Comparator {
	return func(a, b Flake) int {
		for _, cmp := range cmps {
			if c := cmp(a, b); c != 0 {
				return c
			}
		}
		return 0
	}
}

func cmpSDesc(a, b Flake) int { return -int64Compare(int64(a.S), int64(b.S)) }
func cmpPAsc(a, b Flake) int  { return int64Compare(int64(a.P), int64(b.P)) }
func cmpOAsc(a, b Flake) int  { return CompareObject(a.O, b.O) }
func cmpODesc(a, b Flake) int { return -CompareObject(a.O, b.O) }
func cmpTDesc(a, b Flake) int { return -int64Compare(int64(a.T), int64(b.T)) }
func cmpOpAsc(a, b Flake) int { return boolCompare(a.Op, b.Op) }
func cmpMAsc(a, b Flake) int  { return int64Compare(a.M.sortKey, b.M.sortKey) }

// IndexName names one of the five AVL-ordered flake indexes (spec §3.3).
type IndexName string

const (
	Spot IndexName = "spot"
	Psot IndexName = "psot"
	Post IndexName = "post"
	Opst IndexName = "opst"
	Tspo IndexName = "tspo"
)

// AllIndexes lists the five indexes in a stable order, used wherever code
// must iterate over "all of novelty" or "all persistent trees".
var AllIndexes = [5]IndexName{Spot, Psot, Post, Opst, Tspo}

// Comparators maps each index name to its cascaded comparator (spec §3.3's
// table, read left to right).
var Comparators = map[IndexName]Comparator{
	Spot: cascade(cmpSDesc, cmpPAsc, cmpOAsc, cmpTDesc, cmpOpAsc, cmpMAsc),
	Psot: cascade(cmpPAsc, cmpSDesc, cmpOAsc, cmpTDesc, cmpOpAsc, cmpMAsc),
	Post: cascade(cmpPAsc, cmpOAsc, cmpSDesc, cmpTDesc, cmpOpAsc, cmpMAsc),
	Opst: cascade(cmpODesc, cmpPAsc, cmpSDesc, cmpTDesc, cmpOpAsc, cmpMAsc),
	Tspo: cascade(cmpTDesc, cmpSDesc, cmpPAsc, cmpOAsc, cmpOpAsc, cmpMAsc),
}

// Comparator returns the comparator for idx, or nil if idx is unknown.
func (idx IndexName) Comparator() Comparator {
	return Comparators[idx]
}
