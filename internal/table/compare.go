package table

import "sort"

// pathSet adapts a []*Path slice to sort.Interface so Route.recompute
// can hand it to sort.Stable rather than hand-rolling an ordering
// routine.
type pathSet []*Path

func (s pathSet) Len() int           { return len(s) }
func (s pathSet) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s pathSet) Less(i, j int) bool { return less(s[i], s[j]) }

// less implements the 9-clause total order of §4.2: a is strictly
// better than b. Clauses are tried in order; the first that
// distinguishes the two paths decides, so later clauses only matter
// when every earlier one ties.
func less(a, b *Path) bool {
	// 1. Feasible before infeasible.
	af, bf := a.feasible(), b.feasible()
	if af != bf {
		return af
	}
	if !af {
		// Both infeasible: no further clause matters, keep current
		// relative order (stable sort handles this).
		return false
	}

	// 2. Higher local preference first.
	if lpA, lpB := a.localPref(), b.localPref(); lpA != lpB {
		return lpA > lpB
	}

	// 3. Shorter AS path first.
	if lenA, lenB := a.aspathLen(), b.aspathLen(); lenA != lenB {
		return lenA < lenB
	}

	// 4. Lower origin numeric code first.
	if a.Attr.Origin() != b.Attr.Origin() {
		return a.Attr.Origin() < b.Attr.Origin()
	}

	// 5. Lower MED first, only when the neighboring AS matches.
	nasA, okA := a.neighborAS()
	nasB, okB := b.neighborAS()
	if okA && okB && nasA == nasB {
		medA, hasA := a.med()
		medB, hasB := b.med()
		if hasA && hasB && medA != medB {
			return medA < medB
		}
		if hasA != hasB {
			// A present MED beats an absent one (treated as infinite).
			return hasA
		}
	}

	// 6. eBGP before iBGP.
	if a.IsEBGP != b.IsEBGP {
		return a.IsEBGP
	}

	// 7. Lower router-id of the originating peer first.
	if a.RouterID != b.RouterID {
		return a.RouterID < b.RouterID
	}

	// 8. Lower cluster-list length first.
	if la, lb := a.Attr.ClusterListLen(), b.Attr.ClusterListLen(); la != lb {
		return la < lb
	}

	// 9. Lower peer address, final tiebreak.
	return a.PeerAddress < b.PeerAddress
}

// equalThroughMultipath reports whether a and b tie on every clause
// ECMP cares about (1)-(6); ties here make b a multipath sibling of a
// when a is the overall best path.
func equalThroughMultipath(a, b *Path) bool {
	if a.feasible() != b.feasible() || !a.feasible() {
		return false
	}
	if a.localPref() != b.localPref() {
		return false
	}
	if a.aspathLen() != b.aspathLen() {
		return false
	}
	if a.Attr.Origin() != b.Attr.Origin() {
		return false
	}
	nasA, okA := a.neighborAS()
	nasB, okB := b.neighborAS()
	if okA && okB && nasA == nasB {
		medA, hasA := a.med()
		medB, hasB := b.med()
		if hasA != hasB || (hasA && medA != medB) {
			return false
		}
	}
	if a.IsEBGP != b.IsEBGP {
		return false
	}
	return true
}

// sortPaths orders paths in place per less(), stably, so that
// equal-comparing paths (same peer re-announcing identical attributes
// via a different path_id) keep a deterministic relative order across
// recomputes.
func sortPaths(paths []*Path) {
	sort.Stable(pathSet(paths))
}

// markMultipath sets Multipath on every path tying the best path (index
// 0) through clause 6, once paths are sorted.
func markMultipath(paths []*Path) {
	for i, p := range paths {
		p.Multipath = i == 0 || (len(paths) > 0 && equalThroughMultipath(paths[0], p))
	}
}
