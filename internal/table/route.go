package table

import (
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
)

// Route is one prefix's path set (§3 "Route"). Path 0 after recompute
// is always the best path.
type Route struct {
	key   prefix.Prefix
	paths []*Path

	// deleted is set once the path set reaches zero members; the entry
	// stays in the partition map for one more notification cycle (§4.1
	// "Path ops on Delete") so listeners see the is_delete=true
	// snapshot before physical removal.
	deleted bool
}

func newRoute(key prefix.Prefix) *Route {
	return &Route{key: key}
}

func (r *Route) Prefix() prefix.Prefix { return r.key }
func (r *Route) PathCount() int        { return len(r.paths) }
func (r *Route) IsDeleted() bool       { return r.deleted }

// BestPathIndex is always 0 once recompute has run; kept as a method
// to satisfy ribapi.RouteSnapshot and to leave room for a future
// non-zero convention without disturbing callers.
func (r *Route) BestPathIndex() int {
	if len(r.paths) == 0 {
		return -1
	}
	return 0
}

// Best returns the current best path, or nil if the route has none.
func (r *Route) Best() *Path {
	if len(r.paths) == 0 {
		return nil
	}
	return r.paths[0]
}

// Paths returns the route's current path set in best-path order. The
// returned slice must not be mutated by the caller.
func (r *Route) Paths() []*Path { return r.paths }

// Multipaths returns every path marked as an ECMP sibling of the best
// path, in best-path order (best path included at index 0).
func (r *Route) Multipaths() []*Path {
	out := make([]*Path, 0, len(r.paths))
	for _, p := range r.paths {
		if p.Multipath {
			out = append(out, p)
		}
	}
	return out
}

func (r *Route) find(peer ribapi.PeerID, pathID ribapi.PathID) (*Path, int) {
	for i, p := range r.paths {
		if p.Peer == peer && p.PathID == pathID {
			return p, i
		}
	}
	return nil, -1
}

// upsert applies an Add/Change path op, returning whether the route had
// no paths before the call ("new" vs "changed" per §4.1).
func (r *Route) upsert(p *Path) (wasEmpty bool) {
	wasEmpty = len(r.paths) == 0
	if existing, idx := r.find(p.Peer, p.PathID); existing != nil {
		r.paths[idx] = p
	} else {
		r.paths = append(r.paths, p)
	}
	r.deleted = false
	r.recompute()
	return wasEmpty
}

// remove applies a Delete path op, returning whether the path set is
// now empty (the entry should be marked "deleted" per §4.1).
func (r *Route) remove(peer ribapi.PeerID, pathID ribapi.PathID) (becameEmpty bool, removed bool) {
	_, idx := r.find(peer, pathID)
	if idx < 0 {
		return len(r.paths) == 0, false
	}
	r.paths = append(r.paths[:idx], r.paths[idx+1:]...)
	r.recompute()
	becameEmpty = len(r.paths) == 0
	if becameEmpty {
		r.deleted = true
	}
	return becameEmpty, true
}

func (r *Route) recompute() {
	sortPaths(r.paths)
	markMultipath(r.paths)
}
