// Package table implements the per-family route table of §4.1/§4.2: a
// partitioned map from prefix to route entry, a goroutine per
// partition, atomic-pointer snapshot reads, and the best-path
// comparator that orders a route's path set.
package table

import (
	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/ribapi"
)

// Path is one candidate route for a prefix, keyed by (Peer, PathID)
// within its Route (§3 "Path").
type Path struct {
	Peer   ribapi.PeerID
	PathID ribapi.PathID
	Source ribapi.SourceTag

	Attr  *attr.Attr
	Label uint32
	Flags flags.PathFlags

	// RouterID is the originating peer's BGP router-id, used by clause
	// 7 (lowest router-id wins) when every earlier clause ties.
	RouterID string
	// PeerAddress is the final tiebreak of clause 9; synthesized paths
	// (aggregate, static, local) use a well-known sentinel so they still
	// compare deterministically against each other.
	PeerAddress string
	// IsEBGP distinguishes eBGP- from iBGP-learned paths for clause 6
	// ("prefer eBGP over iBGP").
	IsEBGP bool

	// Multipath is set on every path tied with the best path by
	// ECMP-eligible clauses (clauses 1-6); the replication engine and
	// XMPP channel advertise every multipath member, not just index 0.
	Multipath bool
}

func (p *Path) key() pathKey { return pathKey{p.Peer, p.PathID} }

type pathKey struct {
	peer   ribapi.PeerID
	pathID ribapi.PathID
}

// feasible reports whether p is eligible to be considered for best-path
// at all (§4.2: "infeasible paths never win"). PolicyReject and
// AsPathLooped make a path permanently infeasible. Stale paths are
// feasible, and the comparator does not look at the Stale flag: a
// stale path can still be the best path.
func (p *Path) feasible() bool {
	return !p.Flags.Infeasible()
}

// aspathLen returns the AS-path length used by clause 3, computed from
// the AS-path string on each call.
func (p *Path) aspathLen() int {
	return attr.ASPathLen(p.Attr.ASPath())
}

func (p *Path) localPref() uint32 {
	v, ok := p.Attr.LocalPref()
	if !ok {
		return 100 // BGP default local preference
	}
	return v
}

func (p *Path) med() (uint32, bool) {
	return p.Attr.MED()
}

func (p *Path) neighborAS() (uint32, bool) {
	return attr.NeighborASN(p.Attr.ASPath())
}
