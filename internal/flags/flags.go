// Package flags defines the Path flag bitset used throughout the route-
// processing core (§3 "Path": flags ∈ {Stale, NoTunnelEncap,
// PolicyReject, ResolveNexthop, AsPathLooped}), plus the Replicated
// marker the replication engine (§4.4) uses for its one-hop-only rule.
package flags

// PathFlags is a bitset of per-path conditions.
type PathFlags uint16

const (
	Stale PathFlags = 1 << iota
	NoTunnelEncap
	PolicyReject
	ResolveNexthop
	AsPathLooped
	// Replicated marks a path that was produced by the replication
	// engine (§4.4); such a path is never replicated again.
	Replicated
)

func (f PathFlags) Has(bit PathFlags) bool { return f&bit != 0 }
func (f PathFlags) Set(bit PathFlags) PathFlags   { return f | bit }
func (f PathFlags) Clear(bit PathFlags) PathFlags { return f &^ bit }

// Infeasible reports whether a path with these flags is infeasible per
// §4.2 clause 1: unresolved nexthop, policy-rejected, or AS-path-looped.
func (f PathFlags) Infeasible() bool {
	return f.Has(ResolveNexthop) || f.Has(PolicyReject) || f.Has(AsPathLooped)
}

func (f PathFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  PathFlags
		name string
	}{
		{Stale, "stale"},
		{NoTunnelEncap, "no-tunnel-encap"},
		{PolicyReject, "policy-reject"},
		{ResolveNexthop, "resolve-nexthop"},
		{AsPathLooped, "as-path-looped"},
		{Replicated, "replicated"},
	}
	out := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if out != "" {
				out += ","
			}
			out += n.name
		}
	}
	return out
}
