package attr

import (
	"fmt"
	"strconv"
	"strings"
)

// Extended-community sub-kinds (§3 "Path attributes"): route-target,
// origin-vn, tunnel-encap, security-group, mac-mobility, load-balance.
// Represented as canonical strings ("kind:...") rather than a binary
// 8-byte struct since this core's non-goal is wire-level encoding, not
// the semantic operations (§1) — table replication, policy rewriting,
// and aggregator/static-route attribute assembly all operate on these
// strings directly.
const (
	ExtCommKindTarget        = "target"
	ExtCommKindOriginVN      = "origin-vn"
	ExtCommKindEncap         = "encap"
	ExtCommKindSecurityGroup = "sgid"
	ExtCommKindMacMobility   = "mm"
	ExtCommKindLoadBalance   = "lb"
)

// AcceptOwnNexthop is the special regular-community the static-route
// manager attaches to every synthesized static route (§4.7 clause 1).
const AcceptOwnNexthop = "accept-own-nexthop"

func ExtCommKind(s string) string {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}

// FormatEncap builds a tunnel-encap extended community for the given
// encapsulation name, e.g. FormatEncap("gre") -> "encap:gre".
func FormatEncap(name string) string {
	return ExtCommKindEncap + ":" + name
}

// FormatOriginVN builds an origin-vn extended community for a
// (virtual-network-index) pair, grounded in
// original_source/src/bgp/origin-vn/origin_vn.h's (as_number, vn_index)
// encoding — here keyed on the owning instance's local AS and its
// configured virtual-network index.
func FormatOriginVN(asn uint32, vnIndex int) string {
	return fmt.Sprintf("%s:%d:%d", ExtCommKindOriginVN, asn, vnIndex)
}

// IsRouteTargetComm reports whether s is a "target:..." extended
// community, used by the static-route manager to strip existing RTs
// (§4.7 clause 1: "strip any existing route-target communities").
func IsRouteTargetComm(s string) bool { return ExtCommKind(s) == ExtCommKindTarget }

// FilterOutKind returns list with every member of the given kind
// removed, preserving order.
func FilterOutKind(list []string, kind string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if ExtCommKind(s) != kind {
			out = append(out, s)
		}
	}
	return out
}

// ParseASNVNIndex parses the asn:vnIndex suffix of an origin-vn
// extended community.
func ParseASNVNIndex(s string) (asn uint32, vnIndex int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != ExtCommKindOriginVN {
		return 0, 0, false
	}
	a, err1 := strconv.ParseUint(parts[1], 10, 32)
	v, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(a), v, true
}
