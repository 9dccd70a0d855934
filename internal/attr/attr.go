// Package attr implements the interned, immutable path-attribute bundle
// of §3 ("Path attributes"): origin, AS path, nexthop, MED, local
// preference, community lists, originator-id/cluster-list, label,
// source RD, and flags. Two bundles with equal content share one
// instance via Interner (§3 "Interning").
package attr

import (
	"fmt"
	"net"
	"strings"

	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/prefix"
)

// Origin is the BGP ORIGIN attribute's numeric code, ordered IGP < EGP
// < Incomplete per §4.2 clause 4.
type Origin uint8

const (
	OriginIGP Origin = iota
	OriginEGP
	OriginIncomplete
)

func (o Origin) String() string {
	switch o {
	case OriginIGP:
		return "IGP"
	case OriginEGP:
		return "EGP"
	default:
		return "INCOMPLETE"
	}
}

// Content is the comparable, hashable value carried by an interned
// bundle. It never contains pointers so two equal Contents always
// produce the same hash and compare equal with ==.
type Content struct {
	Origin       Origin
	ASPath       string // space-joined ASNs; AS_SET segments bracketed, matching teacher's ASPath string shape
	Nexthop      netAddr
	MED          uint32
	HasMED       bool
	LocalPref    uint32
	HasLocalPref bool
	Community    string // sorted, comma-joined "asn:value" community list
	ExtCommunity string // sorted, comma-joined ExtCommunity.String() list
	OriginatorID netAddr
	ClusterList  string // sorted, comma-joined cluster IDs
	Label        uint32
	SourceRD     prefix.RD
	ParamFlags   flags.PathFlags
}

// netAddr is a comparable stand-in for net.IP (which is a byte slice
// and therefore not usable as a map/struct-equality key component).
type netAddr [16]byte

func toNetAddr(ip net.IP) netAddr {
	var a netAddr
	if ip == nil {
		return a
	}
	copy(a[:], ip.To16())
	return a
}

func (a netAddr) IP() net.IP {
	if a == ([16]byte{}) {
		return nil
	}
	return net.IP(a[:])
}

// Attr is the immutable, interned attribute bundle a Path references.
// It is never mutated after construction; "changing" attributes means
// building a new Content and interning it (possibly reusing an
// existing Attr, per §3/§8 invariant 6).
type Attr struct {
	c Content
}

func newAttr(c Content) *Attr { return &Attr{c: c} }

func (a *Attr) Origin() Origin               { return a.c.Origin }
func (a *Attr) ASPath() string                { return a.c.ASPath }
func (a *Attr) Nexthop() net.IP               { return a.c.Nexthop.IP() }
func (a *Attr) MED() (uint32, bool)           { return a.c.MED, a.c.HasMED }
func (a *Attr) LocalPref() (uint32, bool)     { return a.c.LocalPref, a.c.HasLocalPref }
func (a *Attr) Community() []string           { return splitNonEmpty(a.c.Community) }
func (a *Attr) ExtCommunity() []string        { return splitNonEmpty(a.c.ExtCommunity) }
func (a *Attr) OriginatorID() net.IP          { return a.c.OriginatorID.IP() }
func (a *Attr) ClusterListLen() int           { return len(splitNonEmpty(a.c.ClusterList)) }
func (a *Attr) Label() uint32                 { return a.c.Label }
func (a *Attr) SourceRD() prefix.RD           { return a.c.SourceRD }
func (a *Attr) ParamFlags() flags.PathFlags   { return a.c.ParamFlags }
func (a *Attr) Content() Content              { return a.c }

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Builder constructs a Content value incrementally; call Intern on an
// Interner to obtain the (possibly shared) *Attr.
type Builder struct {
	c Content
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) FromAttr(a *Attr) *Builder {
	b.c = a.c
	return b
}

// FromContent seeds the builder from an already-decoded Content value,
// e.g. when a policy rewrites an existing bundle without going through
// an interned *Attr first.
func (b *Builder) FromContent(c Content) *Builder {
	b.c = c
	return b
}

func (b *Builder) SetOrigin(o Origin) *Builder { b.c.Origin = o; return b }
func (b *Builder) SetASPath(s string) *Builder { b.c.ASPath = s; return b }
func (b *Builder) SetNexthop(ip net.IP) *Builder {
	b.c.Nexthop = toNetAddr(ip)
	return b
}
func (b *Builder) SetMED(v uint32) *Builder {
	b.c.MED, b.c.HasMED = v, true
	return b
}
func (b *Builder) ClearMED() *Builder {
	b.c.MED, b.c.HasMED = 0, false
	return b
}
func (b *Builder) SetLocalPref(v uint32) *Builder {
	b.c.LocalPref, b.c.HasLocalPref = v, true
	return b
}
func (b *Builder) SetCommunity(list []string) *Builder {
	b.c.Community = joinSorted(list)
	return b
}
func (b *Builder) SetExtCommunity(list []string) *Builder {
	b.c.ExtCommunity = joinSorted(list)
	return b
}
func (b *Builder) SetOriginatorID(ip net.IP) *Builder {
	b.c.OriginatorID = toNetAddr(ip)
	return b
}
func (b *Builder) SetClusterListLen(n int) *Builder {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", i)
	}
	b.c.ClusterList = joinSorted(ids)
	return b
}
func (b *Builder) SetLabel(l uint32) *Builder           { b.c.Label = l; return b }
func (b *Builder) SetSourceRD(rd prefix.RD) *Builder     { b.c.SourceRD = rd; return b }
func (b *Builder) SetParamFlags(f flags.PathFlags) *Builder {
	b.c.ParamFlags = f
	return b
}
func (b *Builder) AddParamFlag(f flags.PathFlags) *Builder {
	b.c.ParamFlags = b.c.ParamFlags.Set(f)
	return b
}

func (b *Builder) Content() Content { return b.c }

func joinSorted(list []string) string {
	if len(list) == 0 {
		return ""
	}
	cp := append([]string{}, list...)
	sortStrings(cp)
	return strings.Join(cp, ",")
}

// sortStrings avoids importing sort in two places; trivial insertion
// sort is fine at the small list sizes (communities per path) this
// bundle deals with.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
