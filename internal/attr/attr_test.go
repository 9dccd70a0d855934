package attr

import (
	"net"
	"testing"
)

func TestInternerUniqueness(t *testing.T) {
	in := NewInterner()

	c1 := NewBuilder().SetOrigin(OriginIGP).SetLocalPref(100).SetNexthop(net.ParseIP("1.2.3.4")).Content()
	c2 := NewBuilder().SetOrigin(OriginIGP).SetLocalPref(100).SetNexthop(net.ParseIP("1.2.3.4")).Content()

	a1 := in.Intern(c1)
	a2 := in.Intern(c2)

	if a1 != a2 {
		t.Fatalf("equal content must intern to the same *Attr (invariant 6)")
	}
	if in.Len() != 1 {
		t.Fatalf("expected exactly one live bundle, got %d", in.Len())
	}
	if got := in.RefCount(a1); got != 2 {
		t.Fatalf("expected refcount 2, got %d", got)
	}

	in.Release(a1)
	if got := in.RefCount(a1); got != 1 {
		t.Fatalf("expected refcount 1 after one release, got %d", got)
	}

	in.Release(a2)
	if in.Len() != 0 {
		t.Fatalf("expected bundle reclaimed after last release, got Len=%d", in.Len())
	}
}

func TestInternerDistinctContent(t *testing.T) {
	in := NewInterner()
	a1 := in.Intern(NewBuilder().SetLocalPref(100).Content())
	a2 := in.Intern(NewBuilder().SetLocalPref(200).Content())
	if a1 == a2 {
		t.Fatalf("distinct content must not share a bundle")
	}
	if in.Len() != 2 {
		t.Fatalf("expected 2 live bundles, got %d", in.Len())
	}
}

func TestExtCommunityKindHelpers(t *testing.T) {
	if !IsRouteTargetComm("target:64496:1") {
		t.Fatalf("expected target: prefix to be recognised as a route-target community")
	}
	if IsRouteTargetComm("encap:gre") {
		t.Fatalf("encap: must not be recognised as a route-target community")
	}

	list := []string{"target:64496:1", "target:64496:2", "encap:gre"}
	filtered := FilterOutKind(list, ExtCommKindTarget)
	if len(filtered) != 1 || filtered[0] != "encap:gre" {
		t.Fatalf("unexpected filtered list: %v", filtered)
	}
}
