package prefix

import (
	"net"
	"testing"
)

func TestInet4Contains(t *testing.T) {
	agg := NewInet4(net.ParseIP("192.168.1.0"), 24)
	more := NewInet4(net.ParseIP("192.168.1.10"), 32)
	other := NewInet4(net.ParseIP("192.168.2.1"), 32)
	equal := NewInet4(net.ParseIP("192.168.1.0"), 24)

	if !agg.Contains(more) {
		t.Fatalf("expected %s to contain %s", agg, more)
	}
	if agg.Contains(other) {
		t.Fatalf("did not expect %s to contain %s", agg, other)
	}
	if agg.Contains(equal) {
		t.Fatalf("a prefix must not contain itself (spec §4.6 clause 1b)")
	}
}

func TestInet4HostRoute(t *testing.T) {
	host := NewInet4(net.ParseIP("192.168.1.254"), 32)
	if !host.HostRoute() {
		t.Fatalf("expected /32 to be a host route")
	}
	notHost := NewInet4(net.ParseIP("192.168.1.0"), 24)
	if notHost.HostRoute() {
		t.Fatalf("did not expect /24 to be a host route")
	}
}

func TestRouteTargetString(t *testing.T) {
	rt := NewRouteTargetASN2(64496, 1)
	if got, want := rt.String(), "target:64496:1"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestL3VPNv4RoundTrip(t *testing.T) {
	rd := NewRDFromASN2(64496, 100)
	inner := NewInet4(net.ParseIP("10.1.1.1"), 32)
	vpn := NewL3VPNv4(rd, inner)

	if vpn.RD() != rd {
		t.Fatalf("RD mismatch")
	}
	if stripped := vpn.StripRD(); stripped != inner {
		t.Fatalf("StripRD mismatch: got %s want %s", stripped, inner)
	}
}

func TestPrefixOrdering(t *testing.T) {
	a := NewInet4(net.ParseIP("10.0.0.0"), 8)
	b := NewInet4(net.ParseIP("10.0.0.0"), 16)
	c := NewInet4(net.ParseIP("10.1.0.0"), 16)

	if !a.Less(b) {
		t.Fatalf("shorter prefix of same address should sort first")
	}
	if !b.Less(c) {
		t.Fatalf("lower address should sort first")
	}
}
