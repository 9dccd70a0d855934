package replication

import (
	"net"
	"testing"
	"time"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/instance"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
	"github.com/routectl/ctlplane/internal/rtarget"
	"github.com/routectl/ctlplane/internal/table"
)

func newEngine(t *testing.T) (*Engine, *instance.Registry) {
	t.Helper()
	interner := attr.NewInterner()
	rtMgr := rtarget.New(nil)
	reg := instance.NewRegistry(interner, rtMgr)
	e := New(reg, rtMgr)
	e.RegisterMaster(prefix.FamilyInet4)
	return e, reg
}

func bgpAddReq(key prefix.Prefix, peer string, ext []string) ribapi.Request {
	c := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetASPath("65001").SetLocalPref(100).SetExtCommunity(ext).Content()
	return ribapi.Request{Op: ribapi.OpAdd, Key: key, Peer: ribapi.PeerID(peer), PathID: 1, Source: ribapi.SourceBGP, Content: c, RouterID: peer, PeerAddress: peer}
}

func waitForRoute(t *testing.T, tbl *table.Table, key prefix.Prefix, wantPresent bool) *table.Route {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		route, ok := tbl.Find(key)
		if ok == wantPresent {
			return route
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for route %v present=%v", key, wantPresent)
	return nil
}

func TestVRFRouteReplicatesIntoVPNTableWithRD(t *testing.T) {
	e, reg := newEngine(t)

	red := reg.GetOrCreate("red")
	rd := prefix.NewRDFromASN2(64496, 1)
	red.SetRD(rd)
	rt := prefix.NewRouteTargetASN2(64496, 100)
	red.AddExportRT(rt)

	e.RegisterVRF(red, prefix.FamilyInet4)

	pfx := prefix.NewInet4(net.ParseIP("10.1.1.0"), 24)
	red.Table(prefix.FamilyInet4).EnqueueWait(bgpAddReq(pfx, "peerA", nil))

	vpnTbl := reg.Master().Table(prefix.FamilyL3VPNv4)
	vpnKey := prefix.NewL3VPNv4(rd, pfx)
	route := waitForRoute(t, vpnTbl, vpnKey, true)

	best := route.Best()
	if best == nil {
		t.Fatalf("expected a replicated best path in the VPN table")
	}
	if best.Attr.SourceRD() != rd {
		t.Fatalf("expected source_rd stamped to %v, got %v", rd, best.Attr.SourceRD())
	}
	hasRT := false
	for _, c := range best.Attr.ExtCommunity() {
		if c == rt.String() {
			hasRT = true
		}
	}
	if !hasRT {
		t.Fatalf("expected export route-target attached, got %v", best.Attr.ExtCommunity())
	}
}

func TestVPNRouteReplicatesIntoImportingVRFNotSource(t *testing.T) {
	e, reg := newEngine(t)

	red := reg.GetOrCreate("red")
	red.SetRD(prefix.NewRDFromASN2(64496, 1))
	rt := prefix.NewRouteTargetASN2(64496, 100)
	red.AddExportRT(rt)
	e.RegisterVRF(red, prefix.FamilyInet4)

	blue := reg.GetOrCreate("blue")
	blue.SetRD(prefix.NewRDFromASN2(64496, 2))
	blue.AddImportRT(rt)
	e.RegisterVRF(blue, prefix.FamilyInet4)

	pfx := prefix.NewInet4(net.ParseIP("10.1.1.0"), 24)
	red.Table(prefix.FamilyInet4).EnqueueWait(bgpAddReq(pfx, "peerA", nil))

	blueTbl := blue.Table(prefix.FamilyInet4)
	route := waitForRoute(t, blueTbl, pfx, true)
	best := route.Best()
	if best == nil {
		t.Fatalf("expected route imported into blue")
	}
	if !best.Flags.Has(flags.Replicated) {
		t.Fatalf("expected replicated path to carry the replicated flag")
	}

	redRoute, _ := red.Table(prefix.FamilyInet4).Find(pfx)
	if redRoute == nil || redRoute.PathCount() != 1 {
		t.Fatalf("expected red's own table untouched by the reimport, got %+v", redRoute)
	}
}

func TestVRFWithdrawalPropagatesToImportingVRF(t *testing.T) {
	e, reg := newEngine(t)

	red := reg.GetOrCreate("red")
	red.SetRD(prefix.NewRDFromASN2(64496, 1))
	rt := prefix.NewRouteTargetASN2(64496, 100)
	red.AddExportRT(rt)
	e.RegisterVRF(red, prefix.FamilyInet4)

	blue := reg.GetOrCreate("blue")
	blue.SetRD(prefix.NewRDFromASN2(64496, 2))
	blue.AddImportRT(rt)
	e.RegisterVRF(blue, prefix.FamilyInet4)

	pfx := prefix.NewInet4(net.ParseIP("10.1.1.0"), 24)
	redTbl := red.Table(prefix.FamilyInet4)
	redTbl.EnqueueWait(bgpAddReq(pfx, "peerA", nil))

	blueTbl := blue.Table(prefix.FamilyInet4)
	waitForRoute(t, blueTbl, pfx, true)

	redTbl.EnqueueWait(ribapi.Request{Op: ribapi.OpDelete, Key: pfx, Peer: "peerA", PathID: 1})
	waitForRoute(t, blueTbl, pfx, false)
}
