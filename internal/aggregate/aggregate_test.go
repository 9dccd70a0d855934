package aggregate

import (
	"net"
	"testing"
	"time"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
	"github.com/routectl/ctlplane/internal/table"
)

func newTestTable() *table.Table {
	return table.New("blue", prefix.FamilyInet4, attr.NewInterner(), table.WithPartitions(2))
}

func bgpAddReq(key prefix.Prefix, peer string) ribapi.Request {
	c := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetASPath("65001").SetLocalPref(100).Content()
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

func TestAggregateNotPublishedWithoutContributors(t *testing.T) {
	tbl := newTestTable()
	aggPrefix := prefix.NewInet4(net.ParseIP("10.0.0.0"), 24)
	nhIP := net.ParseIP("192.0.2.1")

	Register(tbl, Config{AggregatePrefix: aggPrefix, NexthopIP: nhIP})

	time.Sleep(50 * time.Millisecond)
	if _, ok := tbl.Find(aggPrefix); ok {
		t.Fatalf("expected no aggregate route published with zero contributors")
	}
}

func TestAggregatePublishedInfeasibleWhenNexthopUnresolved(t *testing.T) {
	tbl := newTestTable()
	aggPrefix := prefix.NewInet4(net.ParseIP("10.0.0.0"), 24)
	nhIP := net.ParseIP("192.0.2.1")

	Register(tbl, Config{AggregatePrefix: aggPrefix, NexthopIP: nhIP})

	contributor := prefix.NewInet4(net.ParseIP("10.0.0.1"), 32)
	tbl.EnqueueWait(bgpAddReq(contributor, "peerA"))

	route := waitForRoute(t, tbl, aggPrefix, true)
	best := route.Best()
	if best == nil || best.Source != ribapi.SourceAggregate {
		t.Fatalf("expected a published aggregate-source path, got %+v", best)
	}
	if !best.Flags.Infeasible() {
		t.Fatalf("expected aggregate path infeasible (ResolveNexthop) while nexthop unresolved")
	}
}

func TestAggregateBecomesFeasibleOnceNexthopResolves(t *testing.T) {
	tbl := newTestTable()
	aggPrefix := prefix.NewInet4(net.ParseIP("10.0.0.0"), 24)
	nhIP := net.ParseIP("192.0.2.1")

	Register(tbl, Config{AggregatePrefix: aggPrefix, NexthopIP: nhIP})

	contributor := prefix.NewInet4(net.ParseIP("10.0.0.1"), 32)
	tbl.EnqueueWait(bgpAddReq(contributor, "peerA"))
	waitForRoute(t, tbl, aggPrefix, true)

	nhHostRoute := prefix.NewInet4(nhIP, 32)
	tbl.EnqueueWait(bgpAddReq(nhHostRoute, "peerB"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		route, _ := tbl.Find(aggPrefix)
		if route != nil && route.Best() != nil && !route.Best().Flags.Infeasible() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected aggregate path to become feasible once the nexthop host route resolved")
}

func TestAggregateWithdrawnWhenLastContributorLeaves(t *testing.T) {
	tbl := newTestTable()
	aggPrefix := prefix.NewInet4(net.ParseIP("10.0.0.0"), 24)
	nhIP := net.ParseIP("192.0.2.1")

	Register(tbl, Config{AggregatePrefix: aggPrefix, NexthopIP: nhIP})

	contributor := prefix.NewInet4(net.ParseIP("10.0.0.1"), 32)
	tbl.EnqueueWait(bgpAddReq(contributor, "peerA"))
	waitForRoute(t, tbl, aggPrefix, true)

	tbl.EnqueueWait(ribapi.Request{Op: ribapi.OpDelete, Key: contributor, Peer: "peerA", PathID: 1})
	waitForRoute(t, tbl, aggPrefix, false)
}
