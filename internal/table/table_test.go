package table

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
)

func testPrefix(s string, length int) prefix.Inet4 {
	return prefix.NewInet4(net.ParseIP(s), length)
}

func addReq(key prefix.Prefix, peer string, localPref uint32, asPath string) ribapi.Request {
	c := attr.NewBuilder().SetOrigin(attr.OriginIGP).SetASPath(asPath).SetLocalPref(localPref).Content()
	return ribapi.Request{
		Op:          ribapi.OpAdd,
		Key:         key,
		Peer:        ribapi.PeerID(peer),
		PathID:      1,
		Source:      ribapi.SourceBGP,
		Content:     c,
		RouterID:    peer,
		PeerAddress: peer,
	}
}

func newTestTable() *Table {
	return New("test-instance", prefix.FamilyInet4, attr.NewInterner(), WithPartitions(4))
}

func TestBestPathLocalPreference(t *testing.T) {
	tbl := newTestTable()
	key := testPrefix("10.0.0.0", 24)

	tbl.EnqueueWait(addReq(key, "peerA", 100, "65001 65002"))
	tbl.EnqueueWait(addReq(key, "peerB", 200, "65001 65002 65003"))

	route, ok := tbl.Find(key)
	if !ok {
		t.Fatalf("expected route to exist")
	}
	if got := route.Best().Peer; got != "peerB" {
		t.Fatalf("expected higher local-pref path to win, got best peer %q", got)
	}
}

func TestBestPathShorterASPathBreaksLocalPrefTie(t *testing.T) {
	tbl := newTestTable()
	key := testPrefix("10.0.1.0", 24)

	tbl.EnqueueWait(addReq(key, "peerA", 100, "65001 65002 65003"))
	tbl.EnqueueWait(addReq(key, "peerB", 100, "65001"))

	route, _ := tbl.Find(key)
	if got := route.Best().Peer; got != "peerB" {
		t.Fatalf("expected shorter AS path to win tie on local-pref, got %q", got)
	}
}

func TestBestPathInfeasibleNeverWins(t *testing.T) {
	tbl := newTestTable()
	key := testPrefix("10.0.2.0", 24)

	good := addReq(key, "peerA", 50, "65001 65002")
	bad := addReq(key, "peerB", 500, "65001")
	bad.Flags = flags.PathFlags(0).Set(flags.PolicyReject)

	tbl.EnqueueWait(good)
	tbl.EnqueueWait(bad)

	route, _ := tbl.Find(key)
	if got := route.Best().Peer; got != "peerA" {
		t.Fatalf("expected feasible path to win regardless of local-pref, got %q", got)
	}
}

func TestBestPathEBGPBeforeIBGP(t *testing.T) {
	tbl := newTestTable()
	key := testPrefix("10.0.3.0", 24)

	ibgp := addReq(key, "peerA", 100, "65001")
	ibgp.IsEBGP = false
	ebgp := addReq(key, "peerB", 100, "65001")
	ebgp.IsEBGP = true

	tbl.EnqueueWait(ibgp)
	tbl.EnqueueWait(ebgp)

	route, _ := tbl.Find(key)
	if got := route.Best().Peer; got != "peerB" {
		t.Fatalf("expected eBGP path to win tie over iBGP, got %q", got)
	}
}

func TestMultipathSiblingsMarked(t *testing.T) {
	tbl := newTestTable()
	key := testPrefix("10.0.4.0", 24)

	a := addReq(key, "peerA", 100, "65001 65002")
	b := addReq(key, "peerB", 100, "65001 65002")
	c := addReq(key, "peerC", 50, "65001 65002")

	tbl.EnqueueWait(a)
	tbl.EnqueueWait(b)
	tbl.EnqueueWait(c)

	route, _ := tbl.Find(key)
	mp := route.Multipaths()
	if len(mp) != 2 {
		t.Fatalf("expected exactly 2 multipath siblings (peerA, peerB), got %d: %+v", len(mp), mp)
	}
	if route.Best().Peer == "peerC" {
		t.Fatalf("lower local-pref path must not be the overall best")
	}
}

func TestDeleteLifecycleOneMoreNotificationCycle(t *testing.T) {
	tbl := newTestTable()
	key := testPrefix("10.0.5.0", 24)

	var mu sync.Mutex
	var deletions int
	var lastPathCount int
	tbl.RegisterListener(func(partitionID int, snap ribapi.RouteSnapshot, isDelete bool) {
		if snap.Prefix() != key {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if isDelete {
			deletions++
			lastPathCount = snap.PathCount()
		}
	})

	req := addReq(key, "peerA", 100, "65001")
	tbl.EnqueueWait(req)
	tbl.EnqueueWait(ribapi.Request{Op: ribapi.OpDelete, Key: key, Peer: "peerA", PathID: 1})

	mu.Lock()
	defer mu.Unlock()
	if deletions != 1 {
		t.Fatalf("expected exactly one is_delete=true notification, got %d", deletions)
	}
	if lastPathCount != 0 {
		t.Fatalf("expected the delete notification to observe zero paths, got %d", lastPathCount)
	}

	if _, ok := tbl.Find(key); ok {
		t.Fatalf("expected route to be physically removed after the delete notification")
	}
}

func TestPartitionsProcessInParallel(t *testing.T) {
	tbl := newTestTable()

	release := make(chan struct{})
	started := make(chan struct{}, tbl.PartitionCount())

	var mu sync.Mutex
	blocked := 0
	tbl.RegisterListener(func(partitionID int, snap ribapi.RouteSnapshot, isDelete bool) {
		mu.Lock()
		blocked++
		mu.Unlock()
		started <- struct{}{}
		<-release
	})

	// Drive distinct keys until each partition has received one, so
	// every partition goroutine blocks independently inside the
	// listener callback.
	seen := make(map[int]bool)
	for i := 0; len(seen) < tbl.PartitionCount() && i < 1000; i++ {
		k := testPrefix("203.0.113."+strconv.Itoa(i%250), 32)
		idx := partitionFor(k, tbl.PartitionCount())
		if seen[idx] {
			continue
		}
		seen[idx] = true
		tbl.Enqueue(addReq(k, "peerA", 100, "65001"))
	}

	timeout := time.After(3 * time.Second)
	for i := 0; i < tbl.PartitionCount(); i++ {
		select {
		case <-started:
		case <-timeout:
			t.Fatalf("expected every partition to process its request without waiting on another partition")
		}
	}
	close(release)
}
