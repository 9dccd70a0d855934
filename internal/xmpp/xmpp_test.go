package xmpp

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/instance"
	"github.com/routectl/ctlplane/internal/policy"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
	"github.com/routectl/ctlplane/internal/rtarget"
	"github.com/routectl/ctlplane/internal/table"
)

// mapPolicyResolver is a fixed name->Policy lookup for tests, standing
// in for the config-driven resolver cmd/ctlplane builds.
type mapPolicyResolver map[string]policy.Policy

func (m mapPolicyResolver) Resolve(name string) (policy.Policy, bool) {
	p, ok := m[name]
	return p, ok
}

// controlledMembership lets a test decide exactly when a Register/
// Unregister call completes, so it can observe the channel mid-state
// rather than racing an async goroutine.
type controlledMembership struct {
	mu      sync.Mutex
	pending map[*table.Table][]func()
}

func newControlledMembership() *controlledMembership {
	return &controlledMembership{pending: make(map[*table.Table][]func())}
}

func (m *controlledMembership) Register(_ ribapi.PeerID, tbl *table.Table, done func()) {
	m.mu.Lock()
	m.pending[tbl] = append(m.pending[tbl], done)
	m.mu.Unlock()
}

func (m *controlledMembership) Unregister(_ ribapi.PeerID, tbl *table.Table, done func()) {
	m.mu.Lock()
	m.pending[tbl] = append(m.pending[tbl], done)
	m.mu.Unlock()
}

// release runs the oldest still-pending callback queued for tbl.
func (m *controlledMembership) release(t *testing.T, tbl *table.Table) {
	t.Helper()
	m.mu.Lock()
	q := m.pending[tbl]
	if len(q) == 0 {
		m.mu.Unlock()
		t.Fatalf("no pending membership callback for table %s", tbl.Name)
	}
	done := q[0]
	m.pending[tbl] = q[1:]
	m.mu.Unlock()
	done()
}

type recordingMetrics struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recordingMetrics) IncDecoderError(_ prefix.Family, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recordingMetrics) IncMessage(string, string) {}

func newTestRegistry() *instance.Registry {
	return instance.NewRegistry(attr.NewInterner(), rtarget.New(nil))
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

func unicastItem(ip string, plen int, nh string) Item {
	return Item{
		AFI: AFIInet, SAFI: SAFIUnicast,
		Body: UnicastItem{Prefix: net.ParseIP(ip), PrefixLen: plen, Nexthop: net.ParseIP(nh)},
	}
}

func TestXMPPDeferUntilInstanceCreated(t *testing.T) {
	reg := newTestRegistry()
	mm := newControlledMembership()
	ch := NewChannel("agent1", 64496, nil, reg, WithMembershipManager(mm))
	reg.AddCreateListener(ch.OnInstanceCreated)

	ch.HandleMessage(Message{Action: ActionSubscribe, VRF: "blue", InstanceID: 1})

	pfx := prefix.NewInet4(net.ParseIP("10.2.1.3"), 32)
	ch.HandleMessage(Message{Action: ActionPublish, VRF: "blue", Items: []Item{unicastItem("10.2.1.3", 32, "5.6.7.8")}})

	ch.mu.Lock()
	deferred := len(ch.deferred[subKey{vrf: "blue", family: prefix.FamilyInet4}])
	ch.mu.Unlock()
	if deferred != 1 {
		t.Fatalf("expected 1 deferred request before instance creation, got %d", deferred)
	}

	blue := reg.GetOrCreate("blue")

	mm.release(t, blue.Table(prefix.FamilyInet4))

	route := waitForRoute(t, blue.Table(prefix.FamilyInet4), pfx, true)
	best := route.Best()
	if best == nil || best.Attr.Nexthop().String() != "5.6.7.8" {
		t.Fatalf("expected deferred publish to land once registered, got %+v", best)
	}
}

func TestSubscribeUnsubscribeChaining(t *testing.T) {
	reg := newTestRegistry()
	mm := newControlledMembership()
	ch := NewChannel("agent1", 64496, nil, reg, WithMembershipManager(mm))

	green := reg.GetOrCreate("green")
	ch.HandleMessage(Message{Action: ActionSubscribe, VRF: "green", InstanceID: 1})

	key := subKey{vrf: "green", family: prefix.FamilyInet4}
	ch.mu.Lock()
	if ch.tableSubs[key].phase != phaseRegistering {
		t.Fatalf("expected Registering right after subscribe")
	}
	ch.mu.Unlock()

	// Unsubscribe arrives while the register is still in flight: it
	// should chain rather than dispatch an unregister immediately.
	ch.HandleMessage(Message{Action: ActionUnsubscribe, VRF: "green"})
	ch.mu.Lock()
	if ch.tableSubs[key].phase != phaseRegistering || ch.tableSubs[key].pending != pendingUnsubscribe {
		t.Fatalf("expected chained pending=unsubscribe while still registering, got %+v", ch.tableSubs[key])
	}
	ch.mu.Unlock()

	mm.release(t, green.Table(prefix.FamilyInet4))

	ch.mu.Lock()
	if ch.tableSubs[key].phase != phaseUnregistering {
		t.Fatalf("expected the register callback to chain straight into Unregistering, got %+v", ch.tableSubs[key])
	}
	ch.mu.Unlock()

	// A subscribe arriving mid-unregister should chain back to Registering.
	ch.HandleMessage(Message{Action: ActionSubscribe, VRF: "green", InstanceID: 1})
	ch.mu.Lock()
	if ch.tableSubs[key].pending != pendingSubscribe {
		t.Fatalf("expected chained pending=subscribe while unregistering, got %+v", ch.tableSubs[key])
	}
	ch.mu.Unlock()

	mm.release(t, green.Table(prefix.FamilyInet4))
	ch.mu.Lock()
	if ch.tableSubs[key].phase != phaseRegistering {
		t.Fatalf("expected the unregister callback to chain back into Registering, got %+v", ch.tableSubs[key])
	}
	ch.mu.Unlock()

	mm.release(t, green.Table(prefix.FamilyInet4))
	ch.mu.Lock()
	if ch.tableSubs[key].phase != phaseRegistered {
		t.Fatalf("expected final settle into Registered, got %+v", ch.tableSubs[key])
	}
	ch.mu.Unlock()
}

func TestPublishForUnsubscribedTableIsDropped(t *testing.T) {
	reg := newTestRegistry()
	reg.GetOrCreate("red")
	ch := NewChannel("agent1", 64496, nil, reg)

	ch.HandleMessage(Message{Action: ActionPublish, VRF: "red", Items: []Item{unicastItem("10.9.9.0", 24, "1.2.3.4")}})

	red, _ := reg.Get("red")
	pfx := prefix.NewInet4(net.ParseIP("10.9.9.0"), 24)
	waitForRoute(t, red.Table(prefix.FamilyInet4), pfx, false)
}

func TestMalformedItemIncrementsDecoderCounter(t *testing.T) {
	reg := newTestRegistry()
	reg.GetOrCreate("red")
	metrics := &recordingMetrics{}
	ch := NewChannel("agent1", 64496, nil, reg, WithMetrics(metrics))

	ch.HandleMessage(Message{Action: ActionSubscribe, VRF: "red", InstanceID: 1})
	badItem := Item{AFI: AFIInet, SAFI: SAFIUnicast, Body: UnicastItem{Prefix: nil, Nexthop: net.ParseIP("1.2.3.4")}}
	ch.HandleMessage(Message{Action: ActionPublish, VRF: "red", Items: []Item{badItem}})

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.kinds) != 1 || metrics.kinds[0] != "bad-prefix" {
		t.Fatalf("expected one bad-prefix decoder error, got %v", metrics.kinds)
	}
}

func TestASNChangeWithdrawsAndReadvertisesRTRoutes(t *testing.T) {
	reg := newTestRegistry()
	ch := NewChannel("agent1", 64496, nil, reg)

	red := reg.GetOrCreate("red")
	rt := prefix.NewRouteTargetASN2(64496, 1)
	red.AddImportRT(rt)

	ch.HandleMessage(Message{Action: ActionSubscribe, VRF: "red", InstanceID: 1})

	rtTbl := reg.Master().Table(prefix.FamilyRTarget)
	waitForRoute(t, rtTbl, rt, true)

	ch.SetLocalASN(64497)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		route, ok := rtTbl.Find(rt)
		if ok {
			if best := route.Best(); best != nil && best.PathID == ribapi.PathID(64497) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected RT route to be re-advertised under the new ASN's path id")
}

func TestPublishRejectedByPolicyNeverReachesTable(t *testing.T) {
	reg := newTestRegistry()
	green := reg.GetOrCreate("green")
	green.SetPolicies([]string{"deny-all"})

	resolver := mapPolicyResolver{
		"deny-all": policy.Policy{
			Name: "deny-all",
			Terms: []policy.Term{{
				Match:   []policy.Match{{Kind: policy.MatchProtocol, Protocol: "XMPP"}},
				Actions: []policy.Action{{Kind: policy.ActionReject}},
			}},
		},
	}
	ch := NewChannel("agent1", 64496, nil, reg, WithPolicyResolver(resolver))

	ch.HandleMessage(Message{Action: ActionSubscribe, VRF: "green", InstanceID: 1})
	ch.HandleMessage(Message{Action: ActionPublish, VRF: "green", Items: []Item{unicastItem("10.5.5.0", 24, "1.2.3.4")}})

	pfx := prefix.NewInet4(net.ParseIP("10.5.5.0"), 24)
	waitForRoute(t, green.Table(prefix.FamilyInet4), pfx, false)
}

func TestPublishPassesThroughWithoutMatchingPolicy(t *testing.T) {
	reg := newTestRegistry()
	green := reg.GetOrCreate("green")
	green.SetPolicies([]string{"unused"})

	ch := NewChannel("agent1", 64496, nil, reg, WithPolicyResolver(mapPolicyResolver{}))

	ch.HandleMessage(Message{Action: ActionSubscribe, VRF: "green", InstanceID: 1})
	ch.HandleMessage(Message{Action: ActionPublish, VRF: "green", Items: []Item{unicastItem("10.5.6.0", 24, "1.2.3.4")}})

	pfx := prefix.NewInet4(net.ParseIP("10.5.6.0"), 24)
	waitForRoute(t, green.Table(prefix.FamilyInet4), pfx, true)
}
