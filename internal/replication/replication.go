// Package replication implements the replication engine of §4.4: a
// listener on every VRF table (replicating out to the shared VPN
// table) and on the shared VPN table (replicating in to importing
// VRFs), driven by each instance's import/export route-target sets.
package replication

import (
	"strconv"
	"strings"
	"sync"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/instance"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
	"github.com/routectl/ctlplane/internal/rtarget"
	"github.com/routectl/ctlplane/internal/table"
)

// Metrics receives the per-direction replication-event counters of §6
// "Peer observability". noopMetrics is used when a caller doesn't wire
// one.
type Metrics interface {
	IncReplicationEvent(direction, op string)
}

type noopMetrics struct{}

func (noopMetrics) IncReplicationEvent(string, string) {}

// Engine ties a routing-instance registry and route-target manager
// together: it is registered as a table.Listener on every VRF table
// and on the master instance's shared VPN tables.
type Engine struct {
	registry *instance.Registry
	rtMgr    *rtarget.Manager
	metrics  Metrics

	mu          sync.Mutex
	published   map[trackKey][]ribapi.PathID
	vrfFamilies []prefix.Family
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithMetrics attaches the collector notified on every replicated
// add/delete.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// trackKey identifies one downstream (table, key) pair this engine has
// replicated paths into, so a later notification for the same source
// route can diff against what was last published rather than re-derive
// it from a route snapshot that, on withdrawal, already has its paths
// removed by the time the listener runs (§4.1 "Path ops on Delete").
type trackKey struct {
	target string
	family prefix.Family
	key    string
}

// New creates an Engine. Wire it to the route-target manager so
// RT-group transitions can trigger the rescans §4.3 describes.
func New(registry *instance.Registry, rtMgr *rtarget.Manager, opts ...Option) *Engine {
	e := &Engine{registry: registry, rtMgr: rtMgr, metrics: noopMetrics{}, published: make(map[trackKey][]ribapi.PathID)}
	for _, opt := range opts {
		opt(e)
	}
	rtMgr.SetRescanFunc(e.rescan)
	return e
}

func vpnFamilyFor(f prefix.Family) prefix.Family {
	switch f {
	case prefix.FamilyInet4:
		return prefix.FamilyL3VPNv4
	case prefix.FamilyInet6:
		return prefix.FamilyL3VPNv6
	default:
		return f
	}
}

// RegisterVRF attaches the VRF->VPN direction to inst's table for
// family, tagging replicated-out requests with inst's configured route
// distinguisher. Call once per (instance, family) when the table is
// created.
func (e *Engine) RegisterVRF(inst *instance.Instance, family prefix.Family) {
	vrfTbl := inst.Table(family)
	vpnTbl := e.registry.Master().Table(vpnFamilyFor(family))

	vrfTbl.RegisterListener(func(partitionID int, snap ribapi.RouteSnapshot, isDelete bool) {
		e.replicateOut(inst, family, vpnTbl, snap, isDelete)
	})
}

// RegisterMaster attaches the VPN->VRF direction to the shared VPN
// table for family. Call once at startup per VPN family.
func (e *Engine) RegisterMaster(family prefix.Family) {
	vpnFamily := vpnFamilyFor(family)
	vpnTbl := e.registry.Master().Table(vpnFamily)

	vpnTbl.RegisterListener(func(partitionID int, snap ribapi.RouteSnapshot, isDelete bool) {
		e.replicateIn(family, snap, isDelete)
	})

	e.mu.Lock()
	e.vrfFamilies = append(e.vrfFamilies, family)
	e.mu.Unlock()
}

func vpnPeer(instanceName string) ribapi.PeerID { return ribapi.PeerID("vpn-out:" + instanceName) }
func vrfPeer(instanceName string) ribapi.PeerID { return ribapi.PeerID("vpn-in:" + instanceName) }

// replicateOut implements §4.4 "VRF -> VPN": construct a VPN prefix by
// prefixing the instance's RD to the VRF prefix, attach the instance's
// export RTs, and reconcile the published path set against what this
// route last sent downstream.
func (e *Engine) replicateOut(inst *instance.Instance, family prefix.Family, vpnTbl *table.Table, snap ribapi.RouteSnapshot, isDelete bool) {
	route, ok := snap.(*table.Route)
	if !ok {
		return
	}
	rd := inst.RD()

	vpnKey, ok := vpnKeyFor(rd, family, route.Prefix())
	if !ok {
		return
	}

	desired := make(map[ribapi.PathID]ribapi.Request)
	if !isDelete && route.Best() != nil {
		exportRT := inst.ExportRTs()
		for _, src := range route.Multipaths() {
			// One-hop-only rule: a path that itself arrived via
			// replication is never replicated again.
			if src.Flags.Has(flags.Replicated) {
				continue
			}

			ext := filterOutRouteTargets(src.Attr.ExtCommunity())
			for _, rt := range exportRT {
				ext = append(ext, rt.String())
			}
			c := attr.NewBuilder().FromAttr(src.Attr).SetExtCommunity(ext).SetSourceRD(rd).Content()

			desired[src.PathID] = ribapi.Request{
				Op:          ribapi.OpAdd,
				Key:         vpnKey,
				Peer:        vpnPeer(inst.Name),
				PathID:      src.PathID,
				Source:      ribapi.SourceBGP,
				Content:     c,
				Label:       src.Label,
				RouterID:    src.RouterID,
				PeerAddress: src.PeerAddress,
				IsEBGP:      src.IsEBGP,
			}
		}
	}

	tk := trackKey{target: inst.Name, family: family, key: vpnKey.String()}
	e.reconcile("vrf_to_vpn", tk, vpnTbl, vpnKey, vpnPeer(inst.Name), desired)
}

// replicateIn implements §4.4 "VPN -> VRF": for every route target in
// the path's extended-community list, look up importers and replicate
// to each importing instance other than the source, after stripping
// the prefix's RD.
func (e *Engine) replicateIn(family prefix.Family, snap ribapi.RouteSnapshot, isDelete bool) {
	route, ok := snap.(*table.Route)
	if !ok {
		return
	}

	vrfKey, _, ok := stripRD(family, route.Prefix())
	if !ok {
		return
	}

	// Every importing instance for every route target ever seen on this
	// prefix is a candidate whose published set may need to shrink to
	// empty; gather the desired set per importer first, then reconcile
	// each importer even if it no longer appears in the current best
	// path's route targets (e.g. the last RT was just removed).
	perImporter := make(map[string]map[ribapi.PathID]ribapi.Request)
	touched := make(map[string]struct{})

	if !isDelete && route.Best() != nil {
		for _, src := range route.Multipaths() {
			for _, rt := range routeTargetsOf(src.Attr.ExtCommunity()) {
				for _, importer := range e.rtMgr.Importers(rt) {
					inst, ok := e.registry.Get(string(importer))
					if !ok {
						continue
					}
					// Loop prevention: never re-replicate a path whose
					// source_rd equals the target's own RD (this also
					// excludes the originating instance, since it is
					// the one that stamped source_rd on the way out).
					if src.Attr.SourceRD() == inst.RD() {
						continue
					}

					c := attr.NewBuilder().FromAttr(src.Attr).AddParamFlag(flags.Replicated).Content()
					if perImporter[string(importer)] == nil {
						perImporter[string(importer)] = make(map[ribapi.PathID]ribapi.Request)
					}
					perImporter[string(importer)][src.PathID] = ribapi.Request{
						Op:          ribapi.OpAdd,
						Key:         vrfKey,
						Peer:        vrfPeer(string(importer)),
						PathID:      src.PathID,
						Source:      ribapi.SourceBGP,
						Content:     c,
						Flags:       flags.Replicated,
						Label:       src.Label,
						RouterID:    src.RouterID,
						PeerAddress: src.PeerAddress,
						IsEBGP:      src.IsEBGP,
					}
					touched[string(importer)] = struct{}{}
				}
			}
		}
	}

	// Also reconcile every importer this prefix was previously
	// published to, so a withdrawal or a last-RT removal empties them.
	e.mu.Lock()
	for tk := range e.published {
		if tk.family == family && tk.key == vrfKey.String() {
			touched[tk.target] = struct{}{}
		}
	}
	e.mu.Unlock()

	for importerName := range touched {
		inst, ok := e.registry.Get(importerName)
		if !ok {
			continue
		}
		tk := trackKey{target: importerName, family: family, key: vrfKey.String()}
		e.reconcile("vpn_to_vrf", tk, inst.Table(family), vrfKey, vrfPeer(importerName), perImporter[importerName])
	}
}

// reconcile diffs desired (keyed by downstream path id) against what
// this engine last published for tk, enqueuing adds/changes for every
// entry in desired and deletes for every previously published path id
// no longer present.
func (e *Engine) reconcile(direction string, tk trackKey, tbl *table.Table, key prefix.Prefix, peer ribapi.PeerID, desired map[ribapi.PathID]ribapi.Request) {
	e.mu.Lock()
	old := e.published[tk]
	e.mu.Unlock()

	for _, req := range desired {
		tbl.Enqueue(req)
		e.metrics.IncReplicationEvent(direction, "add")
	}
	for _, id := range old {
		if _, stillWanted := desired[id]; !stillWanted {
			tbl.Enqueue(ribapi.Request{Op: ribapi.OpDelete, Key: key, Peer: peer, PathID: id})
			e.metrics.IncReplicationEvent(direction, "delete")
		}
	}

	e.mu.Lock()
	if len(desired) == 0 {
		delete(e.published, tk)
	} else {
		ids := make([]ribapi.PathID, 0, len(desired))
		for id := range desired {
			ids = append(ids, id)
		}
		e.published[tk] = ids
	}
	e.mu.Unlock()
}

// rescan is the rtarget.Manager's empty<->non-empty transition hook
// (§4.3): it walks every shared VPN table's current routes via
// table.ForEach and re-drives every one carrying rt through
// replicateIn, so a join/leave-import for rt also covers routes that
// already existed in the VPN table before the transition happened (a
// late-created VRF importing an already-populated route target, or
// config deltas applied route-before-import). Steady-state adds/
// withdraws still flow through replicateOut/replicateIn as each VRF
// table is mutated; this only needs to cover the out-of-order case.
func (e *Engine) rescan(rt prefix.RouteTarget) {
	e.mu.Lock()
	families := append([]prefix.Family{}, e.vrfFamilies...)
	e.mu.Unlock()

	for _, family := range families {
		vpnTbl := e.registry.Master().Table(vpnFamilyFor(family))
		vpnTbl.ForEach(func(route *table.Route) {
			best := route.Best()
			if best == nil {
				return
			}
			for _, candidate := range routeTargetsOf(best.Attr.ExtCommunity()) {
				if candidate == rt {
					e.replicateIn(family, route, false)
					return
				}
			}
		})
	}
}

func vpnKeyFor(rd prefix.RD, family prefix.Family, vrfKey prefix.Prefix) (prefix.Prefix, bool) {
	switch family {
	case prefix.FamilyInet4:
		inet, ok := vrfKey.(prefix.Inet4)
		if !ok {
			return nil, false
		}
		return prefix.NewL3VPNv4(rd, inet), true
	case prefix.FamilyInet6:
		inet, ok := vrfKey.(prefix.Inet6)
		if !ok {
			return nil, false
		}
		return prefix.NewL3VPNv6(rd, inet), true
	default:
		return nil, false
	}
}

func stripRD(family prefix.Family, vpnKey prefix.Prefix) (prefix.Prefix, prefix.RD, bool) {
	switch family {
	case prefix.FamilyInet4:
		vpn, ok := vpnKey.(prefix.L3VPNv4)
		if !ok {
			return nil, prefix.RD{}, false
		}
		return vpn.StripRD(), vpn.RD(), true
	case prefix.FamilyInet6:
		vpn, ok := vpnKey.(prefix.L3VPNv6)
		if !ok {
			return nil, prefix.RD{}, false
		}
		return vpn.StripRD(), vpn.RD(), true
	default:
		return nil, prefix.RD{}, false
	}
}

func routeTargetsOf(extCommunities []string) []prefix.RouteTarget {
	var out []prefix.RouteTarget
	for _, c := range extCommunities {
		if attr.IsRouteTargetComm(c) {
			// The extended-community string form and the RouteTarget
			// byte form both derive from the same type/subtype
			// encoding; table lookups key on RouteTarget, so parse the
			// canonical string back rather than keep two
			// representations of the same value in Content.
			if rt, ok := parseRouteTargetString(c); ok {
				out = append(out, rt)
			}
		}
	}
	return out
}

func filterOutRouteTargets(extCommunities []string) []string {
	return attr.FilterOutKind(append([]string{}, extCommunities...), attr.ExtCommKindTarget)
}

// parseRouteTargetString parses the "target:<asn>:<value>" canonical
// form produced by prefix.RouteTarget.String back into a RouteTarget,
// so the route-target manager's lookups key on the same byte form the
// VRF's own export configuration uses. IP-form route targets
// ("target:<ip>:<value>") are outside this core's configured RT shapes
// (§2 non-goal: operator configuration always uses 2-octet-AS RTs) and
// are skipped.
func parseRouteTargetString(s string) (prefix.RouteTarget, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != attr.ExtCommKindTarget {
		return prefix.RouteTarget{}, false
	}
	asn, err1 := strconv.ParseUint(parts[1], 10, 16)
	val, err2 := strconv.ParseUint(parts[2], 10, 32)
	if err1 != nil || err2 != nil {
		return prefix.RouteTarget{}, false
	}
	return prefix.NewRouteTargetASN2(uint16(asn), uint32(val)), true
}
