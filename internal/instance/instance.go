// Package instance implements the routing-instance registry of §3
// "Routing instance": a flat namespace of instances, each owning one
// table per address family, an import/export route-target set, an
// ordered routing-policy vector, and optional per-family aggregator and
// static-route manager.
package instance

import (
	"sync"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/rtarget"
	"github.com/routectl/ctlplane/internal/table"
)

// MasterName is the distinguished instance that hosts the RT
// membership table at startup (§3 "Lifecycles").
const MasterName = "master"

// Instance owns one table per family plus the configuration that
// drives replication, aggregation, static routes and policy.
type Instance struct {
	Name     string
	VNIndex  int
	LocalASN uint32
	IsMaster bool

	mu         sync.RWMutex
	rd         prefix.RD
	tables     map[prefix.Family]*table.Table
	importRT   map[prefix.RouteTarget]struct{}
	exportRT   map[prefix.RouteTarget]struct{}
	policies   []string // ordered policy names; resolved to compiled policies by the caller (an xmpp.PolicyResolver)
	aggregated map[prefix.Family]bool
	staticed   map[prefix.Family]bool
	deleted    bool

	importListeners []func(rt prefix.RouteTarget, added bool)

	interner     *attr.Interner
	rtMgr        *rtarget.Manager
	tableMetrics table.Metrics
}

func newInstance(name string, interner *attr.Interner, rtMgr *rtarget.Manager, tableMetrics table.Metrics) *Instance {
	return &Instance{
		Name:         name,
		tables:       make(map[prefix.Family]*table.Table),
		importRT:     make(map[prefix.RouteTarget]struct{}),
		exportRT:     make(map[prefix.RouteTarget]struct{}),
		aggregated:   make(map[prefix.Family]bool),
		staticed:     make(map[prefix.Family]bool),
		interner:     interner,
		rtMgr:        rtMgr,
		tableMetrics: tableMetrics,
	}
}

// Table returns the table for family, creating it on first reference
// (§3 "Lifecycles": "a table is created on first reference to its
// (instance, family) pair").
func (in *Instance) Table(family prefix.Family) *table.Table {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.tableLocked(family)
}

func (in *Instance) tableLocked(family prefix.Family) *table.Table {
	t, ok := in.tables[family]
	if !ok {
		if in.tableMetrics != nil {
			t = table.New(in.Name, family, in.interner, table.WithMetrics(in.tableMetrics))
		} else {
			t = table.New(in.Name, family, in.interner)
		}
		in.tables[family] = t
	}
	return t
}

// HasTable reports whether a table already exists for family without
// creating one.
func (in *Instance) HasTable(family prefix.Family) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	_, ok := in.tables[family]
	return ok
}

// Tables returns a snapshot of every family this instance currently has
// a table for.
func (in *Instance) Tables() map[prefix.Family]*table.Table {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make(map[prefix.Family]*table.Table, len(in.tables))
	for f, t := range in.tables {
		out[f] = t
	}
	return out
}

// SetRD assigns the route distinguisher the replication engine prefixes
// onto this instance's prefixes when replicating into the shared VPN
// table (§4.4 "VRF -> VPN"). The master instance has no RD of its own;
// it hosts the shared VPN tables directly.
func (in *Instance) SetRD(rd prefix.RD) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.rd = rd
}

// RD returns the instance's configured route distinguisher.
func (in *Instance) RD() prefix.RD {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.rd
}

// AddImportListener registers fn to run whenever this instance's import
// route-target set changes, outside the instance's own lock (§4.9
// "Routing-instance lifecycle callback": "When an instance's import
// list changes, RT advertisements are diffed and the delta is issued").
func (in *Instance) AddImportListener(fn func(rt prefix.RouteTarget, added bool)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.importListeners = append(in.importListeners, fn)
}

// AddImportRT joins rt's importer set on behalf of this instance
// (§3 "Invariant: instance ∈ RT.importers ⇔ RT ∈ instance.import_list").
func (in *Instance) AddImportRT(rt prefix.RouteTarget) {
	in.mu.Lock()
	_, already := in.importRT[rt]
	in.importRT[rt] = struct{}{}
	listeners := append([]func(prefix.RouteTarget, bool){}, in.importListeners...)
	in.mu.Unlock()
	if !already {
		in.rtMgr.JoinImport(rt, rtarget.InstanceName(in.Name))
		for _, fn := range listeners {
			fn(rt, true)
		}
	}
}

// RemoveImportRT leaves rt's importer set.
func (in *Instance) RemoveImportRT(rt prefix.RouteTarget) {
	in.mu.Lock()
	_, present := in.importRT[rt]
	delete(in.importRT, rt)
	listeners := append([]func(prefix.RouteTarget, bool){}, in.importListeners...)
	in.mu.Unlock()
	if present {
		in.rtMgr.LeaveImport(rt, rtarget.InstanceName(in.Name))
		for _, fn := range listeners {
			fn(rt, false)
		}
	}
}

// AddExportRT joins rt's exporter set on behalf of this instance.
func (in *Instance) AddExportRT(rt prefix.RouteTarget) {
	in.mu.Lock()
	_, already := in.exportRT[rt]
	in.exportRT[rt] = struct{}{}
	in.mu.Unlock()
	if !already {
		in.rtMgr.JoinExport(rt, rtarget.InstanceName(in.Name))
	}
}

// RemoveExportRT leaves rt's exporter set.
func (in *Instance) RemoveExportRT(rt prefix.RouteTarget) {
	in.mu.Lock()
	_, present := in.exportRT[rt]
	delete(in.exportRT, rt)
	in.mu.Unlock()
	if present {
		in.rtMgr.LeaveExport(rt, rtarget.InstanceName(in.Name))
	}
}

// ImportRTs returns a snapshot of the instance's configured import set.
func (in *Instance) ImportRTs() []prefix.RouteTarget {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]prefix.RouteTarget, 0, len(in.importRT))
	for rt := range in.importRT {
		out = append(out, rt)
	}
	return out
}

// ExportRTs returns a snapshot of the instance's configured export set.
func (in *Instance) ExportRTs() []prefix.RouteTarget {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]prefix.RouteTarget, 0, len(in.exportRT))
	for rt := range in.exportRT {
		out = append(out, rt)
	}
	return out
}

// SetPolicies replaces the ordered vector of policy names attached to
// this instance (§3 "a vector of attached routing policies (ordered,
// first matches first)"). Resolution against concrete policy.Policy
// values is the caller's responsibility (an xmpp.PolicyResolver, which
// cmd/ctlplane supplies), keeping this package free of a dependency on
// the policy package.
func (in *Instance) SetPolicies(names []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.policies = append([]string{}, names...)
}

// Policies returns the ordered policy-name vector.
func (in *Instance) Policies() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]string{}, in.policies...)
}

// MarkAggregated/MarkStatic record that family has an attached
// aggregator/static-route manager; the concrete aggregate.Aggregator
// and staticroute.Manager values are held by cmd/ctlplane, keyed by
// (instance, family), outside this package to avoid a dependency cycle
// (aggregate/staticroute both need to drive this instance's tables).
func (in *Instance) MarkAggregated(family prefix.Family) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.aggregated[family] = true
}

func (in *Instance) MarkStatic(family prefix.Family) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.staticed[family] = true
}

func (in *Instance) HasAggregator(family prefix.Family) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.aggregated[family]
}

func (in *Instance) HasStaticManager(family prefix.Family) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.staticed[family]
}

// MarkDeleted flags the instance for teardown (§3 "Lifecycles": "an
// instance is destroyed only after all its tables are destroyed").
func (in *Instance) MarkDeleted() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.deleted = true
}

func (in *Instance) IsDeleted() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.deleted
}

// Destroyable reports whether the table-related lifecycle
// preconditions of §3 "Lifecycles" are met: the instance is marked
// deleted and every table it owns has an empty partition map.
// Peer-unregistration and condition-match unregistration (clauses b, d)
// are tracked by the BGP peer I/O and condition-listener collaborators
// respectively; callers combine this check with their own bookkeeping
// before physically removing the instance.
func (in *Instance) Destroyable() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if !in.deleted {
		return false
	}
	for _, t := range in.tables {
		if !t.IsEmpty() {
			return false
		}
	}
	return true
}
