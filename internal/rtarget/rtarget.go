// Package rtarget implements the route-target group manager of §4.3: a
// process-wide structure keyed by route-target tracking which routing
// instances import and export it, triggering a rescan of the shared
// VPN table on empty<->non-empty transitions.
package rtarget

import (
	"sync"

	"github.com/routectl/ctlplane/internal/prefix"
)

// InstanceName identifies a routing instance by name, avoiding an
// import cycle with internal/instance (which itself references Manager
// to join/leave route targets).
type InstanceName string

// RescanFunc is invoked once for a route target whenever its importer
// set transitions empty<->non-empty (§4.3: "enqueues a full rescan of
// the shared VPN table"). The replication engine registers this to
// re-walk the VPN table and add/withdraw routes in the instances
// affected by the transition.
type RescanFunc func(rt prefix.RouteTarget)

// Group is one route-target's import/export instance sets.
type Group struct {
	rt        prefix.RouteTarget
	importers map[InstanceName]struct{}
	exporters map[InstanceName]struct{}
}

func newGroup(rt prefix.RouteTarget) *Group {
	return &Group{
		rt:        rt,
		importers: make(map[InstanceName]struct{}),
		exporters: make(map[InstanceName]struct{}),
	}
}

// Importers returns a snapshot copy of the instances currently
// importing this route target.
func (g *Group) Importers() []InstanceName {
	out := make([]InstanceName, 0, len(g.importers))
	for name := range g.importers {
		out = append(out, name)
	}
	return out
}

// Exporters returns a snapshot copy of the instances currently
// exporting this route target.
func (g *Group) Exporters() []InstanceName {
	out := make([]InstanceName, 0, len(g.exporters))
	for name := range g.exporters {
		out = append(out, name)
	}
	return out
}

// Manager is the process-wide route-target group table (§4.3). All
// writes are serialized by a single mutex; reads (Importers/Locate)
// take a short read-lock, matching the engine's stated concurrency
// model ("writes serialized by a single manager mutex; reads by the
// replication engine take a short read-lock").
type Manager struct {
	mu     sync.RWMutex
	groups map[prefix.RouteTarget]*Group
	rescan RescanFunc
}

// New creates a Manager. rescan may be nil until the replication engine
// is wired up (SetRescanFunc can attach it later during startup
// sequencing).
func New(rescan RescanFunc) *Manager {
	return &Manager{groups: make(map[prefix.RouteTarget]*Group), rescan: rescan}
}

// SetRescanFunc attaches (or replaces) the rescan callback.
func (m *Manager) SetRescanFunc(fn RescanFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rescan = fn
}

// Locate returns the group for rt, creating it on first reference
// (§4.3 "locate(rt) -> group", idempotent create-if-absent).
func (m *Manager) Locate(rt prefix.RouteTarget) *Group {
	m.mu.RLock()
	if g, ok := m.groups[rt]; ok {
		m.mu.RUnlock()
		return g
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[rt]; ok {
		return g
	}
	g := newGroup(rt)
	m.groups[rt] = g
	return g
}

// JoinImport adds instance to rt's importer set, rescanning on an
// empty->non-empty transition.
func (m *Manager) JoinImport(rt prefix.RouteTarget, instance InstanceName) {
	m.mu.Lock()
	g := m.locateLocked(rt)
	wasEmpty := len(g.importers) == 0
	g.importers[instance] = struct{}{}
	rescan := m.rescan
	m.mu.Unlock()

	if wasEmpty && rescan != nil {
		rescan(rt)
	}
}

// LeaveImport removes instance from rt's importer set, rescanning on a
// non-empty->empty transition.
func (m *Manager) LeaveImport(rt prefix.RouteTarget, instance InstanceName) {
	m.mu.Lock()
	g := m.locateLocked(rt)
	delete(g.importers, instance)
	becameEmpty := len(g.importers) == 0
	rescan := m.rescan
	m.mu.Unlock()

	if becameEmpty && rescan != nil {
		rescan(rt)
	}
}

// JoinExport adds instance to rt's exporter set (§4.3 "symmetric").
func (m *Manager) JoinExport(rt prefix.RouteTarget, instance InstanceName) {
	m.mu.Lock()
	g := m.locateLocked(rt)
	wasEmpty := len(g.exporters) == 0
	g.exporters[instance] = struct{}{}
	rescan := m.rescan
	m.mu.Unlock()

	if wasEmpty && rescan != nil {
		rescan(rt)
	}
}

// LeaveExport removes instance from rt's exporter set.
func (m *Manager) LeaveExport(rt prefix.RouteTarget, instance InstanceName) {
	m.mu.Lock()
	g := m.locateLocked(rt)
	delete(g.exporters, instance)
	becameEmpty := len(g.exporters) == 0
	rescan := m.rescan
	m.mu.Unlock()

	if becameEmpty && rescan != nil {
		rescan(rt)
	}
}

// Importers returns the set of instances currently importing rt
// (§4.3 "importers(rt) -> set<instance>").
func (m *Manager) Importers(rt prefix.RouteTarget) []InstanceName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[rt]
	if !ok {
		return nil
	}
	return g.Importers()
}

func (m *Manager) locateLocked(rt prefix.RouteTarget) *Group {
	g, ok := m.groups[rt]
	if !ok {
		g = newGroup(rt)
		m.groups[rt] = g
	}
	return g
}
