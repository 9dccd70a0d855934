// Package staticroute implements the static-route manager of §4.7: a
// configured {static_prefix, nexthop_ip, rt_list, community_list} entry
// watches its instance's table for the nexthop host route, publishing
// one static path per ECMP nexthop path with attributes assembled from
// the matched route.
package staticroute

import (
	"net"
	"sync"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/condition"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
	"github.com/routectl/ctlplane/internal/table"
)

const staticPeerPrefix = "__static__"

// Config is one static-route entry (§4.7).
type Config struct {
	StaticPrefix  prefix.Inet4
	NexthopIP     net.IP
	RTList        []prefix.RouteTarget
	CommunityList []string
	// LocalASN/VNIndex attach an origin-vn extended community when the
	// containing instance has a virtual-network index configured
	// (§4.7 clause 1, last bullet). VNIndex < 0 means "no VN index."
	LocalASN uint32
	VNIndex  int
}

// Entry is one running static-route entry.
type Entry struct {
	cfg Config
	tbl *table.Table

	nhMatch *condition.Match

	mu             sync.Mutex
	published      bool
	currentNHRoute *table.Route
	lastPathCount  int

	trigger chan struct{}
	stop    chan struct{}
}

// Register installs cfg against tbl and starts its recompute loop.
func Register(tbl *table.Table, cfg Config) *Entry {
	e := &Entry{
		cfg:     cfg,
		tbl:     tbl,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	e.nhMatch = condition.Register(tbl, e.nexthopPredicate, e.onMatch, e.onUnmatch)
	go e.loop()
	return e
}

func (e *Entry) nexthopPredicate(route *table.Route) bool {
	inet, ok := route.Prefix().(prefix.Inet4)
	if !ok {
		return false
	}
	e.mu.Lock()
	nh := e.cfg.NexthopIP
	e.mu.Unlock()
	if !inet.HostRoute() || !inet.Addr().Equal(nh) {
		return false
	}
	best := route.Best()
	return best != nil && !best.Flags.Infeasible()
}

func (e *Entry) onMatch(route *table.Route)   { e.storeAndSignal(route) }
func (e *Entry) onUnmatch(route *table.Route) { e.storeAndSignal(nil) }

func (e *Entry) storeAndSignal(route *table.Route) {
	e.mu.Lock()
	e.currentNHRoute = route
	e.mu.Unlock()
	e.signal()
}

func (e *Entry) signal() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

func (e *Entry) loop() {
	for {
		select {
		case <-e.trigger:
			e.recompute()
		case <-e.stop:
			return
		}
	}
}

// recompute implements §4.7 clauses 1-3: publish one path per ECMP
// nexthop path when the nexthop route is feasible, withdraw otherwise.
func (e *Entry) recompute() {
	e.mu.Lock()
	route := e.currentNHRoute
	cfg := e.cfg
	e.mu.Unlock()

	if route == nil || route.Best() == nil {
		if e.published {
			e.withdrawAll(cfg.StaticPrefix, 0)
			e.published = false
		}
		return
	}

	paths := route.Multipaths()
	for i, nhPath := range paths {
		c := buildContent(nhPath, cfg)
		e.tbl.Enqueue(ribapi.Request{
			Op:          ribapi.OpAdd,
			Key:         cfg.StaticPrefix,
			Peer:        ribapi.PeerID(staticPeerPrefix),
			PathID:      ribapi.PathID(i + 1),
			Source:      ribapi.SourceStatic,
			Content:     c,
			RouterID:    staticPeerPrefix,
			PeerAddress: staticPeerPrefix,
		})
	}
	if e.published && e.lastPathCount > len(paths) {
		e.withdrawAll(cfg.StaticPrefix, len(paths))
	}
	e.lastPathCount = len(paths)
	e.published = len(paths) > 0
}

func buildContent(nhPath *table.Path, cfg Config) attr.Content {
	b := attr.NewBuilder()
	b.SetOrigin(attr.OriginIGP)
	b.SetNexthop(nhPath.Attr.Nexthop())

	ext := make([]string, 0, len(cfg.RTList)+1)
	for _, rt := range cfg.RTList {
		ext = append(ext, rt.String())
	}
	for _, c := range nhPath.Attr.ExtCommunity() {
		kind := attr.ExtCommKind(c)
		if kind == attr.ExtCommKindEncap || kind == attr.ExtCommKindLoadBalance || kind == attr.ExtCommKindSecurityGroup {
			ext = append(ext, c)
		}
	}
	if cfg.VNIndex >= 0 {
		ext = append(ext, attr.FormatOriginVN(cfg.LocalASN, cfg.VNIndex))
	}
	b.SetExtCommunity(ext)

	comm := append([]string{attr.AcceptOwnNexthop}, cfg.CommunityList...)
	b.SetCommunity(comm)

	return b.Content()
}

func (e *Entry) withdrawAll(key prefix.Inet4, fromIndex int) {
	for i := fromIndex; i < e.lastPathCount; i++ {
		e.tbl.Enqueue(ribapi.Request{
			Op:     ribapi.OpDelete,
			Key:    key,
			Peer:   ribapi.PeerID(staticPeerPrefix),
			PathID: ribapi.PathID(i + 1),
		})
	}
}

// Unregister tears down the condition match and stops the recompute
// loop, withdrawing any published paths first.
func (e *Entry) Unregister(done func()) {
	e.mu.Lock()
	key := e.cfg.StaticPrefix
	e.mu.Unlock()
	e.withdrawAll(key, 0)
	e.nhMatch.Remove(func() {
		close(e.stop)
		if done != nil {
			done()
		}
	})
}

// Manager owns every configured static-route entry for one
// (instance, family) pair.
type Manager struct {
	tbl *table.Table

	mu      sync.Mutex
	entries map[string]*Entry
}

func New(tbl *table.Table) *Manager {
	return &Manager{tbl: tbl, entries: make(map[string]*Entry)}
}

func (m *Manager) SetEntry(cfg Config) {
	key := cfg.StaticPrefix.String()
	m.mu.Lock()
	existing, ok := m.entries[key]
	m.mu.Unlock()
	if ok {
		existing.mu.Lock()
		existing.cfg = cfg
		existing.mu.Unlock()
		existing.signal()
		return
	}
	e := Register(m.tbl, cfg)
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

func (m *Manager) RemoveEntry(p prefix.Inet4, done func()) {
	key := p.String()
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	if !ok {
		if done != nil {
			done()
		}
		return
	}
	e.Unregister(done)
}
