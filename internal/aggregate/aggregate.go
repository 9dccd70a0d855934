// Package aggregate implements the route aggregator of §4.6: a
// configured {aggregate_prefix, nexthop_ip} entry watches its
// instance's table for contributing more-specifics and the nexthop
// host route, publishing a synthesized aggregate route when
// contributing routes exist.
//
// The per-entry coalescing loop is grounded in
// original_source/src/bgp/routing-instance/route_aggregate.h's
// TaskTrigger-driven RouteAggregator: a single-consumer goroutine woken
// by a capacity-1 trigger channel collapses any number of on_match/
// on_unmatch calls that land before it next runs into one recompute.
package aggregate

import (
	"net"
	"sync"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/condition"
	"github.com/routectl/ctlplane/internal/flags"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
	"github.com/routectl/ctlplane/internal/table"
)

// aggregatePeer is the well-known synthesized-source sentinel peer id
// an Entry publishes its aggregate route as (§3 "Path": source_tag
// Aggregate paths still need a peer_id/path_id pair for table keying).
const aggregatePeer ribapi.PeerID = "__aggregate__"

// Config is one {aggregate_prefix, nexthop_ip} entry (§4.6).
type Config struct {
	AggregatePrefix prefix.Inet4
	NexthopIP       net.IP
}

// Entry is one running aggregator entry: two condition.Match
// registrations (contributing more-specifics, nexthop host route) and
// the coalescing recompute loop that publishes/withdraws the aggregate
// route in response to their transitions.
type Entry struct {
	cfg Config
	tbl *table.Table

	aggMatch *condition.Match
	nhMatch  *condition.Match

	mu           sync.Mutex
	contributing map[prefix.Prefix]struct{}
	nexthopPath  *table.Path // best path of the matched nexthop host route, nil if unresolved
	published    bool

	trigger chan struct{}
	stop    chan struct{}
}

// Register installs entry cfg against tbl and starts its recompute
// loop (§4.6 clauses 1-3).
func Register(tbl *table.Table, cfg Config) *Entry {
	e := &Entry{
		cfg:          cfg,
		tbl:          tbl,
		contributing: make(map[prefix.Prefix]struct{}),
		trigger:      make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}

	e.aggMatch = condition.Register(tbl, e.contributorPredicate, e.onContributorMatch, e.onContributorUnmatch)
	e.nhMatch = condition.Register(tbl, e.nexthopPredicate, e.onNexthopMatch, e.onNexthopUnmatch)

	go e.loop()
	return e
}

// contributorPredicate implements §4.6 clause 1: strictly more
// specific than the aggregate prefix, not equal to it, and neither an
// aggregate path itself nor the nexthop host route.
func (e *Entry) contributorPredicate(route *table.Route) bool {
	inet, ok := route.Prefix().(prefix.Inet4)
	if !ok {
		return false
	}
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	if !cfg.AggregatePrefix.Contains(inet) {
		return false
	}
	if inet.HostRoute() && inet.Addr().Equal(cfg.NexthopIP) {
		return false
	}
	best := route.Best()
	if best == nil {
		return false
	}
	return best.Source != ribapi.SourceAggregate
}

func (e *Entry) nexthopPredicate(route *table.Route) bool {
	inet, ok := route.Prefix().(prefix.Inet4)
	if !ok {
		return false
	}
	e.mu.Lock()
	nexthop := e.cfg.NexthopIP
	e.mu.Unlock()
	if !inet.HostRoute() || !inet.Addr().Equal(nexthop) {
		return false
	}
	best := route.Best()
	return best != nil && !best.Flags.Infeasible()
}

func (e *Entry) onContributorMatch(route *table.Route) {
	e.mu.Lock()
	e.contributing[route.Prefix()] = struct{}{}
	e.mu.Unlock()
	e.signal()
}

func (e *Entry) onContributorUnmatch(route *table.Route) {
	e.mu.Lock()
	delete(e.contributing, route.Prefix())
	e.mu.Unlock()
	e.signal()
}

func (e *Entry) onNexthopMatch(route *table.Route) {
	e.mu.Lock()
	e.nexthopPath = route.Best()
	e.mu.Unlock()
	e.signal()
}

func (e *Entry) onNexthopUnmatch(route *table.Route) {
	e.mu.Lock()
	e.nexthopPath = nil
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

// recompute implements §4.6 clause 3's publish policy. Multiple
// triggers that land while recompute is running collapse into the
// single pass that runs when the loop next selects on e.trigger.
func (e *Entry) recompute() {
	e.mu.Lock()
	n := len(e.contributing)
	nh := e.nexthopPath
	e.mu.Unlock()

	if n == 0 {
		if e.published {
			e.withdraw()
			e.published = false
		}
		return
	}

	var c attr.Content
	var pathFlags flags.PathFlags
	if nh == nil {
		pathFlags = pathFlags.Set(flags.ResolveNexthop)
		c = attr.NewBuilder().SetOrigin(attr.OriginIGP).Content()
	} else {
		b := attr.NewBuilder().FromAttr(nh.Attr)
		c = b.Content()
	}

	e.mu.Lock()
	key := e.cfg.AggregatePrefix
	e.mu.Unlock()

	e.tbl.Enqueue(ribapi.Request{
		Op:          ribapi.OpAdd,
		Key:         key,
		Peer:        aggregatePeer,
		PathID:      1,
		Source:      ribapi.SourceAggregate,
		Content:     c,
		Flags:       pathFlags,
		RouterID:    string(aggregatePeer),
		PeerAddress: string(aggregatePeer),
	})
	e.published = true
}

func (e *Entry) withdraw() {
	e.mu.Lock()
	key := e.cfg.AggregatePrefix
	e.mu.Unlock()

	e.tbl.Enqueue(ribapi.Request{
		Op:     ribapi.OpDelete,
		Key:    key,
		Peer:   aggregatePeer,
		PathID: 1,
	})
}

// Unregister tears down both condition matches and stops the recompute
// loop; done fires once both matches have completed their asynchronous
// unregister (§4.6 "Instance deletion removes every entry").
func (e *Entry) Unregister(done func()) {
	var wg sync.WaitGroup
	wg.Add(2)
	e.aggMatch.Remove(wg.Done)
	e.nhMatch.Remove(wg.Done)
	go func() {
		wg.Wait()
		close(e.stop)
		if done != nil {
			done()
		}
	}()
}

// Aggregator owns every configured entry for one (instance, family)
// pair.
type Aggregator struct {
	tbl *table.Table

	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates an Aggregator bound to tbl.
func New(tbl *table.Table) *Aggregator {
	return &Aggregator{tbl: tbl, entries: make(map[string]*Entry)}
}

// SetEntry installs or updates the entry for the given aggregate
// prefix. Entries are keyed by the prefix itself, so a config carrying
// a different prefix registers a new entry and leaves the entry for the
// old prefix running until RemoveEntry removes it; a nexthop-only
// change updates the config and triggers a single recompute in place.
func (a *Aggregator) SetEntry(cfg Config) {
	key := cfg.AggregatePrefix.String()

	a.mu.Lock()
	existing, ok := a.entries[key]
	a.mu.Unlock()

	if ok {
		existing.mu.Lock()
		existing.cfg.NexthopIP = cfg.NexthopIP
		existing.mu.Unlock()
		existing.signal()
		return
	}

	e := Register(a.tbl, cfg)
	a.mu.Lock()
	a.entries[key] = e
	a.mu.Unlock()
}

// RemoveEntry tears down the entry for the given aggregate prefix.
func (a *Aggregator) RemoveEntry(p prefix.Inet4, done func()) {
	key := p.String()
	a.mu.Lock()
	e, ok := a.entries[key]
	if ok {
		delete(a.entries, key)
	}
	a.mu.Unlock()
	if !ok {
		if done != nil {
			done()
		}
		return
	}
	e.Unregister(done)
}

// Entries returns a snapshot of every currently configured aggregate
// prefix, for tests and diagnostics.
func (a *Aggregator) Entries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for k := range a.entries {
		out = append(out, k)
	}
	return out
}
