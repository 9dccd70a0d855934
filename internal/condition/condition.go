// Package condition implements the generic predicate-per-table
// framework of §4.5: the route aggregator and static-route manager
// both register a Predicate against a table and receive on_match/
// on_unmatch callbacks as routes transition in and out of matching.
package condition

import (
	"sync"

	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
	"github.com/routectl/ctlplane/internal/table"
)

// Predicate reports whether route currently satisfies a match's
// condition (§4.5 "p: Route -> bool").
type Predicate func(route *table.Route) bool

// OnMatch/OnUnmatch fire on a false->true / true->false transition of
// Predicate for a given route.
type OnMatch func(route *table.Route)
type OnUnmatch func(route *table.Route)

// Match is one registered predicate against one table.
type Match struct {
	tbl       *table.Table
	pred      Predicate
	onMatch   OnMatch
	onUnmatch OnUnmatch

	listenerID ribapi.ListenerID

	mu       sync.Mutex
	matching map[prefix.Prefix]*table.Route
}

// Register installs pred against tbl, returning a Match handle. Every
// committed change to tbl re-evaluates pred for the affected route and
// fires onMatch/onUnmatch on a transition (§4.5).
func Register(tbl *table.Table, pred Predicate, onMatch OnMatch, onUnmatch OnUnmatch) *Match {
	m := &Match{
		tbl:       tbl,
		pred:      pred,
		onMatch:   onMatch,
		onUnmatch: onUnmatch,
		matching:  make(map[prefix.Prefix]*table.Route),
	}
	m.listenerID = tbl.RegisterListener(m.handle)
	return m
}

func (m *Match) handle(partitionID int, snap ribapi.RouteSnapshot, isDelete bool) {
	route, ok := snap.(*table.Route)
	if !ok {
		return
	}

	key := route.Prefix()
	matched := !isDelete && m.pred(route)

	m.mu.Lock()
	_, wasMatching := m.matching[key]
	if matched {
		m.matching[key] = route
	} else {
		delete(m.matching, key)
	}
	m.mu.Unlock()

	switch {
	case matched && !wasMatching:
		m.onMatch(route)
	case !matched && wasMatching:
		m.onUnmatch(route)
	}
}

// Matching returns a snapshot of every route currently satisfying the
// predicate.
func (m *Match) Matching() []*table.Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*table.Route, 0, len(m.matching))
	for _, r := range m.matching {
		out = append(out, r)
	}
	return out
}

// NotifyMatchDeletion walks the current match set once and calls
// on_unmatch for every currently matching route (§4.5
// "notify_match_deletion(match)"), used when a predicate is withdrawn.
func (m *Match) NotifyMatchDeletion() {
	m.mu.Lock()
	routes := make([]*table.Route, 0, len(m.matching))
	for _, r := range m.matching {
		routes = append(routes, r)
	}
	m.matching = make(map[prefix.Prefix]*table.Route)
	m.mu.Unlock()

	for _, r := range routes {
		m.onUnmatch(r)
	}
}

// Remove unregisters the match from its table and invokes done once
// every partition task has observed the removal (§4.5 "the caller is
// notified asynchronously via a completion callback"). NotifyMatchDeletion
// runs first so every currently matching route is unwound before the
// predicate stops being evaluated.
func (m *Match) Remove(done func()) {
	go func() {
		m.NotifyMatchDeletion()
		m.tbl.UnregisterListener(m.listenerID)
		m.tbl.Sync()
		if done != nil {
			done()
		}
	}()
}
