package table

import (
	"hash/fnv"
	"sync/atomic"

	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
)

// partition owns a disjoint subset of a Table's prefixes, processed by
// exactly one goroutine (§4.1: "requests for the same partition are
// serialized; across partitions they execute in parallel").
type partition struct {
	id    int
	table *Table

	reqCh chan partitionReq

	// routes is mutated only by run(); snapshot holds an atomic,
	// read-only view other goroutines use for find().
	routes   map[prefix.Prefix]*Route
	snapshot atomic.Pointer[map[prefix.Prefix]*Route]
}

type partitionReq struct {
	req  ribapi.Request
	done chan struct{} // closed once the request has been committed, nil if caller doesn't wait
}

func newPartition(id int, t *Table) *partition {
	p := &partition{
		id:     id,
		table:  t,
		reqCh:  make(chan partitionReq, 256),
		routes: make(map[prefix.Prefix]*Route),
	}
	empty := map[prefix.Prefix]*Route{}
	p.snapshot.Store(&empty)
	go p.run()
	return p
}

func (p *partition) run() {
	for pr := range p.reqCh {
		p.commit(pr.req)
		if pr.done != nil {
			close(pr.done)
		}
	}
}

// syncOp is a sentinel Request.Op used only by Table.Sync to flush a
// partition's FIFO without touching the route map; no real caller ever
// constructs a Request with this value.
const syncOp ribapi.Op = -1

func (p *partition) commit(req ribapi.Request) {
	if req.Op == syncOp {
		return
	}

	route, ok := p.routes[req.Key]
	wasPresent := ok && !route.deleted
	if !ok {
		route = newRoute(req.Key)
		p.routes[req.Key] = route
	}

	switch req.Op {
	case ribapi.OpAdd:
		if existing, _ := route.find(req.Peer, req.PathID); existing != nil {
			p.table.interner.Release(existing.Attr)
		}
		routerID, peerAddr := req.RouterID, req.PeerAddress
		if routerID == "" {
			routerID = string(req.Peer)
		}
		if peerAddr == "" {
			peerAddr = string(req.Peer)
		}
		path := &Path{
			Peer:        req.Peer,
			PathID:      req.PathID,
			Source:      req.Source,
			Attr:        p.table.interner.Intern(req.Content),
			Label:       req.Label,
			Flags:       req.Flags,
			RouterID:    routerID,
			PeerAddress: peerAddr,
			IsEBGP:      req.IsEBGP,
		}
		route.upsert(path)
		p.table.metrics.IncRouteReached(p.table.InstanceName, p.table.Family.String())
	case ribapi.OpDelete:
		if existing, _ := route.find(req.Peer, req.PathID); existing != nil {
			p.table.interner.Release(existing.Attr)
		}
		route.remove(req.Peer, req.PathID)
		p.table.metrics.IncRouteUnreached(p.table.InstanceName, p.table.Family.String())
	}

	p.publishSnapshot()
	p.table.notify(p.id, route, route.deleted)

	if route.deleted {
		delete(p.routes, req.Key)
		p.publishSnapshot()
	}

	isPresentNow := !route.deleted
	if wasPresent != isPresentNow {
		delta := int64(1)
		if wasPresent {
			delta = -1
		}
		count := p.table.routeCount.Add(delta)
		p.table.metrics.SetRouteCount(p.table.InstanceName, p.table.Family.String(), int(count))
	}
}

func (p *partition) publishSnapshot() {
	cp := make(map[prefix.Prefix]*Route, len(p.routes))
	for k, v := range p.routes {
		cp[k] = v
	}
	p.snapshot.Store(&cp)
}

func (p *partition) find(key prefix.Prefix) (*Route, bool) {
	m := p.snapshot.Load()
	r, ok := (*m)[key]
	return r, ok
}

// partitionFor hashes a prefix's byte encoding to a partition index.
func partitionFor(key prefix.Prefix, n int) int {
	h := fnv.New32a()
	h.Write(key.Bytes())
	return int(h.Sum32() % uint32(n))
}
