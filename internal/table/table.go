package table

import (
	"sync"
	"sync/atomic"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/prefix"
	"github.com/routectl/ctlplane/internal/ribapi"
)

const defaultPartitions = 8

// Metrics receives the per-table route-reach/unreach and route-count
// observability of §6 "Peer observability". noopMetrics is used when a
// caller doesn't wire one.
type Metrics interface {
	IncRouteReached(instance, family string)
	IncRouteUnreached(instance, family string)
	SetRouteCount(instance, family string, count int)
}

type noopMetrics struct{}

func (noopMetrics) IncRouteReached(string, string)    {}
func (noopMetrics) IncRouteUnreached(string, string)  {}
func (noopMetrics) SetRouteCount(string, string, int) {}

// Table is one routing-instance's per-family route table (§3 "Table",
// §4.1 "Partitioned table"): N partitions, each its own goroutine, a
// shared interner for attribute bundles, and a registry of listeners
// notified on every committed change.
type Table struct {
	Name         string
	InstanceName string
	Family       prefix.Family

	interner   *attr.Interner
	partitions []*partition

	mu        sync.RWMutex
	listeners map[ribapi.ListenerID]ribapi.Listener
	nextID    ribapi.ListenerID

	metrics    Metrics
	routeCount atomic.Int64
}

// Option configures a Table at construction.
type Option func(*tableConfig)

type tableConfig struct {
	partitions int
	metrics    Metrics
}

// WithPartitions overrides the default partition count.
func WithPartitions(n int) Option {
	return func(c *tableConfig) { c.partitions = n }
}

// WithMetrics attaches the collector notified on every committed route
// add/delete and route-count change.
func WithMetrics(m Metrics) Option {
	return func(c *tableConfig) { c.metrics = m }
}

// New creates a Table for the given instance/family pair, sharing the
// given interner so attribute bundles are deduplicated across every
// table that references it (typically one Interner per process).
func New(instanceName string, family prefix.Family, interner *attr.Interner, opts ...Option) *Table {
	cfg := tableConfig{partitions: defaultPartitions, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Table{
		Name:         family.TableName(),
		InstanceName: instanceName,
		Family:       family,
		interner:     interner,
		listeners:    make(map[ribapi.ListenerID]ribapi.Listener),
		metrics:      cfg.metrics,
	}
	t.partitions = make([]*partition, cfg.partitions)
	for i := range t.partitions {
		t.partitions[i] = newPartition(i, t)
	}
	return t
}

// Enqueue accepts a table request (§4.1 "enqueue"). It returns once the
// request has been handed to its partition's FIFO, not once committed;
// callers observe the effect via a registered Listener.
func (t *Table) Enqueue(req ribapi.Request) {
	idx := partitionFor(req.Key, len(t.partitions))
	t.partitions[idx].reqCh <- partitionReq{req: req}
}

// EnqueueWait is like Enqueue but blocks until the request has been
// committed and listeners notified — useful for tests and for
// synchronous callers such as the config-delta loader.
func (t *Table) EnqueueWait(req ribapi.Request) {
	idx := partitionFor(req.Key, len(t.partitions))
	done := make(chan struct{})
	t.partitions[idx].reqCh <- partitionReq{req: req, done: done}
	<-done
}

// Sync blocks until every partition has drained its FIFO up to this
// point, without touching any route. Condition listeners use this
// after UnregisterListener to implement §4.5's "schedules an
// unregister that completes only after every partition task has
// observed the removal."
func (t *Table) Sync() {
	for _, p := range t.partitions {
		done := make(chan struct{})
		p.reqCh <- partitionReq{req: ribapi.Request{Op: syncOp}, done: done}
		<-done
	}
}

// Find performs a concurrent-safe read against a partition's latest
// committed snapshot (§4.1 "find").
func (t *Table) Find(key prefix.Prefix) (*Route, bool) {
	idx := partitionFor(key, len(t.partitions))
	return t.partitions[idx].find(key)
}

// ForEach walks a momentary snapshot of every route currently present
// across all partitions, in no particular order. Used by maintenance
// tasks that need to enumerate a table's contents (the RT-group
// rescan's full walk, a peer-close withdrawal sweep) rather than react
// to individual commits via a Listener.
func (t *Table) ForEach(fn func(*Route)) {
	for _, p := range t.partitions {
		m := p.snapshot.Load()
		for _, r := range *m {
			fn(r)
		}
	}
}

// PartitionCount reports how many partitions this table was built
// with, primarily for tests and diagnostics.
func (t *Table) PartitionCount() int { return len(t.partitions) }

// IsEmpty reports whether every partition's route map is currently
// empty, one of the table-destruction preconditions of §3 "Lifecycles"
// ("the partition maps are empty").
func (t *Table) IsEmpty() bool {
	for _, p := range t.partitions {
		m := p.snapshot.Load()
		if len(*m) > 0 {
			return false
		}
	}
	return true
}

// RegisterListener adds fn to the set notified after every committed
// change, returning an id for later Unregister (§4.1
// "register_listener").
func (t *Table) RegisterListener(fn ribapi.Listener) ribapi.ListenerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.listeners[id] = fn
	return id
}

// UnregisterListener removes a previously registered listener. It is a
// no-op if id is unknown (already unregistered).
func (t *Table) UnregisterListener(id ribapi.ListenerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, id)
}

// notify runs every registered listener on the calling partition's own
// goroutine, never concurrently for that partition (§4.1
// "register_listener").
func (t *Table) notify(partitionID int, route *Route, isDelete bool) {
	t.mu.RLock()
	fns := make([]ribapi.Listener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(partitionID, route, isDelete)
	}
}
