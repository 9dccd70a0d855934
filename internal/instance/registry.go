package instance

import (
	"sync"

	"github.com/routectl/ctlplane/internal/attr"
	"github.com/routectl/ctlplane/internal/rtarget"
	"github.com/routectl/ctlplane/internal/table"
)

// Registry is the flat namespace of routing instances a server hosts
// (§3 "Instances form a flat namespace inside a server"). It creates
// the distinguished master instance at construction.
type Registry struct {
	interner     *attr.Interner
	rtMgr        *rtarget.Manager
	tableMetrics table.Metrics

	mu              sync.RWMutex
	instances       map[string]*Instance
	master          *Instance
	createListeners []func(*Instance)
}

// RegistryOption configures a Registry at construction.
type RegistryOption func(*Registry)

// WithTableMetrics attaches the collector every table created under
// this registry reports route-reach/unreach/count events to.
func WithTableMetrics(m table.Metrics) RegistryOption {
	return func(r *Registry) { r.tableMetrics = m }
}

// NewRegistry builds a Registry sharing interner and rtMgr across every
// instance it creates, and immediately creates the master instance
// (§3 "A distinguished 'master' instance exists at startup and hosts
// the RT membership table").
func NewRegistry(interner *attr.Interner, rtMgr *rtarget.Manager, opts ...RegistryOption) *Registry {
	r := &Registry{
		interner:  interner,
		rtMgr:     rtMgr,
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.master, _ = r.getOrCreateLocked(MasterName)
	r.master.IsMaster = true
	return r
}

// Master returns the distinguished master instance.
func (r *Registry) Master() *Instance { return r.master }

// AddCreateListener registers fn to run, outside the registry's lock,
// every time GetOrCreate brings a new instance into existence (§4.9
// "Routing-instance lifecycle callback": "when an instance is created,
// any pending subscribe in the channel's vrf-pending map is executed").
func (r *Registry) AddCreateListener(fn func(*Instance)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createListeners = append(r.createListeners, fn)
}

// GetOrCreate returns the named instance, creating it if this is the
// first reference.
func (r *Registry) GetOrCreate(name string) *Instance {
	r.mu.Lock()
	in, created := r.getOrCreateLocked(name)
	var listeners []func(*Instance)
	if created {
		listeners = append(listeners, r.createListeners...)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(in)
	}
	return in
}

func (r *Registry) getOrCreateLocked(name string) (*Instance, bool) {
	in, ok := r.instances[name]
	if !ok {
		in = newInstance(name, r.interner, r.rtMgr, r.tableMetrics)
		r.instances[name] = in
		return in, true
	}
	return in, false
}

// Get returns the named instance without creating it.
func (r *Registry) Get(name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.instances[name]
	return in, ok
}

// All returns a snapshot of every registered instance.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, in := range r.instances {
		out = append(out, in)
	}
	return out
}

// Remove physically removes name from the registry. Callers must have
// already verified Instance.Destroyable(); Remove does not re-check it,
// mirroring the table partition's "schedule removal after the listener
// pass" split between logical and physical deletion.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, name)
}
