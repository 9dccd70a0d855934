package attr

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// Interner is the single owner of Attr instances: two bundles with
// equal Content share one *Attr, looked up by content hash, and
// reference-counted so the last releasing Path causes reclamation
// (§3 "Interning", §5 "Attribute interner").
//
// The write path (insert on miss, delete on refcount-zero) is guarded
// by a short critical section; reads of an already-interned bundle
// only need the RLock to find the slot and then use atomic refcounting,
// matching §5's "lock-free reads via snapshot pointers... refcount per
// bundle uses atomic ops" guidance without requiring a full RCU
// implementation (fnv hashing + a bucket-of-candidates map is
// sufficient at the bundle volumes this core deals with; see
// DESIGN.md for why this stays a plain RWMutex map rather than an
// external interning library).
type Interner struct {
	mu      sync.RWMutex
	buckets map[uint64][]*entry
}

type entry struct {
	attr *Attr
	refs int32
}

func NewInterner() *Interner {
	return &Interner{buckets: make(map[uint64][]*entry)}
}

func hashContent(c Content) uint64 {
	h := fnv.New64a()
	fmt64 := func(b byte) { h.Write([]byte{b}) }
	writeStr := func(s string) { h.Write([]byte(s)) ; fmt64(0) }
	writeStr(c.ASPath)
	fmt64(byte(c.Origin))
	h.Write(c.Nexthop[:])
	writeU32 := func(v uint32) {
		h.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	}
	writeU32(c.MED)
	fmt64(boolByte(c.HasMED))
	writeU32(c.LocalPref)
	fmt64(boolByte(c.HasLocalPref))
	writeStr(c.Community)
	writeStr(c.ExtCommunity)
	h.Write(c.OriginatorID[:])
	writeStr(c.ClusterList)
	writeU32(c.Label)
	h.Write(c.SourceRD[:])
	h.Write([]byte{byte(c.ParamFlags >> 8), byte(c.ParamFlags)})
	return h.Sum64()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Intern returns the shared *Attr for this content, creating it with
// refcount 1 on first sight or incrementing the existing entry's
// refcount otherwise. Callers must pair every Intern with a Release.
func (in *Interner) Intern(c Content) *Attr {
	h := hashContent(c)

	in.mu.RLock()
	for _, e := range in.buckets[h] {
		if e.attr.c == c {
			atomic.AddInt32(&e.refs, 1)
			in.mu.RUnlock()
			return e.attr
		}
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	// Re-check under the write lock: another goroutine may have
	// inserted the same content between RUnlock and Lock.
	for _, e := range in.buckets[h] {
		if e.attr.c == c {
			atomic.AddInt32(&e.refs, 1)
			return e.attr
		}
	}
	e := &entry{attr: newAttr(c), refs: 1}
	in.buckets[h] = append(in.buckets[h], e)
	return e.attr
}

// Release decrements the bundle's refcount and reclaims the slot when
// it reaches zero (§3 "bundles are reference-counted and reclaimed when
// the last path releases them").
func (in *Interner) Release(a *Attr) {
	h := hashContent(a.c)

	in.mu.RLock()
	var target *entry
	for _, e := range in.buckets[h] {
		if e.attr == a {
			target = e
			break
		}
	}
	in.mu.RUnlock()
	if target == nil {
		return
	}

	if atomic.AddInt32(&target.refs, -1) > 0 {
		return
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	bucket := in.buckets[h]
	for i, e := range bucket {
		if e == target && atomic.LoadInt32(&e.refs) <= 0 {
			in.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(in.buckets[h]) == 0 {
		delete(in.buckets, h)
	}
}

// Len reports the number of distinct live bundles, for tests asserting
// §8 invariant 6 (interner uniqueness).
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	n := 0
	for _, b := range in.buckets {
		n += len(b)
	}
	return n
}

// RefCount returns the current refcount for a bundle, for tests only.
func (in *Interner) RefCount(a *Attr) int32 {
	h := hashContent(a.c)
	in.mu.RLock()
	defer in.mu.RUnlock()
	for _, e := range in.buckets[h] {
		if e.attr == a {
			return atomic.LoadInt32(&e.refs)
		}
	}
	return 0
}
