package prefix

import (
	"bytes"
	"fmt"
	"net"
)

// Inet4 is a fixed-size IPv4 unicast prefix: 4 address bytes + length.
type Inet4 struct {
	addr [4]byte
	len  uint8
}

func NewInet4(ip net.IP, length int) Inet4 {
	var p Inet4
	ip4 := ip.To4()
	copy(p.addr[:], ip4)
	p.len = uint8(length)
	return p
}

func (p Inet4) Family() Family { return FamilyInet4 }
func (p Inet4) Len() int       { return int(p.len) }
func (p Inet4) Bytes() []byte  { return append([]byte{p.len}, p.addr[:]...) }
func (p Inet4) String() string {
	return fmt.Sprintf("%s/%d", net.IP(p.addr[:]).String(), p.len)
}

func (p Inet4) Less(other Prefix) bool {
	o, ok := other.(Inet4)
	if !ok {
		return p.Family() < other.Family()
	}
	if c := bytes.Compare(p.addr[:], o.addr[:]); c != 0 {
		return c < 0
	}
	return p.len < o.len
}

// Inet6 is a fixed-size IPv6 unicast prefix: 16 address bytes + length.
type Inet6 struct {
	addr [16]byte
	len  uint8
}

func NewInet6(ip net.IP, length int) Inet6 {
	var p Inet6
	ip6 := ip.To16()
	copy(p.addr[:], ip6)
	p.len = uint8(length)
	return p
}

func (p Inet6) Family() Family { return FamilyInet6 }
func (p Inet6) Len() int       { return int(p.len) }
func (p Inet6) Bytes() []byte  { return append([]byte{p.len}, p.addr[:]...) }
func (p Inet6) String() string {
	return fmt.Sprintf("%s/%d", net.IP(p.addr[:]).String(), p.len)
}

func (p Inet6) Less(other Prefix) bool {
	o, ok := other.(Inet6)
	if !ok {
		return p.Family() < other.Family()
	}
	if c := bytes.Compare(p.addr[:], o.addr[:]); c != 0 {
		return c < 0
	}
	return p.len < o.len
}

// Contains reports whether p (the less-specific prefix) covers other.
// Used by the route aggregator's "strictly more specific" predicate
// (spec §4.6 clause 1a).
func (p Inet4) Contains(other Inet4) bool {
	if other.len <= p.len {
		return false
	}
	return matchPrefix(p.addr[:], other.addr[:], int(p.len))
}

func (p Inet6) Contains(other Inet6) bool {
	if other.len <= p.len {
		return false
	}
	return matchPrefix(p.addr[:], other.addr[:], int(p.len))
}

func matchPrefix(a, b []byte, bits int) bool {
	fullBytes := bits / 8
	if !bytes.Equal(a[:fullBytes], b[:fullBytes]) {
		return false
	}
	rem := bits % 8
	if rem == 0 {
		return true
	}
	mask := byte(0xFF << (8 - rem))
	return a[fullBytes]&mask == b[fullBytes]&mask
}

// HostRoute reports whether this prefix is a host route (/32 or /128);
// the aggregator and static-route manager's nexthop-host-route
// predicates pair it with their own Addr() comparison.
func (p Inet4) HostRoute() bool { return p.len == 32 }
func (p Inet6) HostRoute() bool { return p.len == 128 }

func (p Inet4) Addr() net.IP { return net.IP(append([]byte{}, p.addr[:]...)) }
func (p Inet6) Addr() net.IP { return net.IP(append([]byte{}, p.addr[:]...)) }
