package prefix

import (
	"bytes"
	"fmt"
)

// EVPN is a simplified RD-prefixed EVPN route key: route-type plus an
// opaque type-specific byte string (ESI, ethernet-tag, MAC/IP, or IP
// prefix, depending on route type). Byte-for-byte EVPN NLRI encoding is
// out of scope per spec.md §1; this captures enough structure for table
// keying, ordering, and replication.
type EVPN struct {
	rd        RD
	routeType uint8
	key       string // opaque, already-canonicalized type-specific key
}

func NewEVPN(rd RD, routeType uint8, key string) EVPN {
	return EVPN{rd: rd, routeType: routeType, key: key}
}

func (p EVPN) Family() Family { return FamilyEVPN }
func (p EVPN) Len() int       { return 0 }
func (p EVPN) RD() RD         { return p.rd }
func (p EVPN) RouteType() uint8 { return p.routeType }

func (p EVPN) Bytes() []byte {
	b := append([]byte{}, p.rd[:]...)
	b = append(b, p.routeType)
	return append(b, []byte(p.key)...)
}

func (p EVPN) String() string {
	return fmt.Sprintf("%s:%d:%s", p.rd.String(), p.routeType, p.key)
}

func (p EVPN) Less(other Prefix) bool {
	o, ok := other.(EVPN)
	if !ok {
		return p.Family() < other.Family()
	}
	if c := bytes.Compare(p.rd[:], o.rd[:]); c != 0 {
		return c < 0
	}
	if p.routeType != o.routeType {
		return p.routeType < o.routeType
	}
	return p.key < o.key
}

// ERMVPN is a simplified RD-prefixed multicast-VPN route key (source,
// group, and originator address folded into an opaque key), matching
// §3's ERMVPN family. Byte-for-byte NLRI encoding is out of scope.
type ERMVPN struct {
	rd  RD
	key string
}

func NewERMVPN(rd RD, key string) ERMVPN { return ERMVPN{rd: rd, key: key} }

func (p ERMVPN) Family() Family { return FamilyERMVPN }
func (p ERMVPN) Len() int       { return 0 }
func (p ERMVPN) RD() RD         { return p.rd }

func (p ERMVPN) Bytes() []byte {
	return append(append([]byte{}, p.rd[:]...), []byte(p.key)...)
}

func (p ERMVPN) String() string { return fmt.Sprintf("%s:%s", p.rd.String(), p.key) }

func (p ERMVPN) Less(other Prefix) bool {
	o, ok := other.(ERMVPN)
	if !ok {
		return p.Family() < other.Family()
	}
	if c := bytes.Compare(p.rd[:], o.rd[:]); c != 0 {
		return c < 0
	}
	return p.key < o.key
}
