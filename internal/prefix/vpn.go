package prefix

import (
	"bytes"
	"fmt"
)

// L3VPNv4 is an RD-prefixed IPv4 VPN prefix: the shared VPN table key
// produced by replicating a VRF route (§4.4 "VRF → VPN").
type L3VPNv4 struct {
	rd    RD
	inet4 Inet4
}

func NewL3VPNv4(rd RD, p Inet4) L3VPNv4 { return L3VPNv4{rd: rd, inet4: p} }

func (p L3VPNv4) Family() Family { return FamilyL3VPNv4 }
func (p L3VPNv4) Len() int       { return p.inet4.Len() }
func (p L3VPNv4) Bytes() []byte  { return append(append([]byte{}, p.rd[:]...), p.inet4.Bytes()...) }
func (p L3VPNv4) String() string { return fmt.Sprintf("%s:%s", p.rd.String(), p.inet4.String()) }
func (p L3VPNv4) RD() RD         { return p.rd }
func (p L3VPNv4) Inet4() Inet4   { return p.inet4 }

// StripRD returns the bare VRF-local prefix (§4.4 "VPN → VRF").
func (p L3VPNv4) StripRD() Inet4 { return p.inet4 }

func (p L3VPNv4) Less(other Prefix) bool {
	o, ok := other.(L3VPNv4)
	if !ok {
		return p.Family() < other.Family()
	}
	if c := bytes.Compare(p.rd[:], o.rd[:]); c != 0 {
		return c < 0
	}
	return p.inet4.Less(o.inet4)
}

// L3VPNv6 is the IPv6 analogue of L3VPNv4.
type L3VPNv6 struct {
	rd    RD
	inet6 Inet6
}

func NewL3VPNv6(rd RD, p Inet6) L3VPNv6 { return L3VPNv6{rd: rd, inet6: p} }

func (p L3VPNv6) Family() Family { return FamilyL3VPNv6 }
func (p L3VPNv6) Len() int       { return p.inet6.Len() }
func (p L3VPNv6) Bytes() []byte  { return append(append([]byte{}, p.rd[:]...), p.inet6.Bytes()...) }
func (p L3VPNv6) String() string { return fmt.Sprintf("%s:%s", p.rd.String(), p.inet6.String()) }
func (p L3VPNv6) RD() RD         { return p.rd }
func (p L3VPNv6) StripRD() Inet6 { return p.inet6 }

func (p L3VPNv6) Less(other Prefix) bool {
	o, ok := other.(L3VPNv6)
	if !ok {
		return p.Family() < other.Family()
	}
	if c := bytes.Compare(p.rd[:], o.rd[:]); c != 0 {
		return c < 0
	}
	return p.inet6.Less(o.inet6)
}

// RouteTarget is both an extended-community value (§3 "Path attributes")
// and a first-class RTarget-family prefix (§3 "Prefix"), matching the
// teacher's 2-octet-AS/IPv4/4-octet-AS ext-community type switch in
// decodeExtCommunity.
type RouteTarget [8]byte

func NewRouteTargetASN2(asn uint16, value uint32) RouteTarget {
	var rt RouteTarget
	rt[0] = 0x00
	rt[1] = 0x02
	rt[2] = byte(asn >> 8)
	rt[3] = byte(asn)
	rt[4] = byte(value >> 24)
	rt[5] = byte(value >> 16)
	rt[6] = byte(value >> 8)
	rt[7] = byte(value)
	return rt
}

func (rt RouteTarget) Family() Family { return FamilyRTarget }
func (rt RouteTarget) Len() int       { return 0 }
func (rt RouteTarget) Bytes() []byte  { return append([]byte{}, rt[:]...) }

func (rt RouteTarget) String() string {
	typeHigh := rt[0] & 0x3F
	switch typeHigh {
	case 0x00:
		asn := uint16(rt[2])<<8 | uint16(rt[3])
		val := uint32(rt[4])<<24 | uint32(rt[5])<<16 | uint32(rt[6])<<8 | uint32(rt[7])
		return fmt.Sprintf("target:%d:%d", asn, val)
	case 0x01:
		ip := fmt.Sprintf("%d.%d.%d.%d", rt[2], rt[3], rt[4], rt[5])
		val := uint16(rt[6])<<8 | uint16(rt[7])
		return fmt.Sprintf("target:%s:%d", ip, val)
	case 0x02:
		asn := uint32(rt[2])<<24 | uint32(rt[3])<<16 | uint32(rt[4])<<8 | uint32(rt[5])
		val := uint16(rt[6])<<8 | uint16(rt[7])
		return fmt.Sprintf("target:%d:%d", asn, val)
	default:
		return fmt.Sprintf("target:%x", [8]byte(rt))
	}
}

func (rt RouteTarget) Less(other Prefix) bool {
	o, ok := other.(RouteTarget)
	if !ok {
		return rt.Family() < other.Family()
	}
	return bytes.Compare(rt[:], o[:]) < 0
}
