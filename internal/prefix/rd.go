package prefix

import (
	"encoding/binary"
	"fmt"
	"net"
)

// RD is an 8-byte route distinguisher (§3), used to make overlapping
// VPN addresses unique across tenants. Layout follows RFC 4364: a
// 2-byte type field followed by 6 bytes of type-specific data, the same
// type/subtype switch used for extended communities (2-octet AS,
// IPv4 address, 4-octet AS).
type RD [8]byte

// RDType identifies which of the three RFC 4364 encodings an RD uses.
type RDType uint8

const (
	RDTypeASN2 RDType = iota // 2-octet AS : 4-octet assigned number
	RDTypeIPv4
	RDTypeASN4 // 4-octet AS : 2-octet assigned number
)

// NewRDFromASN2 builds a type-0 RD: 2-octet ASN : 4-octet local number.
func NewRDFromASN2(asn uint16, value uint32) RD {
	var rd RD
	binary.BigEndian.PutUint16(rd[0:2], 0)
	binary.BigEndian.PutUint16(rd[2:4], asn)
	binary.BigEndian.PutUint32(rd[4:8], value)
	return rd
}

// NewRDFromIPv4 builds a type-1 RD: IPv4 address : 2-octet local number.
func NewRDFromIPv4(ip net.IP, value uint16) RD {
	var rd RD
	binary.BigEndian.PutUint16(rd[0:2], 1)
	ip4 := ip.To4()
	copy(rd[2:6], ip4)
	binary.BigEndian.PutUint16(rd[6:8], value)
	return rd
}

// NewRDFromASN4 builds a type-2 RD: 4-octet ASN : 2-octet local number.
func NewRDFromASN4(asn uint32, value uint16) RD {
	var rd RD
	binary.BigEndian.PutUint16(rd[0:2], 2)
	binary.BigEndian.PutUint32(rd[2:6], asn)
	binary.BigEndian.PutUint16(rd[6:8], value)
	return rd
}

func (rd RD) Type() RDType {
	switch binary.BigEndian.Uint16(rd[0:2]) {
	case 1:
		return RDTypeIPv4
	case 2:
		return RDTypeASN4
	default:
		return RDTypeASN2
	}
}

func (rd RD) String() string {
	switch rd.Type() {
	case RDTypeIPv4:
		ip := net.IP(rd[2:6])
		val := binary.BigEndian.Uint16(rd[6:8])
		return fmt.Sprintf("%s:%d", ip.String(), val)
	case RDTypeASN4:
		asn := binary.BigEndian.Uint32(rd[2:6])
		val := binary.BigEndian.Uint16(rd[6:8])
		return fmt.Sprintf("%d:%d", asn, val)
	default:
		asn := binary.BigEndian.Uint16(rd[2:4])
		val := binary.BigEndian.Uint32(rd[4:8])
		return fmt.Sprintf("%d:%d", asn, val)
	}
}

func (rd RD) IsZero() bool {
	return rd == RD{}
}
