// Package prefix implements the immutable table-key value types of §3:
// a tagged union over address families, each a fixed-size byte sequence
// plus a prefix length, with route-distinguisher prefixing for the
// VPN/EVPN variants.
package prefix

// Family identifies the address family a Prefix belongs to. It is
// immutable on a Prefix once constructed.
type Family uint8

const (
	FamilyInet4 Family = iota
	FamilyInet6
	FamilyL3VPNv4
	FamilyL3VPNv6
	FamilyEVPN
	FamilyERMVPN
	FamilyRTarget
)

func (f Family) String() string {
	switch f {
	case FamilyInet4:
		return "inet"
	case FamilyInet6:
		return "inet6"
	case FamilyL3VPNv4:
		return "inet-vpn"
	case FamilyL3VPNv6:
		return "inet6-vpn"
	case FamilyEVPN:
		return "evpn"
	case FamilyERMVPN:
		return "ermvpn"
	case FamilyRTarget:
		return "rtarget"
	default:
		return "unknown"
	}
}

// TableName returns the conventional family suffix used when composing
// a table name for a routing instance, e.g. "blue.inet.0".
func (f Family) TableName() string {
	switch f {
	case FamilyInet4:
		return "inet.0"
	case FamilyInet6:
		return "inet6.0"
	case FamilyL3VPNv4:
		return "inetvpn.0"
	case FamilyL3VPNv6:
		return "inet6vpn.0"
	case FamilyEVPN:
		return "evpn.0"
	case FamilyERMVPN:
		return "ermvpn.0"
	case FamilyRTarget:
		return "rtarget.0"
	default:
		return "unknown.0"
	}
}
