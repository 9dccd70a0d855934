package prefix

// Prefix is the tagged-union table key of §3: one of {Inet4, Inet6,
// L3VPNv4, L3VPNv6, EVPN, ERMVPN, RouteTarget}. Implementations are
// comparable value types so they can be used directly as Go map keys.
type Prefix interface {
	Family() Family
	Bytes() []byte
	Len() int
	String() string
	Less(other Prefix) bool
}
