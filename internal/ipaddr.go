package internal

import "net/netip"

// AnonymizeIP reduces an address to subnet precision: the last octet of an
// IPv4 address is zeroed, and an IPv6 address is truncated to its /64.
// Unparseable input is returned unchanged so binding comparisons still run
// on whatever the transport reported.
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}

	if addr.Is4() || addr.Is4In6() {
		v4 := addr.As4()
		v4[3] = 0
		return netip.AddrFrom4(v4).String()
	}

	v6 := addr.As16()
	for i := 8; i < 16; i++ {
		v6[i] = 0
	}
	return netip.AddrFrom16(v6).String()
}
