// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"net"
)

var (
	// rfc1918Nets specifies the IPv4 private address blocks as defined by
	// RFC1918 (10.0.0.0/8, 172.16.0.0/12, and 192.168.0.0/16).
	rfc1918Nets = []net.IPNet{
		ipNet("10.0.0.0", 8, 32),
		ipNet("172.16.0.0", 12, 32),
		ipNet("192.168.0.0", 16, 32),
	}

	// rfc2544Net specifies the IPv4 benchmarking block (198.18.0.0/15).
	rfc2544Net = ipNet("198.18.0.0", 15, 32)

	// rfc3849Net specifies the IPv6 documentation address block
	// (2001:DB8::/32).
	rfc3849Net = ipNet("2001:DB8::", 32, 128)

	// rfc3927Net specifies the IPv4 auto configuration address block
	// (169.254.0.0/16).
	rfc3927Net = ipNet("169.254.0.0", 16, 32)

	// rfc3964Net specifies the IPv6 to IPv4 encapsulation address block
	// (2002::/16).
	rfc3964Net = ipNet("2002::", 16, 128)

	// rfc4193Net specifies the IPv6 unique local address block (FC00::/7).
	rfc4193Net = ipNet("FC00::", 7, 128)

	// rfc4380Net specifies the IPv6 teredo tunneling over UDP address block
	// (2001::/32).
	rfc4380Net = ipNet("2001::", 32, 128)

	// rfc4843Net specifies the IPv6 ORCHID address block (2001:10::/28).
	rfc4843Net = ipNet("2001:10::", 28, 128)

	// rfc4862Net specifies the IPv6 stateless address autoconfiguration
	// address block (FE80::/64).
	rfc4862Net = ipNet("FE80::", 64, 128)

	// rfc5737Nets specifies the IPv4 documentation address blocks
	// (192.0.2.0/24, 198.51.100.0/24, 203.0.113.0/24).
	rfc5737Nets = []net.IPNet{
		ipNet("192.0.2.0", 24, 32),
		ipNet("198.51.100.0", 24, 32),
		ipNet("203.0.113.0", 24, 32),
	}

	// rfc6052Net specifies the IPv6 well-known prefix address block
	// (64:FF9B::/96).
	rfc6052Net = ipNet("64:FF9B::", 96, 128)

	// rfc6145Net specifies the IPv6 to IPv4 translated address range
	// (::FFFF:0:0:0/96).
	rfc6145Net = ipNet("::FFFF:0:0:0", 96, 128)

	// rfc6598Net specifies the IPv4 shared address space (100.64.0.0/10).
	rfc6598Net = ipNet("100.64.0.0", 10, 32)

	// zero4Net defines the IPv4 address block for addresses starting with 0
	// (0.0.0.0/8).
	zero4Net = ipNet("0.0.0.0", 8, 32)

	// heNet defines the Hurricane Electric IPv6 address block.
	heNet = ipNet("2001:470::", 32, 128)
)

// Network classes that prefix every group key.  Addresses of different
// classes never share a group.
const (
	groupUnroutable byte = 0
	groupIPv4       byte = 1
	groupIPv6       byte = 2
	groupLocal      byte = 255
)

// ipNet returns a net.IPNet struct given the passed IP address string, number
// of one bits to include at the start of the mask, and the total number of bits
// for the mask.
func ipNet(ip string, ones, bits int) net.IPNet {
	return net.IPNet{IP: net.ParseIP(ip), Mask: net.CIDRMask(ones, bits)}
}

// inAny returns whether the address is contained by any of the networks.
func inAny(netIP net.IP, nets []net.IPNet) bool {
	for i := range nets {
		if nets[i].Contains(netIP) {
			return true
		}
	}
	return false
}

// isIPv4 returns whether or not the given address is an IPv4 address.
func isIPv4(netIP net.IP) bool {
	return netIP.To4() != nil
}

// isLocal returns whether or not the given address is a local address.
func isLocal(netIP net.IP) bool {
	return netIP.IsLoopback() || zero4Net.Contains(netIP)
}

// isValid returns whether or not the passed address is valid.  The address is
// considered invalid when it is nil, unspecified, the IPv4 broadcast address
// or part of the IPv6 documentation range.
func isValid(netIP net.IP) bool {
	return netIP != nil && !(netIP.IsUnspecified() ||
		netIP.Equal(net.IPv4bcast) || rfc3849Net.Contains(netIP))
}

// IsRoutable returns whether or not the passed address is routable over
// the public internet.  This is true as long as the address is valid and is not
// in any reserved ranges.
func IsRoutable(netIP net.IP) bool {
	if !isValid(netIP) || isLocal(netIP) {
		return false
	}
	if isIPv4(netIP) {
		return !(inAny(netIP, rfc1918Nets) || rfc2544Net.Contains(netIP) ||
			rfc3927Net.Contains(netIP) || inAny(netIP, rfc5737Nets) ||
			rfc6598Net.Contains(netIP))
	}
	return !(rfc4193Net.Contains(netIP) || rfc4843Net.Contains(netIP) ||
		rfc4862Net.Contains(netIP))
}

// groupKey returns the network group an address belongs to as raw bytes: a
// class byte followed by the routing prefix.  The prefix is the /16 for IPv4
// (including IPv4 embedded in 6to4, Teredo, NAT64 and SIIT addresses), the
// /36 for Hurricane Electric and the /32 for all other IPv6.  All local
// addresses form a single group and so do all unroutable addresses.
func groupKey(netIP net.IP) []byte {
	if isLocal(netIP) {
		return []byte{groupLocal}
	}
	if !IsRoutable(netIP) {
		return []byte{groupUnroutable}
	}

	ip := netIP.To16()
	switch {
	case isIPv4(ip) || rfc6145Net.Contains(ip) || rfc6052Net.Contains(ip):
		return []byte{groupIPv4, ip[12], ip[13]}

	case rfc3964Net.Contains(ip):
		return []byte{groupIPv4, ip[2], ip[3]}

	case rfc4380Net.Contains(ip):
		// Teredo carries the client IPv4 address XOR 0xff in the last four
		// bytes.
		return []byte{groupIPv4, ip[12] ^ 0xff, ip[13] ^ 0xff}

	case heNet.Contains(ip):
		// Keep the high nibble of the fifth byte for a /36.
		return []byte{groupIPv6, ip[0], ip[1], ip[2], ip[3], ip[4] | 0x0f}
	}

	return []byte{groupIPv6, ip[0], ip[1], ip[2], ip[3]}
}
