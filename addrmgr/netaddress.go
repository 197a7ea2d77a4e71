// Copyright (c) 2021-2025 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/decred/dcrd/wire"
)

// NetAddress defines information about a peer on the network.
type NetAddress struct {
	// IP address of the peer.  It is always stored in its 16-byte form.
	IP net.IP

	// Port is the port of the remote peer.
	Port uint16

	// Services represents the service flags supported by this network address.
	Services wire.ServiceFlag

	// Timestamp is the last time the address was seen.  The zero value means
	// the address has never been seen.
	Timestamp time.Time
}

// NewNetAddressIPPort creates a new network address given an ip, port, and
// the supported service flags for the address.  The timestamp is set to the
// current time truncated to one second precision since the on-disk and wire
// formats do not support better.
func NewNetAddressIPPort(ip net.IP, port uint16, services wire.ServiceFlag) *NetAddress {
	return &NetAddress{
		IP:        ip.To16(),
		Port:      port,
		Services:  services,
		Timestamp: time.Unix(time.Now().Unix(), 0),
	}
}

// NewNetAddressFromWire converts an address received in a wire message.
func NewNetAddressFromWire(na *wire.NetAddress) *NetAddress {
	return &NetAddress{
		IP:        na.IP.To16(),
		Port:      na.Port,
		Services:  na.Services,
		Timestamp: na.Timestamp,
	}
}

// ParseNetAddress creates a new network address from a string in the form
// "host:port".  The host must be a literal IPv4 or IPv6 address; resolving
// names is the job of the caller.
func ParseNetAddress(addr string, services wire.ServiceFlag) (*NetAddress, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		str := fmt.Sprintf("failed to parse address %s", addr)
		return nil, makeError(ErrUnknownAddressType, str)
	}
	return NewNetAddressIPPort(ip, uint16(port), services), nil
}

// ToWire converts the address to the form used in wire messages.
func (netAddr *NetAddress) ToWire() *wire.NetAddress {
	return &wire.NetAddress{
		Timestamp: netAddr.Timestamp,
		Services:  netAddr.Services,
		IP:        netAddr.IP,
		Port:      netAddr.Port,
	}
}

// IsRoutable returns a boolean indicating whether the network address is
// routable.
func (netAddr *NetAddress) IsRoutable() bool {
	return IsRoutable(netAddr.IP)
}

// Key returns a string that can be used to uniquely represent the network
// address and includes the port.
func (netAddr *NetAddress) Key() string {
	portString := strconv.FormatUint(uint64(netAddr.Port), 10)
	return net.JoinHostPort(netAddr.IP.String(), portString)
}

// String returns a human-readable string for the network address.  This is
// equivalent to calling Key, but is provided so the type can be used as a
// fmt.Stringer.
func (netAddr *NetAddress) String() string {
	return netAddr.Key()
}

// Clone creates a shallow copy of the NetAddress instance.  The IP reference
// is shared since it is not mutated.
func (netAddr *NetAddress) Clone() *NetAddress {
	netAddrCopy := *netAddr
	return &netAddrCopy
}

// AddService adds the provided service to the set of services that the
// network address supports.
func (netAddr *NetAddress) AddService(service wire.ServiceFlag) {
	netAddr.Services |= service
}

// ipKey returns the 16-byte form of the IP as an array usable as a map key.
func ipKey(netIP net.IP) [16]byte {
	var key [16]byte
	copy(key[:], netIP.To16())
	return key
}

// endpointKey returns the IP in 16-byte form followed by the big-endian port.
func (netAddr *NetAddress) endpointKey() []byte {
	key := make([]byte, 18)
	copy(key, netAddr.IP.To16())
	key[16] = byte(netAddr.Port >> 8)
	key[17] = byte(netAddr.Port)
	return key
}

// sameEndpoint returns whether both addresses refer to the same IP and port.
func (netAddr *NetAddress) sameEndpoint(other *NetAddress) bool {
	return netAddr.Port == other.Port && netAddr.IP.Equal(other.IP)
}
