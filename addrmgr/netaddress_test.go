// Copyright (c) 2021-2025 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/decred/dcrd/wire"
)

// TestKey verifies that Key converts a network address to an expected string
// value.
func TestKey(t *testing.T) {
	tests := []struct {
		host string
		port uint16
		want string
	}{
		// IPv4
		// Localhost
		{host: "127.0.0.1", port: 9911, want: "127.0.0.1:9911"},
		{host: "127.0.0.1", port: 9913, want: "127.0.0.1:9913"},

		// Class A
		{host: "1.0.0.1", port: 9911, want: "1.0.0.1:9911"},
		{host: "2.2.2.2", port: 9913, want: "2.2.2.2:9913"},
		{host: "27.253.252.251", port: 8335, want: "27.253.252.251:8335"},

		// Private Class B
		{host: "172.16.0.1", port: 9911, want: "172.16.0.1:9911"},

		// Class C
		{host: "193.0.0.1", port: 9911, want: "193.0.0.1:9911"},
		{host: "192.168.192.192", port: 8336, want: "192.168.192.192:8336"},

		// IPv4-mapped IPv6 is shown as IPv4
		{host: "::ffff:1.2.3.4", port: 9911, want: "1.2.3.4:9911"},

		// IPv6
		{host: "::1", port: 9911, want: "[::1]:9911"},
		{host: "fe80::1:1", port: 9911, want: "[fe80::1:1]:9911"},
		{host: "2001:470::1", port: 9913, want: "[2001:470::1]:9913"},
	}

	for _, test := range tests {
		netAddr := NewNetAddressIPPort(net.ParseIP(test.host), test.port,
			wire.SFNodeNetwork)
		if key := netAddr.Key(); key != test.want {
			t.Errorf("unexpected network address key -- got %q, want %q",
				key, test.want)
			continue
		}
		if str := netAddr.String(); str != test.want {
			t.Errorf("unexpected network address string -- got %q, want %q",
				str, test.want)
		}
	}
}

// TestClone verifies that a new instance of the network address struct is
// created when cloned.
func TestClone(t *testing.T) {
	const port = 0
	netAddr := NewNetAddressIPPort(net.ParseIP("1.2.3.4"), port, wire.SFNodeNetwork)
	netAddrClone := netAddr.Clone()

	if netAddr == netAddrClone {
		t.Fatal("expected new network address reference")
	}
	if !reflect.DeepEqual(netAddr, netAddrClone) {
		t.Fatalf("unxpected clone result -- got %v, want %v",
			netAddrClone, netAddr)
	}
}

// TestAddService verifies that the service flag is set as expected on a
// network address instance.
func TestAddService(t *testing.T) {
	const port = 0
	netAddr := NewNetAddressIPPort(net.ParseIP("1.2.3.4"), port, 0)
	netAddr.AddService(wire.SFNodeNetwork)

	if netAddr.Services != wire.SFNodeNetwork {
		t.Fatalf("expected service flag to be set -- got %x, want %x",
			netAddr.Services, wire.SFNodeNetwork)
	}
}

// TestWireConversion ensures network addresses survive a conversion to and
// from their wire representation.
func TestWireConversion(t *testing.T) {
	timestamp := time.Unix(1700000000, 0)
	wireAddr := &wire.NetAddress{
		Timestamp: timestamp,
		Services:  wire.SFNodeNetwork,
		IP:        net.ParseIP("1.2.3.4").To4(),
		Port:      9911,
	}

	netAddr := NewNetAddressFromWire(wireAddr)
	if len(netAddr.IP) != net.IPv6len {
		t.Fatalf("IP not stored in 16-byte form: %d bytes", len(netAddr.IP))
	}
	want := &NetAddress{
		IP:        net.ParseIP("1.2.3.4"),
		Port:      9911,
		Services:  wire.SFNodeNetwork,
		Timestamp: timestamp,
	}
	if !reflect.DeepEqual(netAddr, want) {
		t.Fatalf("mismatched address\ngot  %+v\nwant %+v", netAddr, want)
	}

	back := netAddr.ToWire()
	if !back.IP.Equal(wireAddr.IP) || back.Port != wireAddr.Port ||
		back.Services != wireAddr.Services ||
		!back.Timestamp.Equal(wireAddr.Timestamp) {

		t.Fatalf("mismatched wire address\ngot  %+v\nwant %+v", back,
			wireAddr)
	}
}

// TestParseNetAddress verifies that ParseNetAddress correctly creates a
// network address with expected field values.
func TestParseNetAddress(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		wantIP   net.IP
		wantPort uint16
		wantKind error
		wantErr  bool
	}{{
		name:     "ipv4",
		addr:     "1.2.3.4:9911",
		wantIP:   net.ParseIP("1.2.3.4"),
		wantPort: 9911,
	}, {
		name:     "ipv6",
		addr:     "[2001:470::1]:9913",
		wantIP:   net.ParseIP("2001:470::1"),
		wantPort: 9913,
	}, {
		name:    "cannot split host:port",
		addr:    "1.2.3.4",
		wantErr: true,
	}, {
		name:    "cannot parse the port",
		addr:    "1.2.3.4:abc",
		wantErr: true,
	}, {
		name:    "port out of range",
		addr:    "1.2.3.4:65536",
		wantErr: true,
	}, {
		name:     "host name",
		addr:     "seed.example.com:9911",
		wantKind: ErrUnknownAddressType,
		wantErr:  true,
	}}

	for _, test := range tests {
		addr, err := ParseNetAddress(test.addr, wire.SFNodeNetwork)
		if test.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", test.name)
			}
			if test.wantKind != nil && !errors.Is(err, test.wantKind) {
				t.Errorf("%q: wrong error -- got %v, want %v", test.name,
					err, test.wantKind)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", test.name, err)
			continue
		}
		if !addr.IP.Equal(test.wantIP) || addr.Port != test.wantPort {
			t.Errorf("%q: got %v, want %v port %d", test.name, addr,
				test.wantIP, test.wantPort)
		}
		if addr.Services != wire.SFNodeNetwork {
			t.Errorf("%q: wrong services %v", test.name, addr.Services)
		}
	}
}

// TestSameEndpoint ensures endpoint comparison considers both the IP and the
// port and ignores the IP encoding.
func TestSameEndpoint(t *testing.T) {
	a := &NetAddress{IP: net.ParseIP("1.2.3.4"), Port: 9911}
	b := &NetAddress{IP: net.ParseIP("1.2.3.4").To4(), Port: 9911}
	c := &NetAddress{IP: net.ParseIP("1.2.3.4"), Port: 9913}
	if !a.sameEndpoint(b) {
		t.Error("4 and 16 byte forms of one address differ")
	}
	if a.sameEndpoint(c) {
		t.Error("addresses with different ports are the same endpoint")
	}
	if ipKey(a.IP) != ipKey(b.IP) {
		t.Error("4 and 16 byte forms have different index keys")
	}
	if reflect.DeepEqual(a.endpointKey(), c.endpointKey()) {
		t.Error("endpoint keys ignore the port")
	}
}
