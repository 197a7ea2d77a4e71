// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/primecoin/xpmd/addrmgr"
	"github.com/stretchr/testify/require"
)

func TestAddPeers(t *testing.T) {
	resolve := func(_ context.Context, host string) ([]net.IP, error) {
		if host == "seed.example.org" {
			return []net.IP{net.ParseIP("3.4.5.6"), net.ParseIP("4.5.6.7")}, nil
		}
		return nil, errors.New("no such host")
	}

	amgr := addrmgr.New(nil)
	peers := []string{
		"1.2.3.4:9911",
		"[2001:470::1]:9911",
		"seed.example.org:9911",
		"missing.example.org:9911",
		"127.0.0.1:9911",
		"1.2.3.5",
		"1.2.3.6:port",
	}
	added := addPeers(context.Background(), amgr, peers, resolve)
	require.Equal(t, 4, added)
	require.Equal(t, 4, amgr.NumAddresses())

	// Known addresses are not counted again.
	require.Zero(t, addPeers(context.Background(), amgr, peers[:1], resolve))
}
