// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/decred/dcrd/wire"
)

// activeNetParams is a pointer to the parameters specific to the currently
// active network.
var activeNetParams = &mainNetParams

// params is used to group parameters for various networks such as the main
// network and test networks.
type params struct {
	// Name is the human-readable network name.  It is also used as the name
	// of the per-network data and log directories.
	Name string

	// Net is the network magic that prefixes every message and the address
	// store.
	Net wire.CurrencyNet

	// DefaultPort is the default peer-to-peer port for the network.
	DefaultPort string
}

// mainNetParams contains parameters specific to the main network.
var mainNetParams = params{
	Name:        "mainnet",
	Net:         wire.CurrencyNet(0xe7e5e7e4),
	DefaultPort: "9911",
}

// testNetParams contains parameters specific to the test network.
var testNetParams = params{
	Name:        "testnet",
	Net:         wire.CurrencyNet(0xfdfbfefb),
	DefaultPort: "9913",
}
