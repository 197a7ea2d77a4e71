// Copyright (c) 2017-2022 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

import (
	_ "embed"
)

// sampleXpmdConf is a string containing the commented example config for xpmd.
//
//go:embed sample-xpmd.conf
var sampleXpmdConf string

// Xpmd returns a string containing the commented example config for xpmd.
func Xpmd() string {
	return sampleXpmdConf
}
