// Copyright (c) 2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package addrmgr implements a concurrency-safe Primecoin address manager.

# Address Manager Overview

Each node must manage a source of IP addresses to connect to and share with
other nodes.  Peers learn addresses from each other through the `getaddr` and
`addr` messages, but remote peers cannot be trusted.  A remote peer might send
invalid addresses, or worse, only send addresses they control with malicious
intent.

The address manager keeps every known address in exactly one of two tables.
The new table holds addresses that have been heard about but never
successfully connected to, spread over 256 buckets of 64 entries.  A single
address may be referenced by up to four new buckets.  The tried table holds
addresses a connection has succeeded to, spread over 64 buckets of 64 entries.

Bucket placement is derived from a secret random key and the network group
(the /16 for IPv4, the /32 for most IPv6) of both the address and the peer
that reported it.  This bounds how much of either table a single network
group can occupy, so an attacker controlling a few networks cannot flood the
tables with addresses of their choosing.

When a bucket is full an existing entry is evicted: terrible addresses first,
then the oldest of a few randomly sampled entries.  Tried entries displaced
by a newly promoted address move back to the new table.

# Selection

Select picks an address to connect to.  A bias in [0,100] weighs the new
table against the tried table, and within the chosen table random entries
are accepted with a probability proportional to their chance, which decays
with time since the address was last seen and with failed attempts.

# Persistence

A Store keeps the table in a single file, peers.dat, laid out as the network
magic, a version byte, the secret key, the entries and the new bucket
listing, followed by a digest over all preceding bytes.  The address manager
loads it on Start, saves it periodically and saves it a final time on Stop.

# Errors

Errors returned by this package are of type addrmgr.Error and can be
inspected with errors.Is against the ErrorKind constants.
*/
package addrmgr
