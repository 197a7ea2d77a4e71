// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"encoding/binary"
	"net"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

const (
	// triedBucketCount is the number of buckets tried addresses are split
	// over.
	triedBucketCount = 64

	// triedBucketSize is the maximum number of addresses in each tried
	// bucket.
	triedBucketSize = 64

	// newBucketCount is the number of buckets new addresses are spread over.
	newBucketCount = 256

	// newBucketSize is the maximum number of addresses in each new bucket.
	newBucketSize = 64

	// triedBucketsPerGroup is the number of tried buckets over which an
	// address group will be spread.
	triedBucketsPerGroup = 4

	// newBucketsPerSourceGroup is the number of new buckets over which the
	// addresses reported by a single source group will be spread.
	newBucketsPerSourceGroup = 32

	// newBucketsPerAddress is the number of new buckets a frequently seen
	// address may end up in.
	newBucketsPerAddress = 4
)

// keyedHash returns the first 8 bytes, read little endian, of the hash of
// the secret key followed by each length-prefixed part.
func keyedHash(key *[32]byte, parts ...[]byte) uint64 {
	data := make([]byte, 0, 64)
	data = append(data, key[:]...)
	for _, part := range parts {
		data = append(data, byte(len(part)))
		data = append(data, part...)
	}
	return binary.LittleEndian.Uint64(chainhash.HashB(data))
}

// uint64Bytes returns the little-endian encoding of v.
func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

// triedBucket returns the tried bucket the address belongs in.  The full
// endpoint selects one of triedBucketsPerGroup slots for the address group
// and the group together with that slot selects the bucket, so a single
// group can occupy at most triedBucketsPerGroup tried buckets.
func (ka *KnownAddress) triedBucket(key *[32]byte) int {
	slot := keyedHash(key, ka.na.endpointKey()) % triedBucketsPerGroup
	hash := keyedHash(key, groupKey(ka.na.IP), uint64Bytes(slot))
	return int(hash % triedBucketCount)
}

// newBucket returns the new bucket the address belongs in when reported by
// srcIP.  The address group together with the source group selects one of
// newBucketsPerSourceGroup slots for the source group and the source group
// together with that slot selects the bucket, so a single source group can
// occupy at most newBucketsPerSourceGroup new buckets.
func (ka *KnownAddress) newBucket(key *[32]byte, srcIP net.IP) int {
	srcGroup := groupKey(srcIP)
	slot := keyedHash(key, groupKey(ka.na.IP), srcGroup) %
		newBucketsPerSourceGroup
	hash := keyedHash(key, srcGroup, uint64Bytes(slot))
	return int(hash % newBucketCount)
}
