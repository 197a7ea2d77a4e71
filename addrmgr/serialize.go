// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"slices"
	"time"

	"github.com/decred/dcrd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// storeVersion is the only supported version of the serialized table.
	storeVersion = 0

	// serializedRecordLen is the length of a serialized known address: ip,
	// port, services, last seen, source ip, last success and attempts.
	serializedRecordLen = 16 + 2 + 8 + 4 + 16 + 8 + 4

	// maxNewEntries and maxTriedEntries bound the entry counts accepted when
	// decoding.
	maxNewEntries   = newBucketCount * newBucketSize
	maxTriedEntries = triedBucketCount * triedBucketSize

	// maxBucketMarker bounds the number of new buckets a serialized table
	// from an incompatible layout may claim.
	maxBucketMarker = 1 << 16
)

// putRecord appends the serialized form of the known address to buf.
func putRecord(buf []byte, ka *KnownAddress) []byte {
	var rec [serializedRecordLen]byte
	copy(rec[0:16], ka.na.IP.To16())
	binary.BigEndian.PutUint16(rec[16:18], ka.na.Port)
	binary.LittleEndian.PutUint64(rec[18:26], uint64(ka.na.Services))
	binary.LittleEndian.PutUint32(rec[26:30], uint32(unixOrZero(ka.na.Timestamp)))
	copy(rec[30:46], ka.srcIP.To16())
	binary.LittleEndian.PutUint64(rec[46:54], uint64(unixOrZero(ka.lastSuccess)))
	binary.LittleEndian.PutUint32(rec[54:58], uint32(int32(ka.attempts)))
	return append(buf, rec[:]...)
}

// parseRecord decodes a serialized known address.
func parseRecord(rec []byte) *KnownAddress {
	na := &NetAddress{
		IP:        net.IP(slices.Clone(rec[0:16])),
		Port:      binary.BigEndian.Uint16(rec[16:18]),
		Services:  wire.ServiceFlag(binary.LittleEndian.Uint64(rec[18:26])),
		Timestamp: timeOrZero(int64(binary.LittleEndian.Uint32(rec[26:30]))),
	}
	attempts := int(int32(binary.LittleEndian.Uint32(rec[54:58])))
	if attempts < 0 {
		attempts = 0
	}
	return &KnownAddress{
		na:          na,
		srcIP:       net.IP(slices.Clone(rec[30:46])),
		lastSuccess: timeOrZero(int64(binary.LittleEndian.Uint64(rec[46:54]))),
		attempts:    attempts,
	}
}

// unixOrZero returns the unix time of t or 0 for the zero time.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// timeOrZero is the inverse of unixOrZero.
func timeOrZero(secs int64) time.Time {
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

func putInt32(buf []byte, v int) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(int32(v)))
}

// encodeTable serializes the table for the given network, without the
// trailing digest.
func encodeTable(t *addrTable, magic wire.CurrencyNet) []byte {
	ids := slices.Clone(t.randomOrder)
	slices.Sort(ids)

	size := 4 + 1 + 32 + 3*4 + len(ids)*serializedRecordLen +
		newBucketCount*4 + t.nNew*newBucketsPerAddress*4
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(magic))
	buf = append(buf, storeVersion)
	buf = append(buf, t.key[:]...)
	buf = putInt32(buf, t.nNew)
	buf = putInt32(buf, t.nTried)
	buf = putInt32(buf, newBucketCount)

	// New records first, each assigned its ordinal for the bucket listing.
	ordinals := make(map[int]int, t.nNew)
	for _, id := range ids {
		if e := t.entries[id]; !e.tried {
			ordinals[id] = len(ordinals)
			buf = putRecord(buf, e.ka)
		}
	}
	for _, id := range ids {
		if e := t.entries[id]; e.tried {
			buf = putRecord(buf, e.ka)
		}
	}
	for _, bucket := range t.newBuckets {
		buf = putInt32(buf, len(bucket))
		for _, id := range bucket {
			buf = putInt32(buf, ordinals[id])
		}
	}
	return buf
}

// tableDecoder reads the fixed size fields of a serialized table.
type tableDecoder struct {
	r *bytes.Reader
}

func (d *tableDecoder) bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, makeError(ErrMalformedStore, "truncated address table")
	}
	return b, nil
}

func (d *tableDecoder) int32() (int, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return int(int32(binary.LittleEndian.Uint32(b))), nil
}

// malformed returns an ErrMalformedStore error with the formatted
// description.
func malformed(format string, args ...interface{}) error {
	return makeError(ErrMalformedStore, fmt.Sprintf(format, args...))
}

// decodeTable builds a fresh table from a serialized one for the given
// network.  The returned table is checked for consistency.
func decodeTable(data []byte, magic wire.CurrencyNet, r Rand, c clock.Clock) (*addrTable, error) {
	d := &tableDecoder{r: bytes.NewReader(data)}

	head, err := d.bytes(4 + 1 + 32)
	if err != nil {
		return nil, err
	}
	if got := wire.CurrencyNet(binary.LittleEndian.Uint32(head[0:4])); got != magic {
		str := fmt.Sprintf("address table is for network %v, want %v",
			got, magic)
		return nil, makeError(ErrWrongNetwork, str)
	}
	if head[4] != storeVersion {
		str := fmt.Sprintf("address table version %d is not supported",
			head[4])
		return nil, makeError(ErrUnsupportedVersion, str)
	}
	var key [32]byte
	copy(key[:], head[5:37])

	nNew, err := d.int32()
	if err != nil {
		return nil, err
	}
	nTried, err := d.int32()
	if err != nil {
		return nil, err
	}
	marker, err := d.int32()
	if err != nil {
		return nil, err
	}
	if nNew < 0 || nNew > maxNewEntries {
		return nil, malformed("invalid new address count %d", nNew)
	}
	if nTried < 0 || nTried > maxTriedEntries {
		return nil, malformed("invalid tried address count %d", nTried)
	}
	if marker < 0 || marker > maxBucketMarker {
		return nil, malformed("invalid new bucket count %d", marker)
	}

	t := newAddrTable(key, r, c)

	newIDs := make([]int, 0, nNew)
	for i := 0; i < nNew; i++ {
		rec, err := d.bytes(serializedRecordLen)
		if err != nil {
			return nil, err
		}
		ka := parseRecord(rec)
		if _, ok := t.index[ipKey(ka.na.IP)]; ok {
			return nil, malformed("duplicate address %s", ka.na)
		}
		id, _ := t.insertEntry(ka)
		newIDs = append(newIDs, id)
	}
	t.nNew = nNew

	var dropped int
	for i := 0; i < nTried; i++ {
		rec, err := d.bytes(serializedRecordLen)
		if err != nil {
			return nil, err
		}
		ka := parseRecord(rec)
		if _, ok := t.index[ipKey(ka.na.IP)]; ok {
			return nil, malformed("duplicate address %s", ka.na)
		}
		bucket := ka.triedBucket(&t.key)
		if len(t.triedBuckets[bucket]) >= triedBucketSize {
			dropped++
			continue
		}
		id, e := t.insertEntry(ka)
		e.tried = true
		t.triedBuckets[bucket] = append(t.triedBuckets[bucket], id)
		t.nTried++
	}
	if dropped > 0 {
		log.Warnf("Dropped %d tried addresses from full buckets", dropped)
	}

	// The bucket listing is only used as is when the layout matches.
	compatible := marker == newBucketCount
	for b := 0; b < marker; b++ {
		count, err := d.int32()
		if err != nil {
			return nil, err
		}
		if count < 0 || count > maxNewEntries ||
			(compatible && count > newBucketSize) {

			return nil, malformed("invalid size %d for new bucket %d",
				count, b)
		}
		for j := 0; j < count; j++ {
			ordinal, err := d.int32()
			if err != nil {
				return nil, err
			}
			if ordinal < 0 || ordinal >= nNew {
				return nil, malformed("invalid index %d in new bucket %d",
					ordinal, b)
			}
			if !compatible {
				continue
			}
			id := newIDs[ordinal]
			if bucketIndexOf(t.newBuckets[b], id) >= 0 {
				return nil, malformed("duplicate index %d in new bucket "+
					"%d", ordinal, b)
			}
			e := t.entries[id]
			if e.refs >= newBucketsPerAddress {
				continue
			}
			e.refs++
			t.newBuckets[b] = append(t.newBuckets[b], id)
		}
	}
	if d.r.Len() != 0 {
		return nil, malformed("%d trailing bytes after address table",
			d.r.Len())
	}

	// Place new entries again when the bucket layout differs.
	if !compatible {
		for _, id := range newIDs {
			e, ok := t.entries[id]
			if !ok || e.refs > 0 {
				continue
			}
			bucket := e.ka.newBucket(&t.key, e.ka.srcIP)
			e.refs++
			if len(t.newBuckets[bucket]) >= newBucketSize {
				t.shrinkNew(bucket)
			}
			t.newBuckets[bucket] = append(t.newBuckets[bucket], id)
		}
	}

	// Entries no bucket references anymore are dropped.
	var orphans int
	for _, id := range newIDs {
		if e, ok := t.entries[id]; ok && e.refs == 0 {
			t.deleteEntry(id)
			orphans++
		}
	}
	if orphans > 0 {
		log.Debugf("Dropped %d unreferenced new addresses", orphans)
	}

	if err := t.checkInvariants(); err != nil {
		return nil, makeError(ErrMalformedStore, err.Error())
	}
	return t, nil
}
