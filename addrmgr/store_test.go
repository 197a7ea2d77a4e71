// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// otherNet is a network magic different from testNet.
const otherNet = wire.CurrencyNet(0xfdfbfefb)

// populateTable adds n routable addresses from a spread of sources and
// promotes every tenth one to tried.
func populateTable(t *testing.T, tbl *addrTable, n int) {
	t.Helper()
	for i := 0; tbl.size() < n; i++ {
		ip := net.IPv4(byte(20+i%150), byte(i/150), byte(i), 1)
		addr := testAddr(ip.String(), uint16(9000+i%7), testNow.Add(
			-time.Duration(i)*time.Minute))
		src := net.IPv4(30, byte(i%64), 1, 1)
		if !tbl.add(addr, src, 0) {
			continue
		}
		if i%10 == 0 {
			tbl.attempt(addr, testNow)
			tbl.good(addr, testNow.Add(time.Duration(i)*time.Second))
		}
		if i%7 == 0 {
			tbl.attempt(addr, testNow)
		}
	}
	requireInvariants(t, tbl)
}

// tableSnapshot is a comparable view of a table that does not depend on
// entry ids.
type tableSnapshot struct {
	key     [32]byte
	nNew    int
	nTried  int
	entries map[string]string
	newBkts [newBucketCount][]string
	tried   [triedBucketCount][]string
}

func snapshot(tbl *addrTable) *tableSnapshot {
	s := &tableSnapshot{
		key:     tbl.key,
		nNew:    tbl.nNew,
		nTried:  tbl.nTried,
		entries: make(map[string]string, len(tbl.entries)),
	}
	for _, e := range tbl.entries {
		ka := e.ka
		s.entries[ka.na.Key()] = fmt.Sprintf("%v %d %d %v %d %d %v",
			ka.srcIP, ka.na.Services, unixOrZero(ka.na.Timestamp),
			e.tried, unixOrZero(ka.lastSuccess), ka.attempts, e.refs)
	}
	keys := func(ids []int) []string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, tbl.entries[id].ka.na.Key())
		}
		sort.Strings(out)
		return out
	}
	for i, bucket := range tbl.newBuckets {
		s.newBkts[i] = keys(bucket)
	}
	for i, bucket := range tbl.triedBuckets {
		s.tried[i] = keys(bucket)
	}
	return s
}

// roundTrip writes the table to a store in a fresh directory and reads it
// back.
func roundTrip(t *testing.T, tbl *addrTable) (*addrTable, *Store) {
	t.Helper()
	store := NewStore(t.TempDir(), testNet)
	require.NoError(t, store.write(encodeTable(tbl, testNet)))
	payload, err := store.read()
	require.NoError(t, err)
	got, err := decodeTable(payload, testNet, newTestRand(99),
		clock.NewTestClock(testNow))
	require.NoError(t, err)
	return got, store
}

// TestStoreRoundTrip ensures reading a written table yields the same
// membership, bucket contents and key.
func TestStoreRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 1500} {
		t.Run(fmt.Sprintf("%d entries", n), func(t *testing.T) {
			tbl, _ := newTestTable(uint64(n))
			populateTable(t, tbl, n)
			if n > 1 {
				require.NotZero(t, tbl.nTried)
				require.NotZero(t, tbl.nNew)
			}

			got, _ := roundTrip(t, tbl)
			requireInvariants(t, got)
			require.Equal(t, snapshot(tbl), snapshot(got))

			// The last attempt time is not persisted.
			for _, e := range got.entries {
				require.True(t, e.ka.LastAttempt().IsZero())
			}
		})
	}
}

// TestStoreCorruption ensures flipping any single byte of a stored table is
// detected by the digest.
func TestStoreCorruption(t *testing.T) {
	tbl, _ := newTestTable(1)
	populateTable(t, tbl, 3)
	_, store := roundTrip(t, tbl)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	for i := range data {
		corrupt := append([]byte(nil), data...)
		corrupt[i] ^= 0x55
		require.NoError(t, os.WriteFile(store.Path(), corrupt, 0600))
		_, err := store.read()
		require.ErrorIs(t, err, ErrChecksumMismatch, "offset %d", i)
	}
}

// TestStoreErrors ensures unusable stores are rejected with the expected
// error kinds.
func TestStoreErrors(t *testing.T) {
	tbl, _ := newTestTable(2)
	populateTable(t, tbl, 10)
	payload := encodeTable(tbl, testNet)

	versioned := append([]byte(nil), payload...)
	versioned[4] = 1

	duplicate := append([]byte(nil), payload...)
	recStart := 4 + 1 + 32 + 12
	copy(duplicate[recStart+serializedRecordLen:],
		duplicate[recStart:recStart+16])

	badIndex := append([]byte(nil), payload...)
	listing := recStart + tbl.size()*serializedRecordLen
	for b := 0; b < newBucketCount; b++ {
		count := int(badIndex[listing])
		if count > 0 {
			badIndex[listing+4] = 0xff
			badIndex[listing+5] = 0xff
			break
		}
		listing += 4
	}

	tests := []struct {
		name    string
		payload []byte
		net     wire.CurrencyNet
		want    error
	}{{
		name:    "wrong network",
		payload: payload,
		net:     otherNet,
		want:    ErrWrongNetwork,
	}, {
		name:    "unsupported version",
		payload: versioned,
		net:     testNet,
		want:    ErrUnsupportedVersion,
	}, {
		name:    "truncated",
		payload: payload[:len(payload)-3],
		net:     testNet,
		want:    ErrMalformedStore,
	}, {
		name:    "trailing bytes",
		payload: append(append([]byte(nil), payload...), 0),
		net:     testNet,
		want:    ErrMalformedStore,
	}, {
		name:    "duplicate address",
		payload: duplicate,
		net:     testNet,
		want:    ErrMalformedStore,
	}, {
		name:    "bucket index out of range",
		payload: badIndex,
		net:     testNet,
		want:    ErrMalformedStore,
	}, {
		name:    "negative count",
		payload: append(append([]byte(nil), payload[:37]...), 0xff, 0xff, 0xff, 0xff),
		net:     testNet,
		want:    ErrMalformedStore,
	}}

	for _, test := range tests {
		store := NewStore(t.TempDir(), test.net)
		require.NoError(t, store.write(test.payload), test.name)

		amgr := New(&Config{Store: store, Rand: newTestRand(1)})
		err := amgr.Load()
		require.ErrorIs(t, err, test.want, test.name)
		var kind ErrorKind
		require.True(t, errors.As(err, &kind), test.name)
		require.Zero(t, amgr.NumAddresses(), test.name)
	}

	_, err := NewStore(t.TempDir(), testNet).read()
	require.ErrorIs(t, err, ErrStoreNotExist)
}

// TestStoreOldBucketLayout ensures a table written with a different number
// of new buckets is loaded by placing its new entries again.
func TestStoreOldBucketLayout(t *testing.T) {
	tbl, _ := newTestTable(3)
	populateTable(t, tbl, 200)
	payload := encodeTable(tbl, testNet)

	// Rewrite the marker and listing as a single bucket holding every new
	// entry.
	recEnd := 4 + 1 + 32 + 12 + tbl.size()*serializedRecordLen
	old := append([]byte(nil), payload[:recEnd]...)
	copy(old[4+1+32+8:], []byte{1, 0, 0, 0})
	old = putInt32(old, tbl.nNew)
	for i := 0; i < tbl.nNew; i++ {
		old = putInt32(old, i)
	}

	got, err := decodeTable(old, testNet, newTestRand(3),
		clock.NewTestClock(testNow))
	require.NoError(t, err)
	requireInvariants(t, got)
	require.Equal(t, tbl.size(), got.size())
	require.Equal(t, tbl.nTried, got.nTried)

	// Every new entry sits in its home bucket.
	for id, e := range got.entries {
		if e.tried {
			continue
		}
		home := e.ka.newBucket(&got.key, e.ka.srcIP)
		require.GreaterOrEqual(t, bucketIndexOf(got.newBuckets[home], id), 0)
	}
}

// TestStoreTriedOverflow ensures tried entries that no longer fit their
// bucket are dropped on load.
func TestStoreTriedOverflow(t *testing.T) {
	tbl, _ := newTestTable(4)

	// Build a table whose tried entries all claim one bucket by placing them
	// directly, bypassing promotion.
	var target = -1
	for i := 0; tbl.nTried < triedBucketSize+5; i++ {
		addr := testAddr(fmt.Sprintf("12.1.%d.%d", i/250, 1+i%250),
			uint16(9000+i%1000), testNow)
		ka := &KnownAddress{na: addr, srcIP: net.ParseIP("5.6.7.8").To16()}
		b := ka.triedBucket(&tbl.key)
		if target == -1 {
			target = b
		}
		if b != target {
			continue
		}
		_, e := tbl.insertEntry(ka)
		e.tried = true
		tbl.nTried++
	}

	got, err := decodeTable(encodeTable(tbl, testNet), testNet,
		newTestRand(4), clock.NewTestClock(testNow))
	require.NoError(t, err)
	require.Equal(t, triedBucketSize, got.nTried)
	require.Equal(t, triedBucketSize, got.size())
	requireInvariants(t, got)
}

// TestStoreWriteLeavesNoTempFiles ensures successful and failed writes do
// not leave temporary files behind.
func TestStoreWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testNet)
	tbl, _ := newTestTable(5)
	populateTable(t, tbl, 5)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.write(encodeTable(tbl, testNet)))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, PeersFilename, entries[0].Name())

	// Writing into a missing directory fails without side effects.
	missing := NewStore(filepath.Join(dir, "missing"), testNet)
	require.Error(t, missing.write([]byte{1, 2, 3}))
	_, err = os.Stat(filepath.Join(dir, "missing"))
	require.True(t, os.IsNotExist(err))

	// The stored digest covers everything before it.
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	body := data[:len(data)-chainhash.HashSize]
	require.Equal(t, chainhash.HashB(body), data[len(body):])
}
