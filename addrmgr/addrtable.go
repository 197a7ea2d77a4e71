// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"fmt"
	"math"
	"net"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

const (
	// triedEntriesInspectOnEvict is the number of entries of a full tried
	// bucket that are inspected when picking one to evict.
	triedEntriesInspectOnEvict = 4

	// newEntriesInspectOnEvict is the number of random entries of a full new
	// bucket that are inspected when no terrible entry can be dropped.
	newEntriesInspectOnEvict = 4

	// onlineWindow is how recently an address must have been seen for it to
	// be considered currently online when refreshing its timestamp.
	onlineWindow = 24 * time.Hour

	// onlineUpdateInterval and offlineUpdateInterval are the minimum
	// timestamp improvements required before the last seen time of an
	// online, respectively offline, address is refreshed.
	onlineUpdateInterval  = time.Hour
	offlineUpdateInterval = 24 * time.Hour

	// connectedUpdateInterval is the minimum time between last seen updates
	// triggered by an active connection.
	connectedUpdateInterval = 20 * time.Minute

	// getAddrMax is the maximum number of addresses returned from the
	// address manager when a collection of known addresses is requested.
	getAddrMax = 2500

	// getAddrMaxPct is the maximum percentage of all known addresses
	// returned when a collection of known addresses is requested.
	getAddrMaxPct = 23

	// selectionScale is the resolution of the random draws made when
	// selecting an address.
	selectionScale = 1 << 30
)

// Rand is the source of randomness used for bucket eviction, address
// selection and sampling.  Implementations need not be safe for concurrent
// access since the address manager only uses it with its lock held.
type Rand interface {
	// IntN returns a uniform random value in [0,n).  It panics if n <= 0.
	IntN(n int) int
}

// tableEntry is the address table's view of a known address.  The reference
// count, tried flag and random-order position are table bookkeeping and live
// here rather than on the known address itself.
type tableEntry struct {
	ka *KnownAddress

	// refs is the number of new buckets that reference the address.  It is
	// always zero for tried addresses.
	refs int

	// tried indicates whether the address currently exists in a tried
	// bucket.
	tried bool

	// randomPos is the position of the entry in the random-order index.
	randomPos int
}

// addrTable is the in-memory storage of the address manager: an arena of
// entries keyed by stable ids, an index from IP to id, the new and tried
// buckets holding ids, and a dense random-order index of every id.
//
// The table does no locking of its own.
type addrTable struct {
	key   [32]byte
	rand  Rand
	clock clock.Clock

	// nextID is the id assigned to the next created entry.  Ids are never
	// reused until the table is rebuilt.
	nextID int

	entries     map[int]*tableEntry
	index       map[[16]byte]int
	randomOrder []int

	newBuckets   [newBucketCount][]int
	triedBuckets [triedBucketCount][]int

	nNew   int
	nTried int
}

// newAddrTable returns an empty table using the provided bucket key.
func newAddrTable(key [32]byte, r Rand, c clock.Clock) *addrTable {
	return &addrTable{
		key:     key,
		rand:    r,
		clock:   c,
		entries: make(map[int]*tableEntry),
		index:   make(map[[16]byte]int),
	}
}

// bucketIndexOf returns the position of id within bucket or -1.
func bucketIndexOf(bucket []int, id int) int {
	for i, v := range bucket {
		if v == id {
			return i
		}
	}
	return -1
}

// removeFromBucket removes id from the bucket, reporting whether it was
// present.  Member order within a new bucket carries no meaning.
func removeFromBucket(bucket *[]int, id int) bool {
	b := *bucket
	i := bucketIndexOf(b, id)
	if i < 0 {
		return false
	}
	last := len(b) - 1
	b[i] = b[last]
	*bucket = b[:last]
	return true
}

// size returns the number of addresses in the table.
func (t *addrTable) size() int {
	return len(t.randomOrder)
}

// find returns the id and entry for the IP of the provided address.
func (t *addrTable) find(na *NetAddress) (int, *tableEntry) {
	id, ok := t.index[ipKey(na.IP)]
	if !ok {
		return -1, nil
	}
	e, ok := t.entries[id]
	if !ok {
		panic(fmt.Sprintf("address index references missing id %d", id))
	}
	return id, e
}

// create adds an entry for the address, reported by srcIP, to the arena, the
// index and the end of the random-order index.  It does not place the entry
// in any bucket.
func (t *addrTable) create(na *NetAddress, srcIP net.IP) (int, *tableEntry) {
	naCopy := na.Clone()
	naCopy.IP = na.IP.To16()
	ka := &KnownAddress{na: naCopy, srcIP: srcIP.To16()}
	return t.insertEntry(ka)
}

// insertEntry assigns the next id to the known address and records it in
// the arena, the index and the random-order index.
func (t *addrTable) insertEntry(ka *KnownAddress) (int, *tableEntry) {
	id := t.nextID
	t.nextID++
	e := &tableEntry{ka: ka, randomPos: len(t.randomOrder)}
	t.entries[id] = e
	t.index[ipKey(ka.na.IP)] = id
	t.randomOrder = append(t.randomOrder, id)
	return id, e
}

// swapRandom swaps two positions of the random-order index and updates the
// cached positions of both entries.
func (t *addrTable) swapRandom(pos1, pos2 int) {
	if pos1 == pos2 {
		return
	}
	id1, id2 := t.randomOrder[pos1], t.randomOrder[pos2]
	t.entries[id1].randomPos = pos2
	t.entries[id2].randomPos = pos1
	t.randomOrder[pos1] = id2
	t.randomOrder[pos2] = id1
}

// deleteEntry permanently removes a new entry that is no longer referenced
// by any bucket.
func (t *addrTable) deleteEntry(id int) {
	e := t.entries[id]
	if e.tried || e.refs != 0 {
		panic(fmt.Sprintf("deleting referenced entry %d (refs %d, tried %v)",
			id, e.refs, e.tried))
	}
	last := len(t.randomOrder) - 1
	t.swapRandom(e.randomPos, last)
	t.randomOrder = t.randomOrder[:last]
	delete(t.index, ipKey(e.ka.na.IP))
	delete(t.entries, id)
	t.nNew--
}

// dropNewRef removes id from the given new bucket and deletes the entry once
// no new bucket references it anymore.
func (t *addrTable) dropNewRef(bucket, id int) {
	if !removeFromBucket(&t.newBuckets[bucket], id) {
		panic(fmt.Sprintf("id %d missing from new bucket %d", id, bucket))
	}
	e := t.entries[id]
	e.refs--
	if e.refs == 0 {
		log.Tracef("Removing %s from the address table", e.ka.na)
		t.deleteEntry(id)
	}
}

// selectTried returns the position within the tried bucket of the entry to
// evict.  It inspects a few entries, partially shuffling the bucket in place
// as it goes, and picks the one whose last success is the oldest.
func (t *addrTable) selectTried(bucket int) int {
	tried := t.triedBuckets[bucket]
	oldestPos := -1
	var oldest time.Time
	for i := 0; i < triedEntriesInspectOnEvict && i < len(tried); i++ {
		pos := t.rand.IntN(len(tried)-i) + i
		tried[i], tried[pos] = tried[pos], tried[i]
		lastSuccess := t.entries[tried[i]].ka.lastSuccess
		if oldestPos == -1 || lastSuccess.Before(oldest) {
			oldest = lastSuccess
			oldestPos = i
		}
	}
	return oldestPos
}

// shrinkNew makes room in a full new bucket.  When an entry of the bucket is
// terrible, one reference to it is dropped.  Otherwise the oldest of a few
// randomly sampled entries loses its reference instead.  Entries left
// without references are deleted.
func (t *addrTable) shrinkNew(bucket int) {
	now := t.clock.Now()
	members := t.newBuckets[bucket]
	for _, id := range members {
		if t.entries[id].ka.IsTerrible(now) {
			log.Tracef("Expiring terrible address %s from new bucket %d",
				t.entries[id].ka.na, bucket)
			t.dropNewRef(bucket, id)
			return
		}
	}

	oldestID := -1
	var oldest time.Time
	for i := 0; i < newEntriesInspectOnEvict; i++ {
		id := members[t.rand.IntN(len(members))]
		seen := t.entries[id].ka.na.Timestamp
		if oldestID == -1 || seen.Before(oldest) {
			oldestID, oldest = id, seen
		}
	}
	log.Tracef("Expiring oldest address %s from new bucket %d",
		t.entries[oldestID].ka.na, bucket)
	t.dropNewRef(bucket, oldestID)
}

// makeTried moves an entry out of every new bucket and into its tried
// bucket.  When the tried bucket is full, an old tried entry is evicted back
// to the new buckets to make room: to its own new bucket when that has space
// and otherwise to origin, which the promoted entry just vacated.
//
// The entry must be referenced by the origin new bucket.
func (t *addrTable) makeTried(e *tableEntry, id, origin int) {
	if bucketIndexOf(t.newBuckets[origin], id) < 0 {
		panic(fmt.Sprintf("id %d missing from origin new bucket %d", id,
			origin))
	}

	for i := range t.newBuckets {
		if removeFromBucket(&t.newBuckets[i], id) {
			e.refs--
		}
	}
	t.nNew--
	if e.refs != 0 {
		panic(fmt.Sprintf("id %d still has %d new references", id, e.refs))
	}

	bucket := e.ka.triedBucket(&t.key)
	if len(t.triedBuckets[bucket]) < triedBucketSize {
		t.triedBuckets[bucket] = append(t.triedBuckets[bucket], id)
		t.nTried++
		e.tried = true
		return
	}

	// The tried bucket is full, so evict an entry back to the new table.
	pos := t.selectTried(bucket)
	victimID := t.triedBuckets[bucket][pos]
	victim := t.entries[victimID]
	victimBucket := victim.ka.newBucket(&t.key, victim.ka.srcIP)
	if len(t.newBuckets[victimBucket]) >= newBucketSize {
		victimBucket = origin
	}
	victim.tried = false
	victim.refs = 1
	t.newBuckets[victimBucket] = append(t.newBuckets[victimBucket], victimID)
	t.nNew++
	log.Tracef("Replacing %s with %s in tried bucket %d", victim.ka.na,
		e.ka.na, bucket)

	// The tried count is unchanged since the slot is reused.
	t.triedBuckets[bucket][pos] = id
	e.tried = true
}

// clampTime returns t with the penalty subtracted, never earlier than the
// unix epoch.  The zero time is returned unchanged.
func clampTime(t time.Time, penalty time.Duration) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.Add(-penalty)
	if t.Unix() <= 0 {
		return time.Time{}
	}
	return t
}

// add adds or refreshes an address reported by srcIP and returns whether a
// new entry was created.
func (t *addrTable) add(na *NetAddress, srcIP net.IP, penalty time.Duration) bool {
	if !na.IsRoutable() {
		return false
	}

	isNew := false
	id, e := t.find(na)
	if e != nil {
		known := e.ka.na
		seen := na.Timestamp

		// Periodically refresh the last seen time.
		interval := offlineUpdateInterval
		if t.clock.Now().Sub(seen) < onlineWindow {
			interval = onlineUpdateInterval
		}
		if !seen.IsZero() && (known.Timestamp.IsZero() ||
			known.Timestamp.Before(seen.Add(-interval-penalty))) {

			known.Timestamp = clampTime(seen, penalty)
		}
		known.AddService(na.Services)

		// Nothing else to do without newer information.
		if seen.IsZero() || (!known.Timestamp.IsZero() &&
			!seen.After(known.Timestamp)) {
			return false
		}
		if e.tried || e.refs == newBucketsPerAddress {
			return false
		}

		// The more references an entry has, the less likely it is to gain
		// another: 2^refs times harder each time.
		if factor := 1 << e.refs; factor > 1 && t.rand.IntN(factor) != 0 {
			return false
		}
	} else {
		id, e = t.create(na, srcIP)
		e.ka.na.Timestamp = clampTime(e.ka.na.Timestamp, penalty)
		t.nNew++
		isNew = true
	}

	bucket := e.ka.newBucket(&t.key, srcIP)
	if bucketIndexOf(t.newBuckets[bucket], id) < 0 {
		e.refs++
		if len(t.newBuckets[bucket]) >= newBucketSize {
			t.shrinkNew(bucket)
		}
		t.newBuckets[bucket] = append(t.newBuckets[bucket], id)
	}
	return isNew
}

// lookupExact returns the entry for the address only when it refers to the
// exact same IP and port.
func (t *addrTable) lookupExact(na *NetAddress) (int, *tableEntry) {
	id, e := t.find(na)
	if e == nil || !e.ka.na.sameEndpoint(na) {
		return -1, nil
	}
	return id, e
}

// good marks the address as reachable at the provided time and promotes it
// to a tried bucket.
func (t *addrTable) good(na *NetAddress, when time.Time) {
	id, e := t.lookupExact(na)
	if e == nil {
		return
	}

	ka := e.ka
	ka.lastSuccess = when
	ka.lastAttempt = when
	ka.na.Timestamp = when
	ka.attempts = 0

	if e.tried {
		return
	}

	// Find a new bucket the entry is currently in, starting the scan at a
	// random bucket.
	origin := -1
	start := t.rand.IntN(newBucketCount)
	for n := 0; n < newBucketCount; n++ {
		bucket := (n + start) % newBucketCount
		if bucketIndexOf(t.newBuckets[bucket], id) >= 0 {
			origin = bucket
			break
		}
	}
	if origin == -1 {
		log.Warnf("Address %s is neither tried nor in any new bucket", ka.na)
		return
	}

	log.Debugf("Moving %s to tried", ka.na)
	t.makeTried(e, id, origin)
}

// attempt records a connection attempt to the address.
func (t *addrTable) attempt(na *NetAddress, when time.Time) {
	_, e := t.lookupExact(na)
	if e == nil {
		return
	}
	e.ka.lastAttempt = when
	e.ka.attempts++
}

// connected refreshes the last seen time of a currently connected address,
// at most once every connectedUpdateInterval.
func (t *addrTable) connected(na *NetAddress, when time.Time) {
	_, e := t.lookupExact(na)
	if e == nil {
		return
	}
	if when.Sub(e.ka.na.Timestamp) > connectedUpdateInterval {
		e.ka.na.Timestamp = when
	}
}

// selectAddress picks an address to connect to.  unknownBias in [0,100]
// weighs new addresses against tried ones.  Within the chosen table random
// entries are drawn until one is accepted with a probability proportional to
// its chance, which is scaled up after every rejection.
func (t *addrTable) selectAddress(unknownBias int) *KnownAddress {
	if t.size() == 0 {
		return nil
	}
	if unknownBias < 0 {
		unknownBias = 0
	} else if unknownBias > 100 {
		unknownBias = 100
	}

	var useTried bool
	switch {
	case t.nNew == 0:
		useTried = true
	case t.nTried == 0:
		useTried = false
	default:
		corTried := math.Sqrt(float64(t.nTried)) * float64(100-unknownBias)
		corNew := math.Sqrt(float64(t.nNew)) * float64(unknownBias)
		draw := float64(t.rand.IntN(selectionScale)) / selectionScale
		useTried = (corTried+corNew)*draw < corTried
	}

	now := t.clock.Now()
	factor := 1.0
	for {
		var bucket []int
		if useTried {
			bucket = t.triedBuckets[t.rand.IntN(triedBucketCount)]
		} else {
			bucket = t.newBuckets[t.rand.IntN(newBucketCount)]
		}
		if len(bucket) == 0 {
			continue
		}

		ka := t.entries[bucket[t.rand.IntN(len(bucket))]].ka
		draw := float64(t.rand.IntN(selectionScale))
		if draw < factor*ka.Chance(now)*selectionScale {
			log.Tracef("Selected %s (tried %v)", ka.na, useTried)
			return ka
		}
		factor *= 1.2
	}
}

// getAddr returns a uniformly random sample of the table sized to the
// smaller of getAddrMax and getAddrMaxPct percent of all addresses.  It
// partially shuffles the random-order index and takes its prefix.
func (t *addrTable) getAddr() []*NetAddress {
	total := len(t.randomOrder)
	n := getAddrMaxPct * total / 100
	if n > getAddrMax {
		n = getAddrMax
	}

	addrs := make([]*NetAddress, 0, n)
	for i := 0; i < n; i++ {
		t.swapRandom(i, t.rand.IntN(total-i)+i)
		addrs = append(addrs, t.entries[t.randomOrder[i]].ka.na.Clone())
	}
	return addrs
}

// checkInvariants verifies the consistency of every index of the table and
// returns a descriptive error for the first violation found.
func (t *addrTable) checkInvariants() error {
	if len(t.randomOrder) != t.nNew+t.nTried {
		return fmt.Errorf("random-order index has %d entries, want %d new "+
			"+ %d tried", len(t.randomOrder), t.nNew, t.nTried)
	}
	if len(t.entries) != len(t.randomOrder) {
		return fmt.Errorf("arena has %d entries, random-order index %d",
			len(t.entries), len(t.randomOrder))
	}
	if len(t.index) != len(t.entries) {
		return fmt.Errorf("address index has %d entries, arena %d",
			len(t.index), len(t.entries))
	}

	newRefs := make(map[int]int)
	triedSeen := make(map[int]bool)
	var nNew, nTried int
	for id, e := range t.entries {
		switch {
		case e.tried && e.refs != 0:
			return fmt.Errorf("tried id %d has %d new references", id, e.refs)
		case e.tried:
			nTried++
		case e.refs < 1 || e.refs > newBucketsPerAddress:
			return fmt.Errorf("new id %d has %d references", id, e.refs)
		default:
			nNew++
		}
		if got, ok := t.index[ipKey(e.ka.na.IP)]; !ok || got != id {
			return fmt.Errorf("address index maps %s to %d, want %d",
				e.ka.na, got, id)
		}
		if e.randomPos < 0 || e.randomPos >= len(t.randomOrder) ||
			t.randomOrder[e.randomPos] != id {

			return fmt.Errorf("id %d has stale random position %d", id,
				e.randomPos)
		}
	}
	if nNew != t.nNew || nTried != t.nTried {
		return fmt.Errorf("counted %d new and %d tried, table claims %d "+
			"and %d", nNew, nTried, t.nNew, t.nTried)
	}

	for b, bucket := range t.triedBuckets {
		if len(bucket) > triedBucketSize {
			return fmt.Errorf("tried bucket %d holds %d entries", b,
				len(bucket))
		}
		for _, id := range bucket {
			e, ok := t.entries[id]
			if !ok || !e.tried || triedSeen[id] {
				return fmt.Errorf("tried bucket %d has bad member %d", b, id)
			}
			triedSeen[id] = true
		}
	}
	if len(triedSeen) != t.nTried {
		return fmt.Errorf("tried buckets hold %d entries, want %d",
			len(triedSeen), t.nTried)
	}

	for b, bucket := range t.newBuckets {
		if len(bucket) > newBucketSize {
			return fmt.Errorf("new bucket %d holds %d entries", b, len(bucket))
		}
		seen := make(map[int]bool, len(bucket))
		for _, id := range bucket {
			e, ok := t.entries[id]
			if !ok || e.tried || seen[id] {
				return fmt.Errorf("new bucket %d has bad member %d", b, id)
			}
			seen[id] = true
			newRefs[id]++
		}
	}
	for id, e := range t.entries {
		if !e.tried && newRefs[id] != e.refs {
			return fmt.Errorf("id %d is in %d new buckets, refs %d", id,
				newRefs[id], e.refs)
		}
	}

	return nil
}
