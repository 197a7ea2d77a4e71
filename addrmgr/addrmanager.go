// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// defaultDumpInterval is the default interval between saves of the
	// address table to the persistent store.
	defaultDumpInterval = 15 * time.Minute

	// needAddressThreshold is the number of addresses under which the
	// address manager will claim to need more addresses.
	needAddressThreshold = 1000
)

// Config houses the optional dependencies of an address manager.  The zero
// value is valid and yields an address manager that never persists its
// addresses and uses the system clock and a cryptographically secure source
// of randomness.
type Config struct {
	// Store is where the address table is loaded from on start and saved to
	// periodically and on stop.
	Store *Store

	// Rand is the source of randomness for eviction and selection.  It is
	// only used with the address manager lock held.
	Rand Rand

	// Clock provides the current time.
	Clock clock.Clock

	// DumpInterval is the interval between saves of the address table.
	DumpInterval time.Duration

	// DumpTicker overrides the ticker created from DumpInterval.
	DumpTicker ticker.Ticker
}

// cryptoRand implements Rand with the package level functions of the dcrd
// crypto/rand package.
type cryptoRand struct{}

func (cryptoRand) IntN(n int) int {
	return rand.IntN(n)
}

// Stats summarizes the contents of the address table.
type Stats struct {
	// NumNew is the number of addresses in new buckets.
	NumNew int

	// NumTried is the number of addresses in tried buckets.
	NumTried int

	// NewBucketsUsed is the number of non-empty new buckets.
	NewBucketsUsed int

	// TriedBucketsUsed is the number of non-empty tried buckets.
	TriedBucketsUsed int

	// NewRefs is the total number of new bucket references.
	NewRefs int
}

// AddrManager provides a concurrency safe address manager for caching
// potential peers on the network.
type AddrManager struct {
	// mtx guards the table.  It is never held across file I/O.
	mtx   sync.Mutex
	table *addrTable

	store        *Store
	rand         Rand
	clock        clock.Clock
	dumpInterval time.Duration
	dumpTicker   ticker.Ticker

	// started signals whether the address manager has been started.  Its
	// value is 1 or more if started.
	started int32

	// shutdown signals whether a shutdown of the address manager has been
	// initiated.  Its value is 1 or more if a shutdown is done or in
	// progress.
	shutdown int32

	// The following fields are used for lifecycle management of the
	// address manager.
	wg   sync.WaitGroup
	quit chan struct{}
}

// newKey returns a fresh random bucket key.
func newKey() [32]byte {
	var key [32]byte
	rand.Read(key[:])
	return key
}

// New returns a new address manager with an empty table and a freshly
// generated secret key.  Use Start to begin processing asynchronous address
// updates and to load any previously saved addresses.
func New(cfg *Config) *AddrManager {
	if cfg == nil {
		cfg = &Config{}
	}
	a := &AddrManager{
		store:        cfg.Store,
		rand:         cfg.Rand,
		clock:        cfg.Clock,
		dumpInterval: cfg.DumpInterval,
		dumpTicker:   cfg.DumpTicker,
		quit:         make(chan struct{}),
	}
	if a.rand == nil {
		a.rand = cryptoRand{}
	}
	if a.clock == nil {
		a.clock = clock.NewDefaultClock()
	}
	if a.dumpInterval <= 0 {
		a.dumpInterval = defaultDumpInterval
	}
	a.table = newAddrTable(newKey(), a.rand, a.clock)
	return a
}

// AddAddress adds a single address reported by src.  The timestamp of the
// address is moved back by timePenalty before it is stored.  It returns
// whether a previously unknown address was added.
//
// This function is safe for concurrent access.
func (a *AddrManager) AddAddress(addr, src *NetAddress, timePenalty time.Duration) bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	added := a.table.add(addr, src.IP, timePenalty)
	if added {
		log.Tracef("Added new address %s from %s", addr, src.IP)
	}
	return added
}

// AddAddresses adds multiple addresses reported by src.  It returns whether
// at least one previously unknown address was added.
//
// This function is safe for concurrent access.
func (a *AddrManager) AddAddresses(addrs []*NetAddress, src *NetAddress, timePenalty time.Duration) bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	var numAdded int
	for _, addr := range addrs {
		if a.table.add(addr, src.IP, timePenalty) {
			numAdded++
		}
	}
	if numAdded > 0 {
		log.Debugf("Added %d new addresses from %s: %d tried, %d new",
			numAdded, src.IP, a.table.nTried, a.table.nNew)
	}
	return numAdded > 0
}

// Good marks the given address as good, moving it to a tried bucket.  This
// should be called after a successful connection and version exchange.
// Unknown addresses and addresses known with a different port are ignored.
//
// This function is safe for concurrent access.
func (a *AddrManager) Good(addr *NetAddress, t time.Time) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.table.good(addr, t)
}

// Attempt increases the number of connection attempts of the given address
// and records t as the time of the last attempt.
//
// This function is safe for concurrent access.
func (a *AddrManager) Attempt(addr *NetAddress, t time.Time) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.table.attempt(addr, t)
}

// Connected marks the given address as currently connected as of t.  The
// last seen time is only updated when it is more than twenty minutes old.
//
// This function is safe for concurrent access.
func (a *AddrManager) Connected(addr *NetAddress, t time.Time) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.table.connected(addr, t)
}

// Select returns an address to attempt a connection to, or nil when no
// addresses are known.  unknownBias is clamped into [0,100] and sets how
// strongly new addresses are preferred over tried ones.
//
// This function is safe for concurrent access.
func (a *AddrManager) Select(unknownBias int) *NetAddress {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ka := a.table.selectAddress(unknownBias)
	if ka == nil {
		return nil
	}
	return ka.na.Clone()
}

// AddressCache returns a random sample of known addresses suitable for
// answering a request for addresses from a peer.
//
// This function is safe for concurrent access.
func (a *AddrManager) AddressCache() []*NetAddress {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.table.getAddr()
}

// NumAddresses returns the number of addresses known to the address manager.
//
// This function is safe for concurrent access.
func (a *AddrManager) NumAddresses() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.table.size()
}

// NeedMoreAddresses returns whether or not the address manager needs more
// addresses.
//
// This function is safe for concurrent access.
func (a *AddrManager) NeedMoreAddresses() bool {
	return a.NumAddresses() < needAddressThreshold
}

// Key returns the secret key used for bucket placement.
//
// This function is safe for concurrent access.
func (a *AddrManager) Key() [32]byte {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.table.key
}

// Stats returns a summary of the address table.
//
// This function is safe for concurrent access.
func (a *AddrManager) Stats() Stats {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	t := a.table
	stats := Stats{NumNew: t.nNew, NumTried: t.nTried}
	for _, bucket := range t.newBuckets {
		if len(bucket) > 0 {
			stats.NewBucketsUsed++
			stats.NewRefs += len(bucket)
		}
	}
	for _, bucket := range t.triedBuckets {
		if len(bucket) > 0 {
			stats.TriedBucketsUsed++
		}
	}
	return stats
}

// AddressInfo is a point in time view of a known address.
type AddressInfo struct {
	Addr        *NetAddress
	Source      net.IP
	Attempts    int
	LastSuccess time.Time
	Tried       bool

	// Refs is the number of new buckets referencing the address.  It is
	// zero for tried addresses.
	Refs int
}

// Addresses returns a view of every known address sorted by network key.
//
// This function is safe for concurrent access.
func (a *AddrManager) Addresses() []AddressInfo {
	a.mtx.Lock()
	infos := make([]AddressInfo, 0, len(a.table.entries))
	for _, e := range a.table.entries {
		infos = append(infos, AddressInfo{
			Addr:        e.ka.na.Clone(),
			Source:      append(net.IP(nil), e.ka.srcIP...),
			Attempts:    e.ka.attempts,
			LastSuccess: e.ka.lastSuccess,
			Tried:       e.tried,
			Refs:        e.refs,
		})
	}
	a.mtx.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Addr.Key() < infos[j].Addr.Key()
	})
	return infos
}

// Save writes the address table to the configured store.  The table is
// encoded with the lock held and written after releasing it.  It is a no-op
// when no store is configured.
//
// This function is safe for concurrent access.
func (a *AddrManager) Save() error {
	if a.store == nil {
		return nil
	}

	start := a.clock.Now()
	a.mtx.Lock()
	payload := encodeTable(a.table, a.store.net)
	n := a.table.size()
	a.mtx.Unlock()

	if err := a.store.write(payload); err != nil {
		return err
	}
	log.Debugf("Flushed %d addresses to %s in %v", n, a.store.Path(),
		a.clock.Now().Sub(start))
	return nil
}

// Load replaces the address table with the one held by the configured store.
// The store is read and decoded without the lock held, and the current
// table is only replaced once the decoded table is known to be consistent.
// It is a no-op when no store is configured.
//
// This function is safe for concurrent access.
func (a *AddrManager) Load() error {
	if a.store == nil {
		return nil
	}

	payload, err := a.store.read()
	if err != nil {
		return err
	}
	table, err := decodeTable(payload, a.store.net, a.rand, a.clock)
	if err != nil {
		return err
	}

	a.mtx.Lock()
	a.table = table
	a.mtx.Unlock()
	return nil
}

// loadPeers loads the table on start up, keeping the empty table when the
// store is missing or unusable.
func (a *AddrManager) loadPeers() {
	if a.store == nil {
		return
	}

	start := a.clock.Now()
	err := a.Load()
	switch {
	case errors.Is(err, ErrStoreNotExist):
		log.Infof("Invalid or missing %s; recreating", a.store.Path())
		return

	case err != nil:
		log.Warnf("Invalid or missing %s; recreating: %v", a.store.Path(),
			err)
		return
	}

	log.Infof("Loaded %d addresses from %s in %v", a.NumAddresses(),
		a.store.Path(), a.clock.Now().Sub(start))
}

// savePeers saves the table, logging any failure.
func (a *AddrManager) savePeers() {
	if err := a.Save(); err != nil {
		log.Errorf("Failed to save addresses: %v", err)
	}
}

// addressHandler is the main handler for the address manager.  It must be
// run as a goroutine.
func (a *AddrManager) addressHandler(dumpTicker ticker.Ticker) {
	dumpTicker.Resume()
	defer dumpTicker.Stop()
out:
	for {
		select {
		case <-dumpTicker.Ticks():
			a.savePeers()

		case <-a.quit:
			break out
		}
	}
	a.savePeers()
	a.wg.Done()
	log.Trace("Address handler done")
}

// Start begins the core address handler which manages a pool of known
// addresses and interval based writes.  If the address manager is starting
// or has already been started, invoking this method has no effect.
//
// This function is safe for concurrent access.
func (a *AddrManager) Start() {
	// Return early if the address manager has already been started.
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Trace("Starting address manager")

	// Load peers we already know about from the store.
	a.loadPeers()

	dumpTicker := a.dumpTicker
	if dumpTicker == nil {
		dumpTicker = ticker.New(a.dumpInterval)
	}
	a.wg.Add(1)
	go a.addressHandler(dumpTicker)
}

// Stop gracefully shuts down the address manager by stopping the main
// handler, which saves the table a final time.
//
// This function is safe for concurrent access.
func (a *AddrManager) Stop() {
	// Return early if the address manager has already been stopped.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Warnf("Address manager is already in the process of shutting " +
			"down")
		return
	}

	log.Infof("Address manager shutting down")
	close(a.quit)
	a.wg.Wait()
}
