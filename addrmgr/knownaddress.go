// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"math"
	"net"
	"time"
)

const (
	// recentAttemptGrace is how long after an attempt an address is never
	// considered terrible.
	recentAttemptGrace = time.Minute

	// maxFutureSkew is how far in the future a last seen timestamp may be
	// before the address is considered terrible.
	maxFutureSkew = 10 * time.Minute

	// horizon is how long an address may go unseen before it is considered
	// terrible.
	horizon = 30 * 24 * time.Hour

	// numRetries is the number of attempts without a single success before
	// an address is considered terrible.
	numRetries = 3

	// maxFailures is the number of successive failures tolerated ...
	maxFailures = 10

	// ... within minFailDays of the last success.
	minFailDays = 7 * 24 * time.Hour

	// recentAttemptPenaltyWindow is the window after an attempt during which
	// the selection chance of an address is cut to one percent.
	recentAttemptPenaltyWindow = 10 * time.Minute
)

// KnownAddress tracks information about a known network address that is used
// to determine how viable an address is.  Its fields are only modified by the
// address table while the address manager lock is held.
type KnownAddress struct {
	// na is the primary network address that the known address represents.
	na *NetAddress

	// srcIP is the IP of the peer that first reported the address.
	srcIP net.IP

	// The following fields track the attempts made to connect to the primary
	// network address.  Initially connecting to a peer counts as an attempt,
	// and a successful version message exchange resets the number of attempts
	// to zero.
	attempts    int
	lastAttempt time.Time
	lastSuccess time.Time
}

// NetAddress returns a copy of the network address the known address
// represents.
func (ka *KnownAddress) NetAddress() *NetAddress {
	return ka.na.Clone()
}

// Source returns the IP of the peer that reported the address.
func (ka *KnownAddress) Source() net.IP {
	return ka.srcIP
}

// LastAttempt returns the last time the known address was attempted.
func (ka *KnownAddress) LastAttempt() time.Time {
	return ka.lastAttempt
}

// LastSuccess returns the last time a connection to the address succeeded.
func (ka *KnownAddress) LastSuccess() time.Time {
	return ka.lastSuccess
}

// Attempts returns the number of connection attempts since the last success.
func (ka *KnownAddress) Attempts() int {
	return ka.attempts
}

// IsTerrible returns true if the address has not been attempted in the last
// minute and meets one of the following criteria:
// 1) It claims to be from the future
// 2) It has never been seen or not in over a month
// 3) It has failed at least three times and never succeeded
// 4) It has failed ten times in a row and not succeeded in the last week
// An address that meets any of these criteria is assumed to be worthless.
func (ka *KnownAddress) IsTerrible(now time.Time) bool {
	seen := ka.na.Timestamp
	switch {
	// Never remove things tried in the last minute.
	case !ka.lastAttempt.IsZero() &&
		!ka.lastAttempt.Before(now.Add(-recentAttemptGrace)):
		return false

	case seen.After(now.Add(maxFutureSkew)):
		return true

	case seen.IsZero() || now.Sub(seen) > horizon:
		return true

	case ka.lastSuccess.IsZero() && ka.attempts >= numRetries:
		return true

	case now.Sub(ka.lastSuccess) > minFailDays && ka.attempts >= maxFailures:
		return true
	}

	return false
}

// Chance returns the relative selection weight of the address in (0, 1].
// It depends upon how recently the address has been seen, how recently it
// was last attempted, and how often attempts to connect to it have failed.
func (ka *KnownAddress) Chance(now time.Time) float64 {
	sinceLastSeen := math.Max(now.Sub(ka.na.Timestamp).Seconds(), 0)
	sinceLastTry := now.Sub(ka.lastAttempt)

	c := 600.0 / (600.0 + sinceLastSeen)

	// Deprioritise very recent attempts.
	if sinceLastTry < recentAttemptPenaltyWindow {
		c *= 0.01
	}

	// Each failed attempt costs a third of the remaining chance.
	c /= math.Pow(1.5, float64(ka.attempts))

	return math.Max(c, math.SmallestNonzeroFloat64)
}
