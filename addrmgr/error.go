// Copyright (c) 2024 The Decred developers
// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrUnknownAddressType indicates that the network address type could not
	// be determined from a host string.
	ErrUnknownAddressType = ErrorKind("ErrUnknownAddressType")

	// ErrStoreNotExist indicates that no persisted peers file exists yet.
	ErrStoreNotExist = ErrorKind("ErrStoreNotExist")

	// ErrChecksumMismatch indicates the digest stored at the end of a peers
	// file does not match the digest of its contents.
	ErrChecksumMismatch = ErrorKind("ErrChecksumMismatch")

	// ErrWrongNetwork indicates a peers file was written by a node running on
	// a different network.
	ErrWrongNetwork = ErrorKind("ErrWrongNetwork")

	// ErrUnsupportedVersion indicates a peers file uses a serialization
	// version this package does not understand.
	ErrUnsupportedVersion = ErrorKind("ErrUnsupportedVersion")

	// ErrMalformedStore indicates a peers file passed its integrity check but
	// its contents could not be decoded into a consistent address table.
	ErrMalformedStore = ErrorKind("ErrMalformedStore")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an address manager error.  It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason
// for the error by checking the underlying error.
type Error struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// makeError creates an Error given a set of arguments.
func makeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
