// Copyright (c) 2026 The xpmd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/wire"
)

// PeersFilename is the name of the file the address table is stored in.
const PeersFilename = "peers.dat"

// Store persists the address table of a single network to a file.  Writes
// go to a temporary file in the same directory which then replaces the
// previous file, so a failed write never damages the stored table.
type Store struct {
	path string
	net  wire.CurrencyNet
}

// NewStore returns a store for the given network that keeps its file in
// dataDir.
func NewStore(dataDir string, net wire.CurrencyNet) *Store {
	return &Store{
		path: filepath.Join(dataDir, PeersFilename),
		net:  net,
	}
}

// Path returns the path of the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Net returns the network the store holds addresses for.
func (s *Store) Net() wire.CurrencyNet {
	return s.net
}

// read returns the serialized table held by the store after verifying its
// trailing digest.
func (s *Store) read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		str := fmt.Sprintf("address store %s does not exist", s.path)
		return nil, makeError(ErrStoreNotExist, str)
	}
	if err != nil {
		return nil, err
	}

	if len(data) < chainhash.HashSize {
		str := fmt.Sprintf("address store %s is too short (%d bytes)",
			s.path, len(data))
		return nil, makeError(ErrMalformedStore, str)
	}
	payload := data[:len(data)-chainhash.HashSize]
	digest := data[len(data)-chainhash.HashSize:]
	if !bytes.Equal(chainhash.HashB(payload), digest) {
		str := fmt.Sprintf("address store %s checksum mismatch", s.path)
		return nil, makeError(ErrChecksumMismatch, str)
	}
	return payload, nil
}

// write appends the digest to the serialized table and atomically replaces
// the stored file with it.
func (s *Store) write(payload []byte) error {
	data := make([]byte, 0, len(payload)+chainhash.HashSize)
	data = append(data, payload...)
	data = append(data, chainhash.HashB(payload)...)

	tmpPath := fmt.Sprintf("%s.%04x", s.path, rand.Uint32N(1<<16))
	if err := writeSynced(tmpPath, data); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// writeSynced writes data to a newly created file and flushes it to disk
// before closing it.
func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
