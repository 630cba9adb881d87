// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletstore persists the wallet ledger to disk.  The ledger is
// serialized as a single versioned blob and written through a small keyed
// backend, with bbolt and sqlite implementations.  Upgrades between blob
// versions happen transparently on open.
package walletstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cartoon-face/conceal-core/chainindex"
	"github.com/cartoon-face/conceal-core/serial"
	"github.com/cartoon-face/conceal-core/wtxmgr"
)

// Backend names accepted by Create and Open.
const (
	BackendBolt   = "bbolt"
	BackendSQLite = "sqlite"
)

// Backend keys for the persisted blobs.
var (
	// ledgerKey addresses the serialized ledger blob.
	ledgerKey = []byte("ledger")

	// depositIndexKey and tokenIndexKey address the two cumulative
	// height indexes persisted alongside the ledger.
	depositIndexKey = []byte("depositindex")
	tokenIndexKey   = []byte("tokenindex")
)

// Backend is a keyed blob store.  Get returns (nil, nil) for a missing key.
type Backend interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Close() error
}

// Store persists one wallet ledger.
type Store struct {
	backend Backend
}

// Create initializes a new store file holding an empty ledger.  It fails
// with ErrStoreExists if the file is already present.
func Create(backend, path string, cache *wtxmgr.Cache) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrStoreExists
	}

	s, err := openBackend(backend, path)
	if err != nil {
		return nil, err
	}
	if err := s.SaveLedger(cache); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Open opens an existing store file and applies any pending blob upgrades.
// It fails with ErrStoreDoesNotExist if the file is missing.
func Open(backend, path string, cache *wtxmgr.Cache) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrStoreDoesNotExist
	}

	s, err := openBackend(backend, path)
	if err != nil {
		return nil, err
	}
	if err := s.DoUpgrades(cache); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func openBackend(backend, path string) (*Store, error) {
	var (
		b   Backend
		err error
	)
	switch backend {
	case BackendBolt:
		b, err = openBoltBackend(path)
	case BackendSQLite:
		b, err = openSQLiteBackend(path)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	if err != nil {
		return nil, err
	}

	return &Store{backend: b}, nil
}

// saveBlob serializes one entity and writes it under key.
func (s *Store) saveBlob(key []byte,
	serialize func(serial.Serializer) error) error {

	var buf bytes.Buffer
	if err := serialize(serial.NewWriter(&buf)); err != nil {
		return err
	}
	return s.backend.Put(key, buf.Bytes())
}

// loadBlob reads the blob under key into an entity.  It reports whether a
// blob was present and fails with ErrCorruptLedger when one is present but
// cannot be decoded.
func (s *Store) loadBlob(key []byte,
	deserialize func(serial.Serializer) error) (bool, error) {

	blob, err := s.backend.Get(key)
	if err != nil {
		return false, err
	}
	if blob == nil {
		return false, nil
	}

	r := serial.NewReader(bytes.NewReader(blob))
	if err := deserialize(r); err != nil {
		return true, fmt.Errorf("%w: %v", ErrCorruptLedger, err)
	}
	return true, nil
}

// SaveLedger serializes the ledger and writes it as a single blob.
func (s *Store) SaveLedger(cache *wtxmgr.Cache) error {
	return s.saveBlob(ledgerKey, cache.Serialize)
}

// LoadLedger reads the stored blob into the ledger.  It fails with
// ErrNoLedger when the store holds no blob and ErrCorruptLedger when the
// blob cannot be decoded.
func (s *Store) LoadLedger(cache *wtxmgr.Cache) error {
	found, err := s.loadBlob(ledgerKey, cache.Serialize)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoLedger
	}
	return nil
}

// SaveChainIndexes persists the deposit and token cumulative height indexes
// under their own keys next to the ledger blob.
func (s *Store) SaveChainIndexes(deposits *chainindex.DepositIndex,
	tokens *chainindex.TokenIndex) error {

	if err := s.saveBlob(depositIndexKey, deposits.Serialize); err != nil {
		return err
	}
	return s.saveBlob(tokenIndexKey, tokens.Serialize)
}

// LoadChainIndexes restores the deposit and token cumulative height indexes.
// A store that never saved them leaves both untouched, so a fresh wallet
// starts from empty indexes and rebuilds them during synchronization.
func (s *Store) LoadChainIndexes(deposits *chainindex.DepositIndex,
	tokens *chainindex.TokenIndex) error {

	if _, err := s.loadBlob(depositIndexKey, deposits.Serialize); err != nil {
		return err
	}
	_, err := s.loadBlob(tokenIndexKey, tokens.Serialize)
	return err
}

// DoUpgrades loads the ledger and rewrites it when the stored blob predates
// the current serialization version.
func (s *Store) DoUpgrades(cache *wtxmgr.Cache) error {
	blob, err := s.backend.Get(ledgerKey)
	if err != nil {
		return err
	}
	if blob == nil {
		return ErrNoLedger
	}
	if len(blob) < 4 {
		return ErrCorruptLedger
	}

	r := serial.NewReader(bytes.NewReader(blob))
	if err := cache.Serialize(r); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptLedger, err)
	}

	version := binary.LittleEndian.Uint32(blob[:4])
	if version < wtxmgr.CacheVersion {
		log.Infof("Upgrading ledger blob from version %d to %d",
			version, wtxmgr.CacheVersion)
		return s.SaveLedger(cache)
	}

	return nil
}

// ResetLedger replaces the stored blob with an empty ledger at the current
// version and drops the persisted height indexes, so the wallet rebuilds
// everything during resynchronization.
func (s *Store) ResetLedger() error {
	if err := s.backend.Delete(depositIndexKey); err != nil {
		return err
	}
	if err := s.backend.Delete(tokenIndexKey); err != nil {
		return err
	}

	empty := wtxmgr.NewCache(0, nil)
	return s.SaveLedger(empty)
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
