// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletstore

import (
	"time"

	"go.etcd.io/bbolt"
)

// ledgerBucket is the single top-level bucket holding store keys.
var ledgerBucket = []byte("walletstore")

// boltBackend stores blobs in a bbolt database file.
type boltBackend struct {
	db *bbolt.DB
}

func openBoltBackend(path string) (Backend, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ledgerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &boltBackend{db: db}, nil
}

func (b *boltBackend) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(ledgerBucket).Get(key)
		if v != nil {
			// The slice is only valid during the transaction.
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

func (b *boltBackend) Put(key, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(ledgerBucket).Put(key, value)
	})
}

func (b *boltBackend) Delete(key []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(ledgerBucket).Delete(key)
	})
}

func (b *boltBackend) Close() error {
	return b.db.Close()
}
