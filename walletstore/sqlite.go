// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletstore

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// sqliteBackend stores blobs in a single-table sqlite database.
type sqliteBackend struct {
	db *sql.DB
}

func openSQLiteBackend(path string) (Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		k BLOB PRIMARY KEY,
		v BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.QueryRow(
		"SELECT v FROM kv WHERE k = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *sqliteBackend) Put(key, value []byte) error {
	_, err := b.db.Exec(
		"INSERT INTO kv (k, v) VALUES (?, ?) "+
			"ON CONFLICT (k) DO UPDATE SET v = excluded.v",
		key, value,
	)
	return err
}

func (b *sqliteBackend) Delete(key []byte) error {
	_, err := b.db.Exec("DELETE FROM kv WHERE k = ?", key)
	return err
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
