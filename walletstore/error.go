// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletstore

import "errors"

// Errors that the store functions may return.
var (
	// ErrUnknownBackend is returned when there is no backend with the
	// specified name.
	ErrUnknownBackend = errors.New("unknown store backend")

	// ErrStoreDoesNotExist is returned when Open is called for a store
	// file that does not exist.
	ErrStoreDoesNotExist = errors.New("store does not exist")

	// ErrStoreExists is returned when Create is called for a store file
	// that already exists.
	ErrStoreExists = errors.New("store already exists")

	// ErrNoLedger is returned when loading from a store that holds no
	// ledger blob.
	ErrNoLedger = errors.New("store holds no ledger")

	// ErrCorruptLedger is returned when the stored ledger blob cannot be
	// decoded.
	ErrCorruptLedger = errors.New("corrupt ledger blob")
)
