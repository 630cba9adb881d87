// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

// Event describes one balance-relevant side effect of a cache mutation.
// Mutation methods return events in the order the effects were applied; the
// caller dispatches them to whatever observer mechanism it maintains.
// Events are plain values and carry identifiers, never references into the
// cache tables.
type Event interface {
	walletEvent()
}

// TransactionCreated reports a transaction record allocated for activity
// first observed on chain.
type TransactionCreated struct {
	ID TransactionID
}

// TransactionUpdated reports a state, height or linkage change on an
// existing transaction record, including its transition to Deleted during a
// rollback.
type TransactionUpdated struct {
	ID TransactionID
}

// DepositsCreated reports deposit records materialized from newly observed
// deposit outputs.
type DepositsCreated struct {
	IDs []DepositID
}

// DepositsUpdated reports lock-state or spending-link changes on existing
// deposit records.
type DepositsUpdated struct {
	IDs []DepositID
}

// TokenTransactionCreated reports a token transaction record allocated for
// activity first observed on chain.
type TokenTransactionCreated struct {
	ID TokenTxID
}

// TokenTransactionUpdated reports a state or height change on an existing
// token transaction record.
type TokenTransactionUpdated struct {
	ID TokenTxID
}

func (TransactionCreated) walletEvent()      {}
func (TransactionUpdated) walletEvent()      {}
func (DepositsCreated) walletEvent()         {}
func (DepositsUpdated) walletEvent()         {}
func (TokenTransactionCreated) walletEvent() {}
func (TokenTransactionUpdated) walletEvent() {}
