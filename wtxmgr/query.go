// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TransactionCount returns the size of the transaction table, including
// deleted records.
func (c *Cache) TransactionCount() uint64 {
	return uint64(len(c.transactions))
}

// Transaction returns the record with the given id.
func (c *Cache) Transaction(id TransactionID) (TxRecord, bool) {
	if uint64(id) >= uint64(len(c.transactions)) {
		return TxRecord{}, false
	}
	return c.transactions[id], true
}

// TransferCount returns the size of the transfer table.
func (c *Cache) TransferCount() uint64 {
	return uint64(len(c.transfers))
}

// Transfer returns the transfer with the given id.
func (c *Cache) Transfer(id TransferID) (Transfer, bool) {
	if uint64(id) >= uint64(len(c.transfers)) {
		return Transfer{}, false
	}
	return c.transfers[id], true
}

// DepositCount returns the size of the deposit table.
func (c *Cache) DepositCount() uint64 {
	return uint64(len(c.deposits))
}

// Deposit returns the deposit with the given id.
func (c *Cache) Deposit(id DepositID) (DepositInfo, bool) {
	if uint64(id) >= uint64(len(c.deposits)) {
		return DepositInfo{}, false
	}
	return c.deposits[id], true
}

// TokenTransactionCount returns the size of the token transaction table,
// including deleted records.
func (c *Cache) TokenTransactionCount() uint64 {
	return uint64(len(c.tokenTransactions))
}

// TokenTransaction returns the token record with the given id.
func (c *Cache) TokenTransaction(id TokenTxID) (TokenTxRecord, bool) {
	if uint64(id) >= uint64(len(c.tokenTransactions)) {
		return TokenTxRecord{}, false
	}
	return c.tokenTransactions[id], true
}

// TokenTransferCount returns the size of the token transfer table.
func (c *Cache) TokenTransferCount() uint64 {
	return uint64(len(c.tokenTransfers))
}

// TokenTransfer returns the token transfer with the given id.
func (c *Cache) TokenTransfer(id TransferID) (TokenTransfer, bool) {
	if uint64(id) >= uint64(len(c.tokenTransfers)) {
		return TokenTransfer{}, false
	}
	return c.tokenTransfers[id], true
}

// FindTransactionByHash returns the most recent non-deleted transaction with
// the given hash.  Deleted records keep their slots but never match, so a
// transaction reappearing after a rollback gets a fresh lookup hit on its
// new record.
func (c *Cache) FindTransactionByHash(
	hash chainhash.Hash) (TransactionID, bool) {

	for i := len(c.transactions) - 1; i >= 0; i-- {
		rec := &c.transactions[i]
		if rec.Hash == hash && rec.State != StateDeleted {
			return TransactionID(i), true
		}
	}
	return InvalidTransactionID, false
}

// FindTransactionByTransferID returns the transaction whose transfer run
// contains the given transfer id.
func (c *Cache) FindTransactionByTransferID(
	id TransferID) (TransactionID, bool) {

	for i := range c.transactions {
		rec := &c.transactions[i]
		if rec.TransferCount == 0 {
			continue
		}
		if id >= rec.FirstTransferID &&
			uint64(id-rec.FirstTransferID) < rec.TransferCount {

			return TransactionID(i), true
		}
	}
	return InvalidTransactionID, false
}

// TransactionsByPaymentIDs resolves each payment id to the non-deleted
// transactions carrying it in their extra payload, in creation order.  The
// result has one entry per requested id, empty when nothing matches.
func (c *Cache) TransactionsByPaymentIDs(
	paymentIDs []chainhash.Hash) []Payments {

	result := make([]Payments, 0, len(paymentIDs))
	for _, paymentID := range paymentIDs {
		p := Payments{PaymentID: paymentID}
		for _, id := range c.payments[paymentID] {
			rec := c.transactions[id]
			if rec.State == StateDeleted {
				continue
			}
			p.Transactions = append(p.Transactions, rec)
		}
		result = append(result, p)
	}

	return result
}

// rebuildPaymentsIndex repopulates the payment id index from the transaction
// table, in ascending id order.  Deleted records are skipped.
func (c *Cache) rebuildPaymentsIndex() {
	c.payments = make(map[chainhash.Hash][]TransactionID)
	for i := range c.transactions {
		rec := &c.transactions[i]
		if rec.State == StateDeleted {
			continue
		}
		if paymentID, ok := PaymentIDFromExtra(rec.Extra); ok {
			c.pushToPaymentIndex(paymentID, TransactionID(i))
		}
	}
}
