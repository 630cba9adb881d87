// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cartoon-face/conceal-core/currency"
)

// createNewDeposits materializes deposit records for the deposit-type
// outputs of a transaction and returns their ids in table order.  While the
// owning transaction is unconfirmed each deposit is also registered with the
// unconfirmed set so pending-balance queries include it.
func (c *Cache) createNewDeposits(creatingID TransactionID,
	outs []TransactionOutput, params *currency.Params,
	height uint32) []DepositID {

	ids := make([]DepositID, 0, len(outs))
	for i := range outs {
		out := &outs[i]

		interest := params.CalculateInterest(out.Amount, out.Term,
			height)
		deposit := Deposit{
			CreatingTransactionID: creatingID,
			SpendingTransactionID: InvalidTransactionID,
			Term:                  out.Term,
			Amount:                out.Amount,
			Interest:              interest,
			Locked:                true,
		}

		id, inserted := c.InsertDeposit(deposit, out.Index,
			out.TransactionHash)
		if !inserted {
			// Already known from a previous pass over the same
			// block.
			continue
		}

		ids = append(ids, id)
		if height == UnconfirmedHeight {
			c.unconfirmed.AddCreatedDeposit(id,
				out.Amount+interest)
		}
	}

	return ids
}

// InsertDeposit registers a deposit created at the given output position.
// Each output position maps to at most one deposit: a repeated insert
// returns the existing id with inserted == false and changes nothing.
func (c *Cache) InsertDeposit(deposit Deposit, indexInTransaction uint32,
	txHash chainhash.Hash) (DepositID, bool) {

	key := outputKey{hash: txHash, index: indexInTransaction}
	if existing, ok := c.outputToDeposit[key]; ok {
		return existing, false
	}

	id := DepositID(len(c.deposits))
	c.deposits = append(c.deposits, DepositInfo{
		Deposit:             deposit,
		OutputInTransaction: indexInTransaction,
	})
	c.outputToDeposit[key] = id

	return id, true
}

// processSpentDeposits resolves the deposit outputs consumed by a
// transaction, links each deposit to its spender and unlocks it.  Outputs
// with no registered deposit are logged and skipped.
func (c *Cache) processSpentDeposits(spendingID TransactionID,
	outs []TransactionOutput) []DepositID {

	ids := make([]DepositID, 0, len(outs))
	for i := range outs {
		out := &outs[i]

		key := outputKey{hash: out.TransactionHash, index: out.Index}
		id, ok := c.outputToDeposit[key]
		if !ok {
			log.Errorf("Spent deposit output %v:%d has no "+
				"deposit record", out.TransactionHash,
				out.Index)
			continue
		}

		d := &c.deposits[id]
		d.SpendingTransactionID = spendingID
		d.Locked = false
		ids = append(ids, id)
	}

	return ids
}

// relockDepositsSpentBy undoes the withdrawals of a rolled-back transaction:
// every deposit it spent loses its spending link and is locked again.
func (c *Cache) relockDepositsSpentBy(id TransactionID) []DepositID {
	var ids []DepositID
	for i := range c.deposits {
		d := &c.deposits[i]
		if d.SpendingTransactionID != id {
			continue
		}
		d.SpendingTransactionID = InvalidTransactionID
		d.Locked = true
		ids = append(ids, DepositID(i))
	}
	return ids
}

// UnlockDeposits clears the locked flag on the deposits created at the given
// output positions, typically once their terms elapse.  The affected ids are
// returned; unknown outputs are skipped.
func (c *Cache) UnlockDeposits(outs []TransactionOutput) []DepositID {
	return c.setDepositsLocked(outs, false)
}

// LockDeposits restores the locked flag on the deposits created at the given
// output positions, used when the block that unlocked them is detached.
func (c *Cache) LockDeposits(outs []TransactionOutput) []DepositID {
	return c.setDepositsLocked(outs, true)
}

func (c *Cache) setDepositsLocked(outs []TransactionOutput,
	locked bool) []DepositID {

	ids := make([]DepositID, 0, len(outs))
	for i := range outs {
		out := &outs[i]

		key := outputKey{hash: out.TransactionHash, index: out.Index}
		id, ok := c.outputToDeposit[key]
		if !ok {
			log.Errorf("Deposit output %v:%d has no deposit "+
				"record", out.TransactionHash, out.Index)
			continue
		}

		c.deposits[id].Locked = locked
		ids = append(ids, id)
	}

	return ids
}

// DepositOutpoint returns the creating transaction hash and output position
// of a deposit.
func (c *Cache) DepositOutpoint(id DepositID) (chainhash.Hash, uint32, bool) {
	if uint64(id) >= uint64(len(c.deposits)) {
		return chainhash.Hash{}, 0, false
	}

	d := &c.deposits[id]
	if err := c.checkTransactionID(d.CreatingTransactionID); err != nil {
		return chainhash.Hash{}, 0, false
	}

	hash := c.transactions[d.CreatingTransactionID].Hash
	return hash, d.OutputInTransaction, true
}
