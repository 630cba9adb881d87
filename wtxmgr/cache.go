// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wtxmgr implements the wallet's transaction ledger: dense tables of
// transactions, transfers, deposits and token activity, the unconfirmed
// transaction sets feeding pending-balance queries, and the secondary
// indexes tying chain outputs back to ledger records.  Mutations return
// events describing the balance-relevant effects so callers can notify
// observers without diffing tables.
package wtxmgr

import (
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cartoon-face/conceal-core/currency"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// outputKey addresses an output by creating transaction hash and position.
// It keys the secondary indexes mapping chain outputs to deposit and token
// records.
type outputKey struct {
	hash  chainhash.Hash
	index uint32
}

// Cache is the wallet transaction ledger.  Records live in dense append-only
// tables indexed by their ids; a deleted transaction keeps its table slot so
// ids held by observers never dangle.  The cache is not safe for concurrent
// use.
type Cache struct {
	clk clock.Clock

	transactions []TxRecord
	transfers    []Transfer
	deposits     []DepositInfo

	tokenTransactions []TokenTxRecord
	tokenTransfers    []TokenTransfer

	unconfirmed       *UnconfirmedTxSet
	unconfirmedTokens *UnconfirmedTxSet

	outputToDeposit map[outputKey]DepositID
	outputToTokenTx map[outputKey]TokenTxID

	// payments maps an embedded payment id to the transactions carrying
	// it, in creation order.
	payments map[chainhash.Hash][]TransactionID
}

// NewCache returns an empty ledger.  A zero liveTime selects the default
// unconfirmed-transaction expiry; a nil clock selects the wall clock.
func NewCache(liveTime time.Duration, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	c := &Cache{clk: clk}
	c.unconfirmed = NewUnconfirmedTxSet(liveTime, clk)
	c.unconfirmedTokens = NewUnconfirmedTxSet(liveTime, clk)
	c.reset()

	return c
}

// reset reinitializes every table and index.
func (c *Cache) reset() {
	c.transactions = nil
	c.transfers = nil
	c.deposits = nil
	c.tokenTransactions = nil
	c.tokenTransfers = nil
	c.unconfirmed.Reset()
	c.unconfirmedTokens.Reset()
	c.outputToDeposit = make(map[outputKey]DepositID)
	c.outputToTokenTx = make(map[outputKey]TokenTxID)
	c.payments = make(map[chainhash.Hash][]TransactionID)
}

// Reset drops all ledger state, as after a full resynchronization from
// scratch.
func (c *Cache) Reset() {
	c.reset()
}

// checkTransactionID validates an id against the transaction table.
func (c *Cache) checkTransactionID(id TransactionID) error {
	if uint64(id) >= uint64(len(c.transactions)) {
		return storeError(ErrUnknownTransaction,
			"transaction id out of range", nil)
	}
	return nil
}

// AddNewTransaction allocates a record for an outgoing send before the
// transaction body exists.  The record starts in the Sending state at the
// unconfirmed height; UpdateTransaction attaches the body once it is built.
func (c *Cache) AddNewTransaction(amount uint64, fee uint64,
	unlockTime uint64, extra []byte, transfers []Transfer,
	messages []string, secretKey fn.Option[SecretKey]) TransactionID {

	rec := TxRecord{
		FirstTransferID: InvalidTransferID,
		FirstDepositID:  InvalidDepositID,
		TotalAmount:     -int64(amount),
		Fee:             fee,
		SentTime:        uint64(c.clk.Now().Unix()),
		UnlockTime:      unlockTime,
		BlockHeight:     UnconfirmedHeight,
		IsCoinbase:      false,
		State:           StateSending,
		Extra:           extra,
		Messages:        messages,
		SecretKey:       secretKey,
	}

	if len(transfers) > 0 {
		rec.FirstTransferID = TransferID(len(c.transfers))
		rec.TransferCount = uint64(len(transfers))
		c.transfers = append(c.transfers, transfers...)
	}

	id := TransactionID(len(c.transactions))
	c.transactions = append(c.transactions, rec)

	return id
}

// UpdateTransaction attaches the built transaction body to a Sending record
// and registers it in the unconfirmed set.  outputs are the created outputs
// addressed back to the wallet and usedOutputs the wallet outputs the
// transaction spends.
func (c *Cache) UpdateTransaction(id TransactionID, txBody []byte,
	amount uint64, outputs []TransactionOutput,
	usedOutputs []OutPoint) error {

	if err := c.checkTransactionID(id); err != nil {
		return err
	}

	hash, err := c.unconfirmed.Add(txBody, id, amount, outputs,
		usedOutputs)
	if err != nil {
		return err
	}

	rec := &c.transactions[id]
	rec.Hash = hash
	if paymentID, ok := PaymentIDFromExtra(rec.Extra); ok {
		c.pushToPaymentIndex(paymentID, id)
	}

	return nil
}

// UpdateTransactionSendingState records the outcome of handing a Sending
// transaction to the network.  A nil error refreshes the submission time and
// keeps the record Sending; a non-nil error resolves it to Cancelled or
// Failed and releases its output claims.
func (c *Cache) UpdateTransactionSendingState(id TransactionID,
	sendErr error) error {

	if err := c.checkTransactionID(id); err != nil {
		return err
	}

	rec := &c.transactions[id]
	if sendErr == nil {
		rec.SentTime = uint64(c.clk.Now().Unix())
		return nil
	}

	if errors.Is(sendErr, ErrTxCancelled) {
		rec.State = StateCancelled
	} else {
		rec.State = StateFailed
	}

	if _, ok := c.unconfirmed.FindTransactionID(rec.Hash); ok {
		c.unconfirmed.Erase(rec.Hash)
	}

	return nil
}

// OnTransactionUpdated applies a confirmation-status change reported by the
// synchronization collaborator.  balance is the signed net effect of the
// transaction on the wallet; newDepositOuts and spentDepositOuts are the
// deposit-type outputs it creates and consumes.  The returned events
// describe every record touched.
func (c *Cache) OnTransactionUpdated(info TransactionInfo, balance int64,
	newDepositOuts, spentDepositOuts []TransactionOutput,
	params *currency.Params) ([]Event, error) {

	var events []Event

	id, found := c.unconfirmed.FindTransactionID(info.Hash)
	if found {
		if err := c.checkTransactionID(id); err != nil {
			return nil, err
		}
		if info.BlockHeight != UnconfirmedHeight {
			c.unconfirmed.Erase(info.Hash)
		}
	} else {
		id, found = c.FindTransactionByHash(info.Hash)
	}

	if !found {
		id = c.insertObservedTransaction(info, balance)
		events = append(events, TransactionCreated{ID: id})
	} else {
		rec := &c.transactions[id]
		rec.BlockHeight = info.BlockHeight
		rec.Timestamp = info.Timestamp
		rec.State = StateActive
		events = append(events, TransactionUpdated{ID: id})
	}

	depositEvents, err := c.applyDepositOutputs(id, info, newDepositOuts,
		spentDepositOuts, params)
	if err != nil {
		return nil, err
	}

	return append(events, depositEvents...), nil
}

// insertObservedTransaction creates a record for activity first seen on
// chain, including incoming funds and sends recovered during a rescan.
func (c *Cache) insertObservedTransaction(info TransactionInfo,
	balance int64) TransactionID {

	isCoinbase := info.TotalAmountIn == 0
	var fee uint64
	if !isCoinbase {
		fee = info.TotalAmountIn - info.TotalAmountOut
	}

	rec := TxRecord{
		FirstTransferID: InvalidTransferID,
		FirstDepositID:  InvalidDepositID,
		TotalAmount:     balance,
		Fee:             fee,
		UnlockTime:      info.UnlockTime,
		BlockHeight:     info.BlockHeight,
		Timestamp:       info.Timestamp,
		Hash:            info.Hash,
		IsCoinbase:      isCoinbase,
		State:           StateActive,
		Extra:           info.Extra,
	}

	id := TransactionID(len(c.transactions))
	c.transactions = append(c.transactions, rec)

	if paymentID, ok := PaymentIDFromExtra(info.Extra); ok {
		c.pushToPaymentIndex(paymentID, id)
	}

	return id
}

// applyDepositOutputs materializes new deposits and resolves withdrawals for
// a transaction update.
func (c *Cache) applyDepositOutputs(id TransactionID, info TransactionInfo,
	newDepositOuts, spentDepositOuts []TransactionOutput,
	params *currency.Params) ([]Event, error) {

	var events []Event
	rec := &c.transactions[id]

	switch {
	case len(newDepositOuts) > 0 && rec.DepositCount == 0:
		ids := c.createNewDeposits(id, newDepositOuts, params,
			info.BlockHeight)
		if len(ids) > 0 {
			rec.FirstDepositID = ids[0]
			rec.DepositCount = uint64(len(ids))
			events = append(events, DepositsCreated{IDs: ids})
		}

	case rec.DepositCount > 0 && info.BlockHeight != UnconfirmedHeight:
		// The deposits are confirmed now, so they no longer count
		// toward the pending created-deposit sum.
		for i := uint64(0); i < rec.DepositCount; i++ {
			c.unconfirmed.EraseCreatedDeposit(
				rec.FirstDepositID + DepositID(i),
			)
		}
	}

	if len(spentDepositOuts) > 0 {
		updated := c.processSpentDeposits(id, spentDepositOuts)
		if len(updated) > 0 {
			events = append(events, DepositsUpdated{IDs: updated})
		}
	}

	return events, nil
}

// OnTransactionDeleted rolls a transaction out of the ledger after the block
// containing it is detached.  The record keeps its slot and flips to
// Deleted; deposits it withdrew are locked again.  Deleting an unknown or
// already deleted hash is a no-op so replayed rollbacks stay harmless.
func (c *Cache) OnTransactionDeleted(hash chainhash.Hash) ([]Event, error) {
	id, found := c.FindTransactionByHash(hash)
	if !found {
		return nil, nil
	}

	var events []Event
	rec := &c.transactions[id]

	relocked := c.relockDepositsSpentBy(id)
	if len(relocked) > 0 {
		events = append(events, DepositsUpdated{IDs: relocked})
	}

	for i := uint64(0); i < rec.DepositCount; i++ {
		c.unconfirmed.EraseCreatedDeposit(
			rec.FirstDepositID + DepositID(i),
		)
	}

	if _, ok := c.unconfirmed.FindTransactionID(hash); ok {
		c.unconfirmed.Erase(hash)
	}

	if paymentID, ok := PaymentIDFromExtra(rec.Extra); ok {
		c.popFromPaymentIndex(paymentID, id)
	}

	rec.State = StateDeleted
	rec.BlockHeight = UnconfirmedHeight
	events = append(events, TransactionUpdated{ID: id})

	return events, nil
}

// DeleteOutdated expires unconfirmed transactions older than the live time,
// marks their records Failed and returns the affected ids in ascending
// order.
func (c *Cache) DeleteOutdated() []TransactionID {
	ids := c.unconfirmed.DeleteOutdated()
	for _, id := range ids {
		if err := c.checkTransactionID(id); err != nil {
			log.Errorf("Outdated unconfirmed transaction refers "+
				"to unknown record %d", id)
			continue
		}
		c.transactions[id].State = StateFailed
	}
	return ids
}

// IsOutputUsed reports whether an output is claimed by a pending
// transaction in either unconfirmed set.
func (c *Cache) IsOutputUsed(out OutPoint) bool {
	return c.unconfirmed.IsUsed(out) || c.unconfirmedTokens.IsUsed(out)
}

// UnconfirmedTransactionsAmount returns the pending outgoing value for the
// base currency (token id 0) or a token.
func (c *Cache) UnconfirmedTransactionsAmount(tokenID uint64) uint64 {
	if tokenID == 0 {
		return c.unconfirmed.TransactionsAmount(0)
	}
	return c.unconfirmedTokens.TransactionsAmount(tokenID)
}

// UnconfirmedOutsAmount returns the pending change value for the base
// currency (token id 0) or a token.
func (c *Cache) UnconfirmedOutsAmount(tokenID uint64) uint64 {
	if tokenID == 0 {
		return c.unconfirmed.OutsAmount(0)
	}
	return c.unconfirmedTokens.OutsAmount(tokenID)
}

// UnconfirmedCreatedDepositsSum returns the amount plus interest of deposits
// awaiting confirmation.
func (c *Cache) UnconfirmedCreatedDepositsSum() uint64 {
	return c.unconfirmed.CreatedDepositsSum()
}

// UnconfirmedMintedTokensSum returns the token units being minted by pending
// token transactions.
func (c *Cache) UnconfirmedMintedTokensSum() uint64 {
	return c.unconfirmedTokens.CreatedTokenTxsSum()
}

// UnconfirmedSpentDepositsProfit returns the deposit value being withdrawn
// by pending transactions, net of fees.
func (c *Cache) UnconfirmedSpentDepositsProfit() uint64 {
	return c.unconfirmed.SpentDepositsProfit()
}

// UnconfirmedSpentDepositsTotalAmount returns the gross deposit value being
// withdrawn by pending transactions.
func (c *Cache) UnconfirmedSpentDepositsTotalAmount() uint64 {
	return c.unconfirmed.SpentDepositsTotalAmount()
}

// AddDepositSpendingTransaction registers a pending withdrawal with the
// unconfirmed set.
func (c *Cache) AddDepositSpendingTransaction(hash chainhash.Hash,
	details UnconfirmedSpentDepositDetails) {

	c.unconfirmed.AddDepositSpendingTransaction(hash, details)
}

// AddCreatedDeposit registers a pending deposit with the unconfirmed set.
func (c *Cache) AddCreatedDeposit(id DepositID, totalAmount uint64) {
	c.unconfirmed.AddCreatedDeposit(id, totalAmount)
}

// pushToPaymentIndex appends a transaction to a payment id's list unless it
// is already the most recent entry.
func (c *Cache) pushToPaymentIndex(paymentID chainhash.Hash,
	id TransactionID) {

	ids := c.payments[paymentID]
	if n := len(ids); n > 0 && ids[n-1] == id {
		return
	}
	c.payments[paymentID] = append(ids, id)
}

// popFromPaymentIndex removes a transaction from a payment id's list.
func (c *Cache) popFromPaymentIndex(paymentID chainhash.Hash,
	id TransactionID) {

	ids := c.payments[paymentID]
	for i, candidate := range ids {
		if candidate != id {
			continue
		}
		ids = append(ids[:i], ids[i+1:]...)
		if len(ids) == 0 {
			delete(c.payments, paymentID)
		} else {
			c.payments[paymentID] = ids
		}
		return
	}
}
