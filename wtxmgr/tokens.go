// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// checkTokenTxID validates an id against the token transaction table.
func (c *Cache) checkTokenTxID(id TokenTxID) error {
	if uint64(id) >= uint64(len(c.tokenTransactions)) {
		return storeError(ErrUnknownTokenTransaction,
			"token transaction id out of range", nil)
	}
	return nil
}

// AddNewTokenTransaction allocates a record for an outgoing token send or
// mint before the transaction body exists.  Mints are registered with the
// unconfirmed token set so pending token balances include the new units.
func (c *Cache) AddNewTokenTransaction(amount uint64, fee uint64,
	unlockTime uint64, token TokenSummary, transfers []TokenTransfer,
	secretKey fn.Option[SecretKey]) TokenTxID {

	rec := TokenTxRecord{
		FirstTransferID:     InvalidTransferID,
		TotalAmount:         amount,
		Fee:                 fee,
		SentTime:            uint64(c.clk.Now().Unix()),
		UnlockTime:          unlockTime,
		BlockHeight:         UnconfirmedHeight,
		State:               StateSending,
		Token:               token,
		OutputInTransaction: InvalidOutputIndex,
		SecretKey:           secretKey,
	}

	if len(transfers) > 0 {
		rec.FirstTransferID = TransferID(len(c.tokenTransfers))
		rec.TransferCount = uint64(len(transfers))
		c.tokenTransfers = append(c.tokenTransfers, transfers...)
	}

	id := TokenTxID(len(c.tokenTransactions))
	c.tokenTransactions = append(c.tokenTransactions, rec)

	if token.IsCreation {
		c.unconfirmedTokens.AddCreatedTokenTx(id, token.Amount)
	}

	return id
}

// UpdateTokenTransaction attaches the built transaction body to a Sending
// token record and registers it in the unconfirmed token set.
func (c *Cache) UpdateTokenTransaction(id TokenTxID, txBody []byte,
	amount uint64, outputs []TransactionOutput,
	usedOutputs []OutPoint) error {

	if err := c.checkTokenTxID(id); err != nil {
		return err
	}

	// The unconfirmed set tracks generic record ids; token table ids
	// share the representation.
	hash, err := c.unconfirmedTokens.Add(txBody, TransactionID(id),
		amount, outputs, usedOutputs)
	if err != nil {
		return err
	}

	c.tokenTransactions[id].Hash = hash
	return nil
}

// UpdateTokenTransactionSendingState records the outcome of handing a
// Sending token transaction to the network, mirroring
// UpdateTransactionSendingState.
func (c *Cache) UpdateTokenTransactionSendingState(id TokenTxID,
	sendErr error) error {

	if err := c.checkTokenTxID(id); err != nil {
		return err
	}

	rec := &c.tokenTransactions[id]
	if sendErr == nil {
		rec.SentTime = uint64(c.clk.Now().Unix())
		return nil
	}

	if errors.Is(sendErr, ErrTxCancelled) {
		rec.State = StateCancelled
	} else {
		rec.State = StateFailed
	}

	if _, ok := c.unconfirmedTokens.FindTransactionID(rec.Hash); ok {
		c.unconfirmedTokens.Erase(rec.Hash)
	}
	c.unconfirmedTokens.EraseCreatedTokenTx(id)

	return nil
}

// OnTokenTransactionUpdated applies a confirmation-status change for a token
// transaction.  token is the canonical descriptor observed on chain; it
// replaces whatever descriptor the record carried.
func (c *Cache) OnTokenTransactionUpdated(info TransactionInfo,
	token TokenSummary) ([]Event, error) {

	var events []Event

	rawID, found := c.unconfirmedTokens.FindTransactionID(info.Hash)
	id := TokenTxID(rawID)
	if found {
		if err := c.checkTokenTxID(id); err != nil {
			return nil, err
		}
		if info.BlockHeight != UnconfirmedHeight {
			c.unconfirmedTokens.Erase(info.Hash)
			c.unconfirmedTokens.EraseCreatedTokenTx(id)
		}
	} else {
		id, found = c.FindTokenTransactionByHash(info.Hash)
	}

	if !found {
		var fee uint64
		if info.TotalAmountIn > info.TotalAmountOut {
			fee = info.TotalAmountIn - info.TotalAmountOut
		}

		rec := TokenTxRecord{
			FirstTransferID:     InvalidTransferID,
			TotalAmount:         token.Amount,
			Fee:                 fee,
			UnlockTime:          info.UnlockTime,
			BlockHeight:         info.BlockHeight,
			Timestamp:           info.Timestamp,
			Hash:                info.Hash,
			State:               StateActive,
			Token:               token,
			OutputInTransaction: InvalidOutputIndex,
		}

		id = TokenTxID(len(c.tokenTransactions))
		c.tokenTransactions = append(c.tokenTransactions, rec)
		events = append(events, TokenTransactionCreated{ID: id})

		return events, nil
	}

	rec := &c.tokenTransactions[id]
	rec.BlockHeight = info.BlockHeight
	rec.Timestamp = info.Timestamp
	rec.State = StateActive
	rec.Token = token
	events = append(events, TokenTransactionUpdated{ID: id})

	return events, nil
}

// OnTokenTransactionDeleted rolls a token transaction out of the ledger
// after the block containing it is detached.  Unknown or already deleted
// hashes are a no-op.
func (c *Cache) OnTokenTransactionDeleted(
	hash chainhash.Hash) ([]Event, error) {

	id, found := c.FindTokenTransactionByHash(hash)
	if !found {
		return nil, nil
	}

	if _, ok := c.unconfirmedTokens.FindTransactionID(hash); ok {
		c.unconfirmedTokens.Erase(hash)
	}
	c.unconfirmedTokens.EraseCreatedTokenTx(id)

	rec := &c.tokenTransactions[id]
	rec.State = StateDeleted
	rec.BlockHeight = UnconfirmedHeight

	return []Event{TokenTransactionUpdated{ID: id}}, nil
}

// InsertTokenTx registers a token transaction observed at an output
// position.  Each output position maps to at most one record: a repeated
// insert returns the existing id with inserted == false and changes
// nothing.
func (c *Cache) InsertTokenTx(rec TokenTxRecord, indexInTransaction uint32,
	txHash chainhash.Hash) (TokenTxID, bool) {

	key := outputKey{hash: txHash, index: indexInTransaction}
	if existing, ok := c.outputToTokenTx[key]; ok {
		return existing, false
	}

	rec.Hash = txHash
	rec.OutputInTransaction = indexInTransaction

	id := TokenTxID(len(c.tokenTransactions))
	c.tokenTransactions = append(c.tokenTransactions, rec)
	c.outputToTokenTx[key] = id

	return id, true
}

// FindTokenTransactionByHash returns the most recent non-deleted token
// transaction with the given hash.
func (c *Cache) FindTokenTransactionByHash(
	hash chainhash.Hash) (TokenTxID, bool) {

	for i := len(c.tokenTransactions) - 1; i >= 0; i-- {
		rec := &c.tokenTransactions[i]
		if rec.Hash == hash && rec.State != StateDeleted {
			return TokenTxID(i), true
		}
	}
	return InvalidTokenTxID, false
}

// FindTokenTransactionByTransferID returns the token transaction whose
// transfer run contains the given transfer id.
func (c *Cache) FindTokenTransactionByTransferID(
	id TransferID) (TokenTxID, bool) {

	for i := range c.tokenTransactions {
		rec := &c.tokenTransactions[i]
		if rec.TransferCount == 0 {
			continue
		}
		if id >= rec.FirstTransferID &&
			uint64(id-rec.FirstTransferID) < rec.TransferCount {

			return TokenTxID(i), true
		}
	}
	return InvalidTokenTxID, false
}

// DeleteOutdatedTokenTransactions expires unconfirmed token transactions
// older than the live time, marks their records Failed and returns the
// affected ids in ascending order.
func (c *Cache) DeleteOutdatedTokenTransactions() []TokenTxID {
	raw := c.unconfirmedTokens.DeleteOutdated()

	ids := make([]TokenTxID, 0, len(raw))
	for _, rawID := range raw {
		id := TokenTxID(rawID)
		if err := c.checkTokenTxID(id); err != nil {
			log.Errorf("Outdated unconfirmed token transaction "+
				"refers to unknown record %d", id)
			continue
		}
		c.tokenTransactions[id].State = StateFailed
		c.unconfirmedTokens.EraseCreatedTokenTx(id)
		ids = append(ids, id)
	}

	return ids
}
