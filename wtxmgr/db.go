// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cartoon-face/conceal-core/serial"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Cache serialization versions.  Version 2 added the token transaction
// tables and the token fields of the unconfirmed set.  Writers always emit
// the latest version; readers accept both.
const (
	cacheVersionV1 = 1

	// CacheVersion is the current ledger blob version.
	CacheVersion = 2
)

// Serialize visits the full ledger state.  Writing always emits the latest
// version.  Reading accepts version 1 and 2 payloads and leaves the cache
// fully restored, secondary indexes included.
func (c *Cache) Serialize(s serial.Serializer) error {
	version := uint32(CacheVersion)
	if err := s.Uint32(&version, "version"); err != nil {
		return err
	}
	if s.Reading() {
		switch version {
		case cacheVersionV1, CacheVersion:
		default:
			return storeError(ErrData, fmt.Sprintf(
				"unknown cache version %d", version), nil)
		}
	}
	s.SetObjectVersion(uint64(version))
	withTokens := version >= CacheVersion

	if err := c.serializeTransactions(s); err != nil {
		return err
	}
	if err := c.serializeTransfers(s); err != nil {
		return err
	}
	if err := c.serializeDeposits(s); err != nil {
		return err
	}
	if err := c.unconfirmed.Serialize(s); err != nil {
		return err
	}

	if withTokens {
		if err := c.serializeTokenTransactions(s); err != nil {
			return err
		}
		if err := c.serializeTokenTransfers(s); err != nil {
			return err
		}
		if err := c.unconfirmedTokens.Serialize(s); err != nil {
			return err
		}
	} else if s.Reading() {
		c.tokenTransactions = nil
		c.tokenTransfers = nil
		c.unconfirmedTokens.Reset()
	}

	if s.Reading() {
		c.rebuildPaymentsIndex()
		if err := c.restoreDepositOutputIndex(); err != nil {
			return err
		}
		if err := c.restoreTokenOutputIndex(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Cache) serializeTransactions(s serial.Serializer) error {
	count := uint64(len(c.transactions))
	if err := s.SequenceLength(&count, "transactions"); err != nil {
		return err
	}
	if s.Reading() {
		c.transactions = nil
		if count > 0 {
			c.transactions = make([]TxRecord, count)
		}
	}
	for i := range c.transactions {
		if err := serializeTxRecord(s, &c.transactions[i]); err != nil {
			return err
		}
	}
	return nil
}

func serializeTxRecord(s serial.Serializer, rec *TxRecord) error {
	firstTransfer := uint64(rec.FirstTransferID)
	firstDeposit := uint64(rec.FirstDepositID)

	fields := []error{
		s.Uint64(&firstTransfer, "first_transfer_id"),
		s.Uint64(&rec.TransferCount, "transfer_count"),
		s.Uint64(&firstDeposit, "first_deposit_id"),
		s.Uint64(&rec.DepositCount, "deposit_count"),
		s.Int64(&rec.TotalAmount, "total_amount"),
		s.Uint64(&rec.Fee, "fee"),
		s.Uint64(&rec.SentTime, "sent_time"),
		s.Uint64(&rec.UnlockTime, "unlock_time"),
		s.Uint32(&rec.BlockHeight, "block_height"),
		s.Uint64(&rec.Timestamp, "timestamp"),
		s.Hash(&rec.Hash, "hash"),
		s.Bool(&rec.IsCoinbase, "is_coinbase"),
	}
	for _, err := range fields {
		if err != nil {
			return err
		}
	}
	rec.FirstTransferID = TransferID(firstTransfer)
	rec.FirstDepositID = DepositID(firstDeposit)

	if err := serializeTxState(s, &rec.State); err != nil {
		return err
	}
	if err := s.Bytes(&rec.Extra, "extra"); err != nil {
		return err
	}
	if err := serializeMessages(s, &rec.Messages); err != nil {
		return err
	}
	return serializeSecretKey(s, &rec.SecretKey)
}

func serializeTxState(s serial.Serializer, state *TxState) error {
	b := uint8(*state)
	if err := s.Uint8(&b, "state"); err != nil {
		return err
	}
	if s.Reading() {
		if b > uint8(StateFailed) {
			return storeError(ErrData, fmt.Sprintf(
				"invalid transaction state %d", b), nil)
		}
		*state = TxState(b)
	}
	return nil
}

func serializeMessages(s serial.Serializer, messages *[]string) error {
	count := uint64(len(*messages))
	if err := s.SequenceLength(&count, "messages"); err != nil {
		return err
	}
	if s.Reading() {
		*messages = nil
		if count > 0 {
			*messages = make([]string, count)
		}
	}
	for i := range *messages {
		if err := s.String(&(*messages)[i], "message"); err != nil {
			return err
		}
	}
	return nil
}

func serializeSecretKey(s serial.Serializer,
	key *fn.Option[SecretKey]) error {

	hasKey := key.IsSome()
	if err := s.Bool(&hasKey, "has_secret_key"); err != nil {
		return err
	}
	if !hasKey {
		if s.Reading() {
			*key = fn.None[SecretKey]()
		}
		return nil
	}

	raw := key.UnwrapOr(SecretKey{})
	err := s.Hash((*chainhash.Hash)(&raw), "secret_key")
	if err != nil {
		return err
	}
	if s.Reading() {
		*key = fn.Some(raw)
	}
	return nil
}

func (c *Cache) serializeTransfers(s serial.Serializer) error {
	count := uint64(len(c.transfers))
	if err := s.SequenceLength(&count, "transfers"); err != nil {
		return err
	}
	if s.Reading() {
		c.transfers = nil
		if count > 0 {
			c.transfers = make([]Transfer, count)
		}
	}
	for i := range c.transfers {
		t := &c.transfers[i]
		if err := s.String(&t.Address, "address"); err != nil {
			return err
		}
		if err := s.Int64(&t.Amount, "amount"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) serializeDeposits(s serial.Serializer) error {
	count := uint64(len(c.deposits))
	if err := s.SequenceLength(&count, "deposits"); err != nil {
		return err
	}
	if s.Reading() {
		c.deposits = nil
		if count > 0 {
			c.deposits = make([]DepositInfo, count)
		}
	}
	for i := range c.deposits {
		d := &c.deposits[i]

		creating := uint64(d.CreatingTransactionID)
		spending := uint64(d.SpendingTransactionID)
		fields := []error{
			s.Uint64(&creating, "creating_transaction_id"),
			s.Uint64(&spending, "spending_transaction_id"),
			s.Uint32(&d.Term, "term"),
			s.Uint64(&d.Amount, "amount"),
			s.Uint64(&d.Interest, "interest"),
			s.Bool(&d.Locked, "locked"),
			s.Uint32(&d.OutputInTransaction, "output_index"),
		}
		for _, err := range fields {
			if err != nil {
				return err
			}
		}
		d.CreatingTransactionID = TransactionID(creating)
		d.SpendingTransactionID = TransactionID(spending)
	}
	return nil
}

func (c *Cache) serializeTokenTransactions(s serial.Serializer) error {
	count := uint64(len(c.tokenTransactions))
	err := s.SequenceLength(&count, "token_transactions")
	if err != nil {
		return err
	}
	if s.Reading() {
		c.tokenTransactions = nil
		if count > 0 {
			c.tokenTransactions = make([]TokenTxRecord, count)
		}
	}
	for i := range c.tokenTransactions {
		rec := &c.tokenTransactions[i]
		if err := serializeTokenTxRecord(s, rec); err != nil {
			return err
		}
	}
	return nil
}

func serializeTokenTxRecord(s serial.Serializer, rec *TokenTxRecord) error {
	firstTransfer := uint64(rec.FirstTransferID)

	fields := []error{
		s.Uint64(&firstTransfer, "first_transfer_id"),
		s.Uint64(&rec.TransferCount, "transfer_count"),
		s.Uint64(&rec.TotalAmount, "total_amount"),
		s.Uint64(&rec.Fee, "fee"),
		s.Uint64(&rec.SentTime, "sent_time"),
		s.Uint64(&rec.UnlockTime, "unlock_time"),
		s.Uint32(&rec.BlockHeight, "block_height"),
		s.Uint64(&rec.Timestamp, "timestamp"),
		s.Hash(&rec.Hash, "hash"),
	}
	for _, err := range fields {
		if err != nil {
			return err
		}
	}
	rec.FirstTransferID = TransferID(firstTransfer)

	if err := serializeTxState(s, &rec.State); err != nil {
		return err
	}
	if err := serializeTokenSummary(s, &rec.Token); err != nil {
		return err
	}
	err := s.Uint32(&rec.OutputInTransaction, "output_index")
	if err != nil {
		return err
	}
	return serializeSecretKey(s, &rec.SecretKey)
}

func serializeTokenSummary(s serial.Serializer, t *TokenSummary) error {
	fields := []error{
		s.Uint64(&t.TokenID, "token_id"),
		s.Uint64(&t.Supply, "supply"),
		s.Uint64(&t.Decimals, "decimals"),
		s.Uint32(&t.CreatedHeight, "created_height"),
		s.String(&t.Ticker, "ticker"),
		s.String(&t.Name, "name"),
		s.Uint64(&t.Amount, "amount"),
		s.Bool(&t.IsCreation, "is_creation"),
	}
	for _, err := range fields {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) serializeTokenTransfers(s serial.Serializer) error {
	count := uint64(len(c.tokenTransfers))
	if err := s.SequenceLength(&count, "token_transfers"); err != nil {
		return err
	}
	if s.Reading() {
		c.tokenTransfers = nil
		if count > 0 {
			c.tokenTransfers = make([]TokenTransfer, count)
		}
	}
	for i := range c.tokenTransfers {
		t := &c.tokenTransfers[i]
		if err := s.String(&t.Address, "address"); err != nil {
			return err
		}
		if err := s.Uint64(&t.Amount, "amount"); err != nil {
			return err
		}
		if err := s.Uint64(&t.TokenID, "token_id"); err != nil {
			return err
		}
	}
	return nil
}

// restoreDepositOutputIndex rebuilds the output-to-deposit index from the
// deposit table after a read.
func (c *Cache) restoreDepositOutputIndex() error {
	c.outputToDeposit = make(map[outputKey]DepositID, len(c.deposits))
	for i := range c.deposits {
		d := &c.deposits[i]
		err := c.checkTransactionID(d.CreatingTransactionID)
		if err != nil {
			return storeError(ErrData, fmt.Sprintf(
				"deposit %d refers to unknown creating "+
					"transaction %d", i,
				d.CreatingTransactionID), nil)
		}

		key := outputKey{
			hash:  c.transactions[d.CreatingTransactionID].Hash,
			index: d.OutputInTransaction,
		}
		c.outputToDeposit[key] = DepositID(i)
	}
	return nil
}

// restoreTokenOutputIndex rebuilds the output-to-token-transaction index
// after a read.  Send-path records carry no output position and stay out of
// the index.
func (c *Cache) restoreTokenOutputIndex() error {
	c.outputToTokenTx = make(map[outputKey]TokenTxID)
	for i := range c.tokenTransactions {
		rec := &c.tokenTransactions[i]
		if rec.OutputInTransaction == InvalidOutputIndex {
			continue
		}

		key := outputKey{
			hash:  rec.Hash,
			index: rec.OutputInTransaction,
		}
		c.outputToTokenTx[key] = TokenTxID(i)
	}
	return nil
}
