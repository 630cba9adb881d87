// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/crypto/sha3"
)

// Local identifiers index into the dense record tables of the cache.  They
// are assigned monotonically and never reused within a session; a deleted
// transaction keeps its slot so identifiers held by observers stay valid.
type (
	// TransactionID identifies a transaction record.
	TransactionID uint64

	// TransferID identifies a transfer record.
	TransferID uint64

	// DepositID identifies a deposit record.
	DepositID uint64

	// TokenTxID identifies a token transaction record.
	TokenTxID uint64
)

// The maximum representable value of each identifier kind is reserved as the
// "invalid/none" sentinel.
const (
	InvalidTransactionID = ^TransactionID(0)
	InvalidTransferID    = ^TransferID(0)
	InvalidDepositID     = ^DepositID(0)
	InvalidTokenTxID     = ^TokenTxID(0)
)

// UnconfirmedHeight is the sentinel block height carried by transactions not
// yet included in a block accepted by the local chain view.
const UnconfirmedHeight = ^uint32(0)

// InvalidOutputIndex marks a record that is not registered in an
// output-position secondary index.
const InvalidOutputIndex = ^uint32(0)

// PublicKey is the key an output is addressed to.  Together with the output
// position it identifies a spendable unit.
type PublicKey [32]byte

// SecretKey is the transaction secret key optionally retained for outgoing
// sends so payment proofs can be produced later.
type SecretKey [32]byte

// OutPoint identifies a spendable output by its owning public key and its
// position within the creating transaction.
type OutPoint struct {
	Key   PublicKey
	Index uint32
}

// TransactionOutput describes one output of an observed transaction as
// reported by the synchronization collaborator.  For deposit-type outputs
// Term carries the lock duration; for token outputs TokenID/TokenAmount
// carry the token quantities.
type TransactionOutput struct {
	// TransactionHash is the hash of the creating transaction.
	TransactionHash chainhash.Hash

	// Index is the output position within the creating transaction.
	Index uint32

	// Key is the output public key.
	Key PublicKey

	// Amount is the base-currency value of the output.
	Amount uint64

	// Term is the deposit lock duration in blocks, or 0 for
	// non-deposit outputs.
	Term uint32

	// TokenID and TokenAmount carry token quantities for token outputs,
	// both 0 otherwise.
	TokenID     uint64
	TokenAmount uint64
}

// OutPoint returns the spend-tracking identity of the output.
func (o *TransactionOutput) OutPoint() OutPoint {
	return OutPoint{Key: o.Key, Index: o.Index}
}

// TransactionInfo is the view of a transaction delivered by the
// synchronization collaborator whenever its confirmation status changes.
type TransactionInfo struct {
	Hash           chainhash.Hash
	BlockHeight    uint32
	Timestamp      uint64
	UnlockTime     uint64
	TotalAmountIn  uint64
	TotalAmountOut uint64
	Extra          []byte
}

// TxState describes the lifecycle state of a transaction record.
type TxState uint8

// Transaction states.  Sending resolves to Active, Cancelled or Failed;
// Active flips to Deleted when the owning block is rolled back.
const (
	StateActive TxState = iota
	StateDeleted
	StateSending
	StateCancelled
	StateFailed
)

// String returns the state as a human-readable name.
func (s TxState) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateDeleted:
		return "Deleted"
	case StateSending:
		return "Sending"
	case StateCancelled:
		return "Cancelled"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}

// TxRecord is a transaction tracked by the cache.  The transfer run
// [FirstTransferID, FirstTransferID+TransferCount) and the deposit run
// [FirstDepositID, FirstDepositID+DepositCount) are contiguous slices of the
// cache's transfer and deposit tables and never overlap another record's
// runs.
type TxRecord struct {
	FirstTransferID TransferID
	TransferCount   uint64
	FirstDepositID  DepositID
	DepositCount    uint64

	// TotalAmount is the signed balance effect of the transaction:
	// positive for received funds, negative for sent.
	TotalAmount int64
	Fee         uint64

	// SentTime is the local submission time for outgoing sends, 0 for
	// observed transactions.
	SentTime   uint64
	UnlockTime uint64

	// BlockHeight is UnconfirmedHeight until the transaction is included
	// in a block.
	BlockHeight uint32
	Timestamp   uint64

	Hash       chainhash.Hash
	IsCoinbase bool
	State      TxState

	// Extra is the opaque extra payload; a payment id may be embedded in
	// it.
	Extra    []byte
	Messages []string

	SecretKey fn.Option[SecretKey]
}

// Transfer is one destination of a transaction.  Transfers are created in a
// contiguous batch alongside their owning transaction and are immutable
// thereafter.
type Transfer struct {
	Address string
	Amount  int64
}

// Deposit is a time-locked amount accruing interest until its term elapses.
type Deposit struct {
	// CreatingTransactionID owns the output that created the deposit.
	CreatingTransactionID TransactionID

	// SpendingTransactionID is the transaction that withdrew the
	// deposit, or InvalidTransactionID while unspent.
	SpendingTransactionID TransactionID

	// Term is the lock duration in blocks.
	Term uint32

	Amount   uint64
	Interest uint64

	Locked bool
}

// DepositInfo pairs a deposit with the output position that created it,
// which keys the output-to-deposit secondary index.
type DepositInfo struct {
	Deposit
	OutputInTransaction uint32
}

// TokenSummary is the canonical token descriptor carried by token
// transactions: identity and supply parameters plus the amount moved and
// whether the transaction mints the token rather than transferring existing
// units.
type TokenSummary struct {
	TokenID       uint64
	Supply        uint64
	Decimals      uint64
	CreatedHeight uint32
	Ticker        string
	Name          string

	Amount     uint64
	IsCreation bool
}

// TokenTransfer is one destination of a token transaction.
type TokenTransfer struct {
	Address string
	Amount  uint64
	TokenID uint64
}

// TokenTxRecord mirrors TxRecord for token activity, additionally carrying
// the token descriptor.  OutputInTransaction is the registered output
// position when the record entered through the output index, or
// InvalidOutputIndex for send-path records.
type TokenTxRecord struct {
	FirstTransferID TransferID
	TransferCount   uint64

	// TotalAmount is the base-currency moved alongside the token
	// transfer, usually just fee funding.
	TotalAmount uint64
	Fee         uint64

	SentTime   uint64
	UnlockTime uint64

	BlockHeight uint32
	Timestamp   uint64

	Hash  chainhash.Hash
	State TxState

	Token               TokenSummary
	OutputInTransaction uint32

	SecretKey fn.Option[SecretKey]
}

// Payments lists the transactions whose extra payload carries a given
// payment id, in creation order.
type Payments struct {
	PaymentID    chainhash.Hash
	Transactions []TxRecord
}

// TransactionBodyHash returns the hash of a serialized transaction body
// using the chain's legacy Keccak-256 transaction hash.
func TransactionBodyHash(body []byte) chainhash.Hash {
	var h chainhash.Hash
	k := sha3.NewLegacyKeccak256()
	k.Write(body)
	copy(h[:], k.Sum(nil))
	return h
}
