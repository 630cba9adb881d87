// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cartoon-face/conceal-core/currency"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *clock.TestClock) {
	t.Helper()

	clk := clock.NewTestClock(testTime)
	return NewCache(time.Hour, clk), clk
}

func noKey() fn.Option[SecretKey] {
	return fn.None[SecretKey]()
}

// TestSendConfirmFlow walks an outgoing transaction from allocation through
// confirmation.
func TestSendConfirmFlow(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	params := &currency.MainNetParams

	id := c.AddNewTransaction(1000, 10, 0, nil, []Transfer{
		{Address: "ccx7recipient", Amount: 990},
	}, nil, noKey())

	rec, ok := c.Transaction(id)
	require.True(t, ok)
	require.Equal(t, StateSending, rec.State)
	require.Equal(t, UnconfirmedHeight, rec.BlockHeight)
	require.EqualValues(t, -1000, rec.TotalAmount)
	require.EqualValues(t, 1, rec.TransferCount)

	transfer, ok := c.Transfer(rec.FirstTransferID)
	require.True(t, ok)
	require.Equal(t, "ccx7recipient", transfer.Address)

	body := []byte("send-body")
	spent := testOutPoint(0x01, 0)
	err := c.UpdateTransaction(id, body, 1000, []TransactionOutput{
		{Amount: 40},
	}, []OutPoint{spent})
	require.NoError(t, err)

	require.True(t, c.IsOutputUsed(spent))
	require.EqualValues(t, 1000, c.UnconfirmedTransactionsAmount(0))
	require.EqualValues(t, 40, c.UnconfirmedOutsAmount(0))

	rec, _ = c.Transaction(id)
	require.Equal(t, TransactionBodyHash(body), rec.Hash)

	events, err := c.OnTransactionUpdated(TransactionInfo{
		Hash:           rec.Hash,
		BlockHeight:    120,
		Timestamp:      1_700_000_000,
		TotalAmountIn:  2000,
		TotalAmountOut: 1990,
	}, -1000, nil, nil, params)
	require.NoError(t, err)
	require.Equal(t, []Event{TransactionUpdated{ID: id}}, events)

	rec, _ = c.Transaction(id)
	require.Equal(t, StateActive, rec.State)
	require.EqualValues(t, 120, rec.BlockHeight)
	require.EqualValues(t, 1_700_000_000, rec.Timestamp)

	// Confirmation releases the output claim.
	require.False(t, c.IsOutputUsed(spent))
	require.EqualValues(t, 0, c.UnconfirmedTransactionsAmount(0))
}

// TestObservedTransactionCreatesRecord covers incoming activity first seen
// on chain.
func TestObservedTransactionCreatesRecord(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	params := &currency.MainNetParams

	hash := chainhash.Hash{0x10}
	events, err := c.OnTransactionUpdated(TransactionInfo{
		Hash:           hash,
		BlockHeight:    77,
		Timestamp:      1_700_000_000,
		TotalAmountIn:  600,
		TotalAmountOut: 590,
	}, 500, nil, nil, params)
	require.NoError(t, err)
	require.Len(t, events, 1)

	created, ok := events[0].(TransactionCreated)
	require.True(t, ok)

	rec, ok := c.Transaction(created.ID)
	require.True(t, ok)
	require.Equal(t, StateActive, rec.State)
	require.EqualValues(t, 500, rec.TotalAmount)
	require.EqualValues(t, 10, rec.Fee)
	require.False(t, rec.IsCoinbase)
	require.Equal(t, InvalidTransferID, rec.FirstTransferID)

	// Coinbase transactions have no inputs and carry no fee.
	events, err = c.OnTransactionUpdated(TransactionInfo{
		Hash:           chainhash.Hash{0x11},
		BlockHeight:    78,
		TotalAmountIn:  0,
		TotalAmountOut: 600,
	}, 600, nil, nil, params)
	require.NoError(t, err)

	rec, _ = c.Transaction(events[0].(TransactionCreated).ID)
	require.True(t, rec.IsCoinbase)
	require.EqualValues(t, 0, rec.Fee)
}

// TestUpdateTransactionSendingState covers the Sending resolution paths.
func TestUpdateTransactionSendingState(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)

	id := c.AddNewTransaction(100, 1, 0, nil, nil, nil, noKey())
	spent := testOutPoint(0x01, 0)
	require.NoError(t, c.UpdateTransaction(id, []byte("body"), 100, nil,
		[]OutPoint{spent}))

	// Successful handoff keeps the record Sending.
	require.NoError(t, c.UpdateTransactionSendingState(id, nil))
	rec, _ := c.Transaction(id)
	require.Equal(t, StateSending, rec.State)
	require.True(t, c.IsOutputUsed(spent))

	// A cancel resolves to Cancelled and releases the claim.
	err := c.UpdateTransactionSendingState(id,
		fmt.Errorf("submit: %w", ErrTxCancelled))
	require.NoError(t, err)
	rec, _ = c.Transaction(id)
	require.Equal(t, StateCancelled, rec.State)
	require.False(t, c.IsOutputUsed(spent))

	// Any other error resolves to Failed.
	id2 := c.AddNewTransaction(100, 1, 0, nil, nil, nil, noKey())
	require.NoError(t, c.UpdateTransaction(id2, []byte("body-2"), 100,
		nil, nil))
	require.NoError(t, c.UpdateTransactionSendingState(id2,
		errors.New("relay failed")))
	rec, _ = c.Transaction(id2)
	require.Equal(t, StateFailed, rec.State)

	require.Error(t, c.UpdateTransactionSendingState(99, nil))
	require.True(t, IsError(
		c.UpdateTransactionSendingState(99, nil),
		ErrUnknownTransaction,
	))
}

// TestDepositLifecycle drives a deposit from creation through withdrawal
// and a rollback of the withdrawal.
func TestDepositLifecycle(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	params := &currency.TestNetParams

	createHash := chainhash.Hash{0x20}
	depositOut := TransactionOutput{
		TransactionHash: createHash,
		Index:           0,
		Amount:          1_000_000,
		Term:            100,
	}

	events, err := c.OnTransactionUpdated(TransactionInfo{
		Hash:           createHash,
		BlockHeight:    100,
		TotalAmountIn:  1_000_100,
		TotalAmountOut: 1_000_000,
	}, 1_000_000, []TransactionOutput{depositOut}, nil, params)
	require.NoError(t, err)
	require.Len(t, events, 2)

	createID := events[0].(TransactionCreated).ID
	depositIDs := events[1].(DepositsCreated).IDs
	require.Len(t, depositIDs, 1)

	wantInterest := params.CalculateInterest(1_000_000, 100, 100)
	deposit, ok := c.Deposit(depositIDs[0])
	require.True(t, ok)
	require.Equal(t, createID, deposit.CreatingTransactionID)
	require.Equal(t, InvalidTransactionID, deposit.SpendingTransactionID)
	require.Equal(t, wantInterest, deposit.Interest)
	require.True(t, deposit.Locked)

	// Created at a confirmed height, so nothing is pending.
	require.EqualValues(t, 0, c.UnconfirmedCreatedDepositsSum())

	rec, _ := c.Transaction(createID)
	require.Equal(t, depositIDs[0], rec.FirstDepositID)
	require.EqualValues(t, 1, rec.DepositCount)

	hash, index, ok := c.DepositOutpoint(depositIDs[0])
	require.True(t, ok)
	require.Equal(t, createHash, hash)
	require.EqualValues(t, 0, index)

	// Withdraw the deposit in another transaction.
	spendHash := chainhash.Hash{0x21}
	events, err = c.OnTransactionUpdated(TransactionInfo{
		Hash:           spendHash,
		BlockHeight:    200,
		TotalAmountIn:  1_000_000 + wantInterest,
		TotalAmountOut: 1_000_000 + wantInterest - 10,
	}, int64(1_000_000+wantInterest-10), nil,
		[]TransactionOutput{depositOut}, params)
	require.NoError(t, err)
	require.Len(t, events, 2)

	spendID := events[0].(TransactionCreated).ID
	require.Equal(t, DepositsUpdated{IDs: depositIDs}, events[1])

	deposit, _ = c.Deposit(depositIDs[0])
	require.Equal(t, spendID, deposit.SpendingTransactionID)
	require.False(t, deposit.Locked)

	// Roll the withdrawal back: the deposit locks again and loses its
	// spending link.
	events, err = c.OnTransactionDeleted(spendHash)
	require.NoError(t, err)
	require.Equal(t, []Event{
		DepositsUpdated{IDs: depositIDs},
		TransactionUpdated{ID: spendID},
	}, events)

	deposit, _ = c.Deposit(depositIDs[0])
	require.Equal(t, InvalidTransactionID, deposit.SpendingTransactionID)
	require.True(t, deposit.Locked)

	rec, _ = c.Transaction(spendID)
	require.Equal(t, StateDeleted, rec.State)
	require.Equal(t, UnconfirmedHeight, rec.BlockHeight)

	_, found := c.FindTransactionByHash(spendHash)
	require.False(t, found)

	// Replayed rollback is a no-op.
	events, err = c.OnTransactionDeleted(spendHash)
	require.NoError(t, err)
	require.Empty(t, events)
}

// TestUnconfirmedDepositRegistration checks pending deposits count toward
// the unconfirmed sum until their transaction confirms.
func TestUnconfirmedDepositRegistration(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	params := &currency.TestNetParams

	hash := chainhash.Hash{0x30}
	depositOut := TransactionOutput{
		TransactionHash: hash,
		Index:           1,
		Amount:          2_000_000,
		Term:            100,
	}

	_, err := c.OnTransactionUpdated(TransactionInfo{
		Hash:           hash,
		BlockHeight:    UnconfirmedHeight,
		TotalAmountIn:  2_000_100,
		TotalAmountOut: 2_000_000,
	}, 2_000_000, []TransactionOutput{depositOut}, nil, params)
	require.NoError(t, err)

	wantInterest := params.CalculateInterest(2_000_000, 100, 0)
	require.Equal(t, 2_000_000+wantInterest,
		c.UnconfirmedCreatedDepositsSum())

	// Confirmation clears the pending registration.
	_, err = c.OnTransactionUpdated(TransactionInfo{
		Hash:           hash,
		BlockHeight:    150,
		TotalAmountIn:  2_000_100,
		TotalAmountOut: 2_000_000,
	}, 2_000_000, []TransactionOutput{depositOut}, nil, params)
	require.NoError(t, err)
	require.EqualValues(t, 0, c.UnconfirmedCreatedDepositsSum())

	// The deposit itself was created once.
	require.EqualValues(t, 1, c.DepositCount())
}

// TestInsertDepositAtMostOnce pins the output-position uniqueness
// invariant.
func TestInsertDepositAtMostOnce(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	params := &currency.TestNetParams

	hash := chainhash.Hash{0x40}
	_, err := c.OnTransactionUpdated(TransactionInfo{
		Hash:        hash,
		BlockHeight: 10,
	}, 0, nil, nil, params)
	require.NoError(t, err)

	deposit := Deposit{
		CreatingTransactionID: 0,
		SpendingTransactionID: InvalidTransactionID,
		Term:                  100,
		Amount:                500,
		Locked:                true,
	}

	id, inserted := c.InsertDeposit(deposit, 2, hash)
	require.True(t, inserted)

	again, inserted := c.InsertDeposit(deposit, 2, hash)
	require.False(t, inserted)
	require.Equal(t, id, again)
	require.EqualValues(t, 1, c.DepositCount())
}

// TestUnlockAndLockDeposits covers term-elapse unlocking and its rollback.
func TestUnlockAndLockDeposits(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	params := &currency.TestNetParams

	hash := chainhash.Hash{0x50}
	depositOut := TransactionOutput{
		TransactionHash: hash,
		Index:           0,
		Amount:          1_000_000,
		Term:            50,
	}

	events, err := c.OnTransactionUpdated(TransactionInfo{
		Hash:        hash,
		BlockHeight: 10,
	}, 0, []TransactionOutput{depositOut}, nil, params)
	require.NoError(t, err)
	ids := events[1].(DepositsCreated).IDs

	got := c.UnlockDeposits([]TransactionOutput{depositOut})
	require.Equal(t, ids, got)
	deposit, _ := c.Deposit(ids[0])
	require.False(t, deposit.Locked)

	got = c.LockDeposits([]TransactionOutput{depositOut})
	require.Equal(t, ids, got)
	deposit, _ = c.Deposit(ids[0])
	require.True(t, deposit.Locked)

	// Unknown outputs are skipped.
	require.Empty(t, c.UnlockDeposits([]TransactionOutput{
		{TransactionHash: chainhash.Hash{0x51}, Index: 9},
	}))
}

// TestPaymentIDQueries covers the payment id index across creation and
// rollback.
func TestPaymentIDQueries(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	params := &currency.MainNetParams

	paymentID := chainhash.Hash{0xaa}
	extra := BuildExtra(nil, &paymentID)

	hash := chainhash.Hash{0x60}
	_, err := c.OnTransactionUpdated(TransactionInfo{
		Hash:        hash,
		BlockHeight: 5,
		Extra:       extra,
	}, 100, nil, nil, params)
	require.NoError(t, err)

	other := chainhash.Hash{0xbb}
	payments := c.TransactionsByPaymentIDs([]chainhash.Hash{
		paymentID, other,
	})
	require.Len(t, payments, 2)
	require.Equal(t, paymentID, payments[0].PaymentID)
	require.Len(t, payments[0].Transactions, 1)
	require.Equal(t, hash, payments[0].Transactions[0].Hash)
	require.Empty(t, payments[1].Transactions)

	// Rollback removes the transaction from the index.
	_, err = c.OnTransactionDeleted(hash)
	require.NoError(t, err)

	payments = c.TransactionsByPaymentIDs([]chainhash.Hash{paymentID})
	require.Empty(t, payments[0].Transactions)
}

// TestDeleteOutdatedMarksFailed checks expiry flows through to the record
// state.
func TestDeleteOutdatedMarksFailed(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(t)

	id := c.AddNewTransaction(100, 1, 0, nil, nil, nil, noKey())
	spent := testOutPoint(0x01, 0)
	require.NoError(t, c.UpdateTransaction(id, []byte("body"), 100, nil,
		[]OutPoint{spent}))

	clk.SetTime(testTime.Add(2 * time.Hour))
	ids := c.DeleteOutdated()
	require.Equal(t, []TransactionID{id}, ids)

	rec, _ := c.Transaction(id)
	require.Equal(t, StateFailed, rec.State)
	require.False(t, c.IsOutputUsed(spent))
}

// TestFindTransactionByTransferID resolves transfers back to their owning
// transaction.
func TestFindTransactionByTransferID(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)

	id1 := c.AddNewTransaction(100, 1, 0, nil, []Transfer{
		{Address: "a", Amount: 50},
		{Address: "b", Amount: 49},
	}, nil, noKey())
	id2 := c.AddNewTransaction(200, 1, 0, nil, []Transfer{
		{Address: "c", Amount: 199},
	}, nil, noKey())

	rec1, _ := c.Transaction(id1)
	rec2, _ := c.Transaction(id2)

	got, found := c.FindTransactionByTransferID(rec1.FirstTransferID + 1)
	require.True(t, found)
	require.Equal(t, id1, got)

	got, found = c.FindTransactionByTransferID(rec2.FirstTransferID)
	require.True(t, found)
	require.Equal(t, id2, got)

	_, found = c.FindTransactionByTransferID(99)
	require.False(t, found)
}

// TestReset drops every table and index.
func TestReset(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)

	id := c.AddNewTransaction(100, 1, 0, nil, []Transfer{
		{Address: "a", Amount: 99},
	}, nil, noKey())
	require.NoError(t, c.UpdateTransaction(id, []byte("body"), 100, nil,
		[]OutPoint{testOutPoint(0x01, 0)}))

	c.Reset()

	require.EqualValues(t, 0, c.TransactionCount())
	require.EqualValues(t, 0, c.TransferCount())
	require.EqualValues(t, 0, c.DepositCount())
	require.False(t, c.IsOutputUsed(testOutPoint(0x01, 0)))
}
