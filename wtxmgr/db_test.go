// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cartoon-face/conceal-core/currency"
	"github.com/cartoon-face/conceal-core/serial"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// populateCache fills a cache with one of everything: a confirmed deposit
// creation, a pending send with messages and a retained secret key, and a
// pending token mint.
func populateCache(t *testing.T, c *Cache) {
	t.Helper()

	params := &currency.TestNetParams

	createHash := chainhash.Hash{0x01}
	_, err := c.OnTransactionUpdated(TransactionInfo{
		Hash:           createHash,
		BlockHeight:    100,
		Timestamp:      1_700_000_000,
		TotalAmountIn:  1_000_100,
		TotalAmountOut: 1_000_000,
	}, 1_000_000, []TransactionOutput{{
		TransactionHash: createHash,
		Index:           0,
		Amount:          1_000_000,
		Term:            100,
	}}, nil, params)
	require.NoError(t, err)

	var key SecretKey
	key[0] = 0x42

	paymentID := chainhash.Hash{0xaa}
	id := c.AddNewTransaction(500, 5, 0, BuildExtra(nil, &paymentID),
		[]Transfer{{Address: "ccx7recipient", Amount: 495}},
		[]string{"invoice 17"}, fn.Some(key))
	require.NoError(t, c.UpdateTransaction(id, []byte("send-body"), 500,
		[]TransactionOutput{{Amount: 20}},
		[]OutPoint{testOutPoint(0x05, 2)}))

	mint := testToken
	mint.Amount = 1_000
	mint.IsCreation = true
	tokenID := c.AddNewTokenTransaction(0, 1, 0, mint, []TokenTransfer{
		{Address: "ccx7self", Amount: 1_000, TokenID: 5},
	}, noKey())
	require.NoError(t, c.UpdateTokenTransaction(tokenID, []byte("mint"),
		0, nil, nil))
}

// TestCacheSerializeRoundTrip checks that a fully populated ledger survives
// encode plus decode, secondary indexes included.
func TestCacheSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	clk := clock.NewTestClock(testTime)
	c := NewCache(time.Hour, clk)
	populateCache(t, c)

	var buf bytes.Buffer
	require.NoError(t, c.Serialize(serial.NewWriter(&buf)))

	got := NewCache(time.Hour, clk)
	r := serial.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, got.Serialize(r))

	require.Equal(t, c, got, "decoded cache differs: %v",
		spew.Sdump(got))

	// Spot-check the restored indexes.
	require.True(t, got.IsOutputUsed(testOutPoint(0x05, 2)))
	require.EqualValues(t, 1_000, got.UnconfirmedMintedTokensSum())

	payments := got.TransactionsByPaymentIDs([]chainhash.Hash{
		{0xaa},
	})
	require.Len(t, payments[0].Transactions, 1)

	hash, index, ok := got.DepositOutpoint(0)
	require.True(t, ok)
	require.Equal(t, chainhash.Hash{0x01}, hash)
	require.EqualValues(t, 0, index)

	// A second encode is byte-identical.
	var buf2 bytes.Buffer
	require.NoError(t, got.Serialize(serial.NewWriter(&buf2)))
	require.Equal(t, buf.Bytes(), buf2.Bytes())
}

// TestCacheSerializeV1Read checks that a version 1 blob, which predates the
// token tables, still decodes.
func TestCacheSerializeV1Read(t *testing.T) {
	t.Parallel()

	clk := clock.NewTestClock(testTime)
	c := NewCache(time.Hour, clk)
	populateCache(t, c)

	// Hand-encode the version 1 layout: header plus the base tables
	// only.
	var buf bytes.Buffer
	w := serial.NewWriter(&buf)
	version := uint32(cacheVersionV1)
	require.NoError(t, w.Uint32(&version, "version"))
	w.SetObjectVersion(cacheVersionV1)
	require.NoError(t, c.serializeTransactions(w))
	require.NoError(t, c.serializeTransfers(w))
	require.NoError(t, c.serializeDeposits(w))
	require.NoError(t, c.unconfirmed.Serialize(w))

	got := NewCache(time.Hour, clk)
	r := serial.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, got.Serialize(r))

	require.Equal(t, c.TransactionCount(), got.TransactionCount())
	require.Equal(t, c.TransferCount(), got.TransferCount())
	require.Equal(t, c.DepositCount(), got.DepositCount())
	require.EqualValues(t, 0, got.TokenTransactionCount())
	require.EqualValues(t, 0, got.TokenTransferCount())

	require.True(t, got.IsOutputUsed(testOutPoint(0x05, 2)))

	// Saving again upgrades the blob to the current version.
	var buf2 bytes.Buffer
	require.NoError(t, got.Serialize(serial.NewWriter(&buf2)))
	require.EqualValues(t, CacheVersion, buf2.Bytes()[0])
}

// TestCacheSerializeRejectsCorruptInput covers the decode guards.
func TestCacheSerializeRejectsCorruptInput(t *testing.T) {
	t.Parallel()

	t.Run("unknown version", func(t *testing.T) {
		t.Parallel()

		blob := []byte{0x09, 0x00, 0x00, 0x00}
		c := NewCache(time.Hour, clock.NewTestClock(testTime))
		err := c.Serialize(serial.NewReader(bytes.NewReader(blob)))
		require.True(t, IsError(err, ErrData))
	})

	t.Run("invalid state byte", func(t *testing.T) {
		t.Parallel()

		clk := clock.NewTestClock(testTime)
		c := NewCache(time.Hour, clk)
		c.AddNewTransaction(100, 1, 0, nil, nil, nil, noKey())

		var buf bytes.Buffer
		require.NoError(t, c.Serialize(serial.NewWriter(&buf)))

		// The state byte sits behind the fixed-width record prefix.
		blob := buf.Bytes()
		stateOff := 4 + 1 + // version, tx count
			8*8 + // eight uint64 fields
			4 + // block height
			8 + // timestamp
			32 + // hash
			1 // coinbase flag
		require.EqualValues(t, StateSending, blob[stateOff])
		blob[stateOff] = byte(StateFailed) + 1

		got := NewCache(time.Hour, clk)
		err := got.Serialize(serial.NewReader(bytes.NewReader(blob)))
		require.True(t, IsError(err, ErrData))
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		clk := clock.NewTestClock(testTime)
		c := NewCache(time.Hour, clk)
		populateCache(t, c)

		var buf bytes.Buffer
		require.NoError(t, c.Serialize(serial.NewWriter(&buf)))

		got := NewCache(time.Hour, clk)
		blob := buf.Bytes()[:buf.Len()/2]
		err := got.Serialize(serial.NewReader(bytes.NewReader(blob)))
		require.Error(t, err)
	})
}
