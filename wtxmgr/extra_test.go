// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// TestExtraRoundTrip builds an extra payload and parses the payment id back
// out of it.
func TestExtraRoundTrip(t *testing.T) {
	t.Parallel()

	var pubKey PublicKey
	pubKey[0] = 0xaa

	paymentID := chainhash.Hash{0x01, 0x02, 0x03}

	extra := BuildExtra(&pubKey, &paymentID)

	got, ok := PaymentIDFromExtra(extra)
	require.True(t, ok)
	require.Equal(t, paymentID, got)
}

// TestExtraWithoutPaymentID covers payloads that carry no payment id.
func TestExtraWithoutPaymentID(t *testing.T) {
	t.Parallel()

	var pubKey PublicKey

	tests := []struct {
		name  string
		extra []byte
	}{
		{name: "empty", extra: nil},
		{name: "pubkey only", extra: BuildExtra(&pubKey, nil)},
		{name: "padding", extra: []byte{0x00, 0x00, 0x00}},
		{name: "unknown tag", extra: []byte{0x7f, 0x01, 0x02}},
		{name: "truncated pubkey", extra: []byte{0x01, 0xaa, 0xbb}},
		{
			name: "nonce without payment id marker",
			extra: []byte{
				0x02, 0x03, // nonce, 3 bytes
				0x01, 0xaa, 0xbb,
			},
		},
		{
			name: "nonce too short for payment id",
			extra: []byte{
				0x02, 0x02, // nonce, 2 bytes
				0x00, 0xaa,
			},
		},
		{
			name:  "nonce size past end",
			extra: []byte{0x02, 0x21, 0x00},
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, ok := PaymentIDFromExtra(test.extra)
			require.False(t, ok)
		})
	}
}

// TestExtraSkipsLeadingFields ensures the payment id is found behind other
// entries.
func TestExtraSkipsLeadingFields(t *testing.T) {
	t.Parallel()

	var pubKey PublicKey
	paymentID := chainhash.Hash{0xee}

	extra := BuildExtra(&pubKey, &paymentID)

	got, ok := PaymentIDFromExtra(extra)
	require.True(t, ok)
	require.Equal(t, paymentID, got)

	// Padding after the pubkey ends the scan before the nonce.
	padded := append([]byte{}, extra[:33]...)
	padded = append(padded, 0x00)
	_, ok = PaymentIDFromExtra(padded)
	require.False(t, ok)
}

// TestTransactionBodyHash pins that the body hash is deterministic and
// body-sensitive.
func TestTransactionBodyHash(t *testing.T) {
	t.Parallel()

	a := TransactionBodyHash([]byte("body"))
	b := TransactionBodyHash([]byte("body"))
	c := TransactionBodyHash([]byte("other"))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.NotEqual(t, chainhash.Hash{}, a)
}
