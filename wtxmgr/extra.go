// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Transaction extra field tags.
const (
	extraTagPadding   = 0x00
	extraTagPublicKey = 0x01
	extraTagNonce     = 0x02

	// extraNoncePaymentID prefixes a payment id inside a nonce field.
	extraNoncePaymentID = 0x00
)

// PaymentIDFromExtra scans a transaction extra payload for an embedded
// payment id.  The extra field is a sequence of tagged entries: padding
// (which consumes the remainder), a 32-byte transaction public key, or a
// length-prefixed nonce.  A nonce carrying a payment id is exactly 33 bytes,
// a zero marker byte followed by the id.  Malformed or truncated payloads
// simply yield no payment id.
func PaymentIDFromExtra(extra []byte) (chainhash.Hash, bool) {
	var paymentID chainhash.Hash

	for len(extra) > 0 {
		tag := extra[0]
		extra = extra[1:]

		switch tag {
		case extraTagPadding:
			return paymentID, false

		case extraTagPublicKey:
			if len(extra) < chainhash.HashSize {
				return paymentID, false
			}
			extra = extra[chainhash.HashSize:]

		case extraTagNonce:
			size, n := binary.Uvarint(extra)
			if n <= 0 || uint64(len(extra[n:])) < size {
				return paymentID, false
			}
			nonce := extra[n : n+int(size)]
			extra = extra[n+int(size):]

			if size == chainhash.HashSize+1 &&
				nonce[0] == extraNoncePaymentID {

				copy(paymentID[:], nonce[1:])
				return paymentID, true
			}

		default:
			// Unknown tag, cannot determine the entry length.
			return paymentID, false
		}
	}

	return paymentID, false
}

// BuildExtra assembles an extra payload from a transaction public key and an
// optional payment id.  Either part may be omitted by passing nil.
func BuildExtra(txPubKey *PublicKey, paymentID *chainhash.Hash) []byte {
	var extra []byte

	if txPubKey != nil {
		extra = append(extra, extraTagPublicKey)
		extra = append(extra, txPubKey[:]...)
	}

	if paymentID != nil {
		var sizeBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(sizeBuf[:], chainhash.HashSize+1)

		extra = append(extra, extraTagNonce)
		extra = append(extra, sizeBuf[:n]...)
		extra = append(extra, extraNoncePaymentID)
		extra = append(extra, paymentID[:]...)
	}

	return extra
}
