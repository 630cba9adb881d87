// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package currency supplies the chain parameters the wallet ledger consults
// when materializing deposits: term bounds, amount bounds, and the interest
// formula applied at creation height.
package currency

import (
	"fmt"
)

// Params describes the deposit rules of a network.  Different networks
// (mainnet, testnet) are expressed as different Params values.
type Params struct {
	// Name identifies the network.
	Name string

	// DepositMinAmount is the smallest amount, in atomic units, a
	// deposit output may lock.
	DepositMinAmount uint64

	// DepositMinTerm and DepositMaxTerm bound the lock duration of a
	// deposit, in blocks.
	DepositMinTerm uint32
	DepositMaxTerm uint32

	// DepositMaxTotalRate is the annual interest rate, in percent,
	// earned by a deposit locked for a full year.  Shorter terms earn
	// proportionally less.
	DepositMaxTotalRate uint64

	// BlocksPerYear is the expected number of blocks mined per year and
	// anchors the term-to-rate scaling.
	BlocksPerYear uint32
}

// MainNetParams holds the deposit rules of the main network: two-minute
// blocks, one-month minimum term, one-year maximum.
var MainNetParams = Params{
	Name:                "mainnet",
	DepositMinAmount:    1_000_000,
	DepositMinTerm:      21_900,
	DepositMaxTerm:      262_800,
	DepositMaxTotalRate: 5,
	BlocksPerYear:       262_800,
}

// TestNetParams relaxes the term bounds so deposits mature quickly under
// test harnesses while keeping the mainnet rate curve.
var TestNetParams = Params{
	Name:                "testnet",
	DepositMinAmount:    1,
	DepositMinTerm:      10,
	DepositMaxTerm:      262_800,
	DepositMaxTotalRate: 5,
	BlocksPerYear:       262_800,
}

// ValidTerm reports whether term is within the network's deposit bounds.
func (p *Params) ValidTerm(term uint32) bool {
	return term >= p.DepositMinTerm && term <= p.DepositMaxTerm
}

// ValidAmount reports whether amount meets the network's deposit minimum.
func (p *Params) ValidAmount(amount uint64) bool {
	return amount >= p.DepositMinAmount
}

// mulDiv128 computes a*b/c without intermediate overflow using 128-bit
// arithmetic.
func mulDiv128(a, b, c uint64) uint64 {
	hi, lo := mul64(a, b)
	if hi >= c {
		panic(fmt.Sprintf("currency: interest quotient overflows "+
			"(%d * %d / %d)", a, b, c))
	}
	q, _ := div64(hi, lo, c)
	return q
}

// CalculateInterest returns the interest accrued by a deposit of the given
// amount locked for term blocks starting at the given height.  The rate
// scales linearly with the term against the full-year rate, so interest is
// strictly derived from (amount, term) and is stable under replay after a
// reorganization.  The height parameter selects the rate epoch; the current
// rules use a single epoch, so it is accepted for interface stability.
func (p *Params) CalculateInterest(amount uint64, term uint32, height uint32) uint64 {
	_ = height

	// interest = amount * rate% * (term / blocksPerYear)
	//          = amount * rate * term / (100 * blocksPerYear)
	return mulDiv128(amount, p.DepositMaxTotalRate*uint64(term),
		100*uint64(p.BlocksPerYear))
}
