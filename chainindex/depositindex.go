// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainindex implements height-indexed cumulative ledgers for the
// deposit and token activity observed on chain.  Both indices are sparse,
// append-only checkpoint logs: a block with no activity stores nothing, so
// point-in-time queries bind to the number of events rather than the chain
// length.  Rollback support mirrors chain reorganization exactly, block by
// block or in bulk back to a common ancestor.
package chainindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/cartoon-face/conceal-core/serial"
)

// depositCheckpoint is one materialized entry of the deposit index.  Amount
// and Interest are running sums over every block up to and including Height.
type depositCheckpoint struct {
	height   uint32
	amount   int64
	interest uint64
}

// DepositIndex answers "what was the aggregate deposit amount and accrued
// interest as of height H" in O(log n).  Heights are pushed strictly in
// order; violating the push/pop discipline is a programming error and
// panics.  The zero value is an empty index ready for use.
type DepositIndex struct {
	checkpoints []depositCheckpoint
	blockCount  uint32
}

// sumWillOverflowInt64 reports whether x+y wraps.
func sumWillOverflowInt64(x, y int64) bool {
	if y > 0 && x > math.MaxInt64-y {
		return true
	}
	if y < 0 && x < math.MinInt64-y {
		return true
	}
	return false
}

// sumWillOverflowUint64 reports whether x+y wraps.
func sumWillOverflowUint64(x, y uint64) bool {
	return x > math.MaxUint64-y
}

// PushBlock appends one block to the logical chain view.  A non-zero amount
// materializes a checkpoint carrying the new running sums; a zero amount
// only advances the block count.  Overflow of either running sum, or a
// negative cumulative amount, indicates a desynchronized ledger and panics.
func (d *DepositIndex) PushBlock(amount int64, interest uint64) {
	var lastAmount int64
	var lastInterest uint64
	if n := len(d.checkpoints); n > 0 {
		lastAmount = d.checkpoints[n-1].amount
		lastInterest = d.checkpoints[n-1].interest
	}

	if sumWillOverflowInt64(amount, lastAmount) {
		panic(fmt.Sprintf("chainindex: deposit amount sum overflows "+
			"(%d + %d)", lastAmount, amount))
	}
	if sumWillOverflowUint64(interest, lastInterest) {
		panic(fmt.Sprintf("chainindex: deposit interest sum overflows "+
			"(%d + %d)", lastInterest, interest))
	}
	if amount+lastAmount < 0 {
		panic(fmt.Sprintf("chainindex: cumulative deposit amount is "+
			"negative at height %d", d.blockCount))
	}

	if amount != 0 {
		d.checkpoints = append(d.checkpoints, depositCheckpoint{
			height:   d.blockCount,
			amount:   amount + lastAmount,
			interest: interest + lastInterest,
		})
	}
	d.blockCount++
}

// PopBlock undoes exactly one PushBlock.  Popping an empty index panics.
func (d *DepositIndex) PopBlock() {
	if d.blockCount == 0 {
		panic("chainindex: popping block from empty deposit index")
	}
	d.blockCount--
	if n := len(d.checkpoints); n > 0 && d.checkpoints[n-1].height == d.blockCount {
		d.checkpoints = d.checkpoints[:n-1]
	}
}

// PopBlocks removes every checkpoint with height >= from and resets the
// logical block count to from, returning the number of blocks rolled back.
// It returns 0 when from is not below the current block count.
func (d *DepositIndex) PopBlocks(from uint32) int {
	if from >= d.blockCount {
		return 0
	}

	i := sort.Search(len(d.checkpoints), func(i int) bool {
		return d.checkpoints[i].height >= from
	})
	d.checkpoints = d.checkpoints[:i]

	diff := d.blockCount - from
	d.blockCount = from
	return int(diff)
}

// upperBound returns the position of the first checkpoint above height.
func (d *DepositIndex) upperBound(height uint32) int {
	return sort.Search(len(d.checkpoints), func(i int) bool {
		return d.checkpoints[i].height > height
	})
}

// AmountAtHeight returns the cumulative deposit amount as of (and including)
// height, or 0 when no checkpoint precedes it.
func (d *DepositIndex) AmountAtHeight(height uint32) int64 {
	i := d.upperBound(height)
	if i == 0 {
		return 0
	}
	return d.checkpoints[i-1].amount
}

// InterestAtHeight returns the cumulative accrued interest as of (and
// including) height, or 0 when no checkpoint precedes it.
func (d *DepositIndex) InterestAtHeight(height uint32) uint64 {
	i := d.upperBound(height)
	if i == 0 {
		return 0
	}
	return d.checkpoints[i-1].interest
}

// FullAmount returns the cumulative deposit amount over the whole index.
func (d *DepositIndex) FullAmount() int64 {
	if len(d.checkpoints) == 0 {
		return 0
	}
	return d.checkpoints[len(d.checkpoints)-1].amount
}

// FullInterest returns the cumulative accrued interest over the whole index.
func (d *DepositIndex) FullInterest() uint64 {
	if len(d.checkpoints) == 0 {
		return 0
	}
	return d.checkpoints[len(d.checkpoints)-1].interest
}

// Size returns the logical block count, not the checkpoint count.
func (d *DepositIndex) Size() uint32 {
	return d.blockCount
}

// Serialize reads or writes the index through s using the layout
// {blockCount, sequence of {height, amount, interest}}.
func (d *DepositIndex) Serialize(s serial.Serializer) error {
	blockCount := uint64(d.blockCount)
	if err := s.Uint64(&blockCount, "blockCount"); err != nil {
		return err
	}
	d.blockCount = uint32(blockCount)

	count := uint64(len(d.checkpoints))
	if err := s.SequenceLength(&count, "index"); err != nil {
		return err
	}
	if s.Reading() {
		d.checkpoints = nil
		if count > 0 {
			d.checkpoints = make([]depositCheckpoint, count)
		}
	}
	for i := range d.checkpoints {
		cp := &d.checkpoints[i]
		if err := s.Uint32(&cp.height, "height"); err != nil {
			return err
		}
		if err := s.Int64(&cp.amount, "amount"); err != nil {
			return err
		}
		if err := s.Uint64(&cp.interest, "interest"); err != nil {
			return err
		}
	}
	return nil
}
