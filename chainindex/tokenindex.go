// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainindex

import (
	"fmt"
	"sort"

	"github.com/cartoon-face/conceal-core/serial"
)

// tokenCheckpoint is one materialized entry of the token index.  Amount is a
// running sum over every block up to and including Height; TokenID is the
// highest token id assigned as of that block, which is non-decreasing since
// ids are handed out monotonically.
type tokenCheckpoint struct {
	height  uint32
	amount  int64
	tokenID uint64
}

// TokenIndex is the token parameterization of the cumulative height index.
// Unlike DepositIndex, the secondary quantity is not summed: each checkpoint
// records the last token id assigned, so the log doubles as a registry of
// when each id appeared.  The zero value is an empty index ready for use.
type TokenIndex struct {
	checkpoints []tokenCheckpoint
	blockCount  uint32
}

// PushBlock appends one block to the logical chain view.  A non-zero amount
// materializes a checkpoint; a zero amount only advances the block count.
// tokenID must be non-decreasing across pushes; running-sum overflow or an
// id moving backwards indicates a desynchronized ledger and panics.
func (x *TokenIndex) PushBlock(amount int64, tokenID uint64) {
	var lastAmount int64
	var lastID uint64
	if n := len(x.checkpoints); n > 0 {
		lastAmount = x.checkpoints[n-1].amount
		lastID = x.checkpoints[n-1].tokenID
	}

	if sumWillOverflowInt64(amount, lastAmount) {
		panic(fmt.Sprintf("chainindex: token amount sum overflows "+
			"(%d + %d)", lastAmount, amount))
	}
	if amount+lastAmount < 0 {
		panic(fmt.Sprintf("chainindex: cumulative token amount is "+
			"negative at height %d", x.blockCount))
	}
	if tokenID < lastID {
		panic(fmt.Sprintf("chainindex: token id moved backwards "+
			"(%d after %d)", tokenID, lastID))
	}

	if amount != 0 {
		x.checkpoints = append(x.checkpoints, tokenCheckpoint{
			height:  x.blockCount,
			amount:  amount + lastAmount,
			tokenID: tokenID,
		})
	}
	x.blockCount++
}

// PopBlock undoes exactly one PushBlock.  Popping an empty index panics.
func (x *TokenIndex) PopBlock() {
	if x.blockCount == 0 {
		panic("chainindex: popping block from empty token index")
	}
	x.blockCount--
	if n := len(x.checkpoints); n > 0 && x.checkpoints[n-1].height == x.blockCount {
		x.checkpoints = x.checkpoints[:n-1]
	}
}

// PopBlocks removes every checkpoint with height >= from and resets the
// logical block count to from, returning the number of blocks rolled back.
// It returns 0 when from is not below the current block count.
func (x *TokenIndex) PopBlocks(from uint32) int {
	if from >= x.blockCount {
		return 0
	}

	i := sort.Search(len(x.checkpoints), func(i int) bool {
		return x.checkpoints[i].height >= from
	})
	x.checkpoints = x.checkpoints[:i]

	diff := x.blockCount - from
	x.blockCount = from
	return int(diff)
}

// upperBound returns the position of the first checkpoint above height.
func (x *TokenIndex) upperBound(height uint32) int {
	return sort.Search(len(x.checkpoints), func(i int) bool {
		return x.checkpoints[i].height > height
	})
}

// AmountAtHeight returns the cumulative token amount as of (and including)
// height, or 0 when no checkpoint precedes it.
func (x *TokenIndex) AmountAtHeight(height uint32) int64 {
	i := x.upperBound(height)
	if i == 0 {
		return 0
	}
	return x.checkpoints[i-1].amount
}

// TokenIDAtHeight returns the last token id assigned as of (and including)
// height, or 0 when no checkpoint precedes it.
func (x *TokenIndex) TokenIDAtHeight(height uint32) uint64 {
	i := x.upperBound(height)
	if i == 0 {
		return 0
	}
	return x.checkpoints[i-1].tokenID
}

// AmountByTokenID returns the cumulative token amount recorded by the most
// recent checkpoint at or below height that carries tokenID.  A token id
// with no checkpoint in the index yields 0.
func (x *TokenIndex) AmountByTokenID(tokenID uint64, height uint32) int64 {
	// Walk back from the height cutoff until the id window is found.
	// Checkpoint ids are non-decreasing, so once a smaller id is seen the
	// requested one cannot appear earlier.
	for i := x.upperBound(height); i > 0; i-- {
		cp := &x.checkpoints[i-1]
		if cp.tokenID == tokenID {
			return cp.amount
		}
		if cp.tokenID < tokenID {
			break
		}
	}
	return 0
}

// FullAmount returns the cumulative token amount over the whole index.
func (x *TokenIndex) FullAmount() int64 {
	if len(x.checkpoints) == 0 {
		return 0
	}
	return x.checkpoints[len(x.checkpoints)-1].amount
}

// KnownTokenIDs returns the highest token id the index has seen, which is
// also the count of assigned ids, or 0 for an empty index.
func (x *TokenIndex) KnownTokenIDs() uint64 {
	if len(x.checkpoints) == 0 {
		return 0
	}
	return x.checkpoints[len(x.checkpoints)-1].tokenID
}

// Size returns the logical block count, not the checkpoint count.
func (x *TokenIndex) Size() uint32 {
	return x.blockCount
}

// Serialize reads or writes the index through s using the layout
// {blockCount, sequence of {height, amount, tokenID}}.
func (x *TokenIndex) Serialize(s serial.Serializer) error {
	blockCount := uint64(x.blockCount)
	if err := s.Uint64(&blockCount, "blockCount"); err != nil {
		return err
	}
	x.blockCount = uint32(blockCount)

	count := uint64(len(x.checkpoints))
	if err := s.SequenceLength(&count, "index"); err != nil {
		return err
	}
	if s.Reading() {
		x.checkpoints = nil
		if count > 0 {
			x.checkpoints = make([]tokenCheckpoint, count)
		}
	}
	for i := range x.checkpoints {
		cp := &x.checkpoints[i]
		if err := s.Uint32(&cp.height, "height"); err != nil {
			return err
		}
		if err := s.Int64(&cp.amount, "amount"); err != nil {
			return err
		}
		if err := s.Uint64(&cp.tokenID, "token_id"); err != nil {
			return err
		}
	}
	return nil
}
