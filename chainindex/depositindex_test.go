// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainindex

import (
	"bytes"
	"math"
	"testing"

	"github.com/cartoon-face/conceal-core/serial"
	"github.com/stretchr/testify/require"
)

// TestDepositIndexEmpty pins the zero-value behavior.
func TestDepositIndexEmpty(t *testing.T) {
	t.Parallel()

	var idx DepositIndex

	require.EqualValues(t, 0, idx.Size())
	require.EqualValues(t, 0, idx.FullAmount())
	require.EqualValues(t, 0, idx.FullInterest())
	require.EqualValues(t, 0, idx.AmountAtHeight(100))
	require.EqualValues(t, 0, idx.InterestAtHeight(100))
	require.EqualValues(t, 0, idx.PopBlocks(0))
}

// TestDepositIndexPushAndQuery walks a small chain with a quiet block and a
// partial withdrawal and checks the point-in-time sums.
func TestDepositIndexPushAndQuery(t *testing.T) {
	t.Parallel()

	var idx DepositIndex
	idx.PushBlock(100, 10) // height 0
	idx.PushBlock(0, 0)    // height 1, no checkpoint
	idx.PushBlock(50, 5)   // height 2
	idx.PushBlock(-30, 0)  // height 3, withdrawal

	require.EqualValues(t, 4, idx.Size())
	require.EqualValues(t, 120, idx.FullAmount())
	require.EqualValues(t, 15, idx.FullInterest())

	require.EqualValues(t, 100, idx.AmountAtHeight(0))
	require.EqualValues(t, 100, idx.AmountAtHeight(1))
	require.EqualValues(t, 150, idx.AmountAtHeight(2))
	require.EqualValues(t, 120, idx.AmountAtHeight(3))
	require.EqualValues(t, 120, idx.AmountAtHeight(1000))

	require.EqualValues(t, 10, idx.InterestAtHeight(1))
	require.EqualValues(t, 15, idx.InterestAtHeight(2))
}

// TestDepositIndexPopBlocks checks bulk rollback to a common ancestor.
func TestDepositIndexPopBlocks(t *testing.T) {
	t.Parallel()

	var idx DepositIndex
	idx.PushBlock(100, 10)
	idx.PushBlock(0, 0)
	idx.PushBlock(50, 5)
	idx.PushBlock(-30, 0)

	require.Equal(t, 2, idx.PopBlocks(2))
	require.EqualValues(t, 2, idx.Size())
	require.EqualValues(t, 100, idx.FullAmount())
	require.EqualValues(t, 10, idx.FullInterest())

	// Rolling back to the current tip or beyond is a no-op.
	require.Equal(t, 0, idx.PopBlocks(2))
	require.Equal(t, 0, idx.PopBlocks(10))
}

// TestDepositIndexRollbackExact verifies that popping the same blocks that
// were pushed restores the previous state bit for bit.
func TestDepositIndexRollbackExact(t *testing.T) {
	t.Parallel()

	var idx DepositIndex
	idx.PushBlock(100, 10)
	idx.PushBlock(0, 0)
	idx.PushBlock(7, 1)

	var before bytes.Buffer
	require.NoError(t, idx.Serialize(serial.NewWriter(&before)))

	idx.PushBlock(0, 0)
	idx.PushBlock(33, 2)
	idx.PushBlock(-5, 0)

	idx.PopBlock()
	idx.PopBlock()
	idx.PopBlock()

	var after bytes.Buffer
	require.NoError(t, idx.Serialize(serial.NewWriter(&after)))
	require.Equal(t, before.Bytes(), after.Bytes())
}

// TestDepositIndexReplayDeterminism verifies that rollback plus replay of
// the same blocks converges to the same state.
func TestDepositIndexReplayDeterminism(t *testing.T) {
	t.Parallel()

	push := func(idx *DepositIndex) {
		idx.PushBlock(0, 0)
		idx.PushBlock(40, 4)
		idx.PushBlock(-10, 0)
	}

	var idx DepositIndex
	idx.PushBlock(100, 10)
	push(&idx)

	var want bytes.Buffer
	require.NoError(t, idx.Serialize(serial.NewWriter(&want)))

	require.Equal(t, 3, idx.PopBlocks(1))
	push(&idx)

	var got bytes.Buffer
	require.NoError(t, idx.Serialize(serial.NewWriter(&got)))
	require.Equal(t, want.Bytes(), got.Bytes())
}

// TestDepositIndexPanics pins the push/pop discipline violations.
func TestDepositIndexPanics(t *testing.T) {
	t.Parallel()

	t.Run("pop empty", func(t *testing.T) {
		t.Parallel()

		var idx DepositIndex
		require.Panics(t, func() { idx.PopBlock() })
	})

	t.Run("amount overflow", func(t *testing.T) {
		t.Parallel()

		var idx DepositIndex
		idx.PushBlock(math.MaxInt64, 0)
		require.Panics(t, func() { idx.PushBlock(1, 0) })
	})

	t.Run("interest overflow", func(t *testing.T) {
		t.Parallel()

		var idx DepositIndex
		idx.PushBlock(1, math.MaxUint64)
		require.Panics(t, func() { idx.PushBlock(1, 1) })
	})

	t.Run("negative cumulative amount", func(t *testing.T) {
		t.Parallel()

		var idx DepositIndex
		idx.PushBlock(100, 0)
		require.Panics(t, func() { idx.PushBlock(-101, 0) })
	})
}

// TestDepositIndexSerializeRoundTrip checks that decode(encode(x)) == x,
// quiet blocks included.
func TestDepositIndexSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	var idx DepositIndex
	idx.PushBlock(100, 10)
	idx.PushBlock(0, 0)
	idx.PushBlock(-20, 0)
	idx.PushBlock(0, 0)

	var buf bytes.Buffer
	require.NoError(t, idx.Serialize(serial.NewWriter(&buf)))

	var got DepositIndex
	r := serial.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, got.Serialize(r))

	require.Equal(t, idx, got)
}
