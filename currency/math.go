// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import "math/bits"

// Thin wrappers so the interest arithmetic reads as math rather than as
// bit-twiddling at the call site.

func mul64(a, b uint64) (hi, lo uint64) {
	return bits.Mul64(a, b)
}

func div64(hi, lo, c uint64) (quo, rem uint64) {
	return bits.Div64(hi, lo, c)
}
