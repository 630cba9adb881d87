// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package serial implements the name-tagged binary serialization capability
// consumed by every persisted wallet entity.  A Serializer visits fields one
// at a time in a fixed order; the same visiting code runs for both reading
// and writing, with the direction reported by Reading.  Field names are part
// of the schema documentation and error messages only; the binary layout is
// positional.
package serial

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Serializer is the field-visiting interface implemented by Writer and
// Reader.  Each method either writes the current value of v (writing
// direction) or replaces it with the decoded value (reading direction).
type Serializer interface {
	// Reading reports the direction of the pass: true while decoding,
	// false while encoding.
	Reading() bool

	Uint8(v *uint8, name string) error
	Uint16(v *uint16, name string) error
	Uint32(v *uint32, name string) error
	Uint64(v *uint64, name string) error
	Int64(v *int64, name string) error
	Bool(v *bool, name string) error

	// String and Bytes encode length-prefixed data.
	String(v *string, name string) error
	Bytes(v *[]byte, name string) error

	// Hash visits a fixed 32-byte hash without a length prefix.
	Hash(v *chainhash.Hash, name string) error

	// SequenceLength visits the element count of a length-prefixed
	// sequence.  The caller then visits each element in order.
	SequenceLength(v *uint64, name string) error

	// SetObjectVersion stamps the version of the outermost object being
	// serialized.  It may be set exactly once per pass and is inherited
	// by nested objects sharing the Serializer.  Setting it twice is a
	// programming error and panics.
	SetObjectVersion(version uint64)

	// ObjectVersion returns the stamped version.  Reading an unset
	// version is a programming error and panics.
	ObjectVersion() uint64
}

// objectVersion carries the once-settable version stamp shared by Writer and
// Reader.
type objectVersion struct {
	version uint64
	set     bool
}

func (o *objectVersion) SetObjectVersion(version uint64) {
	if o.set {
		panic("serial: object version is already set")
	}
	o.version = version
	o.set = true
}

func (o *objectVersion) ObjectVersion() uint64 {
	if !o.set {
		panic("serial: object version is not set")
	}
	return o.version
}
