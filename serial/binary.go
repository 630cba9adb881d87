// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package serial

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Little endian is used for all fixed-width scalars.  Lengths use the
// CompactSize encoding from the wire package so sequence and blob sizes stay
// compact for the common small cases.
var byteOrder = binary.LittleEndian

// maxFieldLen caps decoded variable-length fields.  A wallet cache never
// contains a single field anywhere near this large, so anything above it is
// corrupt input rather than real data.
const maxFieldLen = 1 << 26 // 64 MiB

// Writer encodes fields to an underlying io.Writer.  It implements
// Serializer with Reading() == false.
type Writer struct {
	objectVersion
	w io.Writer
}

// NewWriter returns a Writer encoding to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Reading reports false: a Writer encodes.
func (w *Writer) Reading() bool { return false }

func (w *Writer) write(name string, buf []byte) error {
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Uint8 writes a single byte.
func (w *Writer) Uint8(v *uint8, name string) error {
	return w.write(name, []byte{*v})
}

// Uint16 writes a fixed-width little-endian value.
func (w *Writer) Uint16(v *uint16, name string) error {
	var buf [2]byte
	byteOrder.PutUint16(buf[:], *v)
	return w.write(name, buf[:])
}

// Uint32 writes a fixed-width little-endian value.
func (w *Writer) Uint32(v *uint32, name string) error {
	var buf [4]byte
	byteOrder.PutUint32(buf[:], *v)
	return w.write(name, buf[:])
}

// Uint64 writes a fixed-width little-endian value.
func (w *Writer) Uint64(v *uint64, name string) error {
	var buf [8]byte
	byteOrder.PutUint64(buf[:], *v)
	return w.write(name, buf[:])
}

// Int64 writes a fixed-width little-endian value.
func (w *Writer) Int64(v *int64, name string) error {
	u := uint64(*v)
	return w.Uint64(&u, name)
}

// Bool writes a single 0/1 byte.
func (w *Writer) Bool(v *bool, name string) error {
	b := uint8(0)
	if *v {
		b = 1
	}
	return w.Uint8(&b, name)
}

// String writes a CompactSize-prefixed string.
func (w *Writer) String(v *string, name string) error {
	if err := wire.WriteVarString(w.w, 0, *v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Bytes writes a CompactSize-prefixed blob.
func (w *Writer) Bytes(v *[]byte, name string) error {
	if err := wire.WriteVarBytes(w.w, 0, *v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Hash writes the raw 32 bytes of a hash.
func (w *Writer) Hash(v *chainhash.Hash, name string) error {
	return w.write(name, v[:])
}

// SequenceLength writes a CompactSize element count.
func (w *Writer) SequenceLength(v *uint64, name string) error {
	if err := wire.WriteVarInt(w.w, 0, *v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Reader decodes fields from an underlying io.Reader.  It implements
// Serializer with Reading() == true.
type Reader struct {
	objectVersion
	r io.Reader
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Reading reports true: a Reader decodes.
func (r *Reader) Reading() bool { return true }

func (r *Reader) read(name string, buf []byte) error {
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Uint8 reads a single byte.
func (r *Reader) Uint8(v *uint8, name string) error {
	var buf [1]byte
	if err := r.read(name, buf[:]); err != nil {
		return err
	}
	*v = buf[0]
	return nil
}

// Uint16 reads a fixed-width little-endian value.
func (r *Reader) Uint16(v *uint16, name string) error {
	var buf [2]byte
	if err := r.read(name, buf[:]); err != nil {
		return err
	}
	*v = byteOrder.Uint16(buf[:])
	return nil
}

// Uint32 reads a fixed-width little-endian value.
func (r *Reader) Uint32(v *uint32, name string) error {
	var buf [4]byte
	if err := r.read(name, buf[:]); err != nil {
		return err
	}
	*v = byteOrder.Uint32(buf[:])
	return nil
}

// Uint64 reads a fixed-width little-endian value.
func (r *Reader) Uint64(v *uint64, name string) error {
	var buf [8]byte
	if err := r.read(name, buf[:]); err != nil {
		return err
	}
	*v = byteOrder.Uint64(buf[:])
	return nil
}

// Int64 reads a fixed-width little-endian value.
func (r *Reader) Int64(v *int64, name string) error {
	var u uint64
	if err := r.Uint64(&u, name); err != nil {
		return err
	}
	*v = int64(u)
	return nil
}

// Bool reads a single byte, rejecting anything but 0 or 1.
func (r *Reader) Bool(v *bool, name string) error {
	var b uint8
	if err := r.Uint8(&b, name); err != nil {
		return err
	}
	if b > 1 {
		return fmt.Errorf("%s: invalid bool byte %#x", name, b)
	}
	*v = b == 1
	return nil
}

// String reads a CompactSize-prefixed string.
func (r *Reader) String(v *string, name string) error {
	s, err := wire.ReadVarString(r.r, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*v = s
	return nil
}

// Bytes reads a CompactSize-prefixed blob.  An empty blob decodes as nil so
// round-tripping preserves deep equality.
func (r *Reader) Bytes(v *[]byte, name string) error {
	b, err := wire.ReadVarBytes(r.r, 0, maxFieldLen, name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(b) == 0 {
		b = nil
	}
	*v = b
	return nil
}

// Hash reads the raw 32 bytes of a hash.
func (r *Reader) Hash(v *chainhash.Hash, name string) error {
	return r.read(name, v[:])
}

// SequenceLength reads a CompactSize element count.
func (r *Reader) SequenceLength(v *uint64, name string) error {
	n, err := wire.ReadVarInt(r.r, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if n > maxFieldLen {
		return fmt.Errorf("%s: sequence length %d too large", name, n)
	}
	*v = n
	return nil
}

// Compile-time interface checks.
var _ Serializer = (*Writer)(nil)
var _ Serializer = (*Reader)(nil)
