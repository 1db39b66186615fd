// Package stdfv4 decodes and encodes STDF V4 records: the framing layer,
// the primitive field reader, and a static schema table mapping
// (REC_TYP, REC_SUB) pairs to typed record variants.
package stdfv4

import (
	"bytes"
	"fmt"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"golang.org/x/text/encoding/charmap"
)

// ByteOrder selects the multi-byte integer and float layout for a file.
// STDF fixes it once per file via the FAR record's CPU_TYPE field.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// FieldKind identifies an STDF primitive field kind. The names follow
// the STDF specification's own type codes.
type FieldKind uint8

const (
	KindU1 FieldKind = iota // unsigned 1 byte
	KindU2                  // unsigned 2 bytes
	KindU4                  // unsigned 4 bytes
	KindI1                  // signed 1 byte
	KindI2                  // signed 2 bytes
	KindI4                  // signed 4 bytes
	KindR4                  // IEEE 754 single
	KindR8                  // IEEE 754 double
	KindC1                  // single character
	KindCn                  // 1-byte length prefixed character string
	KindB1                  // 1-byte bit field
	KindBn                  // 1-byte length prefixed byte string
	KindN1                  // 4-bit nibble, packed two per byte
	KindDn                  // u16 bit-count prefixed bit string
)

var fieldKindNames = [...]string{"U1", "U2", "U4", "I1", "I2", "I4", "R4", "R8", "C1", "Cn", "B1", "Bn", "N1", "Dn"}

func (k FieldKind) String() string {
	if int(k) < len(fieldKindNames) {
		return fieldKindNames[k]
	}
	return fmt.Sprintf("FieldKind(%d)", uint8(k))
}

// Reader decodes primitive STDF fields from a single record payload.
// Offsets in errors are absolute file offsets, computed from the record's
// base offset plus the position within the payload.
type Reader struct {
	s     *kaitai.Stream
	order ByteOrder
	base  int64
	size  int64
}

// NewReader returns a Reader over one record payload. base is the
// absolute file offset of the payload's first byte.
func NewReader(payload []byte, order ByteOrder, base int64) *Reader {
	return &Reader{
		s:     kaitai.NewStream(bytes.NewReader(payload)),
		order: order,
		base:  base,
		size:  int64(len(payload)),
	}
}

// Remaining reports how many payload bytes are left to decode.
func (r *Reader) Remaining() int64 {
	pos, err := r.s.Pos()
	if err != nil {
		return 0
	}
	return r.size - pos
}

func (r *Reader) offset() int64 {
	pos, _ := r.s.Pos()
	return r.base + pos
}

func (r *Reader) need(n int64, field string, kind FieldKind) error {
	if r.Remaining() < n {
		return &TruncatedFieldError{Offset: r.offset(), Field: field, Kind: kind}
	}
	return nil
}

// U1 decodes an unsigned 1-byte integer.
func (r *Reader) U1(field string) (uint8, error) {
	if err := r.need(1, field, KindU1); err != nil {
		return 0, err
	}
	return r.s.ReadU1()
}

// U2 decodes an unsigned 2-byte integer in the file's byte order.
func (r *Reader) U2(field string) (uint16, error) {
	if err := r.need(2, field, KindU2); err != nil {
		return 0, err
	}
	if r.order == BigEndian {
		return r.s.ReadU2be()
	}
	return r.s.ReadU2le()
}

// U4 decodes an unsigned 4-byte integer in the file's byte order.
func (r *Reader) U4(field string) (uint32, error) {
	if err := r.need(4, field, KindU4); err != nil {
		return 0, err
	}
	if r.order == BigEndian {
		return r.s.ReadU4be()
	}
	return r.s.ReadU4le()
}

// I1 decodes a signed 1-byte integer.
func (r *Reader) I1(field string) (int8, error) {
	if err := r.need(1, field, KindI1); err != nil {
		return 0, err
	}
	return r.s.ReadS1()
}

// I2 decodes a signed 2-byte integer in the file's byte order.
func (r *Reader) I2(field string) (int16, error) {
	if err := r.need(2, field, KindI2); err != nil {
		return 0, err
	}
	if r.order == BigEndian {
		return r.s.ReadS2be()
	}
	return r.s.ReadS2le()
}

// I4 decodes a signed 4-byte integer in the file's byte order.
func (r *Reader) I4(field string) (int32, error) {
	if err := r.need(4, field, KindI4); err != nil {
		return 0, err
	}
	if r.order == BigEndian {
		return r.s.ReadS4be()
	}
	return r.s.ReadS4le()
}

// R4 decodes an IEEE 754 single-precision float in the file's byte order.
func (r *Reader) R4(field string) (float32, error) {
	if err := r.need(4, field, KindR4); err != nil {
		return 0, err
	}
	if r.order == BigEndian {
		return r.s.ReadF4be()
	}
	return r.s.ReadF4le()
}

// R8 decodes an IEEE 754 double-precision float in the file's byte order.
func (r *Reader) R8(field string) (float64, error) {
	if err := r.need(8, field, KindR8); err != nil {
		return 0, err
	}
	if r.order == BigEndian {
		return r.s.ReadF8be()
	}
	return r.s.ReadF8le()
}

// C1 decodes a single character field.
func (r *Reader) C1(field string) (string, error) {
	if err := r.need(1, field, KindC1); err != nil {
		return "", err
	}
	b, err := r.s.ReadBytes(1)
	if err != nil {
		return "", err
	}
	return decodeChars(b)
}

// Cn decodes a 1-byte length prefixed character string.
func (r *Reader) Cn(field string) (string, error) {
	if err := r.need(1, field, KindCn); err != nil {
		return "", err
	}
	n, err := r.s.ReadU1()
	if err != nil {
		return "", err
	}
	if err := r.need(int64(n), field, KindCn); err != nil {
		return "", err
	}
	b, err := r.s.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return decodeChars(b)
}

// B1 decodes a 1-byte bit field.
func (r *Reader) B1(field string) (uint8, error) {
	if err := r.need(1, field, KindB1); err != nil {
		return 0, err
	}
	return r.s.ReadU1()
}

// Bn decodes a 1-byte length prefixed byte string.
func (r *Reader) Bn(field string) ([]byte, error) {
	if err := r.need(1, field, KindBn); err != nil {
		return nil, err
	}
	n, err := r.s.ReadU1()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Non-nil so callers can tell a present empty field from an
		// absent one.
		return []byte{}, nil
	}
	if err := r.need(int64(n), field, KindBn); err != nil {
		return nil, err
	}
	return r.s.ReadBytes(int(n))
}

// Dn decodes a bit string with a u16 bit-count prefix. The count is the
// number of bits; the data occupies the following ceil(count/8) bytes.
func (r *Reader) Dn(field string) (BitField, error) {
	bits, err := r.U2(field)
	if err != nil {
		return BitField{}, err
	}
	n := (int64(bits) + 7) / 8
	if err := r.need(n, field, KindDn); err != nil {
		return BitField{}, err
	}
	data, err := r.s.ReadBytes(int(n))
	if err != nil {
		return BitField{}, err
	}
	return BitField{Bits: bits, Data: data}, nil
}

// Nibbles decodes count 4-bit values packed two per byte, low nibble first.
func (r *Reader) Nibbles(field string, count int) ([]uint8, error) {
	n := int64(count+1) / 2
	if err := r.need(n, field, KindN1); err != nil {
		return nil, err
	}
	raw, err := r.s.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]uint8, count)
	for i := range out {
		b := raw[i/2]
		if i%2 == 0 {
			out[i] = b & 0x0F
		} else {
			out[i] = b >> 4
		}
	}
	return out, nil
}

// decodeChars maps tester 8-bit character data to UTF-8. ISO 8859-1 is
// byte-transparent, so re-encoding reproduces the original payload.
// Decoders carry state, so each call gets its own.
func decodeChars(b []byte) (string, error) {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decoding character field: %w", err)
	}
	return string(s), nil
}

// BitField is a decoded Dn field: a bit count plus its packed bytes.
// The count is retained so re-encoding reproduces the original prefix.
type BitField struct {
	Bits uint16
	Data []byte
}
