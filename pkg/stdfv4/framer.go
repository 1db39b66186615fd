package stdfv4

import (
	"bytes"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// RawRecord is one framed record before schema decoding: the header tag
// pair plus the exact payload the header declared.
type RawRecord struct {
	Typ     uint8
	Sub     uint8
	Offset  int64 // absolute offset of the record header
	Payload []byte
}

// Framer splits an STDF byte buffer into records. Each record carries a
// 4-byte header {REC_LEN u16, REC_TYP u8, REC_SUB u8} followed by
// exactly REC_LEN payload bytes. The framer is a single-pass iterator:
// Next returns io.EOF when the buffer ends cleanly at a record boundary
// and a *FormatError when it ends inside a header or payload.
type Framer struct {
	s     *kaitai.Stream
	order ByteOrder
	size  int64
}

// NewFramer returns a Framer over a complete STDF buffer.
func NewFramer(data []byte, order ByteOrder) *Framer {
	return &Framer{
		s:     kaitai.NewStream(bytes.NewReader(data)),
		order: order,
		size:  int64(len(data)),
	}
}

// Next returns the next record, io.EOF at a clean end of input, or a
// *FormatError if the buffer ends mid-header or mid-payload.
func (f *Framer) Next() (RawRecord, error) {
	start, err := f.s.Pos()
	if err != nil {
		return RawRecord{}, err
	}
	remaining := f.size - start
	if remaining == 0 {
		return RawRecord{}, io.EOF
	}
	if remaining < 4 {
		return RawRecord{}, &FormatError{Offset: start, Reason: "buffer ends inside a record header"}
	}

	var recLen uint16
	if f.order == BigEndian {
		recLen, err = f.s.ReadU2be()
	} else {
		recLen, err = f.s.ReadU2le()
	}
	if err != nil {
		return RawRecord{}, err
	}
	typ, err := f.s.ReadU1()
	if err != nil {
		return RawRecord{}, err
	}
	sub, err := f.s.ReadU1()
	if err != nil {
		return RawRecord{}, err
	}

	if remaining-4 < int64(recLen) {
		return RawRecord{}, &FormatError{Offset: start, Reason: "declared record length overruns the buffer"}
	}
	payload, err := f.s.ReadBytes(int(recLen))
	if err != nil {
		return RawRecord{}, err
	}

	return RawRecord{Typ: typ, Sub: sub, Offset: start, Payload: payload}, nil
}

// DetectOrder determines the file byte order from the leading FAR
// record. CPU_TYPE 1 (Sun) means big-endian; 0 (VAX) and 2 (x86) and
// everything newer are little-endian. The FAR header itself is
// order-independent enough to validate: REC_LEN is 2 in either order,
// REC_TYP 0, REC_SUB 10.
func DetectOrder(data []byte) (ByteOrder, error) {
	if len(data) < 6 {
		return LittleEndian, &FormatError{Offset: 0, Reason: "buffer shorter than a FAR record"}
	}
	if data[2] != 0 || data[3] != 10 {
		return LittleEndian, &FormatError{Offset: 0, Reason: "file does not begin with a FAR record"}
	}
	lenLE := uint16(data[0]) | uint16(data[1])<<8
	lenBE := uint16(data[0])<<8 | uint16(data[1])
	if lenLE != 2 && lenBE != 2 {
		return LittleEndian, &FormatError{Offset: 0, Reason: "FAR record has unexpected length"}
	}
	if data[4] == 1 {
		return BigEndian, nil
	}
	return LittleEndian, nil
}
