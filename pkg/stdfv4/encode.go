package stdfv4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"golang.org/x/text/encoding/charmap"
)

// EncodeRecord encodes a record back to its framed wire form: the
// 4-byte header followed by the payload. Optional tail fields are
// written up to the last present one, so a decoded record re-encodes to
// the exact bytes it came from.
func EncodeRecord(rec Record, order ByteOrder) ([]byte, error) {
	var payload []byte
	if o, ok := rec.(*Opaque); ok {
		payload = o.Payload
	} else {
		var err error
		payload, err = encodeFields(rec, order)
		if err != nil {
			return nil, fmt.Errorf("encoding %s record: %w", rec.RecordType(), err)
		}
	}
	if len(payload) > math.MaxUint16 {
		return nil, fmt.Errorf("encoding %s record: payload of %d bytes exceeds the u16 length field", rec.RecordType(), len(payload))
	}

	t := rec.RecordType()
	out := make([]byte, 4, 4+len(payload))
	if order == BigEndian {
		binary.BigEndian.PutUint16(out, uint16(len(payload)))
	} else {
		binary.LittleEndian.PutUint16(out, uint16(len(payload)))
	}
	out[2] = t.Typ
	out[3] = t.Sub
	return append(out, payload...), nil
}

// EncodeStream frames records back to back, the way they sit in a file.
func EncodeStream(order ByteOrder, recs ...Record) ([]byte, error) {
	var out []byte
	for _, rec := range recs {
		b, err := EncodeRecord(rec, order)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeFields(rec Record, order ByteOrder) ([]byte, error) {
	v := reflect.ValueOf(rec).Elem()
	prog, err := programFor(v.Type())
	if err != nil {
		return nil, err
	}

	w := &fieldWriter{order: order}
	stopped := ""
	for _, op := range prog {
		field := v.Field(op.index)
		absent := (field.Kind() == reflect.Pointer || field.Kind() == reflect.Slice) && field.IsNil()
		if stopped != "" {
			if !absent {
				return nil, fmt.Errorf("field %s is set after absent field %s", op.name, stopped)
			}
			continue
		}
		if absent {
			stopped = op.name
			continue
		}
		if field.Kind() == reflect.Pointer {
			field = field.Elem()
		}
		if err := w.write(op, field); err != nil {
			return nil, err
		}
	}
	return w.buf.Bytes(), nil
}

type fieldWriter struct {
	buf   bytes.Buffer
	order ByteOrder
}

func (w *fieldWriter) binaryOrder() binary.ByteOrder {
	if w.order == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (w *fieldWriter) write(op fieldOp, field reflect.Value) error {
	if op.array {
		return w.writeArray(op, field)
	}
	switch op.kind {
	case KindU1, KindB1:
		w.buf.WriteByte(uint8(field.Uint()))
	case KindU2:
		w.putUint(uint64(field.Uint()), 2)
	case KindU4:
		w.putUint(uint64(field.Uint()), 4)
	case KindI1:
		w.buf.WriteByte(uint8(int8(field.Int())))
	case KindI2:
		w.putUint(uint64(uint16(int16(field.Int()))), 2)
	case KindI4:
		w.putUint(uint64(uint32(int32(field.Int()))), 4)
	case KindR4:
		w.putUint(uint64(math.Float32bits(float32(field.Float()))), 4)
	case KindR8:
		w.putUint(math.Float64bits(field.Float()), 8)
	case KindC1:
		return w.writeC1(op, field.String())
	case KindCn:
		return w.writeCn(op, field.String())
	case KindBn:
		b := field.Bytes()
		if len(b) > math.MaxUint8 {
			return fmt.Errorf("field %s: %d bytes exceed the 1-byte length prefix", op.name, len(b))
		}
		w.buf.WriteByte(uint8(len(b)))
		w.buf.Write(b)
	case KindDn:
		bf := field.Interface().(BitField)
		w.putUint(uint64(bf.Bits), 2)
		w.buf.Write(bf.Data)
	default:
		return fmt.Errorf("field %s: kind %s is not encodable", op.name, op.kind)
	}
	return nil
}

func (w *fieldWriter) writeArray(op fieldOp, field reflect.Value) error {
	switch op.kind {
	case KindU1:
		for i := 0; i < field.Len(); i++ {
			w.buf.WriteByte(uint8(field.Index(i).Uint()))
		}
	case KindU2:
		for i := 0; i < field.Len(); i++ {
			w.putUint(field.Index(i).Uint(), 2)
		}
	case KindR4:
		for i := 0; i < field.Len(); i++ {
			w.putUint(uint64(math.Float32bits(float32(field.Index(i).Float()))), 4)
		}
	case KindN1:
		// Packed two per byte, low nibble first; odd counts pad the
		// high nibble of the final byte with zero.
		var b uint8
		for i := 0; i < field.Len(); i++ {
			n := uint8(field.Index(i).Uint()) & 0x0F
			if i%2 == 0 {
				b = n
			} else {
				w.buf.WriteByte(b | n<<4)
			}
		}
		if field.Len()%2 == 1 {
			w.buf.WriteByte(b)
		}
	default:
		return fmt.Errorf("field %s: kind %s has no array form", op.name, op.kind)
	}
	return nil
}

func (w *fieldWriter) writeC1(op fieldOp, s string) error {
	b, err := encodeChars(s)
	if err != nil {
		return fmt.Errorf("field %s: %w", op.name, err)
	}
	switch len(b) {
	case 0:
		// The format's missing-value convention for character fields.
		w.buf.WriteByte(' ')
	case 1:
		w.buf.WriteByte(b[0])
	default:
		return fmt.Errorf("field %s: %d bytes in a single-character field", op.name, len(b))
	}
	return nil
}

func (w *fieldWriter) writeCn(op fieldOp, s string) error {
	b, err := encodeChars(s)
	if err != nil {
		return fmt.Errorf("field %s: %w", op.name, err)
	}
	if len(b) > math.MaxUint8 {
		return fmt.Errorf("field %s: %d bytes exceed the 1-byte length prefix", op.name, len(b))
	}
	w.buf.WriteByte(uint8(len(b)))
	w.buf.Write(b)
	return nil
}

func (w *fieldWriter) putUint(v uint64, size int) {
	var scratch [8]byte
	w.binaryOrder().PutUint64(scratch[:], v)
	if w.order == BigEndian {
		w.buf.Write(scratch[8-size:])
	} else {
		w.buf.Write(scratch[:size])
	}
}

func encodeChars(s string) ([]byte, error) {
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding character field: %w", err)
	}
	return b, nil
}
