package stdfv4

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// fieldOp is one step of a record's decode/encode program, derived from
// the struct tags at first use and cached per record type.
type fieldOp struct {
	index    int    // struct field index
	name     string // STDF field name
	kind     FieldKind
	array    bool   // kx-prefixed array kind
	countRef string // STDF name of the earlier field holding the element count
}

var programCache sync.Map // reflect.Type -> []fieldOp

var tagKinds = map[string]FieldKind{
	"U1": KindU1, "U2": KindU2, "U4": KindU4,
	"I1": KindI1, "I2": KindI2, "I4": KindI4,
	"R4": KindR4, "R8": KindR8,
	"C1": KindC1, "Cn": KindCn,
	"B1": KindB1, "Bn": KindBn,
	"N1": KindN1, "Dn": KindDn,
}

func programFor(t reflect.Type) ([]fieldOp, error) {
	if cached, ok := programCache.Load(t); ok {
		return cached.([]fieldOp), nil
	}

	ops := make([]fieldOp, 0, t.NumField())
	seen := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("stdf")
		if !ok {
			continue
		}
		parts := strings.Split(tag, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("field %s.%s: malformed stdf tag %q", t.Name(), t.Field(i).Name, tag)
		}
		op := fieldOp{index: i, name: parts[0]}

		kindStr := parts[1]
		if rest, isArray := strings.CutPrefix(kindStr, "kx"); isArray {
			op.array = true
			kindStr = rest
		}
		kind, ok := tagKinds[kindStr]
		if !ok {
			return nil, fmt.Errorf("field %s.%s: unknown stdf kind %q", t.Name(), t.Field(i).Name, parts[1])
		}
		op.kind = kind

		for _, part := range parts[2:] {
			if ref, ok := strings.CutPrefix(part, "count="); ok {
				op.countRef = ref
			}
		}
		if op.array {
			if op.countRef == "" {
				return nil, fmt.Errorf("field %s.%s: array kind needs a count= reference", t.Name(), t.Field(i).Name)
			}
			if !seen[op.countRef] {
				return nil, fmt.Errorf("field %s.%s: count field %q not declared earlier", t.Name(), t.Field(i).Name, op.countRef)
			}
		}
		seen[op.name] = true
		ops = append(ops, op)
	}

	programCache.Store(t, ops)
	return ops, nil
}

// DecodeRecord decodes a framed record through the static schema table.
// Unknown (REC_TYP, REC_SUB) pairs yield an *Opaque record, never an
// error. A payload shorter than the full schema ends decoding at the
// last complete field boundary (trailing fields stay absent); payload
// bytes beyond the schema are ignored.
func DecodeRecord(raw RawRecord, order ByteOrder) (Record, error) {
	rec, ok := NewRecord(RecordType{raw.Typ, raw.Sub})
	if !ok {
		return &Opaque{Typ: raw.Typ, Sub: raw.Sub, Payload: raw.Payload}, nil
	}
	// +4 skips the record header so error offsets point into the file.
	r := NewReader(raw.Payload, order, raw.Offset+4)
	if err := decodeFields(rec, r); err != nil {
		return nil, fmt.Errorf("decoding %s record: %w", rec.RecordType(), err)
	}
	return rec, nil
}

func decodeFields(rec Record, r *Reader) error {
	v := reflect.ValueOf(rec).Elem()
	prog, err := programFor(v.Type())
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, op := range prog {
		if r.Remaining() == 0 {
			break
		}
		field := v.Field(op.index)
		if op.array {
			count, ok := counts[op.countRef]
			if !ok {
				return fmt.Errorf("field %s: count field %s was absent", op.name, op.countRef)
			}
			if err := decodeArray(field, op, r, count); err != nil {
				return err
			}
			continue
		}
		val, err := decodeScalar(op, r)
		if err != nil {
			return err
		}
		setScalar(field, val)
		if n, ok := asCount(val); ok {
			counts[op.name] = n
		}
	}
	return nil
}

func decodeScalar(op fieldOp, r *Reader) (any, error) {
	switch op.kind {
	case KindU1:
		return r.U1(op.name)
	case KindU2:
		return r.U2(op.name)
	case KindU4:
		return r.U4(op.name)
	case KindI1:
		return r.I1(op.name)
	case KindI2:
		return r.I2(op.name)
	case KindI4:
		return r.I4(op.name)
	case KindR4:
		return r.R4(op.name)
	case KindR8:
		return r.R8(op.name)
	case KindC1:
		return r.C1(op.name)
	case KindCn:
		return r.Cn(op.name)
	case KindB1:
		return r.B1(op.name)
	case KindBn:
		return r.Bn(op.name)
	case KindDn:
		return r.Dn(op.name)
	default:
		return nil, fmt.Errorf("field %s: kind %s is not a scalar", op.name, op.kind)
	}
}

func decodeArray(field reflect.Value, op fieldOp, r *Reader, count int) error {
	switch op.kind {
	case KindU1:
		out := make([]uint8, count)
		for i := range out {
			v, err := r.U1(op.name)
			if err != nil {
				return err
			}
			out[i] = v
		}
		field.Set(reflect.ValueOf(out))
	case KindU2:
		out := make([]uint16, count)
		for i := range out {
			v, err := r.U2(op.name)
			if err != nil {
				return err
			}
			out[i] = v
		}
		field.Set(reflect.ValueOf(out))
	case KindR4:
		out := make([]float32, count)
		for i := range out {
			v, err := r.R4(op.name)
			if err != nil {
				return err
			}
			out[i] = v
		}
		field.Set(reflect.ValueOf(out))
	case KindN1:
		out, err := r.Nibbles(op.name, count)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("field %s: kind %s has no array form", op.name, op.kind)
	}
	return nil
}

// setScalar stores a decoded value into a struct field, allocating when
// the field is part of a record's optional pointer tail.
func setScalar(field reflect.Value, val any) {
	v := reflect.ValueOf(val)
	if field.Kind() == reflect.Pointer {
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(v)
		field.Set(p)
		return
	}
	field.Set(v)
}

func asCount(val any) (int, bool) {
	switch n := val.(type) {
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	default:
		return 0, false
	}
}
