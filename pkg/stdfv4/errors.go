package stdfv4

import "fmt"

// TruncatedFieldError reports that a primitive field decode needed more
// bytes than the record payload had left. The file is considered corrupt.
type TruncatedFieldError struct {
	Offset int64     // absolute byte offset where the field began
	Field  string    // STDF field name, e.g. "LO_LIMIT"
	Kind   FieldKind // field kind being decoded
}

func (e *TruncatedFieldError) Error() string {
	return fmt.Sprintf("stdf: truncated %s field %s at offset %d", e.Kind, e.Field, e.Offset)
}

// FormatError reports a framing failure: a record header that overruns
// the buffer, or a stream that ends inside a header.
type FormatError struct {
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("stdf: bad record framing at offset %d: %s", e.Offset, e.Reason)
}
