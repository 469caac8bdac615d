package core

import "math/big"

// Field identifies one attribute of a Record. The set is closed; names that
// do not resolve to a Field are rejected with ErrUnknownField.
type Field uint8

const (
	FieldURB Field = iota
	FieldEventType
	FieldXferType
	FieldEpNum
	FieldDevNum
	FieldBusNum
	FieldFlagSetup
	FieldFlagData
	FieldTsSec
	FieldTsUsec
	FieldStatus
	FieldLength
	FieldLenCap
	FieldSetup
	FieldErrorCount
	FieldNumDesc
	FieldInterval
	FieldStartFrame
	FieldXferFlags
	FieldNDesc
	FieldData

	fieldCount
)

type fieldKind uint8

const (
	kindUnsigned fieldKind = iota
	kindSigned
	kindChar
	kindBytes
)

type fieldSpec struct {
	name   string
	kind   fieldKind
	offset int // wire offset in the header, -1 for the payload
	width  int // wire width in bytes, 0 for the payload
	gated  bool
}

var schema = [fieldCount]fieldSpec{
	FieldURB:        {"urb", kindUnsigned, 0, 8, false},
	FieldEventType:  {"event_type", kindChar, 8, 1, false},
	FieldXferType:   {"xfer_type", kindUnsigned, 9, 1, false},
	FieldEpNum:      {"epnum", kindUnsigned, 10, 1, false},
	FieldDevNum:     {"devnum", kindUnsigned, 11, 1, false},
	FieldBusNum:     {"busnum", kindUnsigned, 12, 2, false},
	FieldFlagSetup:  {"flag_setup", kindChar, 14, 1, false},
	FieldFlagData:   {"flag_data", kindChar, 15, 1, false},
	FieldTsSec:      {"ts_sec", kindSigned, 16, 8, false},
	FieldTsUsec:     {"ts_usec", kindSigned, 24, 4, false},
	FieldStatus:     {"status", kindSigned, 28, 4, false},
	FieldLength:     {"length", kindUnsigned, 32, 4, false},
	FieldLenCap:     {"len_cap", kindUnsigned, 36, 4, false},
	FieldSetup:      {"setup", kindBytes, 40, 8, true},
	FieldErrorCount: {"error_count", kindSigned, 40, 4, true},
	FieldNumDesc:    {"numdesc", kindSigned, 44, 4, true},
	FieldInterval:   {"interval", kindSigned, 48, 4, true},
	FieldStartFrame: {"start_frame", kindSigned, 52, 4, true},
	FieldXferFlags:  {"xfer_flags", kindUnsigned, 56, 4, false},
	FieldNDesc:      {"ndesc", kindUnsigned, 60, 4, false},
	FieldData:       {"data", kindBytes, -1, 0, false},
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		m[schema[f].name] = f
	}
	return m
}()

// ParseField resolves a field name.
func ParseField(name string) (Field, error) {
	f, ok := fieldsByName[name]
	if !ok {
		return 0, &FieldError{Field: name, Err: ErrUnknownField}
	}
	return f, nil
}

// Fields returns every field in wire order, payload last.
func Fields() []Field {
	out := make([]Field, fieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

func (f Field) Valid() bool { return f < fieldCount }

func (f Field) String() string {
	if !f.Valid() {
		return "invalid"
	}
	return schema[f].name
}

// Gated reports whether the field is only meaningful for some transfer types.
func (f Field) Gated() bool { return f.Valid() && schema[f].gated }

// Offset returns the field's byte offset in the header, or -1 for data and
// invalid fields.
func (f Field) Offset() int {
	if !f.Valid() {
		return -1
	}
	return schema[f].offset
}

// Width returns the field's wire width in bytes, or 0 for data and invalid
// fields.
func (f Field) Width() int {
	if !f.Valid() {
		return 0
	}
	return schema[f].width
}

// IsInteger reports whether the field holds a numeric or character value.
func (f Field) IsInteger() bool {
	return f.Valid() && schema[f].kind != kindBytes
}

// IsChar reports whether the field is a one-byte character.
func (f Field) IsChar() bool { return f.Valid() && schema[f].kind == kindChar }

// IsSigned reports whether the field is a signed integer.
func (f Field) IsSigned() bool { return f.Valid() && schema[f].kind == kindSigned }

// Bounds returns the inclusive range an integer field accepts. Both are nil
// for byte-sequence fields.
func (f Field) Bounds() (lo, hi *big.Int) {
	if !f.IsInteger() {
		return nil, nil
	}
	bits := uint(schema[f].width * 8)
	one := big.NewInt(1)
	if schema[f].kind == kindSigned {
		hi = new(big.Int).Sub(new(big.Int).Lsh(one, bits-1), one)
		lo = new(big.Int).Neg(new(big.Int).Lsh(one, bits-1))
		return lo, hi
	}
	return new(big.Int), new(big.Int).Sub(new(big.Int).Lsh(one, bits), one)
}
