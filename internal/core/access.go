package core

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
)

// Get returns the value of the named field. See GetField.
func (r *Record) Get(name string) (any, error) {
	f, err := ParseField(name)
	if err != nil {
		return nil, err
	}
	return r.GetField(f)
}

// Set assigns the named field. See SetField.
func (r *Record) Set(name string, v any) error {
	f, err := ParseField(name)
	if err != nil {
		return err
	}
	return r.SetField(f, v)
}

// GetField returns the current value of f with the Go type of its wire
// width: uint8/uint16/uint32/uint64 for unsigned fields, int32/int64 for
// signed ones, byte for character fields and a fresh []byte for setup and
// data. Gated fields fail with ErrWrongTransferType when the record's
// transfer type does not permit them.
func (r *Record) GetField(f Field) (any, error) {
	if !f.Valid() {
		return nil, &FieldError{Field: f.String(), Err: ErrUnknownField}
	}
	if err := r.gate(f); err != nil {
		return nil, err
	}
	v := rawValue(r, f)
	if b, ok := v.([]byte); ok {
		return append([]byte(nil), b...), nil
	}
	return v, nil
}

// SetField validates v against f's width and signedness and assigns it.
//
// Integer fields accept any Go integer type or *big.Int; character fields
// additionally accept a one-byte string. data and setup accept []byte, a
// SetupPacket or a hex string. Changing xfer_type is always allowed and only
// affects later gated accesses.
func (r *Record) SetField(f Field, v any) error {
	if !f.Valid() {
		return &FieldError{Field: f.String(), Err: ErrUnknownField}
	}
	if err := r.gate(f); err != nil {
		return err
	}

	if !f.IsInteger() {
		b, err := toBytes(f, r.XferType, v)
		if err != nil {
			return err
		}
		if f == FieldSetup {
			if len(b) != len(r.union) {
				return fieldErr(ErrOutOfRange, f.String(), r.XferType, "need %d bytes, got %d", len(r.union), len(b))
			}
			return r.SetSetup(SetupPacket(b))
		}
		return r.SetData(b)
	}

	n, err := toBigInt(f, r.XferType, v)
	if err != nil {
		return err
	}
	lo, hi := f.Bounds()
	if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
		return fieldErr(ErrOutOfRange, f.String(), r.XferType, "%s outside [%s, %s]", n, lo, hi)
	}

	switch f {
	case FieldURB:
		r.URB = n.Uint64()
	case FieldEventType:
		r.EventType = byte(n.Uint64())
	case FieldXferType:
		r.XferType = XferType(n.Uint64())
	case FieldEpNum:
		r.EpNum = uint8(n.Uint64())
	case FieldDevNum:
		r.DevNum = uint8(n.Uint64())
	case FieldBusNum:
		r.BusNum = uint16(n.Uint64())
	case FieldFlagSetup:
		r.FlagSetup = byte(n.Uint64())
	case FieldFlagData:
		r.FlagData = byte(n.Uint64())
	case FieldTsSec:
		r.TsSec = n.Int64()
	case FieldTsUsec:
		r.TsUsec = int32(n.Int64())
	case FieldStatus:
		r.Status = int32(n.Int64())
	case FieldLength:
		return r.SetLength(uint32(n.Uint64()))
	case FieldLenCap:
		return r.SetLenCap(uint32(n.Uint64()))
	case FieldErrorCount:
		return r.SetErrorCount(int32(n.Int64()))
	case FieldNumDesc:
		return r.SetNumDesc(int32(n.Int64()))
	case FieldInterval:
		return r.SetInterval(int32(n.Int64()))
	case FieldStartFrame:
		return r.SetStartFrame(int32(n.Int64()))
	case FieldXferFlags:
		r.XferFlags = uint32(n.Uint64())
	case FieldNDesc:
		r.NDesc = uint32(n.Uint64())
	}
	return nil
}

// rawValue reads f without consulting the transfer-type gate. Byte slices
// alias the record.
func rawValue(r *Record, f Field) any {
	switch f {
	case FieldURB:
		return r.URB
	case FieldEventType:
		return r.EventType
	case FieldXferType:
		return uint8(r.XferType)
	case FieldEpNum:
		return r.EpNum
	case FieldDevNum:
		return r.DevNum
	case FieldBusNum:
		return r.BusNum
	case FieldFlagSetup:
		return r.FlagSetup
	case FieldFlagData:
		return r.FlagData
	case FieldTsSec:
		return r.TsSec
	case FieldTsUsec:
		return r.TsUsec
	case FieldStatus:
		return r.Status
	case FieldLength:
		return r.length
	case FieldLenCap:
		return r.lenCap
	case FieldSetup:
		return r.union[:]
	case FieldErrorCount:
		return int32(binary.LittleEndian.Uint32(r.union[0:4]))
	case FieldNumDesc:
		return int32(binary.LittleEndian.Uint32(r.union[4:8]))
	case FieldInterval:
		return r.interval
	case FieldStartFrame:
		return r.startFrame
	case FieldXferFlags:
		return r.XferFlags
	case FieldNDesc:
		return r.NDesc
	case FieldData:
		return r.data
	}
	return nil
}

func toBigInt(f Field, x XferType, v any) (*big.Int, error) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case XferType:
		return new(big.Int).SetUint64(uint64(n)), nil
	case *big.Int:
		if n == nil {
			return nil, fieldErr(ErrOutOfRange, f.String(), x, "nil value")
		}
		return n, nil
	case string:
		if f.IsChar() && len(n) == 1 {
			return new(big.Int).SetUint64(uint64(n[0])), nil
		}
	}
	return nil, fieldErr(ErrOutOfRange, f.String(), x, "unsupported value %#v of type %T", v, v)
}

func toBytes(f Field, x XferType, v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case SetupPacket:
		return b[:], nil
	case [8]byte:
		return b[:], nil
	case string:
		s := strings.TrimPrefix(strings.TrimPrefix(b, "0x"), "0X")
		out, err := hex.DecodeString(s)
		if err != nil {
			return nil, fieldErr(ErrOutOfRange, f.String(), x, "invalid hex %q", b)
		}
		return out, nil
	}
	return nil, fieldErr(ErrOutOfRange, f.String(), x, "unsupported value of type %T", v)
}
