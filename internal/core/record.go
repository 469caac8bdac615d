// Package core implements the usbmon capture record codec. It has no
// dependencies outside the standard library.
package core

import (
	"bytes"
	"encoding/binary"
	"time"
)

// HeaderLen is the fixed width of a usbmon (mmapped) record header.
const HeaderLen = 64

// Record is one decoded usbmon capture entry.
//
// The unconditional header fields are exported and can be assigned directly;
// their Go types match the wire widths. The payload, length, len_cap and the
// transfer-type conditional fields are reached through methods so that the
// len_cap invariant and the transfer-type gate cannot be skipped.
type Record struct {
	URB       uint64
	EventType byte // 'S' submission, 'C' callback, 'E' error
	XferType  XferType
	EpNum     uint8 // bit 7 set for IN endpoints
	DevNum    uint8
	BusNum    uint16
	FlagSetup byte // 0 when a setup packet is present
	FlagData  byte
	TsSec     int64
	TsUsec    int32
	Status    int32
	XferFlags uint32
	NDesc     uint32

	length uint32
	lenCap uint32
	// union holds either the 8-byte control setup packet or the isochronous
	// (error_count, numdesc) pair, depending on XferType.
	union      [8]byte
	interval   int32
	startFrame int32
	data       []byte
}

func (r *Record) IsIsochronous() bool { return r.XferType == XferIsochronous }
func (r *Record) IsInterrupt() bool   { return r.XferType == XferInterrupt }
func (r *Record) IsControl() bool     { return r.XferType == XferControl }
func (r *Record) IsBulk() bool        { return r.XferType == XferBulk }

// IsIn reports whether the endpoint direction is device-to-host.
func (r *Record) IsIn() bool { return r.EpNum&0x80 != 0 }

// Endpoint returns the endpoint number without the direction bit.
func (r *Record) Endpoint() uint8 { return r.EpNum & 0x7f }

// Time returns the capture timestamp.
func (r *Record) Time() time.Time {
	return time.Unix(r.TsSec, int64(r.TsUsec)*int64(time.Microsecond))
}

// Length returns the actual transfer length, which may exceed the number of
// captured bytes.
func (r *Record) Length() uint32 { return r.length }

// LenCap returns the number of captured payload bytes. It always equals
// len(r.Data()).
func (r *Record) LenCap() uint32 { return r.lenCap }

// Data returns the captured payload. The slice aliases the record; writes
// through it change the record but can never change its length.
func (r *Record) Data() []byte { return r.data }

// SetData replaces the payload with a copy of b and updates len_cap.
func (r *Record) SetData(b []byte) error {
	if uint64(len(b)) > uint64(^uint32(0)) {
		return fieldErr(ErrOutOfRange, "data", r.XferType, "%d bytes exceeds len_cap width", len(b))
	}
	if uint32(len(b)) > r.length {
		return fieldErr(ErrInvariantViolation, "data", r.XferType,
			"%d captured bytes exceeds length %d", len(b), r.length)
	}
	r.data = append([]byte(nil), b...)
	r.lenCap = uint32(len(b))
	return nil
}

// SetDataAt overwrites a single payload byte.
func (r *Record) SetDataAt(i int, b byte) error {
	if i < 0 || i >= len(r.data) {
		return fieldErr(ErrOutOfRange, "data", r.XferType, "index %d outside payload of %d bytes", i, len(r.data))
	}
	r.data[i] = b
	return nil
}

// SetLength sets the actual transfer length, which may not drop below len_cap.
func (r *Record) SetLength(v uint32) error {
	if v < r.lenCap {
		return fieldErr(ErrInvariantViolation, "length", r.XferType, "%d is below len_cap %d", v, r.lenCap)
	}
	r.length = v
	return nil
}

// SetLenCap only accepts the current payload length; change the payload
// with SetData to change the captured length.
func (r *Record) SetLenCap(v uint32) error {
	if uint64(v) != uint64(len(r.data)) {
		return fieldErr(ErrInvariantViolation, "len_cap", r.XferType,
			"%d does not match payload of %d bytes", v, len(r.data))
	}
	r.lenCap = v
	return nil
}

func (r *Record) gate(f Field) error {
	if !Permits(r.XferType, f) {
		return &FieldError{Field: f.String(), XferType: r.XferType, Err: ErrWrongTransferType}
	}
	return nil
}

// Setup returns the control setup packet held in the union slot.
func (r *Record) Setup() (SetupPacket, error) {
	if err := r.gate(FieldSetup); err != nil {
		return SetupPacket{}, err
	}
	return SetupPacket(r.union), nil
}

func (r *Record) SetSetup(s SetupPacket) error {
	if err := r.gate(FieldSetup); err != nil {
		return err
	}
	r.union = s
	return nil
}

func (r *Record) ErrorCount() (int32, error) {
	if err := r.gate(FieldErrorCount); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(r.union[0:4])), nil
}

func (r *Record) SetErrorCount(v int32) error {
	if err := r.gate(FieldErrorCount); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(r.union[0:4], uint32(v))
	return nil
}

func (r *Record) NumDesc() (int32, error) {
	if err := r.gate(FieldNumDesc); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(r.union[4:8])), nil
}

func (r *Record) SetNumDesc(v int32) error {
	if err := r.gate(FieldNumDesc); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(r.union[4:8], uint32(v))
	return nil
}

func (r *Record) Interval() (int32, error) {
	if err := r.gate(FieldInterval); err != nil {
		return 0, err
	}
	return r.interval, nil
}

func (r *Record) SetInterval(v int32) error {
	if err := r.gate(FieldInterval); err != nil {
		return err
	}
	r.interval = v
	return nil
}

func (r *Record) StartFrame() (int32, error) {
	if err := r.gate(FieldStartFrame); err != nil {
		return 0, err
	}
	return r.startFrame, nil
}

func (r *Record) SetStartFrame(v int32) error {
	if err := r.gate(FieldStartFrame); err != nil {
		return err
	}
	r.startFrame = v
	return nil
}

// Clone returns a deep copy; the payload is not shared.
func (r *Record) Clone() *Record {
	c := *r
	if r.data != nil {
		c.data = append(make([]byte, 0, len(r.data)), r.data...)
	}
	return &c
}

// Equal reports whether every field, including the raw union slot and the
// ungated views of interval and start_frame, matches.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.header() == o.header() && bytes.Equal(r.data, o.data)
}

// Change is one field that differs between two records.
type Change struct {
	Field Field
	Old   any
	New   any
}

// Diff lists the fields whose value differs from o, in wire order, with o's
// value as Old and r's as New. Gated fields are compared only when r's
// current transfer type permits them.
func (r *Record) Diff(o *Record) []Change {
	var out []Change
	for f := Field(0); f < fieldCount; f++ {
		if !Permits(r.XferType, f) {
			continue
		}
		a, b := rawValue(o, f), rawValue(r, f)
		if !valueEqual(a, b) {
			out = append(out, Change{Field: f, Old: a, New: b})
		}
	}
	return out
}

func valueEqual(a, b any) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok || bok {
		return aok && bok && bytes.Equal(ab, bb)
	}
	return a == b
}
