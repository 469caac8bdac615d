package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// setAndCheck sets a field, reads it back, and checks the value survives an
// encode/decode cycle.
func setAndCheck(t *testing.T, r *Record, name string, v any, want any) {
	t.Helper()
	if err := r.Set(name, v); err != nil {
		t.Fatalf("Set(%s, %v) failed: %v", name, v, err)
	}
	got, err := r.Get(name)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", name, err)
	}
	if !cmp.Equal(got, want) {
		t.Errorf("Get(%s) = %#v, expected %#v", name, got, want)
	}

	frame, err := Encode(r)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	got, err = back.Get(name)
	if err != nil {
		t.Fatalf("Get(%s) after round trip failed: %v", name, err)
	}
	if !cmp.Equal(got, want) {
		t.Errorf("Get(%s) after round trip = %#v, expected %#v", name, got, want)
	}
}

func TestURBWidth(t *testing.T) {
	r := mustDecodeControl(t)

	setAndCheck(t, r, "urb", uint64(0x00000000ef98ef01), uint64(0x00000000ef98ef01))
	setAndCheck(t, r, "urb", uint64(0xffff0000ef98ef01), uint64(0xffff0000ef98ef01))
	setAndCheck(t, r, "urb", 0, uint64(0))
	setAndCheck(t, r, "urb", uint64(0xffffffffffffffff), uint64(0xffffffffffffffff))

	tooBig := new(big.Int).Lsh(big.NewInt(1), 64)
	for _, v := range []any{-1, tooBig, new(big.Int).SetBytes([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})} {
		err := r.Set("urb", v)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Set(urb, %v): expected ErrOutOfRange, got %v", v, err)
		}
	}
	if r.URB != 0xffffffffffffffff {
		t.Errorf("Rejected assignment modified urb: 0x%x", r.URB)
	}
}

func TestFieldWidths(t *testing.T) {
	tests := []struct {
		field string
		ok    []any
		bad   []any
	}{
		{"length", []any{40, uint32(0xffffffff)}, []any{-1, int64(1) << 32}},
		{"busnum", []any{0, 0xffff}, []any{-1, 0x10000}},
		{"devnum", []any{0, 127, 255}, []any{256, -1}},
		{"status", []any{-115, int32(-2147483648), 2147483647}, []any{int64(2147483648), int64(-2147483649)}},
		{"ts_sec", []any{int64(-1), int64(1 << 62)}, []any{uint64(1 << 63)}},
		{"xfer_flags", []any{0x200}, []any{-5}},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			r := mustDecodeControl(t)
			for _, v := range tt.ok {
				if err := r.Set(tt.field, v); err != nil {
					t.Errorf("Set(%s, %v) failed: %v", tt.field, v, err)
				}
			}
			for _, v := range tt.bad {
				if err := r.Set(tt.field, v); !errors.Is(err, ErrOutOfRange) {
					t.Errorf("Set(%s, %v): expected ErrOutOfRange, got %v", tt.field, v, err)
				}
			}
		})
	}
}

func TestEventTypeIsPermissive(t *testing.T) {
	r := mustDecodeControl(t)

	setAndCheck(t, r, "event_type", "C", byte('C'))
	setAndCheck(t, r, "event_type", "E", byte('E'))
	setAndCheck(t, r, "event_type", "\x00", byte(0x00))
	setAndCheck(t, r, "event_type", 0xff, byte(0xff))

	if err := r.Set("event_type", "CC"); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for two characters, got %v", err)
	}
}

func TestXferTypeValues(t *testing.T) {
	r := mustDecodeControl(t)

	got, err := r.Get("xfer_type")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != uint8(2) {
		t.Errorf("Expected xfer_type 2, got %v", got)
	}

	for _, x := range []int{0, 1, 2, 3} {
		setAndCheck(t, r, "xfer_type", x, uint8(x))
	}
}

func TestClassification(t *testing.T) {
	r := mustDecodeControl(t)

	if !r.IsControl() {
		t.Error("Expected control transfer")
	}
	if r.IsIsochronous() || r.IsBulk() || r.IsInterrupt() {
		t.Error("Control record classified as another transfer type")
	}
	if !r.IsIn() || r.Endpoint() != 0 {
		t.Errorf("Expected ep 0 IN, got ep %d in=%v", r.Endpoint(), r.IsIn())
	}
}

func TestTransferTypeGating(t *testing.T) {
	r := mustDecodeControl(t)

	for _, name := range []string{"error_count", "numdesc", "interval", "start_frame"} {
		_, err := r.Get(name)
		if !errors.Is(err, ErrWrongTransferType) {
			t.Errorf("Get(%s) on control: expected ErrWrongTransferType, got %v", name, err)
		}
		var fe *FieldError
		if !errors.As(err, &fe) || fe.Field != name || fe.XferType != XferControl {
			t.Errorf("Get(%s): error does not name field and transfer type: %v", name, err)
		}
		if err := r.Set(name, 1); !errors.Is(err, ErrWrongTransferType) {
			t.Errorf("Set(%s) on control: expected ErrWrongTransferType, got %v", name, err)
		}
	}

	if err := r.Set("xfer_type", 0); err != nil {
		t.Fatalf("Set xfer_type failed: %v", err)
	}

	// The union now reads as (error_count, numdesc) over the setup bytes.
	ec, err := r.Get("error_count")
	if err != nil {
		t.Fatalf("Get error_count after switching to isochronous failed: %v", err)
	}
	if ec != int32(0x01000680) {
		t.Errorf("Expected error_count 0x01000680, got %#v", ec)
	}
	nd, err := r.Get("numdesc")
	if err != nil {
		t.Fatalf("Get numdesc failed: %v", err)
	}
	if nd != int32(0x00280000) {
		t.Errorf("Expected numdesc 0x00280000, got %#v", nd)
	}
	if _, err := r.Get("setup"); !errors.Is(err, ErrWrongTransferType) {
		t.Errorf("Get(setup) on isochronous: expected ErrWrongTransferType, got %v", err)
	}
}

func TestInterruptPermitsIntervalOnly(t *testing.T) {
	r := mustDecodeControl(t)
	r.XferType = XferInterrupt

	setAndCheck(t, r, "interval", 8, int32(8))
	for _, name := range []string{"error_count", "numdesc", "start_frame", "setup"} {
		if _, err := r.Get(name); !errors.Is(err, ErrWrongTransferType) {
			t.Errorf("Get(%s) on interrupt: expected ErrWrongTransferType, got %v", name, err)
		}
	}
}

func TestGatedFieldsSurviveRoundTrip(t *testing.T) {
	r := mustDecodeControl(t)
	r.XferType = XferIsochronous

	setAndCheck(t, r, "error_count", -3, int32(-3))
	setAndCheck(t, r, "numdesc", 12, int32(12))
	setAndCheck(t, r, "interval", 1, int32(1))
	setAndCheck(t, r, "start_frame", 1024, int32(1024))
}

func TestSetupField(t *testing.T) {
	r := mustDecodeControl(t)

	setAndCheck(t, r, "setup", "0x0009010000000000", []byte{0x00, 0x09, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00})
	setAndCheck(t, r, "setup", NewSetupPacket(0x80, 0x06, 0x0200, 0, 9), []byte{0x80, 0x06, 0x00, 0x02, 0x00, 0x00, 0x09, 0x00})

	if err := r.Set("setup", []byte{1, 2, 3}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for short setup, got %v", err)
	}
}

func TestLenCapInvariant(t *testing.T) {
	r := mustDecodeControl(t)

	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if err := r.Set("data", payload); err != nil {
		t.Fatalf("Set data failed: %v", err)
	}
	if r.LenCap() != 10 {
		t.Errorf("Expected len_cap 10, got %d", r.LenCap())
	}
	payload[0] = 0xff
	if r.Data()[0] != 0 {
		t.Error("Set(data) kept a reference to the caller's slice")
	}

	if err := r.Set("len_cap", 5); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Expected ErrInvariantViolation for len_cap 5, got %v", err)
	}
	if err := r.Set("len_cap", 10); err != nil {
		t.Errorf("Setting len_cap to the payload length failed: %v", err)
	}
	if err := r.Set("length", 9); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Expected ErrInvariantViolation for length below len_cap, got %v", err)
	}
	if err := r.Set("length", 10); err != nil {
		t.Errorf("Setting length to len_cap failed: %v", err)
	}
	if err := r.Set("data", make([]byte, 11)); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Expected ErrInvariantViolation for payload longer than length, got %v", err)
	}

	frame, err := Encode(r)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(frame) != HeaderLen+10 {
		t.Errorf("Expected frame of %d bytes, got %d", HeaderLen+10, len(frame))
	}
}

func TestLengthNeverBelowLenCap(t *testing.T) {
	r, err := DecodeFrame(makeBulkFrame(make([]byte, 9)))
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	orig := r.Length()

	if err := r.SetLength(2); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("SetLength(2): expected ErrInvariantViolation, got %v", err)
	}
	if err := r.Set("length", 2); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Set(length, 2): expected ErrInvariantViolation, got %v", err)
	}
	if err := r.SetField(FieldLength, uint32(8)); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("SetField(length, 8): expected ErrInvariantViolation, got %v", err)
	}
	if r.Length() != orig {
		t.Fatalf("Rejected assignments changed length to %d", r.Length())
	}

	frame, err := Encode(r)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if back.Length() < back.LenCap() {
		t.Errorf("Encoded length %d is below len_cap %d", back.Length(), back.LenCap())
	}
	if err := back.Set("length", back.Length()); err != nil {
		t.Errorf("Re-setting the decoded length failed: %v", err)
	}
	if err := back.Set("length", 9); err != nil {
		t.Errorf("Setting length to len_cap failed: %v", err)
	}
}

func TestSetDataAt(t *testing.T) {
	r, err := DecodeFrame(makeBulkFrame([]byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if err := r.SetDataAt(2, 0x7f); err != nil {
		t.Fatalf("SetDataAt failed: %v", err)
	}
	if r.Data()[2] != 0x7f {
		t.Errorf("Expected data[2]=0x7f, got 0x%x", r.Data()[2])
	}
	if err := r.SetDataAt(3, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}

func TestUnknownField(t *testing.T) {
	r := mustDecodeControl(t)

	if _, err := r.Get("speed"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Get: expected ErrUnknownField, got %v", err)
	}
	if err := r.Set("speed", 1); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Set: expected ErrUnknownField, got %v", err)
	}
	if _, err := r.GetField(fieldCount); !errors.Is(err, ErrUnknownField) {
		t.Errorf("GetField: expected ErrUnknownField, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r, err := DecodeFrame(makeBulkFrame([]byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	c := r.Clone()
	if c == r {
		t.Fatal("Clone returned the same instance")
	}
	if !c.Equal(r) {
		t.Fatal("Clone differs from the original")
	}

	c.URB = 42
	if err := c.SetDataAt(0, 9); err != nil {
		t.Fatalf("SetDataAt failed: %v", err)
	}
	if r.URB == 42 || r.Data()[0] == 9 {
		t.Error("Mutating the clone changed the original")
	}
	if c.Equal(r) {
		t.Error("Equal reports mutated clone as equal")
	}
}

func TestDiff(t *testing.T) {
	orig := mustDecodeControl(t)
	r := orig.Clone()

	if changes := r.Diff(orig); len(changes) != 0 {
		t.Fatalf("Expected no changes, got %v", changes)
	}

	r.DevNum = 9
	if err := r.Set("data", []byte{1}); err != nil {
		t.Fatalf("Set data failed: %v", err)
	}

	got := r.Diff(orig)
	want := []Change{
		{Field: FieldDevNum, Old: uint8(3), New: uint8(9)},
		{Field: FieldLenCap, Old: uint32(0), New: uint32(1)},
		{Field: FieldData, Old: []byte{}, New: []byte{1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff mismatch (-want +got):\n%s", diff)
	}
}
