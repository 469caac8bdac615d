package core

import "testing"

func TestPolicyTable(t *testing.T) {
	tests := []struct {
		xfer XferType
		want []Field
	}{
		{XferIsochronous, []Field{FieldErrorCount, FieldNumDesc, FieldInterval, FieldStartFrame}},
		{XferInterrupt, []Field{FieldInterval}},
		{XferControl, []Field{FieldSetup}},
		{XferBulk, nil},
		{XferType(7), nil},
	}

	for _, tt := range tests {
		t.Run(tt.xfer.String(), func(t *testing.T) {
			got := PermittedFields(tt.xfer)
			if len(got) != len(tt.want) {
				t.Fatalf("PermittedFields(%s) = %v, expected %v", tt.xfer, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("PermittedFields(%s)[%d] = %s, expected %s", tt.xfer, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPermitsUngatedFields(t *testing.T) {
	for _, f := range Fields() {
		if f.Gated() {
			continue
		}
		for x := 0; x < 256; x++ {
			if !Permits(XferType(x), f) {
				t.Fatalf("Permits(%d, %s) = false for ungated field", x, f)
			}
		}
	}
}

func TestInvalidFieldLayout(t *testing.T) {
	f := Field(200)
	if f.Offset() != -1 || f.Width() != 0 {
		t.Errorf("Expected offset -1 width 0 for invalid field, got %d %d", f.Offset(), f.Width())
	}
	if f.Gated() || f.IsInteger() || f.String() != "invalid" {
		t.Errorf("Unexpected invalid field properties: gated=%v integer=%v name=%s", f.Gated(), f.IsInteger(), f)
	}
	if FieldBusNum.Offset() != 12 || FieldBusNum.Width() != 2 {
		t.Errorf("Expected busnum at 12 width 2, got %d %d", FieldBusNum.Offset(), FieldBusNum.Width())
	}
}

func TestParseFieldNames(t *testing.T) {
	for _, f := range Fields() {
		got, err := ParseField(f.String())
		if err != nil {
			t.Errorf("ParseField(%q) failed: %v", f, err)
		}
		if got != f {
			t.Errorf("ParseField(%q) = %s", f, got)
		}
	}
}

func TestXferTypeString(t *testing.T) {
	if XferControl.String() != "control" || XferControl.Short() != "C" {
		t.Errorf("Unexpected control names %q %q", XferControl, XferControl.Short())
	}
	if XferType(9).String() != "xfer(9)" {
		t.Errorf("Unexpected name for unknown type: %q", XferType(9))
	}
}
