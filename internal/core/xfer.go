package core

import "fmt"

// XferType is the USB transfer type of the endpoint a record belongs to.
// It selects which conditional header fields are meaningful.
type XferType uint8

const (
	XferIsochronous XferType = 0
	XferInterrupt   XferType = 1
	XferControl     XferType = 2
	XferBulk        XferType = 3
)

func (x XferType) String() string {
	switch x {
	case XferIsochronous:
		return "isochronous"
	case XferInterrupt:
		return "interrupt"
	case XferControl:
		return "control"
	case XferBulk:
		return "bulk"
	default:
		return fmt.Sprintf("xfer(%d)", uint8(x))
	}
}

// Short returns the single-letter usbmon text notation (Z, I, C, B).
func (x XferType) Short() string {
	switch x {
	case XferIsochronous:
		return "Z"
	case XferInterrupt:
		return "I"
	case XferControl:
		return "C"
	case XferBulk:
		return "B"
	default:
		return "?"
	}
}

// xferPolicy lists the gated fields each transfer type permits. Types not in
// the table permit none.
var xferPolicy = map[XferType]fieldSet{
	XferIsochronous: newFieldSet(FieldErrorCount, FieldNumDesc, FieldInterval, FieldStartFrame),
	XferInterrupt:   newFieldSet(FieldInterval),
	XferControl:     newFieldSet(FieldSetup),
	XferBulk:        newFieldSet(),
}

// Permits reports whether f may be read or written on a record of transfer
// type x. Ungated fields are always permitted.
func Permits(x XferType, f Field) bool {
	if !f.Gated() {
		return f.Valid()
	}
	return xferPolicy[x].has(f)
}

// PermittedFields returns the gated fields valid for x, in schema order.
func PermittedFields(x XferType) []Field {
	var out []Field
	for f := Field(0); f < fieldCount; f++ {
		if f.Gated() && xferPolicy[x].has(f) {
			out = append(out, f)
		}
	}
	return out
}

type fieldSet uint32

func newFieldSet(fields ...Field) fieldSet {
	var s fieldSet
	for _, f := range fields {
		s |= 1 << f
	}
	return s
}

func (s fieldSet) has(f Field) bool {
	return s&(1<<f) != 0
}
