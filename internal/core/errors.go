package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every codec failure wraps exactly one of these so callers
// can branch with errors.Is.
var (
	// Decode errors
	ErrMalformedRecord = errors.New("usbrevue: malformed record")

	// Field access errors
	ErrUnknownField       = errors.New("usbrevue: unknown field")
	ErrWrongTransferType  = errors.New("usbrevue: field not valid for transfer type")
	ErrOutOfRange         = errors.New("usbrevue: value out of range")
	ErrInvariantViolation = errors.New("usbrevue: record invariant violation")

	// Encode errors
	ErrEncode = errors.New("usbrevue: record encode failed")
)

// FieldError reports a failed access to a named record field.
type FieldError struct {
	Field    string
	XferType XferType
	Detail   string
	Err      error
}

func (e *FieldError) Error() string {
	switch {
	case errors.Is(e.Err, ErrWrongTransferType):
		return fmt.Sprintf("%v: %q on %s transfer", e.Err, e.Field, e.XferType)
	case e.Detail != "":
		return fmt.Sprintf("%v: %q: %s", e.Err, e.Field, e.Detail)
	default:
		return fmt.Sprintf("%v: %q", e.Err, e.Field)
	}
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(sentinel error, name string, xfer XferType, format string, args ...any) error {
	return &FieldError{
		Field:    name,
		XferType: xfer,
		Detail:   fmt.Sprintf(format, args...),
		Err:      sentinel,
	}
}

// ErrorKind returns a short label for the sentinel wrapped by err, for use as
// a metrics label. Unrecognized errors map to "other".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, ErrUnknownField):
		return "unknown_field"
	case errors.Is(err, ErrWrongTransferType):
		return "wrong_transfer_type"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrEncode):
		return "encode"
	default:
		return "other"
	}
}
