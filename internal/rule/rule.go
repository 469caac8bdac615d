// Package rule parses static field assignments and applies them to records.
//
// An assignment has the form target=literal where target is a field name
// or data[N]. Integer literals use Go syntax (42, -115, 0x28, 0o17, 0b101)
// and may exceed 64 bits so that range errors are reported by the record.
// Character fields also take a single character, bare or quoted. data and
// setup take hex bytes with an optional 0x prefix.
package rule

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"firestige.xyz/usbrevue/internal/core"
)

var ErrInvalidRule = errors.New("usbrevue: invalid rule")

// Rule is one parsed assignment.
type Rule struct {
	field core.Field
	index int // payload index for data[N], -1 otherwise
	value any // *big.Int, []byte or byte
	lit   string
}

// Parse parses a single target=literal assignment.
func Parse(expr string) (Rule, error) {
	target, lit, ok := strings.Cut(expr, "=")
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q: missing '='", ErrInvalidRule, expr)
	}
	target = strings.TrimSpace(target)
	lit = strings.TrimSpace(lit)

	if name, idx, ok := indexed(target); ok {
		if name != core.FieldData.String() {
			return Rule{}, fmt.Errorf("%w: %q: only data can be indexed", ErrInvalidRule, target)
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 {
			return Rule{}, fmt.Errorf("%w: %q: bad index %q", ErrInvalidRule, target, idx)
		}
		b, err := parseByte(lit)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %s: %v", ErrInvalidRule, target, err)
		}
		return Rule{field: core.FieldData, index: i, value: b, lit: lit}, nil
	}

	f, err := core.ParseField(target)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}

	r := Rule{field: f, index: -1, lit: lit}
	switch {
	case !f.IsInteger():
		b, err := parseHex(lit)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %s: %v", ErrInvalidRule, f, err)
		}
		if f == core.FieldSetup && len(b) != len(core.SetupPacket{}) {
			return Rule{}, fmt.Errorf("%w: setup needs %d bytes, got %d", ErrInvalidRule, len(core.SetupPacket{}), len(b))
		}
		r.value = b
	case f.IsChar():
		if c, ok := parseChar(lit); ok {
			r.value = c
			break
		}
		fallthrough
	default:
		n, err := parseInt(lit)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %s: %v", ErrInvalidRule, f, err)
		}
		r.value = n
	}
	return r, nil
}

// ParseList parses a comma separated list of assignments. Empty elements are
// ignored.
func ParseList(s string) ([]Rule, error) {
	var rules []Rule
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := Parse(part)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Target returns the assigned field name, or data[N].
func (r Rule) Target() string {
	if r.index >= 0 {
		return fmt.Sprintf("%s[%d]", r.field, r.index)
	}
	return r.field.String()
}

// Field returns the assigned field.
func (r Rule) Field() core.Field { return r.field }

func (r Rule) String() string {
	return r.Target() + "=" + r.lit
}

// Apply assigns the rule's value to rec. It reports false without error when
// the rule indexes past the end of the payload.
func (r Rule) Apply(rec *core.Record) (bool, error) {
	if r.index >= 0 {
		if r.index >= len(rec.Data()) {
			return false, nil
		}
		if err := rec.SetDataAt(r.index, r.value.(byte)); err != nil {
			return false, err
		}
		return true, nil
	}

	v := r.value
	if b, ok := v.(byte); ok {
		// char fields take a one-character string
		v = string([]byte{b})
	}
	if err := rec.SetField(r.field, v); err != nil {
		return false, err
	}
	return true, nil
}

// indexed splits name[idx].
func indexed(target string) (name, idx string, ok bool) {
	open := strings.IndexByte(target, '[')
	if open < 0 || !strings.HasSuffix(target, "]") {
		return "", "", false
	}
	return strings.TrimSpace(target[:open]), strings.TrimSpace(target[open+1 : len(target)-1]), true
}

func parseInt(lit string) (*big.Int, error) {
	if lit == "" {
		return nil, errors.New("empty value")
	}
	n, ok := new(big.Int).SetString(lit, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", lit)
	}
	return n, nil
}

// parseChar accepts 'C', "C", or a single non-digit character.
func parseChar(lit string) (byte, bool) {
	if len(lit) == 3 && (lit[0] == '\'' || lit[0] == '"') && lit[2] == lit[0] {
		return lit[1], true
	}
	if len(lit) == 1 && (lit[0] < '0' || lit[0] > '9') {
		return lit[0], true
	}
	return 0, false
}

func parseByte(lit string) (byte, error) {
	if c, ok := parseChar(lit); ok {
		return c, nil
	}
	n, err := parseInt(lit)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || n.Cmp(big.NewInt(0xff)) > 0 {
		return 0, fmt.Errorf("byte value %s outside [0, 255]", n)
	}
	return byte(n.Uint64()), nil
}

// parseHex decodes hex bytes. Spaces and colons between bytes are ignored.
func parseHex(lit string) ([]byte, error) {
	s := strings.Trim(lit, `"'`)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd number of hex digits in %q", lit)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q", lit)
		}
		out[i] = byte(v)
	}
	return out, nil
}
