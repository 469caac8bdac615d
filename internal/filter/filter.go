// Package filter selects usbmon records with conjunctive field predicates.
//
// A selector is a list of terms joined by &&, each of the form
// field OP literal with OP one of == != < <= > >=. data[N] addresses one
// payload byte. data and setup compare against hex bytes with == and !=.
// A term on a field the record's transfer type does not carry is false.
package filter

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/usbrevue/internal/core"
)

var ErrInvalidFilter = errors.New("usbrevue: invalid filter")

type Op uint8

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// longer operators first so "<=" is not read as "<"
var opTokens = []struct {
	tok string
	op  Op
}{
	{"==", OpEq}, {"!=", OpNe}, {"<=", OpLe}, {">=", OpGe}, {"<", OpLt}, {">", OpGt},
}

func (o Op) String() string {
	for _, t := range opTokens {
		if t.op == o {
			return t.tok
		}
	}
	return "?"
}

// Term is one field comparison.
type Term struct {
	Field core.Field
	Index int // payload index for data[N], -1 otherwise
	Op    Op
	Value *big.Int // integer operand
	Bytes []byte   // byte-sequence operand for data and setup
}

// Filter is a parsed selector. The zero value and the empty selector match
// every record.
type Filter struct {
	expr  string
	terms []Term
	prog  []bpf.RawInstruction
	vm    *bpf.VM
}

// Parse parses a selector and compiles it to BPF when every term allows it.
func Parse(expr string) (*Filter, error) {
	f := &Filter{expr: strings.TrimSpace(expr)}
	if f.expr == "" {
		return f, nil
	}
	for _, s := range strings.Split(f.expr, "&&") {
		t, err := parseTerm(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		f.terms = append(f.terms, t)
	}
	if err := f.compile(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

func (f *Filter) Terms() []Term {
	if f == nil {
		return nil
	}
	return f.terms
}

// Empty reports whether the filter selects everything.
func (f *Filter) Empty() bool { return f == nil || len(f.terms) == 0 }

// Match evaluates the selector against a decoded record.
func (f *Filter) Match(r *core.Record) bool {
	if f == nil {
		return true
	}
	for _, t := range f.terms {
		if !t.match(r) {
			return false
		}
	}
	return true
}

// MatchFrame evaluates the selector against a raw header+payload frame,
// through the BPF program when one was compiled. Frames shorter than a
// header never match. The program does not check len_cap against the frame
// length; on the decoding path a frame that does not decode never matches.
func (f *Filter) MatchFrame(frame []byte) bool {
	if f.Empty() {
		return true
	}
	if f.vm != nil {
		n, err := f.vm.Run(frame)
		return err == nil && n > 0
	}
	r, err := core.DecodeFrame(frame)
	if err != nil {
		return false
	}
	return f.Match(r)
}

func (t Term) match(r *core.Record) bool {
	if t.Index >= 0 {
		data := r.Data()
		if t.Index >= len(data) {
			return false
		}
		return compare(big.NewInt(int64(data[t.Index])), t.Op, t.Value)
	}

	v, err := r.GetField(t.Field)
	if err != nil {
		return false
	}
	if b, ok := v.([]byte); ok {
		eq := bytes.Equal(b, t.Bytes)
		return eq == (t.Op == OpEq)
	}
	return compare(toBig(v), t.Op, t.Value)
}

func compare(a *big.Int, op Op, b *big.Int) bool {
	c := a.Cmp(b)
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

func toBig(v any) *big.Int {
	switch n := v.(type) {
	case uint8:
		return new(big.Int).SetUint64(uint64(n))
	case uint16:
		return new(big.Int).SetUint64(uint64(n))
	case uint32:
		return new(big.Int).SetUint64(uint64(n))
	case uint64:
		return new(big.Int).SetUint64(n)
	case int32:
		return big.NewInt(int64(n))
	case int64:
		return big.NewInt(n)
	}
	return new(big.Int)
}

func parseTerm(s string) (Term, error) {
	i := strings.IndexAny(s, "=!<>")
	if i <= 0 {
		return Term{}, fmt.Errorf("%w: %q: expected field OP value", ErrInvalidFilter, s)
	}
	name, rest := strings.TrimSpace(s[:i]), s[i:]

	t := Term{Index: -1}
	found := false
	for _, o := range opTokens {
		if strings.HasPrefix(rest, o.tok) {
			t.Op = o.op
			rest = strings.TrimSpace(rest[len(o.tok):])
			found = true
			break
		}
	}
	if !found {
		return Term{}, fmt.Errorf("%w: %q: unknown operator", ErrInvalidFilter, s)
	}
	if rest == "" {
		return Term{}, fmt.Errorf("%w: %q: missing value", ErrInvalidFilter, s)
	}

	if open := strings.IndexByte(name, '['); open >= 0 && strings.HasSuffix(name, "]") {
		if strings.TrimSpace(name[:open]) != core.FieldData.String() {
			return Term{}, fmt.Errorf("%w: %q: only data can be indexed", ErrInvalidFilter, name)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(name[open+1 : len(name)-1]))
		if err != nil || idx < 0 {
			return Term{}, fmt.Errorf("%w: %q: bad index", ErrInvalidFilter, name)
		}
		t.Field, t.Index = core.FieldData, idx
		t.Value, err = parseLiteral(rest, true)
		if err != nil {
			return Term{}, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, name, err)
		}
		return t, nil
	}

	f, err := core.ParseField(name)
	if err != nil {
		return Term{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	t.Field = f

	if !f.IsInteger() {
		if t.Op != OpEq && t.Op != OpNe {
			return Term{}, fmt.Errorf("%w: %s only supports == and !=", ErrInvalidFilter, f)
		}
		s := strings.TrimPrefix(strings.TrimPrefix(rest, "0x"), "0X")
		b, err := hexBytes(s)
		if err != nil {
			return Term{}, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f, err)
		}
		t.Bytes = b
		return t, nil
	}

	t.Value, err = parseLiteral(rest, f.IsChar())
	if err != nil {
		return Term{}, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f, err)
	}
	return t, nil
}

// parseLiteral parses an integer in Go syntax, or a quoted character when
// chars is set.
func parseLiteral(s string, chars bool) (*big.Int, error) {
	if chars && len(s) == 3 && (s[0] == '\'' || s[0] == '"') && s[2] == s[0] {
		return big.NewInt(int64(s[1])), nil
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", s)
	}
	return n, nil
}

func hexBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd number of hex digits in %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q", s)
		}
		out[i] = byte(v)
	}
	return out, nil
}
