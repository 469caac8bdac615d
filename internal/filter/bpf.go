package filter

import (
	"fmt"
	"math/big"

	"golang.org/x/net/bpf"

	"firestige.xyz/usbrevue/internal/core"
)

// maxTerms keeps every branch within a JumpIf's 8-bit skip.
const maxTerms = 127

// compile assembles the terms into a classic BPF program over the raw frame.
// Filters with a term BPF cannot express are left uncompiled and evaluated
// on the decoded record instead.
func (f *Filter) compile() error {
	insns, ok := f.instructions()
	if !ok {
		return nil
	}
	raw, err := bpf.Assemble(insns)
	if err != nil {
		return fmt.Errorf("failed to assemble filter: %w", err)
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return fmt.Errorf("failed to load filter: %w", err)
	}
	f.prog, f.vm = raw, vm
	return nil
}

// Compiled reports whether MatchFrame runs a BPF program.
func (f *Filter) Compiled() bool { return f != nil && f.vm != nil }

// Program returns the assembled BPF program, or nil when the filter is not
// compiled.
func (f *Filter) Program() []bpf.RawInstruction {
	if f == nil {
		return nil
	}
	return f.prog
}

// instructions rejects frames shorter than a header, then emits a load and a
// conditional jump per term. Each jump falls through on success and skips to
// the final reject on failure.
func (f *Filter) instructions() ([]bpf.Instruction, bool) {
	n := len(f.terms)
	if n == 0 || n > maxTerms {
		return nil, false
	}
	insns := make([]bpf.Instruction, 0, 2*n+4)
	insns = append(insns,
		bpf.LoadExtension{Num: bpf.ExtLen},
		bpf.JumpIf{Cond: bpf.JumpLessThan, Val: core.HeaderLen, SkipTrue: uint8(2*n + 1)},
	)
	for i, t := range f.terms {
		off, size, val, ok := t.operand()
		if !ok {
			return nil, false
		}
		cond, ok := jumpCond(t.Op)
		if !ok {
			return nil, false
		}
		insns = append(insns,
			bpf.LoadAbsolute{Off: off, Size: size},
			bpf.JumpIf{Cond: cond, Val: val, SkipFalse: uint8(2*(n-i) - 1)},
		)
	}
	insns = append(insns,
		bpf.RetConstant{Val: 0xffff},
		bpf.RetConstant{Val: 0},
	)
	return insns, true
}

// operand returns the frame offset, load size and comparison value for a
// term. BPF loads are big-endian, so multi-byte fields compare against the
// byte-swapped literal, which only preserves equality.
func (t Term) operand() (off uint32, size int, val uint32, ok bool) {
	if t.Index >= 0 {
		if t.Value.Sign() < 0 || t.Value.Cmp(big.NewInt(0xff)) > 0 {
			return 0, 0, 0, false
		}
		return uint32(core.HeaderLen + t.Index), 1, uint32(t.Value.Uint64()), true
	}

	if t.Field.Gated() || !t.Field.IsInteger() {
		return 0, 0, 0, false
	}
	size = t.Field.Width()
	if size != 1 && size != 2 && size != 4 {
		return 0, 0, 0, false
	}
	if size > 1 && t.Op != OpEq && t.Op != OpNe {
		return 0, 0, 0, false
	}

	lo, hi := t.Field.Bounds()
	if t.Value.Cmp(lo) < 0 || t.Value.Cmp(hi) > 0 {
		return 0, 0, 0, false
	}
	v := uint32(t.Value.Int64())
	switch size {
	case 2:
		v = uint32(swap16(uint16(v)))
	case 4:
		v = swap32(v)
	}
	return uint32(t.Field.Offset()), size, v, true
}

func jumpCond(op Op) (bpf.JumpTest, bool) {
	switch op {
	case OpEq:
		return bpf.JumpEqual, true
	case OpNe:
		return bpf.JumpNotEqual, true
	case OpLt:
		return bpf.JumpLessThan, true
	case OpLe:
		return bpf.JumpLessOrEqual, true
	case OpGt:
		return bpf.JumpGreaterThan, true
	case OpGe:
		return bpf.JumpGreaterOrEqual, true
	}
	return 0, false
}

func swap16(v uint16) uint16 { return v<<8 | v>>8 }

func swap32(v uint32) uint32 {
	return v<<24 | (v<<8)&0x00ff0000 | (v>>8)&0x0000ff00 | v>>24
}
