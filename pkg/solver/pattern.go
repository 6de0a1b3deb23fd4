package solver

import (
	"fmt"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
)

// Pattern describes what one loop iteration prints as a function of the
// register A value it sees.
//
// For the k-th iteration let W = A >> 3*(k+Lead). Then the printed digit is
//
//	Mix ^ (Chunk ? W%8 : 0) ^ (Shifted ? (W >> (W%8 ^ Shift)) % 8 : 0)
type Pattern struct {
	// Lead is 1 when the digit is computed from A after the loop's own
	// shift, 0 when it is computed before.
	Lead int

	// Chunk is set when the low three bits of W are folded into the digit.
	Chunk bool

	// Mix is the constant folded into the digit.
	Mix uint8

	// Shifted is set when the digit folds in W shifted by a chunk-dependent amount.
	Shifted bool

	// Shift is the constant the chunk is xored with to form the shift amount.
	Shift uint8
}

// Digit returns the digit printed for window value w.
func (p Pattern) Digit(w uint64) uint8 {
	i := uint8(w & 7)
	d := p.Mix
	if p.Chunk {
		d ^= i
	}
	if p.Shifted {
		d ^= uint8((w >> (i ^ p.Shift)) & 7)
	}
	return d & 7
}

// String renders the pattern as a formula.
func (p Pattern) String() string {
	s := fmt.Sprintf("d = %d", p.Mix)
	if p.Chunk {
		s += " ^ i"
	}
	if p.Shifted {
		s += fmt.Sprintf(" ^ (w >> (i ^ %d)) & 7", p.Shift)
	}
	return fmt.Sprintf("%s, lead %d", s, p.Lead)
}

type termKind uint8

const (
	termUnset termKind = iota
	termConst
	termExpr
)

// term is the symbolic value of a register during one loop iteration.
type term struct {
	kind    termKind
	mix     uint8 // constant part, low three bits
	lead    int   // number of loop shifts applied to A when it was read
	chunk   bool  // includes A % 8
	shifted bool  // includes A >> (chunk ^ shift)
	shift   uint8
	wide    bool // value not yet reduced mod 8
}

func constTerm(v uint8) term {
	return term{kind: termConst, mix: v & 7}
}

// normalize collapses an expression with no A dependence into a constant.
func (t term) normalize() term {
	if t.kind == termExpr && !t.chunk && !t.shifted {
		return constTerm(t.mix)
	}
	return t
}

// low3 reduces the value mod 8.
func (t term) low3() term {
	t.wide = false
	return t
}

func (t term) pureChunk() bool {
	return t.kind == termExpr && t.chunk && !t.shifted && !t.wide
}

// xor combines two terms.
func xorTerms(a, b term) (term, error) {
	if a.kind == termUnset || b.kind == termUnset {
		return term{}, fmt.Errorf("%w: register read before write", ErrUnsupportedProgram)
	}
	if a.kind == termConst {
		a, b = b, a
	}
	if b.kind == termConst {
		a.mix ^= b.mix
		return a.normalize(), nil
	}

	if a.lead != b.lead {
		return term{}, fmt.Errorf("%w: mixes A before and after the loop shift", ErrUnsupportedProgram)
	}
	out := term{
		kind:  termExpr,
		mix:   a.mix ^ b.mix,
		lead:  a.lead,
		chunk: a.chunk != b.chunk,
		wide:  a.wide || b.wide,
	}
	switch {
	case a.shifted && b.shifted:
		if a.shift != b.shift {
			return term{}, fmt.Errorf("%w: two distinct shifted terms", ErrUnsupportedProgram)
		}
	case a.shifted:
		out.shifted, out.shift = true, a.shift
	case b.shifted:
		out.shifted, out.shift = true, b.shift
	}
	return out.normalize(), nil
}

// analyzer interprets the loop body symbolically.
type analyzer struct {
	b, c  term
	lead  int
	out   *term
	shift bool
}

func (an *analyzer) combo(operand uint8) (term, error) {
	switch {
	case operand <= 3:
		return constTerm(operand), nil
	case operand == vm.ComboRegA:
		return term{kind: termExpr, lead: an.lead, chunk: true, wide: true}, nil
	case operand == vm.ComboRegB:
		if an.b.kind == termUnset {
			return term{}, fmt.Errorf("%w: B read before write", ErrUnsupportedProgram)
		}
		return an.b, nil
	case operand == vm.ComboRegC:
		if an.c.kind == termUnset {
			return term{}, fmt.Errorf("%w: C read before write", ErrUnsupportedProgram)
		}
		return an.c, nil
	default:
		return term{}, vm.ErrReservedOperand
	}
}

// divide models A >> combo, the value written by bdv and cdv.
func (an *analyzer) divide(operand uint8) (term, error) {
	amount, err := an.combo(operand)
	if err != nil {
		return term{}, err
	}
	if !amount.pureChunk() || amount.lead != an.lead {
		return term{}, fmt.Errorf("%w: shift amount is not a chunk of the current A", ErrUnsupportedProgram)
	}
	return term{
		kind:    termExpr,
		lead:    an.lead,
		shifted: true,
		shift:   amount.mix,
		wide:    true,
	}, nil
}

func (an *analyzer) step(ins vm.Instruction) error {
	switch ins.Op {
	case vm.OpAdv:
		if an.shift {
			return fmt.Errorf("%w: more than one adv", ErrUnsupportedProgram)
		}
		if ins.Operand != 3 {
			return fmt.Errorf("%w: loop must shift A by exactly 3", ErrUnsupportedProgram)
		}
		an.shift = true
		an.lead = 1

	case vm.OpBxl:
		if an.b.kind == termUnset {
			return fmt.Errorf("%w: B read before write", ErrUnsupportedProgram)
		}
		an.b.mix ^= ins.Operand
		an.b = an.b.normalize()

	case vm.OpBst:
		t, err := an.combo(ins.Operand)
		if err != nil {
			return err
		}
		an.b = t.low3()

	case vm.OpJnz:
		return fmt.Errorf("%w: jump inside the loop body", ErrUnsupportedProgram)

	case vm.OpBxc:
		t, err := xorTerms(an.b, an.c)
		if err != nil {
			return err
		}
		an.b = t

	case vm.OpOut:
		if an.out != nil {
			return fmt.Errorf("%w: more than one out", ErrUnsupportedProgram)
		}
		t, err := an.combo(ins.Operand)
		if err != nil {
			return err
		}
		t = t.low3()
		an.out = &t

	case vm.OpBdv:
		t, err := an.divide(ins.Operand)
		if err != nil {
			return err
		}
		an.b = t

	case vm.OpCdv:
		t, err := an.divide(ins.Operand)
		if err != nil {
			return err
		}
		an.c = t
	}
	return nil
}

// Analyze derives the per-iteration output pattern of program.
//
// The program must be a single loop: a body followed by "jnz 0". The body
// must shift A right by 3 exactly once, print exactly once, and write B and
// C before reading them.
func Analyze(program types.Program) (Pattern, error) {
	ins, err := vm.Disassemble(program)
	if err != nil {
		return Pattern{}, err
	}
	if len(ins) < 2 {
		return Pattern{}, fmt.Errorf("%w: program too short", ErrUnsupportedProgram)
	}
	last := ins[len(ins)-1]
	if last.Op != vm.OpJnz || last.Operand != 0 {
		return Pattern{}, fmt.Errorf("%w: program must end with jnz 0", ErrUnsupportedProgram)
	}

	an := &analyzer{}
	for _, in := range ins[:len(ins)-1] {
		if err := an.step(in); err != nil {
			return Pattern{}, fmt.Errorf("ip %d (%s): %w", in.Addr, in, err)
		}
	}
	if !an.shift {
		return Pattern{}, fmt.Errorf("%w: loop never shifts A", ErrUnsupportedProgram)
	}
	if an.out == nil {
		return Pattern{}, fmt.Errorf("%w: loop never prints", ErrUnsupportedProgram)
	}

	t := *an.out
	p := Pattern{
		Chunk:   t.chunk,
		Mix:     t.mix & 7,
		Shifted: t.shifted,
		Shift:   t.shift,
	}
	if t.kind == termExpr {
		p.Lead = t.lead
	}
	return p, nil
}
