// Package vm implements the three-register machine.
//
// The machine has three unbounded-width (64-bit) registers A, B and C and
// executes a program of 3-bit cells read as opcode/operand pairs. An
// instruction pointer starts at 0, advances by 2 after every instruction
// except a taken jnz, and the machine halts when it leaves the program.
//
// Operands are either literal (the cell value itself) or combo: values 0..3
// are literals, 4, 5 and 6 name registers A, B and C, and 7 is reserved.
//
// A verification run compares output against a target while executing and
// stops at the first digit that differs, or at the first digit that would
// exceed the target's length.
package vm

import (
	"fmt"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// Options configures an Interpreter.
type Options struct {
	// MaxSteps bounds executed instructions. Zero means DefaultMaxSteps.
	MaxSteps uint64

	// Tracer, if set, is called before each instruction executes.
	Tracer TraceFunc
}

// Result is the outcome of a run.
type Result struct {
	// Output holds the emitted digits. For a verification run it is always
	// a prefix of the target.
	Output types.Digits

	// Registers holds the final register values.
	Registers types.Registers

	// Steps is the number of instructions executed.
	Steps uint64

	// Diverged is set when a verification run stopped early.
	Diverged bool
}

// Matches reports whether the run reproduced target exactly.
func (r *Result) Matches(target types.Digits) bool {
	return !r.Diverged && r.Output.Equal(target)
}

// Interpreter executes a fixed program. It holds no run state and is safe
// for concurrent use.
type Interpreter struct {
	program types.Program
	opts    Options
}

// New creates an interpreter for program.
func New(program types.Program, opts Options) *Interpreter {
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Interpreter{
		program: program,
		opts:    opts,
	}
}

// Program returns the program being interpreted.
func (in *Interpreter) Program() types.Program {
	return in.program
}

// Run executes the program from regs until it halts.
func (in *Interpreter) Run(regs types.Registers) (*Result, error) {
	return in.execute(regs, nil, false)
}

// Verify executes the program from regs, stopping as soon as the output
// can no longer equal target.
func (in *Interpreter) Verify(regs types.Registers, target types.Digits) (*Result, error) {
	return in.execute(regs, target, true)
}

func (in *Interpreter) execute(regs types.Registers, target types.Digits, verify bool) (*Result, error) {
	prog := in.program
	meter := NewMeter(in.opts.MaxSteps)
	res := &Result{}

	ip := 0
	for ip >= 0 && ip < len(prog) {
		op := Opcode(prog[ip])
		if !op.Valid() {
			return in.finish(res, regs, meter), fault(fmt.Errorf("%w: %d", ErrInvalidOpcode, prog[ip]), ip, op)
		}
		if ip+1 >= len(prog) {
			return in.finish(res, regs, meter), fault(ErrTruncatedProgram, ip, op)
		}
		operand := prog[ip+1]

		if err := meter.Consume(1); err != nil {
			return in.finish(res, regs, meter), fault(err, ip, op)
		}
		if in.opts.Tracer != nil {
			in.opts.Tracer(Step{IP: ip, Op: op, Operand: operand, Registers: regs})
		}

		switch op {
		case OpAdv, OpBdv, OpCdv:
			v, err := Combo(&regs, operand)
			if err != nil {
				return in.finish(res, regs, meter), fault(err, ip, op)
			}
			dst := types.RegA
			if op == OpBdv {
				dst = types.RegB
			} else if op == OpCdv {
				dst = types.RegC
			}
			regs[dst] = shr(regs[types.RegA], v)

		case OpBxl:
			regs[types.RegB] ^= uint64(operand)

		case OpBst:
			v, err := Combo(&regs, operand)
			if err != nil {
				return in.finish(res, regs, meter), fault(err, ip, op)
			}
			regs[types.RegB] = v & 7

		case OpJnz:
			if regs[types.RegA] != 0 {
				ip = int(operand)
				continue
			}

		case OpBxc:
			regs[types.RegB] ^= regs[types.RegC]

		case OpOut:
			v, err := Combo(&regs, operand)
			if err != nil {
				return in.finish(res, regs, meter), fault(err, ip, op)
			}
			digit := uint8(v & 7)
			if verify {
				n := len(res.Output)
				if n >= len(target) || target[n] != digit {
					res.Diverged = true
					return in.finish(res, regs, meter), nil
				}
			}
			res.Output = append(res.Output, digit)
		}

		ip += 2
	}

	return in.finish(res, regs, meter), nil
}

func (in *Interpreter) finish(res *Result, regs types.Registers, meter *Meter) *Result {
	res.Registers = regs
	res.Steps = meter.Consumed()
	return res
}

// Run executes program from regs with default options.
func Run(regs types.Registers, program types.Program) (*Result, error) {
	return New(program, Options{}).Run(regs)
}

// Verify runs program from regs in verification mode against target.
func Verify(regs types.Registers, program types.Program, target types.Digits) (*Result, error) {
	return New(program, Options{}).Verify(regs, target)
}
