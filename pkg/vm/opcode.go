package vm

import (
	"fmt"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// Opcode is a 3-bit instruction selector.
type Opcode uint8

// Instruction set.
const (
	OpAdv Opcode = iota // A = A >> combo
	OpBxl               // B = B ^ literal
	OpBst               // B = combo % 8
	OpJnz               // if A != 0 { ip = literal }
	OpBxc               // B = B ^ C
	OpOut               // emit combo % 8
	OpBdv               // B = A >> combo
	OpCdv               // C = A >> combo
)

// NumOpcodes is the size of the instruction set.
const NumOpcodes = 8

// OperandKind describes how an instruction reads its operand.
type OperandKind uint8

// Operand kinds.
const (
	OperandLiteral OperandKind = iota
	OperandCombo
	OperandIgnored
)

// Combo operand values.
const (
	ComboRegA     = 4
	ComboRegB     = 5
	ComboRegC     = 6
	ComboReserved = 7
)

type opcodeInfo struct {
	name    string
	operand OperandKind
}

var opcodes = [NumOpcodes]opcodeInfo{
	OpAdv: {"adv", OperandCombo},
	OpBxl: {"bxl", OperandLiteral},
	OpBst: {"bst", OperandCombo},
	OpJnz: {"jnz", OperandLiteral},
	OpBxc: {"bxc", OperandIgnored},
	OpOut: {"out", OperandCombo},
	OpBdv: {"bdv", OperandCombo},
	OpCdv: {"cdv", OperandCombo},
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	return op < NumOpcodes
}

// String returns the mnemonic.
func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("op(%d)", uint8(op))
	}
	return opcodes[op].name
}

// Operand returns how op interprets its operand.
func (op Opcode) Operand() OperandKind {
	if !op.Valid() {
		return OperandIgnored
	}
	return opcodes[op].operand
}

// Combo resolves a combo operand against regs.
func Combo(regs *types.Registers, operand uint8) (uint64, error) {
	switch {
	case operand <= 3:
		return uint64(operand), nil
	case operand == ComboRegA:
		return regs[types.RegA], nil
	case operand == ComboRegB:
		return regs[types.RegB], nil
	case operand == ComboRegC:
		return regs[types.RegC], nil
	default:
		return 0, ErrReservedOperand
	}
}

// shr shifts right, saturating to zero for shifts past the word size.
func shr(v, n uint64) uint64 {
	if n >= 64 {
		return 0
	}
	return v >> n
}

// Instruction is a decoded opcode/operand pair.
type Instruction struct {
	Addr    int
	Op      Opcode
	Operand uint8
}

// String renders the instruction as assembly.
func (ins Instruction) String() string {
	switch ins.Op.Operand() {
	case OperandIgnored:
		return ins.Op.String()
	case OperandCombo:
		return ins.Op.String() + " " + comboName(ins.Operand)
	default:
		return fmt.Sprintf("%s %d", ins.Op, ins.Operand)
	}
}

func comboName(operand uint8) string {
	switch operand {
	case ComboRegA:
		return "A"
	case ComboRegB:
		return "B"
	case ComboRegC:
		return "C"
	case ComboReserved:
		return "<reserved>"
	default:
		return fmt.Sprintf("%d", operand)
	}
}

// Disassemble decodes program into instructions at even addresses.
func Disassemble(program types.Program) ([]Instruction, error) {
	out := make([]Instruction, 0, len(program)/2)
	for ip := 0; ip < len(program); ip += 2 {
		op := Opcode(program[ip])
		if !op.Valid() {
			return out, fault(fmt.Errorf("%w: %d", ErrInvalidOpcode, program[ip]), ip, op)
		}
		if ip+1 >= len(program) {
			return out, fault(ErrTruncatedProgram, ip, op)
		}
		out = append(out, Instruction{Addr: ip, Op: op, Operand: program[ip+1]})
	}
	return out, nil
}
