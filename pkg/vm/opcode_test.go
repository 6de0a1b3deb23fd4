package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

func TestDisassemble(t *testing.T) {
	prog := types.Program{2, 4, 1, 5, 7, 5, 1, 6, 0, 3, 4, 0, 5, 5, 3, 0}

	ins, err := Disassemble(prog)
	if err != nil {
		t.Fatalf("Disassemble() failed: %v", err)
	}

	var lines []string
	for _, i := range ins {
		lines = append(lines, i.String())
	}
	want := "bst A|bxl 5|cdv B|bxl 6|adv 3|bxc|out B|jnz 0"
	if got := strings.Join(lines, "|"); got != want {
		t.Errorf("Disassemble() = %q, want %q", got, want)
	}
	if ins[3].Addr != 6 {
		t.Errorf("Addr = %d, want 6", ins[3].Addr)
	}
}

func TestDisassembleErrors(t *testing.T) {
	if _, err := Disassemble(types.Program{0, 3, 9, 0}); !errors.Is(err, ErrInvalidOpcode) {
		t.Errorf("error = %v, want ErrInvalidOpcode", err)
	}
	if _, err := Disassemble(types.Program{0, 3, 5}); !errors.Is(err, ErrTruncatedProgram) {
		t.Errorf("error = %v, want ErrTruncatedProgram", err)
	}

	// A reserved operand is only an error when evaluated.
	ins, err := Disassemble(types.Program{5, 7})
	if err != nil {
		t.Fatalf("Disassemble() failed: %v", err)
	}
	if got := ins[0].String(); got != "out <reserved>" {
		t.Errorf("String() = %q", got)
	}
}

func TestCombo(t *testing.T) {
	regs := types.NewRegisters(10, 20, 30)
	want := []uint64{0, 1, 2, 3, 10, 20, 30}
	for operand, w := range want {
		got, err := Combo(&regs, uint8(operand))
		if err != nil {
			t.Fatalf("Combo(%d) failed: %v", operand, err)
		}
		if got != w {
			t.Errorf("Combo(%d) = %d, want %d", operand, got, w)
		}
	}
	if _, err := Combo(&regs, ComboReserved); err != ErrReservedOperand {
		t.Errorf("Combo(7) = %v, want ErrReservedOperand", err)
	}
}

func TestOpcodeString(t *testing.T) {
	if OpCdv.String() != "cdv" {
		t.Errorf("OpCdv.String() = %q", OpCdv.String())
	}
	if Opcode(9).Valid() {
		t.Error("Opcode(9) should be invalid")
	}
	if Opcode(9).String() != "op(9)" {
		t.Errorf("Opcode(9).String() = %q", Opcode(9).String())
	}
}

// TestMeter tests the step meter.
func TestMeter(t *testing.T) {
	m := NewMeter(1000)

	if m.Remaining() != 1000 {
		t.Errorf("Remaining() = %d, want 1000", m.Remaining())
	}

	if err := m.Consume(100); err != nil {
		t.Errorf("Consume(100) failed: %v", err)
	}
	if m.Remaining() != 900 {
		t.Errorf("Remaining() = %d, want 900", m.Remaining())
	}

	if err := m.Consume(900); err != nil {
		t.Errorf("Consume(900) failed: %v", err)
	}
	if m.Consumed() != 1000 {
		t.Errorf("Consumed() = %d, want 1000", m.Consumed())
	}

	if err := m.Consume(1); err != ErrStepLimitExceeded {
		t.Errorf("Consume(1) = %v, want ErrStepLimitExceeded", err)
	}

	m.Reset()
	if m.Remaining() != m.Limit() || m.Consumed() != 0 {
		t.Errorf("after Reset: remaining %d consumed %d", m.Remaining(), m.Consumed())
	}
}
