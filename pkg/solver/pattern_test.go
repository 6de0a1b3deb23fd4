package solver

import (
	"errors"
	"testing"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
)

// programs covers each pattern shape the analyser recognises.
var programs = []struct {
	name    string
	program types.Program
	pattern Pattern
}{
	{"mix 3 shift 5", types.Program{2, 4, 1, 5, 7, 5, 1, 6, 0, 3, 4, 0, 5, 5, 3, 0}, Pattern{Chunk: true, Mix: 3, Shifted: true, Shift: 5}},
	{"mix 4 shift 1", types.Program{2, 4, 1, 1, 7, 5, 1, 5, 4, 0, 0, 3, 5, 5, 3, 0}, Pattern{Chunk: true, Mix: 4, Shifted: true, Shift: 1}},
	{"mix 0 shift 3", types.Program{2, 4, 1, 3, 7, 5, 4, 1, 1, 3, 0, 3, 5, 5, 3, 0}, Pattern{Chunk: true, Mix: 0, Shifted: true, Shift: 3}},
	{"print A after shift", types.Program{0, 3, 5, 4, 3, 0}, Pattern{Lead: 1, Chunk: true}},
	{"shift only", types.Program{2, 4, 7, 5, 0, 3, 5, 6, 3, 0}, Pattern{Shifted: true}},
	{"constant", types.Program{0, 3, 5, 1, 3, 0}, Pattern{Mix: 1}},
	{"chunk after shift", types.Program{0, 3, 2, 4, 1, 2, 5, 5, 3, 0}, Pattern{Lead: 1, Chunk: true, Mix: 2}},
}

func TestAnalyze(t *testing.T) {
	for _, tt := range programs {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Analyze(tt.program)
			if err != nil {
				t.Fatalf("Analyze() failed: %v", err)
			}
			if got != tt.pattern {
				t.Errorf("Analyze() = %+v, want %+v", got, tt.pattern)
			}
		})
	}
}

func TestAnalyzeUnsupported(t *testing.T) {
	tests := []struct {
		name    string
		program types.Program
		want    error
	}{
		{"no trailing jnz", types.Program{0, 3, 5, 4}, ErrUnsupportedProgram},
		{"jnz to other address", types.Program{0, 3, 5, 4, 3, 2}, ErrUnsupportedProgram},
		{"too short", types.Program{3, 0}, ErrUnsupportedProgram},
		{"two outs", types.Program{0, 3, 5, 4, 5, 4, 3, 0}, ErrUnsupportedProgram},
		{"no out", types.Program{0, 3, 3, 0}, ErrUnsupportedProgram},
		{"no adv", types.Program{5, 4, 3, 0}, ErrUnsupportedProgram},
		{"two advs", types.Program{0, 3, 0, 3, 5, 4, 3, 0}, ErrUnsupportedProgram},
		{"adv by 2", types.Program{0, 2, 5, 4, 3, 0}, ErrUnsupportedProgram},
		{"B read before write", types.Program{1, 3, 5, 5, 0, 3, 3, 0}, ErrUnsupportedProgram},
		{"C read before write", types.Program{0, 3, 5, 6, 3, 0}, ErrUnsupportedProgram},
		{"jump in body", types.Program{0, 3, 3, 2, 5, 4, 3, 0}, ErrUnsupportedProgram},
		{"shift by A", types.Program{0, 3, 7, 4, 5, 6, 3, 0}, ErrUnsupportedProgram},
		{"mixed leads", types.Program{2, 4, 7, 5, 0, 3, 2, 4, 4, 0, 5, 5, 3, 0}, ErrUnsupportedProgram},
		{"reserved operand", types.Program{0, 3, 5, 7, 3, 0}, vm.ErrReservedOperand},
		{"invalid opcode", types.Program{0, 3, 9, 0, 3, 0}, vm.ErrInvalidOpcode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(tt.program)
			if !errors.Is(err, tt.want) {
				t.Errorf("Analyze() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestPatternDigit checks the derived pattern predicts every digit the
// machine actually prints.
func TestPatternDigit(t *testing.T) {
	for _, tt := range programs {
		t.Run(tt.name, func(t *testing.T) {
			in := vm.New(tt.program, vm.Options{})
			for a := uint64(0); a < 200000; a += 37 {
				res, err := in.Run(types.NewRegisters(a, 0, 0))
				if err != nil {
					t.Fatalf("Run(%d) failed: %v", a, err)
				}
				for k, d := range res.Output {
					w := a >> (3 * uint(k+tt.pattern.Lead))
					if got := tt.pattern.Digit(w); got != d {
						t.Fatalf("A=%d digit %d: pattern gives %d, machine printed %d", a, k, got, d)
					}
				}
			}
		})
	}
}

func TestPatternString(t *testing.T) {
	p := Pattern{Chunk: true, Mix: 3, Shifted: true, Shift: 5}
	if got := p.String(); got != "d = 3 ^ i ^ (w >> (i ^ 5)) & 7, lead 0" {
		t.Errorf("String() = %q", got)
	}
}
