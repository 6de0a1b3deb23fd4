package vm

import (
	"errors"
	"testing"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// TestInstructions tests each opcode against small known programs.
func TestInstructions(t *testing.T) {
	tests := []struct {
		name    string
		regs    types.Registers
		program types.Program
		output  string
		check   func(types.Registers) bool
	}{
		{
			name:    "bst from C",
			regs:    types.NewRegisters(0, 0, 9),
			program: types.Program{2, 6},
			check:   func(r types.Registers) bool { return r.B() == 1 },
		},
		{
			name:    "out literals and A",
			regs:    types.NewRegisters(10, 0, 0),
			program: types.Program{5, 0, 5, 1, 5, 4},
			output:  "0,1,2",
		},
		{
			name:    "countdown loop",
			regs:    types.NewRegisters(2024, 0, 0),
			program: types.Program{0, 1, 5, 4, 3, 0},
			output:  "4,2,5,6,7,7,7,7,3,1,0",
			check:   func(r types.Registers) bool { return r.A() == 0 },
		},
		{
			name:    "bxl",
			regs:    types.NewRegisters(0, 29, 0),
			program: types.Program{1, 7},
			check:   func(r types.Registers) bool { return r.B() == 26 },
		},
		{
			name:    "bxc ignores operand",
			regs:    types.NewRegisters(0, 2024, 43690),
			program: types.Program{4, 0},
			check:   func(r types.Registers) bool { return r.B() == 44354 },
		},
		{
			name:    "bdv",
			regs:    types.NewRegisters(64, 0, 0),
			program: types.Program{6, 3},
			check:   func(r types.Registers) bool { return r.B() == 8 && r.A() == 64 },
		},
		{
			name:    "cdv by register",
			regs:    types.NewRegisters(64, 2, 0),
			program: types.Program{7, 5},
			check:   func(r types.Registers) bool { return r.C() == 16 },
		},
		{
			name:    "shift past word size",
			regs:    types.NewRegisters(1<<63, 70, 0),
			program: types.Program{0, 5},
			check:   func(r types.Registers) bool { return r.A() == 0 },
		},
		{
			name:    "jnz not taken falls through",
			regs:    types.NewRegisters(0, 0, 0),
			program: types.Program{3, 4, 5, 1},
			output:  "1",
		},
		{
			name:    "jnz to odd address",
			regs:    types.NewRegisters(1, 0, 0),
			program: types.Program{3, 3, 0, 5, 4, 0, 0},
			output:  "1",
		},
		{
			name:    "empty program",
			regs:    types.NewRegisters(5, 0, 0),
			program: types.Program{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Run(tt.regs, tt.program)
			if err != nil {
				t.Fatalf("Run() failed: %v", err)
			}
			if got := res.Output.String(); got != tt.output {
				t.Errorf("output = %q, want %q", got, tt.output)
			}
			if tt.check != nil && !tt.check(res.Registers) {
				t.Errorf("unexpected registers: %v", res.Registers)
			}
		})
	}
}

// TestExample runs the reference program from register A = 729.
func TestExample(t *testing.T) {
	res, err := Run(types.NewRegisters(729, 0, 0), types.Program{0, 1, 5, 4, 3, 0})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got := res.Output.String(); got != "4,6,3,5,6,3,5,2,1,0" {
		t.Errorf("output = %s, want 4,6,3,5,6,3,5,2,1,0", got)
	}
}

// TestSelfReproducing checks a known seed prints its own program.
func TestSelfReproducing(t *testing.T) {
	prog := types.Program{0, 3, 5, 4, 3, 0}
	res, err := Run(types.NewRegisters(117440, 0, 0), prog)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !res.Output.Equal(prog.Digits()) {
		t.Errorf("output = %s, want %s", res.Output, prog)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		regs    types.Registers
		program types.Program
		opts    Options
		want    error
		ip      int
	}{
		{"reserved combo", types.Registers{}, types.Program{5, 1, 2, 7}, Options{}, ErrReservedOperand, 2},
		{"invalid opcode", types.Registers{}, types.Program{1, 1, 8, 0}, Options{}, ErrInvalidOpcode, 2},
		{"truncated", types.Registers{}, types.Program{1, 1, 0}, Options{}, ErrTruncatedProgram, 2},
		{"step limit", types.NewRegisters(1, 0, 0), types.Program{3, 0}, Options{MaxSteps: 100}, ErrStepLimitExceeded, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(tt.program, tt.opts).Run(tt.regs)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() error = %v, want %v", err, tt.want)
			}
			var vmErr *Error
			if !errors.As(err, &vmErr) {
				t.Fatalf("error %T is not *Error", err)
			}
			if vmErr.IP != tt.ip {
				t.Errorf("IP = %d, want %d", vmErr.IP, tt.ip)
			}
			if res == nil {
				t.Error("partial result should be returned alongside the error")
			}
		})
	}
}

func TestReservedOperandOutputKept(t *testing.T) {
	res, err := Run(types.Registers{}, types.Program{5, 3, 5, 7})
	if !errors.Is(err, ErrReservedOperand) {
		t.Fatalf("error = %v, want ErrReservedOperand", err)
	}
	if got := res.Output.String(); got != "3" {
		t.Errorf("partial output = %q, want 3", got)
	}
}

func TestVerify(t *testing.T) {
	prog := types.Program{0, 3, 5, 4, 3, 0}

	res, err := Verify(types.NewRegisters(117440, 0, 0), prog, prog.Digits())
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !res.Matches(prog.Digits()) {
		t.Errorf("Matches() = false, output %s", res.Output)
	}

	// 2024 prints 5 first, so nothing is emitted.
	res, err = Verify(types.NewRegisters(2024, 0, 0), prog, prog.Digits())
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !res.Diverged {
		t.Error("Diverged = false, want true")
	}
	if res.Matches(prog.Digits()) {
		t.Error("Matches() = true for a diverging run")
	}
	if len(res.Output) != 0 {
		t.Errorf("output = %s, want empty", res.Output)
	}

	// Divergence on the last digit keeps the matching prefix.
	target := types.Digits{0, 3, 5, 4, 3, 1}
	res, err = Verify(types.NewRegisters(117440, 0, 0), prog, target)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !res.Diverged || res.Output.String() != "0,3,5,4,3" {
		t.Errorf("diverged=%v output=%s, want prefix 0,3,5,4,3", res.Diverged, res.Output)
	}
}

func TestVerifyNeverExceedsTarget(t *testing.T) {
	prog := types.Program{0, 1, 5, 4, 3, 0}
	target := types.Digits{4, 6, 3}

	res, err := Verify(types.NewRegisters(729, 0, 0), prog, target)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !res.Diverged {
		t.Error("run past the target length should diverge")
	}
	if !res.Output.Equal(target) {
		t.Errorf("output = %s, want %s", res.Output, target)
	}
	if res.Matches(target) {
		t.Error("Matches() = true although the program would emit more")
	}
}

// TestVerifyEquivalence checks verification agrees with a full run whenever
// the target is the full run's own output.
func TestVerifyEquivalence(t *testing.T) {
	programs := []types.Program{
		{0, 1, 5, 4, 3, 0},
		{0, 3, 5, 4, 3, 0},
		{2, 4, 1, 5, 7, 5, 1, 6, 0, 3, 4, 0, 5, 5, 3, 0},
		{2, 4, 1, 1, 7, 5, 1, 5, 4, 0, 0, 3, 5, 5, 3, 0},
	}

	for _, prog := range programs {
		in := New(prog, Options{})
		for a := uint64(0); a < 4096; a += 7 {
			regs := types.NewRegisters(a, 0, 0)
			full, err := in.Run(regs)
			if err != nil {
				t.Fatalf("Run(%d) failed: %v", a, err)
			}
			ver, err := in.Verify(regs, full.Output)
			if err != nil {
				t.Fatalf("Verify(%d) failed: %v", a, err)
			}
			if !ver.Matches(full.Output) {
				t.Fatalf("program %s A=%d: verify output %s, run output %s", prog, a, ver.Output, full.Output)
			}
			if ver.Registers != full.Registers {
				t.Fatalf("program %s A=%d: final registers differ", prog, a)
			}
		}
	}
}

func TestTracer(t *testing.T) {
	rec := NewRecorder(0)
	in := New(types.Program{0, 1, 5, 4, 3, 0}, Options{Tracer: rec.Record})

	res, err := in.Run(types.NewRegisters(8, 0, 0))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	steps := rec.Steps()
	if uint64(len(steps)) != res.Steps {
		t.Fatalf("recorded %d steps, result reports %d", len(steps), res.Steps)
	}
	if steps[0].IP != 0 || steps[0].Op != OpAdv || steps[0].Registers.A() != 8 {
		t.Errorf("first step = %+v", steps[0])
	}
	if steps[1].Registers.A() != 4 {
		t.Errorf("A after adv 1 = %d, want 4", steps[1].Registers.A())
	}

	limited := NewRecorder(2)
	if _, err := New(types.Program{0, 1, 5, 4, 3, 0}, Options{Tracer: limited.Record}).Run(types.NewRegisters(8, 0, 0)); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(limited.Steps()) != 2 || !limited.Overflow {
		t.Errorf("limited recorder kept %d steps, overflow=%v", len(limited.Steps()), limited.Overflow)
	}
}

func TestStepString(t *testing.T) {
	s := Step{IP: 4, Op: OpOut, Operand: 5, Registers: types.NewRegisters(1, 2, 3)}
	want := "0004  out B   A=1 B=2 C=3"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
