// Package solver finds the smallest register A value for which a program
// prints a given digit sequence, most usefully the program itself.
//
// The program is first analysed into a Pattern describing what each loop
// iteration prints. Every (digit, chunk) pair is then turned into a 10-bit
// Template constraining the chunk and the bits above it. The search assigns
// A three bits at a time from the most significant end, keeping only chunks
// whose template agrees with the bits already placed, and confirms each
// complete candidate by running the program.
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
)

// Errors.
var (
	// ErrNoSolution is returned when no value of A reproduces the target.
	ErrNoSolution = errors.New("no seed reproduces the target")

	// ErrUnsupportedProgram is returned for programs outside the single
	// shift-and-print loop shape.
	ErrUnsupportedProgram = errors.New("unsupported program")

	// ErrTargetTooLong is returned when a solution could not fit in 64 bits.
	ErrTargetTooLong = errors.New("target too long for a 64-bit seed")

	// ErrEmptyTarget is returned for an empty target.
	ErrEmptyTarget = errors.New("empty target")
)

var log = commonlog.GetLogger("chrono.solver")

// Config configures a Solver.
type Config struct {
	// MaxSteps bounds each verification run. Zero means vm.DefaultMaxSteps.
	MaxSteps uint64
}

// Solution is a found seed.
type Solution struct {
	// Seed is the smallest A that reproduces the target.
	Seed uint64

	// Pattern is the loop pattern the search was driven by.
	Pattern Pattern

	// Nodes counts visited search states.
	Nodes uint64
}

// Solver holds the analysis of one program and answers searches over it.
// It is safe for concurrent use.
type Solver struct {
	program types.Program
	pattern Pattern
	options Options
	interp  *vm.Interpreter
}

// New analyses program and precomputes its templates.
func New(program types.Program, config Config) (*Solver, error) {
	if err := program.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedProgram, err)
	}
	pattern, err := Analyze(program)
	if err != nil {
		return nil, err
	}

	s := &Solver{
		program: program,
		pattern: pattern,
		options: Generate(pattern),
		interp:  vm.New(program, vm.Options{MaxSteps: config.MaxSteps}),
	}
	log.Debugf("program %s: %s", program, pattern)
	return s, nil
}

// Pattern returns the analysed loop pattern.
func (s *Solver) Pattern() Pattern {
	return s.pattern
}

// Options returns the per-digit templates.
func (s *Solver) Options() Options {
	return s.options
}

// Solve finds the smallest A for which the program prints itself.
func (s *Solver) Solve(ctx context.Context) (*Solution, error) {
	return s.SolveFor(ctx, s.program.Digits())
}

// SolveFor finds the smallest A for which the program prints target.
func (s *Solver) SolveFor(ctx context.Context, target types.Digits) (*Solution, error) {
	if len(target) == 0 {
		return nil, ErrEmptyTarget
	}
	for i, d := range target {
		if d > types.MaxValue {
			return nil, fmt.Errorf("target digit %d: %w", i, types.ErrInvalidDigit)
		}
	}
	if ChunkBits*(len(target)+s.pattern.Lead) > 64 {
		return nil, fmt.Errorf("%w: %d digits", ErrTargetTooLong, len(target))
	}

	sr := &search{
		ctx:     ctx,
		interp:  s.interp,
		options: &s.options,
		target:  target,
		lead:    s.pattern.Lead,
		buf:     NewBuffer(len(target)),
	}
	found, err := sr.descend(0)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Debugf("target %s exhausted after %d nodes", target, sr.nodes)
		return nil, ErrNoSolution
	}

	log.Debugf("target %s solved: %d (%d nodes)", target, sr.seed, sr.nodes)
	return &Solution{
		Seed:    sr.seed,
		Pattern: s.pattern,
		Nodes:   sr.nodes,
	}, nil
}

// Solve finds the smallest A for which program prints itself.
func Solve(ctx context.Context, program types.Program) (*Solution, error) {
	s, err := New(program, Config{})
	if err != nil {
		return nil, err
	}
	return s.Solve(ctx)
}
