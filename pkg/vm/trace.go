package vm

import (
	"fmt"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// Step is the machine state just before an instruction executes.
type Step struct {
	IP        int
	Op        Opcode
	Operand   uint8
	Registers types.Registers
}

// String renders the step as one trace line.
func (s Step) String() string {
	ins := Instruction{Addr: s.IP, Op: s.Op, Operand: s.Operand}
	return fmt.Sprintf("%04d  %-6s  %s", s.IP, ins, s.Registers)
}

// TraceFunc receives each executed step.
type TraceFunc func(Step)

// Recorder collects steps up to a fixed capacity.
type Recorder struct {
	steps    []Step
	limit    int
	Overflow bool
}

// NewRecorder creates a recorder keeping at most limit steps. Zero keeps all.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Record appends a step. It is a TraceFunc.
func (r *Recorder) Record(s Step) {
	if r.limit > 0 && len(r.steps) >= r.limit {
		r.Overflow = true
		return
	}
	r.steps = append(r.steps, s)
}

// Steps returns the recorded steps.
func (r *Recorder) Steps() []Step {
	return r.steps
}
