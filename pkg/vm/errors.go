package vm

import (
	"errors"
	"fmt"
)

// Errors.
var (
	// ErrInvalidOpcode is returned when an opcode above 7 is fetched.
	ErrInvalidOpcode = errors.New("invalid opcode")

	// ErrReservedOperand is returned when combo operand 7 is evaluated.
	ErrReservedOperand = errors.New("reserved combo operand 7")

	// ErrTruncatedProgram is returned when an opcode has no operand after it.
	ErrTruncatedProgram = errors.New("truncated program: opcode without operand")

	// ErrStepLimitExceeded is returned when a run executes more instructions than allowed.
	ErrStepLimitExceeded = errors.New("step limit exceeded")
)

// Error reports a fault together with the instruction that caused it.
type Error struct {
	Err error
	IP  int
	Op  Opcode
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("ip %d (%s): %v", e.IP, e.Op, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

func fault(err error, ip int, op Opcode) error {
	return &Error{Err: err, IP: ip, Op: op}
}
