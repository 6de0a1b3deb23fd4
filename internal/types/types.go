// Package types defines the core value types shared across X1-Chrono.
//
// A machine is described by three 64-bit registers and a program made of
// 3-bit values. Output is a sequence of 3-bit digits. All types here are
// plain values with no behaviour beyond formatting and comparison.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Register indices.
const (
	RegA = iota
	RegB
	RegC

	NumRegisters
)

// MaxValue is the largest value a program cell or output digit may hold.
const MaxValue = 7

var (
	// ErrInvalidDigit is returned when a digit is outside 0..7.
	ErrInvalidDigit = errors.New("invalid digit: must be in 0..7")

	// ErrEmptyList is returned when parsing an empty digit list.
	ErrEmptyList = errors.New("empty digit list")
)

// Registers holds the A, B and C registers.
type Registers [NumRegisters]uint64

// NewRegisters returns registers initialised to a, b and c.
func NewRegisters(a, b, c uint64) Registers {
	return Registers{a, b, c}
}

// A returns register A.
func (r Registers) A() uint64 { return r[RegA] }

// B returns register B.
func (r Registers) B() uint64 { return r[RegB] }

// C returns register C.
func (r Registers) C() uint64 { return r[RegC] }

// String returns a human readable form.
func (r Registers) String() string {
	return fmt.Sprintf("A=%d B=%d C=%d", r[RegA], r[RegB], r[RegC])
}

// Program is an immutable sequence of 3-bit values read as opcode/operand pairs.
type Program []uint8

// Validate checks every cell is in range. It does not require even length;
// the interpreter reports a truncated trailing opcode when it reaches it.
func (p Program) Validate() error {
	for i, v := range p {
		if v > MaxValue {
			return fmt.Errorf("cell %d: %w", i, ErrInvalidDigit)
		}
	}
	return nil
}

// Digits returns the program as an output sequence, the target of a quine search.
func (p Program) Digits() Digits {
	d := make(Digits, len(p))
	copy(d, p)
	return d
}

// Bytes returns a copy of the raw cells.
func (p Program) Bytes() []byte {
	b := make([]byte, len(p))
	copy(b, p)
	return b
}

// String returns the comma-joined form.
func (p Program) String() string {
	return joinDigits(p)
}

// Digits is a sequence of 3-bit output values.
type Digits []uint8

// ParseDigits parses a comma-separated list such as "2,4,1,5".
func ParseDigits(s string) (Digits, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyList
	}
	parts := strings.Split(s, ",")
	d := make(Digits, 0, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if n > MaxValue {
			return nil, fmt.Errorf("item %d (%d): %w", i, n, ErrInvalidDigit)
		}
		d = append(d, uint8(n))
	}
	return d, nil
}

// Equal reports whether two digit sequences are identical.
func (d Digits) Equal(other Digits) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if d[i] != other[i] {
			return false
		}
	}
	return true
}

// String returns the comma-joined form used by the CLI.
func (d Digits) String() string {
	return joinDigits(d)
}

func joinDigits(vals []uint8) string {
	var sb strings.Builder
	for i, v := range vals {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	return sb.String()
}
