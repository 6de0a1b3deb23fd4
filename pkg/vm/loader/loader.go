// Package loader reads machine images from their text form.
//
// An image looks like:
//
//	Register A: 729
//	Register B: 0
//	Register C: 0
//
//	Program: 0,1,5,4,3,0
//
// Leading and trailing whitespace on each line is ignored, as are blank
// lines. Each register and the program must appear exactly once.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// Limits.
const (
	// MaxProgramLen caps the number of program cells accepted.
	MaxProgramLen = 4096

	// MaxLineLen caps a single input line in bytes.
	MaxLineLen = 64 * 1024
)

// Errors.
var (
	ErrSyntax            = errors.New("syntax error")
	ErrMissingRegister   = errors.New("missing register")
	ErrDuplicateRegister = errors.New("duplicate register")
	ErrMissingProgram    = errors.New("missing program")
	ErrDuplicateProgram  = errors.New("duplicate program")
	ErrOddProgram        = errors.New("program has odd length")
	ErrValueOutOfRange   = errors.New("program value out of range 0..7")
	ErrProgramTooLong    = errors.New("program too long")
)

const (
	registerPrefix = "Register "
	programPrefix  = "Program:"
)

var registerNames = [types.NumRegisters]string{"A", "B", "C"}

// Image is a loaded machine: initial registers and program.
type Image struct {
	Registers types.Registers
	Program   types.Program
}

// LineError reports which input line failed to parse.
type LineError struct {
	Line int
	Err  error
}

// Error implements the error interface.
func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *LineError) Unwrap() error {
	return e.Err
}

// Parse reads an image from r.
func Parse(r io.Reader) (*Image, error) {
	img := &Image{}
	var seen [types.NumRegisters]bool
	programSeen := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineLen)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, registerPrefix):
			idx, value, err := parseRegister(line)
			if err != nil {
				return nil, &LineError{Line: lineNo, Err: err}
			}
			if seen[idx] {
				return nil, &LineError{Line: lineNo, Err: fmt.Errorf("%w: %s", ErrDuplicateRegister, registerNames[idx])}
			}
			seen[idx] = true
			img.Registers[idx] = value

		case strings.HasPrefix(line, programPrefix):
			if programSeen {
				return nil, &LineError{Line: lineNo, Err: ErrDuplicateProgram}
			}
			prog, err := ParseProgram(strings.TrimPrefix(line, programPrefix))
			if err != nil {
				return nil, &LineError{Line: lineNo, Err: err}
			}
			programSeen = true
			img.Program = prog

		default:
			return nil, &LineError{Line: lineNo, Err: fmt.Errorf("%w: unexpected %q", ErrSyntax, line)}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingRegister, registerNames[i])
		}
	}
	if !programSeen {
		return nil, ErrMissingProgram
	}

	return img, nil
}

// ParseString reads an image from s.
func ParseString(s string) (*Image, error) {
	return Parse(strings.NewReader(s))
}

// LoadFile reads an image from the file at path.
func LoadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// parseRegister parses "Register X: n".
func parseRegister(line string) (int, uint64, error) {
	rest := strings.TrimPrefix(line, registerPrefix)
	name, value, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: missing ':' in register line", ErrSyntax)
	}
	name = strings.TrimSpace(name)

	idx := -1
	for i, n := range registerNames {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, 0, fmt.Errorf("%w: unknown register %q", ErrSyntax, name)
	}

	v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: register %s: %v", ErrSyntax, name, err)
	}
	return idx, v, nil
}

// ParseProgram parses a comma-separated cell list such as the one after
// "Program:". An empty list yields an empty program.
func ParseProgram(s string) (types.Program, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Program{}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) > MaxProgramLen {
		return nil, fmt.Errorf("%w: %d cells (max %d)", ErrProgramTooLong, len(parts), MaxProgramLen)
	}
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("%w: %d cells", ErrOddProgram, len(parts))
	}

	prog := make(types.Program, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", ErrSyntax, i, err)
		}
		if n > types.MaxValue {
			return nil, fmt.Errorf("%w: cell %d is %d", ErrValueOutOfRange, i, n)
		}
		prog[i] = uint8(n)
	}
	return prog, nil
}

// Format renders the image in its canonical text form.
func (img *Image) Format() string {
	var sb strings.Builder
	for i, name := range registerNames {
		fmt.Fprintf(&sb, "Register %s: %d\n", name, img.Registers[i])
	}
	sb.WriteString("\nProgram: ")
	sb.WriteString(img.Program.String())
	sb.WriteByte('\n')
	return sb.String()
}
