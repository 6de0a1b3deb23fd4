package solver

import "strings"

// Window geometry. A window is the 10 most significant bits that can
// influence one printed digit: 7 look-ahead bits followed by a 3-bit chunk.
// Slot 0 is the most significant.
const (
	WindowBits = 10
	LookAhead  = 7
	ChunkBits  = 3
)

// Bit is a template slot.
type Bit uint8

// Slot values.
const (
	Zero Bit = iota
	One
	Free
)

// Template is a 10-slot bit constraint under which a given chunk prints a
// given digit.
type Template struct {
	Chunk uint8
	Bits  [WindowBits]Bit
}

// Options holds, per digit, every template that prints it, in increasing
// chunk order.
type Options [8][]Template

func bitsOf(v uint8) [ChunkBits]Bit {
	return [ChunkBits]Bit{Bit((v >> 2) & 1), Bit((v >> 1) & 1), Bit(v & 1)}
}

// Generate builds the feasible templates for every digit under p.
func Generate(p Pattern) Options {
	var opts Options
	for d := uint8(0); d < 8; d++ {
		for i := uint8(0); i < 8; i++ {
			if t, ok := makeTemplate(p, d, i); ok {
				opts[d] = append(opts[d], t)
			}
		}
	}
	return opts
}

// makeTemplate returns the constraint under which chunk i prints digit d.
func makeTemplate(p Pattern, d, i uint8) (Template, bool) {
	t := Template{Chunk: i}
	for s := 0; s < LookAhead; s++ {
		t.Bits[s] = Free
	}
	chunk := bitsOf(i)
	copy(t.Bits[LookAhead:], chunk[:])

	enabler := d ^ p.Mix
	if p.Chunk {
		enabler ^= i
	}
	enabler &= 7

	if !p.Shifted {
		return t, enabler == 0
	}

	shift := int(i ^ p.Shift)
	for j, b := range bitsOf(enabler) {
		idx := WindowBits - shift - ChunkBits + j
		if idx < 0 {
			continue
		}
		if idx >= LookAhead && t.Bits[idx] != b {
			return Template{}, false
		}
		t.Bits[idx] = b
	}
	return t, true
}

// Accepts reports whether a concrete 10-bit window satisfies the template.
func (t Template) Accepts(window uint16) bool {
	for s, b := range t.Bits {
		if b == Free {
			continue
		}
		if Bit((window>>(WindowBits-1-s))&1) != b {
			return false
		}
	}
	return true
}

// matches reports whether the look-ahead slots agree with buf at offset.
func (t Template) matches(buf *Buffer, offset int) bool {
	for s := 0; s < LookAhead; s++ {
		if t.Bits[s] == Free {
			continue
		}
		if buf.Bit(offset+s) != t.Bits[s] {
			return false
		}
	}
	return true
}

// String renders the template using '0', '1' and '.' for free slots.
func (t Template) String() string {
	var sb strings.Builder
	for s, b := range t.Bits {
		if s == LookAhead {
			sb.WriteByte('|')
		}
		switch b {
		case Zero:
			sb.WriteByte('0')
		case One:
			sb.WriteByte('1')
		default:
			sb.WriteByte('.')
		}
	}
	return sb.String()
}
