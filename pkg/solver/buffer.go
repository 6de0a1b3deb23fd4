package solver

import (
	"strings"

	"github.com/willf/bitset"
)

// Buffer is the answer under construction, most significant bit first.
// The first LookAhead bits stand for the zeros above the seed and are never
// set; the remaining 3 bits per target digit hold the seed.
type Buffer struct {
	bits *bitset.BitSet
	n    int
}

// Snapshot is a saved Buffer state.
type Snapshot struct {
	bits *bitset.BitSet
}

// NewBuffer allocates a buffer for a target of the given length.
func NewBuffer(digits int) *Buffer {
	n := LookAhead + ChunkBits*digits
	return &Buffer{bits: bitset.New(uint(n)), n: n}
}

// Len returns the buffer length in bits.
func (b *Buffer) Len() int {
	return b.n
}

// Bit returns the value at position i.
func (b *Buffer) Bit(i int) Bit {
	if b.bits.Test(uint(i)) {
		return One
	}
	return Zero
}

// Set writes v at position i. Free clears the bit.
func (b *Buffer) Set(i int, v Bit) {
	if v == One {
		b.bits.Set(uint(i))
	} else {
		b.bits.Clear(uint(i))
	}
}

// SetChunk writes a chunk value to the three bits starting at i.
func (b *Buffer) SetChunk(i int, chunk uint8) {
	for j, v := range bitsOf(chunk) {
		b.Set(i+j, v)
	}
}

// Snapshot saves the current contents.
func (b *Buffer) Snapshot() Snapshot {
	return Snapshot{bits: b.bits.Clone()}
}

// Restore returns the buffer to a saved state.
func (b *Buffer) Restore(s Snapshot) {
	s.bits.Copy(b.bits)
}

// Equal reports whether two buffers hold the same bits.
func (b *Buffer) Equal(other *Buffer) bool {
	return b.n == other.n && b.bits.Equal(other.bits)
}

// Value returns the seed bits as an integer.
func (b *Buffer) Value() uint64 {
	var v uint64
	for i := LookAhead; i < b.n; i++ {
		v <<= 1
		if b.bits.Test(uint(i)) {
			v |= 1
		}
	}
	return v
}

// String renders the buffer with the look-ahead zeros separated.
func (b *Buffer) String() string {
	var sb strings.Builder
	for i := 0; i < b.n; i++ {
		if i == LookAhead {
			sb.WriteByte('|')
		}
		if b.bits.Test(uint(i)) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
