package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// FingerprintSize is the length of a fingerprint in bytes.
const FingerprintSize = 32

// ErrInvalidFingerprint is returned when a fingerprint has invalid length.
var ErrInvalidFingerprint = errors.New("invalid fingerprint: must be 32 bytes")

// Domain tags keep run and search fingerprints apart.
var (
	tagRun    = []byte("chrono/run/v1")
	tagSearch = []byte("chrono/search/v1")
)

// Fingerprint is a BLAKE3 digest identifying a cached computation.
type Fingerprint [FingerprintSize]byte

// RunFingerprint identifies a full execution of program from regs.
func RunFingerprint(regs Registers, program Program) Fingerprint {
	h := blake3.New()
	h.Write(tagRun)
	var buf [8]byte
	for _, r := range regs {
		binary.LittleEndian.PutUint64(buf[:], r)
		h.Write(buf[:])
	}
	writeCells(h, program)
	return sum(h)
}

// SearchFingerprint identifies a seed search for target over program.
func SearchFingerprint(program Program, target Digits) Fingerprint {
	h := blake3.New()
	h.Write(tagSearch)
	writeCells(h, program)
	writeCells(h, target)
	return sum(h)
}

func writeCells(h *blake3.Hasher, cells []uint8) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(cells)))
	h.Write(buf[:])
	h.Write(cells)
}

func sum(h *blake3.Hasher) Fingerprint {
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

// FingerprintFromBase58 parses a base58-encoded fingerprint.
func FingerprintFromBase58(s string) (Fingerprint, error) {
	var f Fingerprint
	data, err := base58.Decode(s)
	if err != nil {
		return f, fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != FingerprintSize {
		return f, ErrInvalidFingerprint
	}
	copy(f[:], data)
	return f, nil
}

// String returns the base58-encoded representation.
func (f Fingerprint) String() string {
	return base58.Encode(f[:])
}

// Bytes returns the fingerprint as a byte slice.
func (f Fingerprint) Bytes() []byte {
	return f[:]
}

// IsZero returns true if the fingerprint is all zeros.
func (f Fingerprint) IsZero() bool {
	for _, b := range f {
		if b != 0 {
			return false
		}
	}
	return true
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := FingerprintFromBase58(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
