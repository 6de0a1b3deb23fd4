package store

import (
	"time"

	"github.com/fortiblox/X1-Chrono/internal/types"
)

// SeedRecord is the outcome of a seed search.
type SeedRecord struct {
	// Fingerprint is types.SearchFingerprint(Program, Target).
	Fingerprint types.Fingerprint

	Program types.Program
	Target  types.Digits

	// Found is false when the search proved no seed exists.
	Found bool

	// Seed is the smallest reproducing A when Found is set.
	Seed uint64

	// Nodes counts visited search states.
	Nodes uint64

	SolvedAt time.Time
}

// RunRecord is the outcome of a full program run.
type RunRecord struct {
	// Fingerprint is types.RunFingerprint(Registers, Program).
	Fingerprint types.Fingerprint

	Registers types.Registers
	Program   types.Program

	Output types.Digits
	Final  types.Registers
	Steps  uint64

	ExecutedAt time.Time
}
