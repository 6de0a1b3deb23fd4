package solver

import (
	"context"
	"fmt"

	"github.com/fortiblox/X1-Chrono/internal/types"
	"github.com/fortiblox/X1-Chrono/pkg/vm"
)

// search is the state of one backtracking run.
//
// Level k places the chunk printing target[len-1-k] at buffer bits
// [3k+7, 3k+10). The template's look-ahead slots cover [3k, 3k+7), all of
// which are fixed by that point. Chunks are tried in increasing order and
// more significant chunks are fixed first, so the first verified seed is
// the smallest.
type search struct {
	ctx     context.Context
	interp  *vm.Interpreter
	options *Options
	target  types.Digits
	lead    int
	buf     *Buffer

	nodes uint64
	seed  uint64
}

func (s *search) descend(k int) (bool, error) {
	if err := s.ctx.Err(); err != nil {
		return false, err
	}
	s.nodes++

	n := len(s.target)
	if k == n {
		return s.accept()
	}

	offset := ChunkBits * k
	snap := s.buf.Snapshot()
	for _, t := range s.options[s.target[n-1-k]] {
		if !t.matches(s.buf, offset) {
			continue
		}
		s.buf.SetChunk(offset+LookAhead, t.Chunk)

		found, err := s.descend(k + 1)
		if err != nil || found {
			return found, err
		}
		s.buf.Restore(snap)
	}
	return false, nil
}

// accept checks a complete candidate by running the program. The
// constraints cannot see when the loop stops, so a candidate whose high
// chunks are zero may print too few digits.
func (s *search) accept() (bool, error) {
	seed := s.buf.Value() << (ChunkBits * uint(s.lead))
	res, err := s.interp.Verify(types.NewRegisters(seed, 0, 0), s.target)
	if err != nil {
		return false, fmt.Errorf("verify seed %d: %w", seed, err)
	}
	if !res.Matches(s.target) {
		return false, nil
	}
	s.seed = seed
	return true, nil
}
