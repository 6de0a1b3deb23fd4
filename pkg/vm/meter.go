package vm

import "sync/atomic"

// DefaultMaxSteps bounds runs that do not set Options.MaxSteps.
const DefaultMaxSteps = uint64(10_000_000)

// Meter counts executed instructions against a limit.
type Meter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
}

// NewMeter creates a meter allowing limit instructions.
func NewMeter(limit uint64) *Meter {
	return &Meter{
		remaining: limit,
		limit:     limit,
	}
}

// Consume takes n steps from the budget.
// Returns ErrStepLimitExceeded if the budget cannot cover them.
func (m *Meter) Consume(n uint64) error {
	for {
		remaining := atomic.LoadUint64(&m.remaining)
		if remaining < n {
			atomic.StoreUint64(&m.remaining, 0)
			return ErrStepLimitExceeded
		}
		if atomic.CompareAndSwapUint64(&m.remaining, remaining, remaining-n) {
			atomic.AddUint64(&m.consumed, n)
			return nil
		}
	}
}

// Remaining returns the steps left.
func (m *Meter) Remaining() uint64 {
	return atomic.LoadUint64(&m.remaining)
}

// Consumed returns the steps taken.
func (m *Meter) Consumed() uint64 {
	return atomic.LoadUint64(&m.consumed)
}

// Limit returns the step limit.
func (m *Meter) Limit() uint64 {
	return m.limit
}

// Reset restores the full budget.
func (m *Meter) Reset() {
	atomic.StoreUint64(&m.remaining, m.limit)
	atomic.StoreUint64(&m.consumed, 0)
}
