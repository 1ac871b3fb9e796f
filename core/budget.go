package core

import "sync"

// DefaultMaxSteps bounds the number of model decisions per turn.
const DefaultMaxSteps = 5

// StepBudget enforces a maximum number of orchestration steps per turn.
type StepBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepBudget creates a budget allowing max steps. Non-positive values fall
// back to DefaultMaxSteps; a turn is never unbounded.
func NewStepBudget(max int) *StepBudget {
	if max <= 0 {
		max = DefaultMaxSteps
	}
	return &StepBudget{max: max}
}

// Take consumes one step and reports whether the budget is now exhausted.
// The counter never exceeds max.
func (b *StepBudget) Take() (exhausted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < b.max {
		b.count++
	}

	return b.count >= b.max
}

// Count returns the number of steps taken.
func (b *StepBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many steps are left.
func (b *StepBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.max - b.count
}

// Exhausted reports whether no steps remain.
func (b *StepBudget) Exhausted() bool { return b.Remaining() == 0 }

// Max returns the configured limit.
func (b *StepBudget) Max() int { return b.max }
