package sim

import (
	"github.com/kinetic-engine/kinetic/game"
)

// budgetHistorySize is how many recent frames feed the rolling cost estimate.
const budgetHistorySize = 16

// Budget is a rolling estimate of the wall-clock cost of one simulation step.
// Updates are tagged with a monotonically increasing cursor; anything at or
// below the last accepted cursor is a measurement of a stale frame and is
// dropped, which keeps in-flight timings from polluting the estimate after a
// reset.
type Budget struct {
	history []float64
	index   int
	cursor  uint64
	initial float32
}

// NewBudget creates a budget seeded with an initial per-step estimate, used
// until real measurements arrive.
func NewBudget(initial float32) *Budget {
	return &Budget{
		history: make([]float64, 0, budgetHistorySize),
		initial: initial,
	}
}

// Update folds in a measurement of elapsed seconds spent running numSteps
// steps. cursor must exceed every previously accepted cursor for the
// measurement to count.
func (b *Budget) Update(elapsed float32, numSteps int, cursor uint64) {
	if numSteps < 1 || cursor <= b.cursor {
		return
	}
	b.cursor = cursor

	cost := float64(elapsed) / float64(numSteps)
	if len(b.history) < budgetHistorySize {
		b.history = append(b.history, cost)
	} else {
		b.history[b.index] = cost
		b.index = (b.index + 1) % budgetHistorySize
	}
}

// Get returns the current per-step cost estimate in seconds.
func (b *Budget) Get() float32 {
	if len(b.history) == 0 {
		return b.initial
	}
	return float32(game.Mean(b.history))
}

// Reset discards all measurements and re-seeds the estimate. The cursor
// high-water mark is kept so measurements of frames started before the reset
// stay rejected.
func (b *Budget) Reset(initial float32) {
	b.history = b.history[:0]
	b.index = 0
	b.initial = initial
}
