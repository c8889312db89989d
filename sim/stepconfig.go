package sim

import (
	"github.com/chewxy/math32"
	"github.com/kinetic-engine/kinetic/game"
)

// stepConfig decides how many simulation steps to run this frame and with
// what per-step delta, given the accumulated unsimulated time, the fixed
// timestep, and the measured per-step cost relative to the fixed timestep.
//
// If fixed-timestep simulation would fall behind, the frame falls back to a
// stretched delta computed as timeAccum/(numSteps+1): the deliberate
// under-shoot means interpolation always has a most recent real result to
// blend toward instead of rendering a step ahead of the simulation. The
// stretched delta is clamped to never go below the fixed timestep, which
// would feed the solver a smaller-than-designed slice and destabilize it.
func stepConfig(timeAccum, defaultDt, budgetMeasurement float32, defaultMaxSteps, hardStepCap int) (int, float32) {
	maxAllowedSteps := defaultMaxSteps
	numSteps := int(timeAccum / defaultDt)

	// Adjust the step cap by whether we are simulation bottlenecked. A cost
	// at or above realtime must not trigger catch-up: running extra steps
	// would only fall further behind. A cheap simulation may run extra
	// steps up to the measured headroom.
	budgetMeasurement = math32.Max(game.MinBudgetMeasurement, budgetMeasurement)
	if budgetMeasurement > 0.95 {
		maxAllowedSteps = 1
	}
	if budgetMeasurement < 0.5 {
		maxAllowedSteps = game.CeilDiv32(budgetMeasurement)
	}
	if maxAllowedSteps > hardStepCap {
		maxAllowedSteps = hardStepCap
	}

	actualDelta := defaultDt
	if numSteps > maxAllowedSteps {
		numSteps = maxAllowedSteps
		actualDelta = math32.Max(timeAccum/float32(numSteps+1), defaultDt)
	}

	return numSteps, actualDelta
}

// calculateStepConfig applies stepConfig to the scheduler's current budgets
// and accumulator. Caller must hold the simulation lock.
func (ts *TaskScheduler) calculateStepConfig(timeAccum float32) (int, float32) {
	budgetMeasurement := math32.Max(ts.budget.Get(), ts.asyncBudget.Get()) / ts.defaultDt
	return stepConfig(timeAccum, ts.defaultDt, budgetMeasurement, ts.defaultMaxSteps, ts.hardStepCap)
}
