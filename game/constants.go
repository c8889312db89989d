package game

// Collision filter groups. An object belongs to exactly one group and carries
// a mask of the groups it collides with.
const (
	ColWorld int32 = 1 << iota
	ColDoor
	ColActor
	ColHeightMap
	ColProjectile
	ColWater
)

// ColAll matches every collision group.
const ColAll int32 = 0xFF

const (
	// DefaultFixedTimestep is the engine-defined physics time slice.
	DefaultFixedTimestep = float32(1.0 / 60.0)
	// EyeLevelFactor is the fraction of an actor's half height at which
	// line of sight rays originate.
	EyeLevelFactor = float32(0.9)
	// MinBudgetMeasurement guards the step-count heuristic against division
	// artifacts when the measured cost of a step is effectively zero.
	MinBudgetMeasurement = float32(0.00001)

	// DefaultMaxSteps is the step cap applied when the simulation cost sits
	// between the cheap and over-budget thresholds.
	DefaultMaxSteps = 2
	// HardStepCap bounds the number of fixed steps a single frame may run
	// regardless of how cheap the simulation measures.
	HardStepCap = 10
)
