package sim

import (
	"github.com/kinetic-engine/kinetic/world"
)

// Solver is the movement-resolution algorithm that walks one actor through
// the collision world, honoring slopes, steps and water. The scheduler treats
// it as opaque: both calls may mutate only the frame data they are handed and
// the shared per-step scratch state.
type Solver interface {
	// Unstuck nudges an actor out of geometry it has become embedded in.
	// Invoked once per step, before movement, under an exclusive world
	// lock.
	Unstuck(d *ActorFrameData, w *world.World)
	// Move advances one actor by dt. Invoked under a world lock whose
	// sharedness depends on the backend's concurrent-read support.
	Move(d *ActorFrameData, dt float32, w *world.World, scratch *WorldFrameData)
}
