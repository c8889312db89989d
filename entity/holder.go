package entity

import (
	"sync/atomic"

	"github.com/kinetic-engine/kinetic/world"
)

// Holder is the capability every simulated entity kind exposes to the task
// scheduler: a native collision handle and the ability to commit a pending
// position change into it. The scheduler never assumes a concrete kind
// beyond this interface.
type Holder interface {
	// HandleID returns the stable id the entity's collision handle is
	// registered under.
	HandleID() uint64
	// CollisionHandle returns the entity's collision object, or nil if it
	// has none (an unloaded or destroyed entity).
	CollisionHandle() *world.Object
	// CommitPositionChange writes any pending position into the collision
	// handle. The broadphase AABB is refreshed separately by the scheduler.
	CommitPositionChange()
}

var nextHandleID atomic.Uint64

// NewHandleID returns a process-unique collision handle id. Ids start at 1;
// 0 is reserved as the "no handle" sentinel in frame data.
func NewHandleID() uint64 {
	return nextHandleID.Add(1)
}
