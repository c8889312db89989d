package entity

import (
	"sync"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/kinetic-engine/kinetic/world"
)

// Object is a static entity (furniture, doors, loose scenery) whose position
// changes rarely, through animation or scripting, and is committed into the
// collision world lazily.
type Object struct {
	mu     sync.Mutex
	handle *world.Object

	position   mgl32.Vec3
	hasPending bool
	pending    mgl32.Vec3
}

// NewObject creates a static entity with the given collision shape at the
// given position.
func NewObject(shape cube.BBox, pos mgl32.Vec3) *Object {
	o := &Object{
		handle:   world.NewObject(NewHandleID(), shape),
		position: pos,
	}
	o.handle.SetPosition(pos)
	return o
}

// HandleID returns the id of the object's collision handle.
func (o *Object) HandleID() uint64 {
	return o.handle.ID()
}

// CollisionHandle returns the object's collision object.
func (o *Object) CollisionHandle() *world.Object {
	return o.handle
}

// Position returns the committed position of the object.
func (o *Object) Position() mgl32.Vec3 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.position
}

// SetPosition records a pending position change, applied into the collision
// handle on the next CommitPositionChange.
func (o *Object) SetPosition(pos mgl32.Vec3) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = pos
	o.hasPending = true
}

// CommitPositionChange applies any pending position into the collision
// handle.
func (o *Object) CommitPositionChange() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.hasPending {
		return
	}
	o.position = o.pending
	o.hasPending = false
	o.handle.SetPosition(o.position)
}
