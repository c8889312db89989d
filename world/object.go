package world

import (
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
)

// Object is a collision proxy registered in a World. Its broadphase AABB is
// only refreshed by World.UpdateSingleAabb, never implicitly, so that movers
// control exactly when their world footprint changes.
type Object struct {
	id    uint64
	shape cube.BBox
	pos   mgl32.Vec3

	group, mask int32

	// aabb is the cached world-space box used by the broadphase.
	aabb cube.BBox
}

// NewObject creates a collision object with the given handle id and local
// shape. The shape is interpreted relative to the object's position.
func NewObject(id uint64, shape cube.BBox) *Object {
	return &Object{
		id:    id,
		shape: shape,
		aabb:  shape,
	}
}

// ID returns the handle id the owning entity registered the object under.
func (o *Object) ID() uint64 {
	return o.id
}

// Shape returns the local-space collision shape.
func (o *Object) Shape() cube.BBox {
	return o.shape
}

// Position returns the committed world position of the object.
func (o *Object) Position() mgl32.Vec3 {
	return o.pos
}

// SetPosition commits a world position. The broadphase AABB keeps its old
// value until UpdateSingleAabb runs on the owning world.
func (o *Object) SetPosition(pos mgl32.Vec3) {
	o.pos = pos
}

// AABB returns the cached world-space bounding box of the object.
func (o *Object) AABB() cube.BBox {
	return o.aabb
}

// Group returns the collision filter group of the object.
func (o *Object) Group() int32 {
	return o.group
}

// Mask returns the collision filter mask of the object.
func (o *Object) Mask() int32 {
	return o.mask
}

// needsCollision implements the symmetric group/mask filter test: the query
// must accept the object's group and the object must accept the query's group.
func (o *Object) needsCollision(group, mask int32) bool {
	return o.group&mask != 0 && group&o.mask != 0
}

func (o *Object) refreshAabb() {
	o.aabb = o.shape.Translate(o.pos)
}
