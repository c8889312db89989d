package world

import (
	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/kinetic-engine/kinetic/game"
)

// World is the shared collision world the task scheduler mutates and queries.
// It is not internally synchronized: the scheduler serializes access through
// its collision-world lock, taking the shared side for queries only when
// SupportsConcurrentReads reports true.
type World struct {
	objects map[uint64]*Object

	concurrentReads bool
}

// New creates an empty collision world. concurrentReads declares whether the
// backing structures are safe for simultaneous readers; when false, the
// scheduler serializes every query against mutations.
func New(concurrentReads bool) *World {
	return &World{
		objects:         make(map[uint64]*Object),
		concurrentReads: concurrentReads,
	}
}

// SupportsConcurrentReads reports whether read queries may run concurrently.
func (w *World) SupportsConcurrentReads() bool {
	return w.concurrentReads
}

// NumObjects returns the number of registered collision objects.
func (w *World) NumObjects() int {
	return len(w.objects)
}

// AddObject registers a collision object under the given filter group and mask.
func (w *World) AddObject(o *Object, group, mask int32) {
	o.group = group
	o.mask = mask
	o.refreshAabb()
	w.objects[o.id] = o
}

// RemoveObject unregisters a collision object.
func (w *World) RemoveObject(o *Object) {
	delete(w.objects, o.id)
}

// SetFilterMask replaces the collision filter mask of a registered object.
func (w *World) SetFilterMask(o *Object, mask int32) {
	o.mask = mask
}

// UpdateSingleAabb refreshes the broadphase AABB of one object from its
// committed position.
func (w *World) UpdateSingleAabb(o *Object) {
	o.refreshAabb()
}

// RayHit describes the closest object hit by a ray test.
type RayHit struct {
	Object   *Object
	Point    mgl32.Vec3
	Fraction float32
}

// RayTest casts a ray between two points, honoring the given filter group and
// mask, and returns the closest hit.
func (w *World) RayTest(from, to mgl32.Vec3, group, mask int32) (RayHit, bool) {
	dir := to.Sub(from)
	best := RayHit{Fraction: 2}
	for _, obj := range w.objects {
		if !obj.needsCollision(group, mask) {
			continue
		}
		frac, ok := rayBoxIntersect(from, dir, obj.aabb)
		if ok && frac < best.Fraction {
			best = RayHit{Object: obj, Point: from.Add(dir.Mul(frac)), Fraction: frac}
		}
	}
	if best.Object == nil {
		return RayHit{}, false
	}
	return best, true
}

// RayTestSingle casts a ray against a single object, ignoring filters. Used
// for targeted hit-point queries.
func (w *World) RayTestSingle(from, to mgl32.Vec3, target *Object) (RayHit, bool) {
	dir := to.Sub(from)
	frac, ok := rayBoxIntersect(from, dir, target.aabb)
	if !ok {
		return RayHit{}, false
	}
	return RayHit{Object: target, Point: from.Add(dir.Mul(frac)), Fraction: frac}, true
}

// SweepHit describes the earliest contact of a swept volume.
type SweepHit struct {
	Object   *Object
	Point    mgl32.Vec3
	Fraction float32
}

// ConvexSweepTest sweeps a box shape from one point to another and returns the
// earliest contact with any object matching the filter.
func (w *World) ConvexSweepTest(shape cube.BBox, from, to mgl32.Vec3, group, mask int32) (SweepHit, bool) {
	ext := game.AABBHalfExtents(shape)
	center := game.AABBCenter(shape)
	dir := to.Sub(from)

	best := SweepHit{Fraction: 2}
	for _, obj := range w.objects {
		if !obj.needsCollision(group, mask) {
			continue
		}
		// Minkowski sum: expand the target by the swept shape's half
		// extents and cast the shape's centre path against it.
		expanded := cube.Box(
			obj.aabb.Min().X()-ext.X(), obj.aabb.Min().Y()-ext.Y(), obj.aabb.Min().Z()-ext.Z(),
			obj.aabb.Max().X()+ext.X(), obj.aabb.Max().Y()+ext.Y(), obj.aabb.Max().Z()+ext.Z(),
		)
		frac, ok := rayBoxIntersect(from.Add(center), dir, expanded)
		if ok && frac < best.Fraction {
			best = SweepHit{Object: obj, Point: from.Add(dir.Mul(frac)), Fraction: frac}
		}
	}
	if best.Object == nil {
		return SweepHit{}, false
	}
	return best, true
}

// ContactTest returns every registered object whose AABB overlaps the given
// object's, honoring both objects' filters.
func (w *World) ContactTest(o *Object) []*Object {
	var contacts []*Object
	for _, obj := range w.objects {
		if obj == o || !obj.needsCollision(o.group, o.mask) {
			continue
		}
		if obj.aabb.IntersectsWith(o.aabb) {
			contacts = append(contacts, obj)
		}
	}
	return contacts
}

// AabbTest invokes fn for every object whose broadphase AABB overlaps the
// given bounds.
func (w *World) AabbTest(min, max mgl32.Vec3, fn func(*Object)) {
	bounds := cube.Box(min.X(), min.Y(), min.Z(), max.X(), max.Y(), max.Z())
	for _, obj := range w.objects {
		if obj.aabb.IntersectsWith(bounds) {
			fn(obj)
		}
	}
}
