package entity

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/kinetic-engine/kinetic/game"
	"github.com/kinetic-engine/kinetic/world"
)

// Actor is an animated entity advanced by the movement solver every physics
// step.
type Actor struct {
	// id outlives the collision handle so weak references stay resolvable
	// after the handle is released.
	id uint64

	// mu protects all the following fields.
	mu sync.Mutex
	// handle is the actor's collision object in the shared world, nil once
	// released.
	handle *world.Object
	// position is the committed, authoritative position of the actor.
	position mgl32.Vec3
	// previousPosition is the committed position of the step before the
	// latest one, used as the interpolation base for rendering.
	previousPosition mgl32.Vec3
	// simulationPosition is the interpolated position rendering reads.
	simulationPosition mgl32.Vec3
	// velocity is the movement input consumed by the solver.
	velocity mgl32.Vec3
	// inertia carries momentum across steps (falling, knockback).
	inertia mgl32.Vec3
	// halfExtents is half the size of the collision shape per axis.
	halfExtents mgl32.Vec3
	// swimLevel is the height below which the actor counts as underwater.
	swimLevel float32
	// slowFall scales fall-height accumulation; below 1 the actor is
	// considered feather-falling and never takes fall damage.
	slowFall float32
	// fallHeight accumulates downward travel until the actor lands.
	fallHeight float32
	// landings counts completed landings, gentle or not, for gameplay
	// code to consume.
	landings int
	// lastStuckPosition and stuckFrames track unstuck-correction state
	// across frames.
	lastStuckPosition mgl32.Vec3
	stuckFrames       uint32

	// teleportPos is a queued scripted position override. It wins over the
	// solver's output at the next step commit.
	teleportPos       mgl32.Vec3
	teleportRequested bool

	flying         bool
	onGround       bool
	onSlope        bool
	walkingOnWater bool

	// standingOn is the entity whose collision handle the actor rests on.
	standingOn Holder
}

// NewActor creates an actor with a collision shape of the given dimensions at
// the given position. The actor still has to be added to a collision world
// and registered before it is simulated.
func NewActor(width, height float32, pos mgl32.Vec3) *Actor {
	shape := game.AABBFromDimensions(width, height)
	id := NewHandleID()
	a := &Actor{
		id:                 id,
		handle:             world.NewObject(id, shape),
		position:           pos,
		previousPosition:   pos,
		simulationPosition: pos,
		halfExtents:        game.AABBHalfExtents(shape),
		slowFall:           1,
	}
	a.handle.SetPosition(pos)
	return a
}

// HandleID returns the id of the actor's collision handle.
func (a *Actor) HandleID() uint64 {
	return a.id
}

// CollisionHandle returns the actor's collision object, nil once released.
func (a *Actor) CollisionHandle() *world.Object {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

// ReleaseCollisionHandle detaches the actor from its collision object. Any
// query against the actor afterwards degrades to the conservative answer.
func (a *Actor) ReleaseCollisionHandle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handle = nil
}

// CommitPositionChange writes the committed position into the collision
// handle.
func (a *Actor) CommitPositionChange() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle != nil {
		a.handle.SetPosition(a.position)
	}
}

// Position returns the committed position of the actor.
func (a *Actor) Position() mgl32.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// PreviousPosition returns the committed position of the previous step.
func (a *Actor) PreviousPosition() mgl32.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.previousPosition
}

// SetPosition commits a new position, shifting the old one into the
// interpolation base. It reports whether the position actually changed, so
// callers can skip the collision world update otherwise.
func (a *Actor) SetPosition(pos mgl32.Vec3) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.previousPosition = a.position
	if a.teleportRequested {
		a.teleportRequested = false
		a.position = a.teleportPos
		return true
	}
	if game.Vec3ApproxEq(a.position, pos) {
		return false
	}
	a.position = pos
	return true
}

// Teleport queues a scripted position override. It is applied at the next
// step commit, winning over whatever the movement solver produced, and the
// overridden position is what later steps of the frame simulate from.
func (a *Actor) Teleport(pos mgl32.Vec3) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.teleportPos = pos
	a.teleportRequested = true
}

// ResyncPosition collapses the interpolation state onto the committed
// position, used on teleports and world transitions.
func (a *Actor) ResyncPosition() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.previousPosition = a.position
	a.simulationPosition = a.position
}

// SimulationPosition returns the interpolated position rendering reads.
func (a *Actor) SimulationPosition() mgl32.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.simulationPosition
}

// SetSimulationPosition stores the interpolated position for this render
// frame.
func (a *Actor) SetSimulationPosition(pos mgl32.Vec3) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.simulationPosition = pos
}

// Velocity returns the movement input the solver consumes.
func (a *Actor) Velocity() mgl32.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.velocity
}

// SetVelocity sets the movement input the solver consumes.
func (a *Actor) SetVelocity(vel mgl32.Vec3) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.velocity = vel
}

// Inertia returns the inertial force carried across steps.
func (a *Actor) Inertia() mgl32.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inertia
}

// SetInertia sets the inertial force carried across steps.
func (a *Actor) SetInertia(inertia mgl32.Vec3) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inertia = inertia
}

// HalfExtents returns half the collision shape size per axis.
func (a *Actor) HalfExtents() mgl32.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halfExtents
}

// SwimLevel returns the height below which the actor is underwater.
func (a *Actor) SwimLevel() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.swimLevel
}

// SetSwimLevel sets the height below which the actor is underwater.
func (a *Actor) SetSwimLevel(level float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.swimLevel = level
}

// SlowFall returns the fall-height scale; below 1 the actor feather-falls.
func (a *Actor) SlowFall() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slowFall
}

// SetSlowFall sets the fall-height scale.
func (a *Actor) SetSlowFall(v float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slowFall = v
}

// Flying reports whether the actor ignores gravity.
func (a *Actor) Flying() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flying
}

// SetFlying sets whether the actor ignores gravity.
func (a *Actor) SetFlying(flying bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flying = flying
}

// OnGround reports whether the actor stands on solid ground.
func (a *Actor) OnGround() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onGround
}

// SetOnGround sets the on-ground state.
func (a *Actor) SetOnGround(onGround bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onGround = onGround
}

// OnSlope reports whether the actor stands on terrain too steep to rest on.
func (a *Actor) OnSlope() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onSlope
}

// SetOnSlope sets the on-slope state.
func (a *Actor) SetOnSlope(onSlope bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSlope = onSlope
}

// WalkingOnWater reports whether the actor is held on the water surface.
func (a *Actor) WalkingOnWater() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.walkingOnWater
}

// SetWalkingOnWater sets the water-walking state.
func (a *Actor) SetWalkingOnWater(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.walkingOnWater = v
}

// StuckFrames returns how many consecutive frames the actor has been stuck.
func (a *Actor) StuckFrames() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stuckFrames
}

// SetStuckFrames stores the consecutive stuck-frame count.
func (a *Actor) SetStuckFrames(frames uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stuckFrames = frames
}

// LastStuckPosition returns the position the actor was last stuck at.
func (a *Actor) LastStuckPosition() mgl32.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastStuckPosition
}

// SetLastStuckPosition stores the position the actor was last stuck at.
func (a *Actor) SetLastStuckPosition(pos mgl32.Vec3) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastStuckPosition = pos
}

// StandingOn returns the entity the actor rests on, or nil.
func (a *Actor) StandingOn() Holder {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.standingOn
}

// SetStandingOn stores the entity the actor rests on.
func (a *Actor) SetStandingOn(h Holder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.standingOn = h
}

// FallHeight returns the accumulated downward travel since the last landing.
func (a *Actor) FallHeight() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fallHeight
}

// AddToFallHeight accumulates downward travel for the eventual landing.
func (a *Actor) AddToFallHeight(height float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallHeight += height
}

// Land completes a fall, resetting the accumulator. gentle is true when the
// landing cannot hurt (flying or underwater).
func (a *Actor) Land(gentle bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !gentle && a.fallHeight > 0 {
		a.landings++
	}
	a.fallHeight = 0
}

// Landings returns how many non-gentle landings the actor has completed.
func (a *Actor) Landings() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.landings
}
