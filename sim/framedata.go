package sim

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/kinetic-engine/kinetic/entity"
	"github.com/kinetic-engine/kinetic/game"
)

// ActorFrameData is the per-actor working set for one simulated frame. It is
// created from the actor's committed state when the frame is published,
// mutated exclusively by the worker holding that actor's job slot, and folded
// back into the actor when the next frame is submitted.
type ActorFrameData struct {
	Position mgl32.Vec3
	Velocity mgl32.Vec3
	Inertia  mgl32.Vec3

	// OldHeight is the height the actor entered the frame at, used for
	// fall accumulation.
	OldHeight float32
	SwimLevel float32
	SlowFall  float32

	WasOnGround    bool
	IsOnGround     bool
	IsOnSlope      bool
	Flying         bool
	WalkingOnWater bool

	// FallHeight accumulates downward travel over this frame's steps; it
	// is negative or zero.
	FallHeight float32
	// NeedLand is set when the actor's fall ended this frame.
	NeedLand bool

	LastStuckPosition mgl32.Vec3
	StuckFrames       uint32

	// StandingOn is the collision handle id of whatever the actor rests
	// on, 0 for none. Resolved back to an entity through the scheduler's
	// handle table when results are folded back.
	StandingOn uint64

	halfExtents mgl32.Vec3
}

// NewActorFrameData captures an actor's committed state into a fresh working
// set.
func NewActorFrameData(a *entity.Actor) *ActorFrameData {
	return &ActorFrameData{
		Velocity:          a.Velocity(),
		Inertia:           a.Inertia(),
		SwimLevel:         a.SwimLevel(),
		SlowFall:          a.SlowFall(),
		Flying:            a.Flying(),
		WasOnGround:       a.OnGround(),
		IsOnGround:        a.OnGround(),
		IsOnSlope:         a.OnSlope(),
		WalkingOnWater:    a.WalkingOnWater(),
		LastStuckPosition: a.LastStuckPosition(),
		StuckFrames:       a.StuckFrames(),
		halfExtents:       a.HalfExtents(),
	}
}

// updatePosition refreshes the working position from the actor's committed
// state right before the frame is published; the committed position may have
// moved since the data was built (scripted teleports).
func (d *ActorFrameData) updatePosition(a *entity.Actor) {
	d.Position = a.Position()
	d.OldHeight = d.Position.Y()
}

// HalfExtents returns the actor's collision half extents captured at frame
// start.
func (d *ActorFrameData) HalfExtents() mgl32.Vec3 {
	return d.halfExtents
}

func isUnderWater(d *ActorFrameData) bool {
	return d.Position.Y() < d.SwimLevel
}

// handleFall settles the frame's fall bookkeeping for one actor once all
// steps have run.
func handleFall(d *ActorFrameData, simulationPerformed bool) {
	heightDiff := d.Position.Y() - d.OldHeight

	isStillOnGround := simulationPerformed && d.WasOnGround && d.IsOnGround

	if isStillOnGround || d.Flying || isUnderWater(d) || d.SlowFall < 1 {
		d.NeedLand = true
	} else if heightDiff < 0 {
		d.FallHeight += heightDiff
	}
}

// interpolateMovements blends the latest simulated position with the
// previously committed one by the wall-time progress through the current
// step, clamped so rendering never extrapolates.
func interpolateMovements(a *entity.Actor, d *ActorFrameData, timeAccum, physicsDt float32) mgl32.Vec3 {
	factor := game.Clamp32(timeAccum/physicsDt, 0, 1)
	return game.LerpVec3(a.PreviousPosition(), d.Position, factor)
}

// CollisionEvent is a world-level contact produced by the movement solver
// during one step.
type CollisionEvent struct {
	Actor uint64
	Other uint64
	Point mgl32.Vec3
}

// WorldFrameData is the per-step scratch state shared by every actor job of
// one simulation step. The scheduler owns it for the duration of a step and
// drains it at the step boundary.
type WorldFrameData struct {
	mu     sync.Mutex
	events []CollisionEvent
}

// AddCollisionEvent records a contact; safe to call from any worker during
// the step phase.
func (w *WorldFrameData) AddCollisionEvent(ev CollisionEvent) {
	w.mu.Lock()
	w.events = append(w.events, ev)
	w.mu.Unlock()
}

// drain returns the collected events and resets the scratch state for the
// next step.
func (w *WorldFrameData) drain() []CollisionEvent {
	w.mu.Lock()
	events := w.events
	w.events = nil
	w.mu.Unlock()
	return events
}

func (w *WorldFrameData) reset() {
	w.mu.Lock()
	w.events = w.events[:0]
	w.mu.Unlock()
}
