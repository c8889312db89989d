package entity

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/kinetic-engine/kinetic/game"
	"github.com/kinetic-engine/kinetic/world"
)

// Projectile is an in-flight entity. Once it hits something its position is
// latched: further pending changes are discarded so the impact point survives
// until gameplay code consumes it.
type Projectile struct {
	mu     sync.Mutex
	handle *world.Object

	position   mgl32.Vec3
	hasPending bool
	pending    mgl32.Vec3

	hit       bool
	hitTarget uint64
}

// NewProjectile creates a projectile with a small cubic collision shape at
// the given position.
func NewProjectile(radius float32, pos mgl32.Vec3) *Projectile {
	p := &Projectile{
		handle:   world.NewObject(NewHandleID(), game.AABBFromHalfExtents(mgl32.Vec3{radius, radius, radius})),
		position: pos,
	}
	p.handle.SetPosition(pos)
	return p
}

// HandleID returns the id of the projectile's collision handle.
func (p *Projectile) HandleID() uint64 {
	return p.handle.ID()
}

// CollisionHandle returns the projectile's collision object.
func (p *Projectile) CollisionHandle() *world.Object {
	return p.handle
}

// Position returns the committed position of the projectile.
func (p *Projectile) Position() mgl32.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// SetPosition records a pending position change. Ignored once the projectile
// has hit.
func (p *Projectile) SetPosition(pos mgl32.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hit {
		return
	}
	p.pending = pos
	p.hasPending = true
}

// CommitPositionChange applies any pending position into the collision
// handle, unless the projectile has already hit.
func (p *Projectile) CommitPositionChange() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hit || !p.hasPending {
		return
	}
	p.position = p.pending
	p.hasPending = false
	p.handle.SetPosition(p.position)
}

// MarkHit latches the projectile at its current position, recording the
// handle id of whatever it struck (0 for terrain).
func (p *Projectile) MarkHit(target uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hit {
		return
	}
	p.hit = true
	p.hitTarget = target
	p.hasPending = false
}

// Hit reports whether the projectile has struck something, and what.
func (p *Projectile) Hit() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hitTarget, p.hit
}
