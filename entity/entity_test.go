package entity

import (
	"testing"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
)

func TestActorSetPositionShiftsPrevious(t *testing.T) {
	a := NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0})
	if !a.SetPosition(mgl32.Vec3{1, 0, 0}) {
		t.Fatal("expected a real move to report a change")
	}
	if a.PreviousPosition() != (mgl32.Vec3{0, 0, 0}) {
		t.Fatalf("expected previous position at the origin, got %v", a.PreviousPosition())
	}
	if a.Position() != (mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("expected committed position (1,0,0), got %v", a.Position())
	}

	// Repeating the same position still shifts the interpolation base but
	// reports no change.
	if a.SetPosition(mgl32.Vec3{1, 0, 0}) {
		t.Fatal("expected an unchanged position to report no change")
	}
	if a.PreviousPosition() != (mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("expected previous position caught up, got %v", a.PreviousPosition())
	}
}

func TestActorTeleportWinsNextCommit(t *testing.T) {
	a := NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0})
	a.Teleport(mgl32.Vec3{9, 0, 0})
	if !a.SetPosition(mgl32.Vec3{1, 0, 0}) {
		t.Fatal("expected the teleport to count as a change")
	}
	if a.Position() != (mgl32.Vec3{9, 0, 0}) {
		t.Fatalf("expected the teleport target to win, got %v", a.Position())
	}

	// The override is consumed; ordinary commits resume.
	a.SetPosition(mgl32.Vec3{1, 0, 0})
	if a.Position() != (mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("expected a normal commit after the teleport, got %v", a.Position())
	}
}

func TestActorCommitWritesHandle(t *testing.T) {
	a := NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0})
	a.SetPosition(mgl32.Vec3{2, 0, 0})
	if pos := a.CollisionHandle().Position(); pos != (mgl32.Vec3{0, 0, 0}) {
		t.Fatalf("expected handle untouched before commit, got %v", pos)
	}
	a.CommitPositionChange()
	if pos := a.CollisionHandle().Position(); pos != (mgl32.Vec3{2, 0, 0}) {
		t.Fatalf("expected handle at committed position, got %v", pos)
	}
}

func TestActorReleasedHandleCommitIsNoop(t *testing.T) {
	a := NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0})
	id := a.HandleID()
	a.ReleaseCollisionHandle()
	if a.CollisionHandle() != nil {
		t.Fatal("expected nil handle after release")
	}
	if a.HandleID() != id {
		t.Fatal("expected the handle id to survive the release")
	}
	a.SetPosition(mgl32.Vec3{3, 0, 0})
	a.CommitPositionChange() // must not panic
}

func TestActorResyncPosition(t *testing.T) {
	a := NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0})
	a.SetPosition(mgl32.Vec3{5, 0, 0})
	a.SetSimulationPosition(mgl32.Vec3{2.5, 0, 0})
	a.ResyncPosition()
	if a.PreviousPosition() != (mgl32.Vec3{5, 0, 0}) {
		t.Fatalf("expected previous position collapsed, got %v", a.PreviousPosition())
	}
	if a.SimulationPosition() != (mgl32.Vec3{5, 0, 0}) {
		t.Fatalf("expected simulation position collapsed, got %v", a.SimulationPosition())
	}
}

func TestActorLandings(t *testing.T) {
	a := NewActor(0.6, 1.8, mgl32.Vec3{})
	a.AddToFallHeight(3)
	a.Land(true) // gentle: no landing recorded
	if a.Landings() != 0 {
		t.Fatalf("expected no landing from a gentle fall, got %d", a.Landings())
	}
	if a.FallHeight() != 0 {
		t.Fatalf("expected fall height reset, got %v", a.FallHeight())
	}

	a.AddToFallHeight(2)
	a.Land(false)
	if a.Landings() != 1 {
		t.Fatalf("expected one landing, got %d", a.Landings())
	}

	a.Land(false) // nothing accumulated
	if a.Landings() != 1 {
		t.Fatalf("expected landing count unchanged without a fall, got %d", a.Landings())
	}
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()
	a := NewActor(0.6, 1.8, mgl32.Vec3{})
	reg.Register(a)
	if reg.Len() != 1 {
		t.Fatalf("expected 1 actor, got %d", reg.Len())
	}
	if reg.Lookup(a.HandleID()) != a {
		t.Fatal("expected lookup to resolve the registered actor")
	}
	reg.Unregister(a)
	if reg.Lookup(a.HandleID()) != nil {
		t.Fatal("expected lookup to miss after unregister")
	}
}

func TestRegistryRejectsDuplicateHandle(t *testing.T) {
	reg := NewRegistry()
	a := NewActor(0.6, 1.8, mgl32.Vec3{})
	reg.Register(a)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg.Register(a)
}

func TestObjectPendingCommit(t *testing.T) {
	o := NewObject(cube.Box(-1, 0, -1, 1, 2, 1), mgl32.Vec3{0, 0, 0})
	o.SetPosition(mgl32.Vec3{4, 0, 0})
	if o.Position() != (mgl32.Vec3{0, 0, 0}) {
		t.Fatalf("expected committed position unchanged before commit, got %v", o.Position())
	}
	o.CommitPositionChange()
	if o.Position() != (mgl32.Vec3{4, 0, 0}) {
		t.Fatalf("expected committed position after commit, got %v", o.Position())
	}
	if pos := o.CollisionHandle().Position(); pos != (mgl32.Vec3{4, 0, 0}) {
		t.Fatalf("expected handle at committed position, got %v", pos)
	}
}

func TestProjectileHitLatchesPosition(t *testing.T) {
	p := NewProjectile(0.1, mgl32.Vec3{0, 0, 0})
	p.SetPosition(mgl32.Vec3{1, 0, 0})
	p.CommitPositionChange()
	if p.Position() != (mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("expected committed flight position, got %v", p.Position())
	}

	p.MarkHit(42)
	p.SetPosition(mgl32.Vec3{9, 9, 9})
	p.CommitPositionChange()
	if p.Position() != (mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("expected position latched at the impact, got %v", p.Position())
	}
	target, hit := p.Hit()
	if !hit || target != 42 {
		t.Fatalf("expected hit on target 42, got %d %v", target, hit)
	}

	// A second impact must not overwrite the first.
	p.MarkHit(7)
	if target, _ := p.Hit(); target != 42 {
		t.Fatalf("expected the first impact preserved, got %d", target)
	}
}

func TestHandleIDsAreUnique(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		id := NewHandleID()
		if id == 0 {
			t.Fatal("handle id 0 is reserved")
		}
		if seen[id] {
			t.Fatalf("duplicate handle id %d", id)
		}
		seen[id] = true
	}
}
