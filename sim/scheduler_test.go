package sim

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/kinetic-engine/kinetic/entity"
	"github.com/kinetic-engine/kinetic/game"
	"github.com/kinetic-engine/kinetic/world"
)

// countingSolver records how many times each phase ran.
type countingSolver struct {
	unstucks atomic.Int32
	moves    atomic.Int32
}

func (s *countingSolver) Unstuck(*ActorFrameData, *world.World) {
	s.unstucks.Add(1)
}

func (s *countingSolver) Move(*ActorFrameData, float32, *world.World, *WorldFrameData) {
	s.moves.Add(1)
}

// velocitySolver integrates velocity into position, the smallest movement
// model the scheduler plumbing can be observed through.
type velocitySolver struct{}

func (velocitySolver) Unstuck(*ActorFrameData, *world.World) {}

func (velocitySolver) Move(d *ActorFrameData, dt float32, _ *world.World, _ *WorldFrameData) {
	d.Position = d.Position.Add(d.Velocity.Mul(dt))
}

// dropSolver lowers an actor toward the floor at y=0 by one unit per step.
type dropSolver struct{}

func (dropSolver) Unstuck(*ActorFrameData, *world.World) {}

func (dropSolver) Move(d *ActorFrameData, _ float32, _ *world.World, _ *WorldFrameData) {
	y := d.Position.Y() - 1
	if y < 0 {
		y = 0
	}
	d.Position = mgl32.Vec3{d.Position.X(), y, d.Position.Z()}
	d.IsOnGround = y <= 0
}

func newSyncScheduler(t *testing.T, solver Solver) (*TaskScheduler, *entity.Registry) {
	t.Helper()
	reg := entity.NewRegistry()
	ts := NewTaskScheduler(Config{FixedTimestep: testDt, Logger: discardLogger()}, world.New(true), reg, solver)
	t.Cleanup(ts.Close)
	return ts, reg
}

func frameData(actors []*entity.Actor) []*ActorFrameData {
	data := make([]*ActorFrameData, len(actors))
	for i, a := range actors {
		data[i] = NewActorFrameData(a)
	}
	return data
}

func TestSubmitFrameRunsAdaptiveStepCount(t *testing.T) {
	solver := &countingSolver{}
	ts, reg := newSyncScheduler(t, solver)

	actors := []*entity.Actor{
		entity.NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0}),
		entity.NewActor(0.6, 1.8, mgl32.Vec3{4, 0, 0}),
		entity.NewActor(0.6, 1.8, mgl32.Vec3{8, 0, 0}),
	}
	for _, a := range actors {
		reg.Register(a)
	}

	// A cheap measured budget lifts the step cap out of the way; the
	// submitted 2.5dt then yields exactly two fixed steps with half a
	// step left in the accumulator.
	ts.budget.Reset(testDt / 100)
	ts.SubmitFrame(actors, frameData(actors), 2.5*testDt, 1, nil)

	if got := solver.moves.Load(); got != 6 {
		t.Fatalf("expected 6 move calls (2 steps x 3 actors), got %d", got)
	}
	if got := solver.unstucks.Load(); got != 6 {
		t.Fatalf("expected 6 unstuck calls (2 steps x 3 actors), got %d", got)
	}
	if accum := ts.TimeAccumulator(); !almostEq(accum, 0.5*testDt) {
		t.Fatalf("expected 0.5dt left in the accumulator, got %v", accum)
	}
	for i, a := range actors {
		if a.Position() != (mgl32.Vec3{float32(i * 4), 0, 0}) {
			t.Fatalf("actor %d moved under a stationary solver: %v", i, a.Position())
		}
	}
}

func TestSubmitFrameWithoutActors(t *testing.T) {
	ts, _ := newSyncScheduler(t, noopSolver{})
	ts.SubmitFrame(nil, nil, 1.5*testDt, 1, nil)
	if accum := ts.TimeAccumulator(); !almostEq(accum, 0.5*testDt) {
		t.Fatalf("expected 0.5dt left in the accumulator, got %v", accum)
	}
}

func TestSubmitFrameRejectsMisalignedInput(t *testing.T) {
	ts, reg := newSyncScheduler(t, noopSolver{})
	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{})
	reg.Register(a)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic on misaligned actor and frame data lists")
			}
		}()
		ts.SubmitFrame([]*entity.Actor{a}, nil, testDt, 1, nil)
	}()

	// The rejected call must not leave any lock held: the scheduler stays
	// usable and closeable.
	actors := []*entity.Actor{a}
	ts.SubmitFrame(actors, frameData(actors), testDt, 2, nil)
}

func TestSubmitFrameBelowTimestepRunsNoStep(t *testing.T) {
	solver := &countingSolver{}
	ts, _ := newSyncScheduler(t, solver)
	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{})
	ts.SubmitFrame([]*entity.Actor{a}, frameData([]*entity.Actor{a}), 0.5*testDt, 1, nil)

	if got := solver.moves.Load(); got != 0 {
		t.Fatalf("expected no move calls below one timestep, got %d", got)
	}
	if accum := ts.TimeAccumulator(); !almostEq(accum, 0.5*testDt) {
		t.Fatalf("expected the accumulator to keep the partial step, got %v", accum)
	}
}

func TestAsyncFrameFoldsBackOnNextSubmit(t *testing.T) {
	reg := entity.NewRegistry()
	ts := NewTaskScheduler(Config{
		FixedTimestep: testDt,
		NumThreads:    2,
		Logger:        discardLogger(),
	}, world.New(true), reg, velocitySolver{})
	t.Cleanup(ts.Close)

	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0})
	a.SetVelocity(mgl32.Vec3{1, 0, 0})
	reg.Register(a)
	actors := []*entity.Actor{a}

	// First frame runs one step in the background.
	ts.SubmitFrame(actors, frameData(actors), 1.1*testDt, 1, nil)
	// The second submission blocks until the pool parks, then folds the
	// first frame's results back. Its own delta is below one timestep so
	// no further movement races the assertions.
	ts.SubmitFrame(actors, frameData(actors), 0.1*testDt, 2, nil)

	if x := a.Position().X(); !almostEq(x, testDt) {
		t.Fatalf("expected one integrated step of movement, got x=%v", x)
	}
}

func TestConsecutiveSubmitsSimulateEveryStep(t *testing.T) {
	solver := &countingSolver{}
	reg := entity.NewRegistry()
	ts := NewTaskScheduler(Config{
		FixedTimestep: testDt,
		NumThreads:    1,
		Logger:        discardLogger(),
	}, world.New(true), reg, solver)

	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{})
	reg.Register(a)
	actors := []*entity.Actor{a}

	// Keep the measured budget cheap so the per-step delta stays exactly
	// the fixed timestep; every consumed slice of the accumulator then
	// corresponds to exactly one Move call.
	ts.budget.Reset(testDt / 100)

	var submitted float32
	for frame := uint64(1); frame <= 50; frame++ {
		ts.SubmitFrame(actors, frameData(actors), 1.1*testDt, frame, nil)
		submitted += 1.1 * testDt
	}
	ts.Close()

	consumed := submitted - ts.TimeAccumulator()
	wantSteps := int(math.Round(float64(consumed / testDt)))
	if got := int(solver.moves.Load()); got != wantSteps {
		t.Fatalf("accumulator consumed %d steps but only %d were simulated", wantSteps, got)
	}
	if got := int(solver.unstucks.Load()); got != wantSteps {
		t.Fatalf("accumulator consumed %d steps but only %d unstuck passes ran", wantSteps, got)
	}
}

// unstuckObservingSolver records the position of one collision object as seen
// by each unstuck pass.
type unstuckObservingSolver struct {
	obj  *world.Object
	seen []mgl32.Vec3
}

func (s *unstuckObservingSolver) Unstuck(*ActorFrameData, *world.World) {
	s.seen = append(s.seen, s.obj.Position())
}

func (s *unstuckObservingSolver) Move(*ActorFrameData, float32, *world.World, *WorldFrameData) {
}

func TestDeferredAabbDrainPrecedesUnstuck(t *testing.T) {
	reg := entity.NewRegistry()
	static := entity.NewObject(cube.Box(-1, 0, -1, 1, 2, 1), mgl32.Vec3{})
	solver := &unstuckObservingSolver{obj: static.CollisionHandle()}
	ts := NewTaskScheduler(Config{
		FixedTimestep: testDt,
		NumThreads:    1,
		Logger:        discardLogger(),
	}, world.New(true), reg, solver)
	t.Cleanup(ts.Close)

	ts.AddCollisionObject(static, game.ColWorld, game.ColAll)
	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{})
	reg.Register(a)
	actors := []*entity.Actor{a}

	// Queue a position change; it must be committed before the first
	// unstuck pass of the next frame reads the world.
	static.SetPosition(mgl32.Vec3{7, 0, 0})
	ts.UpdateSingleAabb(static, false)

	ts.SubmitFrame(actors, frameData(actors), 1.1*testDt, 1, nil)
	// Zero-step follow-up frame; submitting it waits out frame 1.
	ts.SubmitFrame(actors, frameData(actors), 0.1*testDt, 2, nil)

	if len(solver.seen) == 0 {
		t.Fatal("unstuck pass never ran")
	}
	if solver.seen[0] != (mgl32.Vec3{7, 0, 0}) {
		t.Fatalf("unstuck pass observed stale object position %v", solver.seen[0])
	}
}

// driftContactSolver integrates velocity and reports a contact every step.
type driftContactSolver struct{}

func (driftContactSolver) Unstuck(*ActorFrameData, *world.World) {}

func (driftContactSolver) Move(d *ActorFrameData, dt float32, _ *world.World, scratch *WorldFrameData) {
	d.Position = d.Position.Add(d.Velocity.Mul(dt))
	scratch.AddCollisionEvent(CollisionEvent{Actor: 1})
}

func TestTeleportSurvivesLaterSteps(t *testing.T) {
	reg := entity.NewRegistry()
	var ts *TaskScheduler
	var a *entity.Actor
	teleported := false
	ts = NewTaskScheduler(Config{
		FixedTimestep: testDt,
		Logger:        discardLogger(),
		OnCollision: func([]CollisionEvent) {
			if !teleported {
				teleported = true
				a.Teleport(mgl32.Vec3{100, 0, 0})
			}
		},
	}, world.New(true), reg, driftContactSolver{})
	t.Cleanup(ts.Close)

	a = entity.NewActor(0.6, 1.8, mgl32.Vec3{})
	a.SetVelocity(mgl32.Vec3{1, 0, 0})
	reg.Register(a)
	actors := []*entity.Actor{a}

	// Three steps: the teleport is queued after step 1 and applied at
	// step 2's commit; step 3 must simulate from the teleported position
	// instead of overwriting it with its own integration.
	ts.budget.Reset(testDt / 100)
	ts.SubmitFrame(actors, frameData(actors), 3.5*testDt, 1, nil)

	want := float32(100) + testDt
	if x := a.Position().X(); math.Abs(float64(x-want)) > 1e-4 {
		t.Fatalf("expected one step of movement from the teleport target, got x=%v want %v", x, want)
	}
}

func TestDeferredAabbUpdatesDrainInOrder(t *testing.T) {
	reg := entity.NewRegistry()
	ts := NewTaskScheduler(Config{
		FixedTimestep: testDt,
		NumThreads:    1,
		Logger:        discardLogger(),
	}, world.New(true), reg, noopSolver{})
	t.Cleanup(ts.Close)

	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0})
	reg.Register(a)
	ts.AddCollisionObject(a, 0, 0)

	a.SetPosition(mgl32.Vec3{3, 0, 0})
	ts.UpdateSingleAabb(a, false)
	if got := ts.updateAabb.Len(); got != 1 {
		t.Fatalf("expected 1 pending update, got %d", got)
	}
	if pos := a.CollisionHandle().Position(); pos != (mgl32.Vec3{}) {
		t.Fatalf("deferred update reached the collision handle early: %v", pos)
	}

	ts.updateAabbs()
	if got := ts.updateAabb.Len(); got != 0 {
		t.Fatalf("expected drained update set, got %d pending", got)
	}
	if pos := a.CollisionHandle().Position(); pos != (mgl32.Vec3{3, 0, 0}) {
		t.Fatalf("expected committed handle position, got %v", pos)
	}
}

func TestImmediateAabbUpdateSkipsQueue(t *testing.T) {
	reg := entity.NewRegistry()
	ts := NewTaskScheduler(Config{
		FixedTimestep: testDt,
		NumThreads:    1,
		Logger:        discardLogger(),
	}, world.New(true), reg, noopSolver{})
	t.Cleanup(ts.Close)

	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{0, 0, 0})
	ts.AddCollisionObject(a, 0, 0)
	a.SetPosition(mgl32.Vec3{-2, 0, 0})
	ts.UpdateSingleAabb(a, true)

	if got := ts.updateAabb.Len(); got != 0 {
		t.Fatalf("immediate update was queued, %d pending", got)
	}
	if pos := a.CollisionHandle().Position(); pos != (mgl32.Vec3{-2, 0, 0}) {
		t.Fatalf("expected committed handle position, got %v", pos)
	}
}

func TestFallAccumulatesAndLands(t *testing.T) {
	ts, reg := newSyncScheduler(t, dropSolver{})
	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{0, 2, 0})
	reg.Register(a)
	actors := []*entity.Actor{a}

	// Frame 1 falls to y=1, frame 2 reaches the floor, frame 3 starts
	// grounded and stays grounded, which is what converts the two
	// accumulated metres of fall into a landing. Frame 4 stays grounded
	// with nothing left to land.
	for frame := uint64(1); frame <= 4; frame++ {
		ts.SubmitFrame(actors, frameData(actors), 1.1*testDt, frame, nil)
	}

	if got := a.Landings(); got != 1 {
		t.Fatalf("expected exactly one landing, got %d", got)
	}
	if h := a.FallHeight(); h != 0 {
		t.Fatalf("expected fall height reset on landing, got %v", h)
	}
	if !a.OnGround() {
		t.Fatal("expected actor grounded after landing")
	}
	if y := a.Position().Y(); y != 0 {
		t.Fatalf("expected actor on the floor, got y=%v", y)
	}
}

// collisionSolver reports one contact per actor per step.
type collisionSolver struct{}

func (collisionSolver) Unstuck(*ActorFrameData, *world.World) {}

func (collisionSolver) Move(d *ActorFrameData, _ float32, _ *world.World, scratch *WorldFrameData) {
	scratch.AddCollisionEvent(CollisionEvent{Actor: 1, Other: 2, Point: d.Position})
}

func TestCollisionEventsDrainPerStep(t *testing.T) {
	var mu sync.Mutex
	var batches [][]CollisionEvent

	reg := entity.NewRegistry()
	ts := NewTaskScheduler(Config{
		FixedTimestep: testDt,
		Logger:        discardLogger(),
		OnCollision: func(events []CollisionEvent) {
			mu.Lock()
			batches = append(batches, events)
			mu.Unlock()
		},
	}, world.New(true), reg, collisionSolver{})
	t.Cleanup(ts.Close)

	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{})
	reg.Register(a)
	actors := []*entity.Actor{a}

	ts.budget.Reset(testDt / 100)
	ts.SubmitFrame(actors, frameData(actors), 2.5*testDt, 1, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 2 {
		t.Fatalf("expected one event batch per step, got %d", len(batches))
	}
	for i, batch := range batches {
		if len(batch) != 1 || batch[0].Actor != 1 || batch[0].Other != 2 {
			t.Fatalf("step %d: unexpected batch %+v", i, batch)
		}
	}
}

func TestGetHitDistance(t *testing.T) {
	ts, _ := newSyncScheduler(t, noopSolver{})
	target := entity.NewObject(cube.Box(-1, -1, -1, 1, 1, 1), mgl32.Vec3{})
	ts.AddCollisionObject(target, game.ColWorld, game.ColAll)

	if d := ts.GetHitDistance(mgl32.Vec3{4, 0, 0}, target.CollisionHandle()); math.Abs(float64(d-3)) > 1e-5 {
		t.Fatalf("expected distance 3, got %v", d)
	}
	if d := ts.GetHitDistance(mgl32.Vec3{0, 0, 0}, target.CollisionHandle()); d != 0 {
		t.Fatalf("expected zero distance inside the target, got %v", d)
	}
}

func TestResetSimulationClearsAccumulator(t *testing.T) {
	ts, reg := newSyncScheduler(t, noopSolver{})
	a := entity.NewActor(0.6, 1.8, mgl32.Vec3{1, 2, 3})
	reg.Register(a)
	ts.AddCollisionObject(a, 0, 0)
	actors := []*entity.Actor{a}

	ts.SubmitFrame(actors, frameData(actors), 1.5*testDt, 1, nil)
	if accum := ts.TimeAccumulator(); accum == 0 {
		t.Fatal("test premise broken: accumulator empty after submit")
	}

	ts.ResetSimulation(reg)
	if accum := ts.TimeAccumulator(); accum != 0 {
		t.Fatalf("expected empty accumulator after reset, got %v", accum)
	}
	if pos := a.CollisionHandle().Position(); pos != (mgl32.Vec3{1, 2, 3}) {
		t.Fatalf("expected handle resynced to the committed position, got %v", pos)
	}
}

func TestCloseWithoutFrameDoesNotHang(t *testing.T) {
	ts := NewTaskScheduler(Config{
		FixedTimestep: testDt,
		NumThreads:    3,
		Logger:        discardLogger(),
	}, world.New(true), entity.NewRegistry(), noopSolver{})
	ts.Close()
	ts.Close() // idempotent
}

func TestSchedulerClampsWorkersForExclusiveBackend(t *testing.T) {
	ts := NewTaskScheduler(Config{
		FixedTimestep: testDt,
		NumThreads:    4,
		Logger:        discardLogger(),
	}, world.New(false), entity.NewRegistry(), noopSolver{})
	t.Cleanup(ts.Close)
	if ts.numThreads != 1 {
		t.Fatalf("expected worker count clamped to 1, got %d", ts.numThreads)
	}
}
