package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethaniccc/float32-cube/cube"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/kinetic-engine/kinetic/assert"
	"github.com/kinetic-engine/kinetic/entity"
	"github.com/kinetic-engine/kinetic/game"
	"github.com/kinetic-engine/kinetic/internal"
	"github.com/kinetic-engine/kinetic/settings"
	"github.com/kinetic-engine/kinetic/stats"
	"github.com/kinetic-engine/kinetic/world"
)

// Config is everything the scheduler reads at construction.
type Config struct {
	// FixedTimestep is the physics time slice in seconds.
	FixedTimestep float32
	// NumThreads is the number of background simulation workers; 0 runs
	// every frame synchronously on the calling goroutine.
	NumThreads int
	// LOSCacheExpiry is how many frames an unqueried line-of-sight entry
	// survives.
	LOSCacheExpiry int
	// DefaultMaxSteps and HardStepCap tune the adaptive step heuristic.
	DefaultMaxSteps int
	HardStepCap     int
	// Logger receives degradation diagnostics. Defaults to the standard
	// logrus logger.
	Logger logrus.FieldLogger
	// OnCollision, if set, receives the collision events collected during
	// each simulation step. Called from a single thread at the step
	// boundary.
	OnCollision func([]CollisionEvent)
}

// ConfigFromSettings maps the configuration file onto a Config.
func ConfigFromSettings(s settings.Settings) Config {
	return Config{
		FixedTimestep:   float32(s.Physics.FixedTimestep),
		NumThreads:      s.Physics.NumThreads,
		LOSCacheExpiry:  s.Physics.LOSCacheExpiry,
		DefaultMaxSteps: s.Physics.DefaultMaxSteps,
		HardStepCap:     s.Physics.MaxStepCap,
	}
}

// TaskScheduler owns the collision world handle and the worker pool, and is
// the only surface the rest of the engine drives the physics simulation
// through. A frame is submitted once per rendered frame; the scheduler
// decides how many fixed steps to run from the measured cost of previous
// frames, hands the actor jobs to the pool, and folds the results back when
// the next frame is submitted.
type TaskScheduler struct {
	defaultDt float32
	dt        float32
	timeAccum float32

	world    *world.World
	registry *entity.Registry
	solver   Solver
	log      logrus.FieldLogger

	numThreads      int
	threadSafeWorld bool
	defaultMaxSteps int
	hardStepCap     int
	losExpiry       int

	onCollision func([]CollisionEvent)

	// simMu guards the simulation state below. Workers hold the read side
	// for as long as they are awake, so taking the write side blocks until
	// every worker is parked; that is how frame ownership transfers.
	simMu  deadlock.RWMutex
	hasJob *sync.Cond

	quit              bool
	newFrame          bool
	advanceSimulation bool
	remainingSteps    int
	numJobs           int
	actors            []*entity.Actor
	actorsData        []*ActorFrameData
	worldFrameData    *WorldFrameData

	nextJob atomic.Int32
	nextLOS atomic.Int32

	// worldMu guards the collision world. Queries take the read side only
	// when the backend supports concurrent reads.
	worldMu deadlock.RWMutex
	handles map[uint64]entity.Holder

	updateAabbMu deadlock.Mutex
	updateAabb   *orderedmap.OrderedMap[uint64, entity.Holder]

	losMu    deadlock.RWMutex
	losCache []*LOSRequest

	// frameInFlight is set while a published frame has not yet passed the
	// post-sim barrier. The submitter waits on it so a new frame can never
	// repossess the simulation state before the previous frame was
	// actually consumed: winning the write-lock race alone is not enough,
	// since a woken worker still has to re-acquire the read side.
	frameDoneMu   deadlock.Mutex
	frameDone     *sync.Cond
	frameInFlight bool

	framePool *internal.Pool[*WorldFrameData]

	budget       *Budget
	asyncBudget  *Budget
	budgetCursor uint64
	prevStepCount int

	asyncStartTime time.Time
	frameStart     time.Time
	timeBegin      time.Time
	timeEnd        time.Time
	frameNumber    uint64

	preStepBarrier  *Barrier
	postStepBarrier *Barrier
	postSimBarrier  *Barrier
	wg              sync.WaitGroup
}

// rlocker adapts the read side of the simulation lock to the condition
// variable.
type rlocker struct{ mu *deadlock.RWMutex }

func (l rlocker) Lock()   { l.mu.RLock() }
func (l rlocker) Unlock() { l.mu.RUnlock() }

// NewTaskScheduler constructs the scheduler and starts its worker pool. When
// the collision backend is not safe for concurrent reads, the worker count is
// clamped to 1 and a diagnostic is logged; this is a degradation, not an
// error.
func NewTaskScheduler(cfg Config, w *world.World, registry *entity.Registry, solver Solver) *TaskScheduler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.FixedTimestep <= 0 {
		cfg.FixedTimestep = game.DefaultFixedTimestep
	}
	if cfg.DefaultMaxSteps < 1 {
		cfg.DefaultMaxSteps = game.DefaultMaxSteps
	}
	if cfg.HardStepCap < cfg.DefaultMaxSteps {
		cfg.HardStepCap = game.HardStepCap
	}
	if cfg.NumThreads < 0 {
		cfg.NumThreads = 0
	}
	if cfg.LOSCacheExpiry < 0 {
		cfg.LOSCacheExpiry = 0
	}

	threadSafe := w.SupportsConcurrentReads()
	if !threadSafe && cfg.NumThreads > 1 {
		cfg.Logger.Warn("collision backend does not support concurrent reads, 1 async thread will be used")
		cfg.NumThreads = 1
	}

	ts := &TaskScheduler{
		defaultDt:       cfg.FixedTimestep,
		dt:              cfg.FixedTimestep,
		world:           w,
		registry:        registry,
		solver:          solver,
		log:             cfg.Logger,
		numThreads:      cfg.NumThreads,
		threadSafeWorld: threadSafe,
		defaultMaxSteps: cfg.DefaultMaxSteps,
		hardStepCap:     cfg.HardStepCap,
		losExpiry:       cfg.LOSCacheExpiry,
		onCollision:     cfg.OnCollision,
		handles:         make(map[uint64]entity.Holder),
		updateAabb:      orderedmap.NewOrderedMap[uint64, entity.Holder](),
		framePool:       internal.NewPool(func() *WorldFrameData { return &WorldFrameData{} }),
		budget:          NewBudget(cfg.FixedTimestep),
		asyncBudget:     NewBudget(0),
		prevStepCount:   1,
	}
	ts.hasJob = sync.NewCond(rlocker{&ts.simMu})
	ts.frameDone = sync.NewCond(&ts.frameDoneMu)

	if ts.numThreads == 0 {
		// Without background refresh the cache cannot age entries out on
		// a schedule, so entries only live within the frame.
		ts.losExpiry = 0
	} else {
		ts.preStepBarrier = NewBarrier(ts.numThreads)
		ts.postStepBarrier = NewBarrier(ts.numThreads)
		ts.postSimBarrier = NewBarrier(ts.numThreads)
		for i := 0; i < ts.numThreads; i++ {
			ts.wg.Add(1)
			go ts.worker()
		}
	}

	return ts
}

// Close stops the worker pool, letting any phase in flight run to completion
// first. Safe to call more than once.
func (ts *TaskScheduler) Close() {
	ts.waitFrameConsumed()
	ts.simMu.Lock()
	if ts.quit {
		ts.simMu.Unlock()
		return
	}
	ts.quit = true
	ts.numJobs = 0
	ts.remainingSteps = 0
	ts.simMu.Unlock()
	ts.hasJob.Broadcast()
	ts.wg.Wait()
}

// SubmitFrame hands the scheduler the authoritative actor list and its
// parallel frame data for this rendered frame. The previous frame's results
// are folded back into the actors first, the adaptive step configuration is
// computed, and the new frame is either run inline (no workers) or published
// to the pool. On return the caller may read the results of the previous
// frame and mutate non-shared state, but must not touch the collision world
// without going through the scheduler's query surface.
func (ts *TaskScheduler) SubmitFrame(actors []*entity.Actor, actorsData []*ActorFrameData, timeDelta float32, frameID uint64, sink stats.Sink) {
	assert.IsTrue(len(actors) == len(actorsData),
		"actor list and frame data must be index-aligned: %d actors, %d frame data", len(actors), len(actorsData))

	ts.waitFrameConsumed()
	ts.simMu.Lock()

	timeStart := time.Now()

	// Finish the previous background computation before anything else.
	if ts.numThreads != 0 {
		for i := range ts.actors {
			ts.updateMechanics(ts.actors[i], ts.actorsData[i])
			ts.updateActor(ts.actors[i], ts.actorsData[i], ts.advanceSimulation, ts.timeAccum, ts.dt)
		}
		if ts.advanceSimulation {
			ts.asyncBudget.Update(float32(ts.timeEnd.Sub(ts.asyncStartTime).Seconds()), ts.prevStepCount, ts.budgetCursor)
		}
		ts.updateStats(timeStart, frameID, sink)
	}

	ts.timeAccum += timeDelta
	numSteps, newDelta := ts.calculateStepConfig(ts.timeAccum)
	ts.timeAccum -= float32(numSteps) * newDelta

	for i := range actorsData {
		actorsData[i].updatePosition(actors[i])
	}
	ts.prevStepCount = numSteps
	ts.remainingSteps = numSteps
	ts.dt = newDelta
	ts.actors = actors
	ts.actorsData = actorsData
	ts.advanceSimulation = numSteps != 0
	ts.newFrame = true
	ts.numJobs = len(actorsData)
	ts.nextLOS.Store(0)
	ts.nextJob.Store(0)

	if ts.worldFrameData != nil {
		ts.framePool.Put(ts.worldFrameData)
		ts.worldFrameData = nil
	}
	if ts.advanceSimulation {
		ts.worldFrameData = ts.framePool.Get()
		ts.worldFrameData.reset()
		ts.budgetCursor++
	}

	if ts.numThreads == 0 {
		ts.syncComputation()
		if ts.advanceSimulation {
			ts.budget.Update(float32(time.Since(timeStart).Seconds()), numSteps, ts.budgetCursor)
		}
		ts.simMu.Unlock()
		return
	}

	ts.asyncStartTime = time.Now()
	ts.frameDoneMu.Lock()
	ts.frameInFlight = true
	ts.frameDoneMu.Unlock()
	ts.simMu.Unlock()
	ts.hasJob.Broadcast()
	if ts.advanceSimulation {
		ts.budget.Update(float32(time.Since(timeStart).Seconds()), 1, ts.budgetCursor)
	}
}

// ResetSimulation clears all cached frame state and budgets and
// re-synchronizes every live actor's collision handle to its authoritative
// position. Used on world transitions.
func (ts *TaskScheduler) ResetSimulation(actors *entity.Registry) {
	ts.waitFrameConsumed()
	ts.simMu.Lock()
	defer ts.simMu.Unlock()
	ts.budget.Reset(ts.defaultDt)
	ts.asyncBudget.Reset(0)
	ts.timeAccum = 0
	ts.actors = nil
	ts.actorsData = nil
	actors.Each(func(a *entity.Actor) {
		a.ResyncPosition()
		a.CommitPositionChange()
		if handle := a.CollisionHandle(); handle != nil {
			ts.worldMu.Lock()
			ts.world.UpdateSingleAabb(handle)
			ts.worldMu.Unlock()
		}
	})
}

// waitFrameConsumed blocks until the frame published to the pool, if any, has
// run to completion.
func (ts *TaskScheduler) waitFrameConsumed() {
	ts.frameDoneMu.Lock()
	for ts.frameInFlight {
		ts.frameDone.Wait()
	}
	ts.frameDoneMu.Unlock()
}

// lockWorld takes the collision-world lock, shared when the caller allows it
// and the backend supports concurrent reads, and returns the matching
// release.
func (ts *TaskScheduler) lockWorld(canShare bool) func() {
	if canShare && ts.threadSafeWorld {
		ts.worldMu.RLock()
		return ts.worldMu.RUnlock
	}
	ts.worldMu.Lock()
	return ts.worldMu.Unlock
}

// RayTest casts a ray through the collision world.
func (ts *TaskScheduler) RayTest(from, to mgl32.Vec3, group, mask int32) (world.RayHit, bool) {
	release := ts.lockWorld(true)
	defer release()
	return ts.world.RayTest(from, to, group, mask)
}

// ConvexSweepTest sweeps a box shape through the collision world.
func (ts *TaskScheduler) ConvexSweepTest(shape cube.BBox, from, to mgl32.Vec3, group, mask int32) (world.SweepHit, bool) {
	release := ts.lockWorld(true)
	defer release()
	return ts.world.ConvexSweepTest(shape, from, to, group, mask)
}

// GetHitPoint casts a ray from the given point at the centre of a target
// object and returns where it enters the target. ok is false when the ray
// starts inside the target's volume.
func (ts *TaskScheduler) GetHitPoint(from mgl32.Vec3, target *world.Object) (mgl32.Vec3, bool) {
	release := ts.lockWorld(true)
	defer release()
	hit, ok := ts.world.RayTestSingle(from, target.Position(), target)
	if !ok {
		return mgl32.Vec3{}, false
	}
	return hit.Point, true
}

// ContactTest returns every object overlapping the given one.
func (ts *TaskScheduler) ContactTest(obj *world.Object) []*world.Object {
	ts.worldMu.RLock()
	defer ts.worldMu.RUnlock()
	return ts.world.ContactTest(obj)
}

// AabbTest invokes fn for every object overlapping the given bounds.
func (ts *TaskScheduler) AabbTest(min, max mgl32.Vec3, fn func(*world.Object)) {
	ts.worldMu.RLock()
	defer ts.worldMu.RUnlock()
	ts.world.AabbTest(min, max, fn)
}

// GetHitDistance returns the distance from a point to the surface of a
// collision object's bounding box, zero when the point is inside it.
func (ts *TaskScheduler) GetHitDistance(from mgl32.Vec3, target *world.Object) float32 {
	ts.worldMu.RLock()
	defer ts.worldMu.RUnlock()
	return game.AABBVectorDistance(target.AABB(), from)
}

// GetAabb returns the world-space bounding box of a collision object.
func (ts *TaskScheduler) GetAabb(obj *world.Object) (mgl32.Vec3, mgl32.Vec3) {
	ts.worldMu.RLock()
	defer ts.worldMu.RUnlock()
	aabb := obj.AABB()
	return aabb.Min(), aabb.Max()
}

// AddCollisionObject registers an entity's collision handle in the world
// under the given filter group and mask.
func (ts *TaskScheduler) AddCollisionObject(h entity.Holder, group, mask int32) {
	handle := h.CollisionHandle()
	if handle == nil {
		return
	}
	ts.worldMu.Lock()
	defer ts.worldMu.Unlock()
	ts.handles[h.HandleID()] = h
	ts.world.AddObject(handle, group, mask)
}

// RemoveCollisionObject removes an entity's collision handle from the world.
func (ts *TaskScheduler) RemoveCollisionObject(h entity.Holder) {
	ts.worldMu.Lock()
	defer ts.worldMu.Unlock()
	delete(ts.handles, h.HandleID())
	if handle := h.CollisionHandle(); handle != nil {
		ts.world.RemoveObject(handle)
	}
}

// SetCollisionFilterMask replaces the filter mask of an entity's collision
// handle.
func (ts *TaskScheduler) SetCollisionFilterMask(h entity.Holder, mask int32) {
	handle := h.CollisionHandle()
	if handle == nil {
		return
	}
	ts.worldMu.Lock()
	defer ts.worldMu.Unlock()
	ts.world.SetFilterMask(handle, mask)
}

// UpdateSingleAabb commits an entity's pending position into the collision
// world. With workers running the update is deferred to the next pre-step
// phase, bunching world-lock contention into a single synchronized point per
// step; immediate forces it through now.
func (ts *TaskScheduler) UpdateSingleAabb(h entity.Holder, immediate bool) {
	if immediate || ts.numThreads == 0 {
		ts.updateHolderAabb(h)
		return
	}
	ts.updateAabbMu.Lock()
	ts.updateAabb.Set(h.HandleID(), h)
	ts.updateAabbMu.Unlock()
}

// ReleaseSharedStates drops the scheduler's retained references to actors and
// pending updates, used when the owning system tears down a scene.
func (ts *TaskScheduler) ReleaseSharedStates() {
	ts.waitFrameConsumed()
	ts.simMu.Lock()
	defer ts.simMu.Unlock()
	ts.updateAabbMu.Lock()
	defer ts.updateAabbMu.Unlock()
	ts.actors = nil
	ts.actorsData = nil
	ts.updateAabb = orderedmap.NewOrderedMap[uint64, entity.Holder]()
}

// holderForHandle resolves a collision handle id back to the entity that
// registered it.
func (ts *TaskScheduler) holderForHandle(id uint64) entity.Holder {
	if id == 0 {
		return nil
	}
	ts.worldMu.RLock()
	defer ts.worldMu.RUnlock()
	return ts.handles[id]
}

func (ts *TaskScheduler) updateHolderAabb(h entity.Holder) {
	ts.worldMu.Lock()
	defer ts.worldMu.Unlock()
	h.CommitPositionChange()
	if handle := h.CollisionHandle(); handle != nil {
		ts.world.UpdateSingleAabb(handle)
	}
}

// updateAabbs drains the deferred-update set in insertion order. Runs in the
// pre-step barrier action.
func (ts *TaskScheduler) updateAabbs() {
	ts.updateAabbMu.Lock()
	defer ts.updateAabbMu.Unlock()
	for el := ts.updateAabb.Front(); el != nil; el = el.Next() {
		ts.updateHolderAabb(el.Value)
	}
	ts.updateAabb = orderedmap.NewOrderedMap[uint64, entity.Holder]()
}

// updateMechanics settles a frame's fall outcome into the actor.
func (ts *TaskScheduler) updateMechanics(a *entity.Actor, d *ActorFrameData) {
	if d.NeedLand {
		a.Land(d.Flying || isUnderWater(d))
	} else if d.FallHeight < 0 {
		a.AddToFallHeight(-d.FallHeight)
	}
}

// updateActor folds one actor's simulated frame results back into its
// committed state.
func (ts *TaskScheduler) updateActor(a *entity.Actor, d *ActorFrameData, simulationPerformed bool, timeAccum, dt float32) {
	a.SetSimulationPosition(interpolateMovements(a, d, timeAccum, dt))
	a.SetLastStuckPosition(d.LastStuckPosition)
	a.SetStuckFrames(d.StuckFrames)
	if simulationPerformed {
		a.SetStandingOn(ts.holderForHandle(d.StandingOn))
		// A trace outside the simulation may have changed the on-ground
		// state since the frame was built; don't overwrite that.
		if a.OnGround() == d.WasOnGround {
			a.SetOnGround(d.IsOnGround)
		}
		a.SetOnSlope(d.IsOnSlope)
		a.SetWalkingOnWater(d.WalkingOnWater)
		a.SetInertia(d.Inertia)
	}
}

// updateActorsPositions commits every actor's simulated position into the
// collision world. Runs in the post-step barrier action.
func (ts *TaskScheduler) updateActorsPositions() {
	for i := range ts.actors {
		if ts.actors[i].SetPosition(ts.actorsData[i].Position) {
			// The committed position may differ from the solver's
			// output when gameplay code teleported the actor; the
			// next step has to simulate from where the actor
			// actually is.
			ts.actorsData[i].Position = ts.actors[i].Position()
			handle := ts.actors[i].CollisionHandle()
			if handle == nil {
				continue
			}
			ts.worldMu.Lock()
			ts.actors[i].CommitPositionChange()
			ts.world.UpdateSingleAabb(handle)
			ts.worldMu.Unlock()
		}
	}
}

// updateStats reports the previous frame's worker timings, one frame behind
// so in-flight values are never read.
func (ts *TaskScheduler) updateStats(frameStart time.Time, frameID uint64, sink stats.Sink) {
	if sink == nil || !sink.Collect("engine") {
		return
	}
	if ts.frameNumber == frameID-1 {
		sink.SetAttribute(ts.frameNumber, stats.AttrWorkerTimeBegin, ts.timeBegin.Sub(ts.frameStart).Seconds())
		sink.SetAttribute(ts.frameNumber, stats.AttrWorkerTimeTaken, ts.timeEnd.Sub(ts.timeBegin).Seconds())
		sink.SetAttribute(ts.frameNumber, stats.AttrWorkerTimeEnd, ts.timeEnd.Sub(ts.frameStart).Seconds())
	}
	ts.frameStart = frameStart
	ts.timeBegin = time.Now()
	ts.frameNumber = frameID
}

// TimeAccumulator returns the unsimulated time left in the accumulator.
func (ts *TaskScheduler) TimeAccumulator() float32 {
	ts.simMu.Lock()
	defer ts.simMu.Unlock()
	return ts.timeAccum
}
