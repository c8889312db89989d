package sim

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// worker is the phased simulation loop every pool goroutine runs. It holds
// the read side of the simulation lock for as long as it is awake, so the
// main thread can only repossess the frame state while every worker is parked
// at the idle wait. A multi-step frame loops through the step phases without
// any additional wake signal.
func (ts *TaskScheduler) worker() {
	defer ts.wg.Done()
	defer sentry.Recover()

	ts.simMu.RLock()
	defer ts.simMu.RUnlock()

	for !ts.quit {
		for !ts.quit && !ts.newFrame {
			ts.hasJob.Wait()
		}

		// Pre-step runs entirely in the barrier action: the pending
		// AABB drain has to land before any unstuck correction reads
		// object positions.
		ts.preStepBarrier.Wait(ts.afterPreStep)

		// Step: job indices are pulled from the shared cursor rather
		// than partitioned, so uneven per-actor solver cost balances
		// across the pool.
		for ts.remainingSteps > 0 {
			job := int(ts.nextJob.Add(1)) - 1
			if job >= ts.numJobs {
				break
			}
			release := ts.lockWorld(true)
			ts.solver.Move(ts.actorsData[job], ts.dt, ts.world, ts.worldFrameData)
			release()
		}
		ts.postStepBarrier.Wait(ts.afterPostStep)

		if ts.remainingSteps == 0 {
			// Final sweep: fall bookkeeping and the visibility cache
			// refresh, claimed through the same cursor pattern.
			for {
				job := int(ts.nextJob.Add(1)) - 1
				if job >= ts.numJobs {
					break
				}
				handleFall(ts.actorsData[job], ts.advanceSimulation)
			}
			ts.refreshLOSCache()
			ts.postSimBarrier.Wait(ts.afterPostSim)
		}
	}
}

// afterPreStep runs exactly once per pre-step barrier cycle: it drains the
// deferred AABB updates, runs the unstuck corrections against the freshly
// committed positions, and re-arms the job cursor for the step phase.
func (ts *TaskScheduler) afterPreStep() {
	ts.updateAabbs()
	if ts.remainingSteps > 0 {
		ts.worldMu.Lock()
		for _, d := range ts.actorsData {
			ts.solver.Unstuck(d, ts.world)
		}
		ts.worldMu.Unlock()
	}
	ts.nextJob.Store(0)
}

// afterPostStep runs exactly once per post-step barrier cycle: it retires the
// completed step, commits every actor position into the collision world,
// drains the step's collision events and re-arms the job cursor.
func (ts *TaskScheduler) afterPostStep() {
	if ts.remainingSteps > 0 {
		ts.remainingSteps--
		ts.updateActorsPositions()
		ts.drainCollisionEvents()
	}
	ts.nextJob.Store(0)
}

// afterPostSim runs exactly once per frame, after the final sweep: it clears
// the new-frame flag, purges stale visibility entries and records the frame's
// end time.
func (ts *TaskScheduler) afterPostSim() {
	ts.newFrame = false
	ts.losMu.Lock()
	ts.pruneLOSCacheLocked()
	ts.losMu.Unlock()
	ts.timeEnd = time.Now()

	ts.frameDoneMu.Lock()
	ts.frameInFlight = false
	ts.frameDoneMu.Unlock()
	ts.frameDone.Broadcast()
}

func (ts *TaskScheduler) drainCollisionEvents() {
	if ts.worldFrameData == nil {
		return
	}
	events := ts.worldFrameData.drain()
	if ts.onCollision != nil && len(events) > 0 {
		ts.onCollision(events)
	}
}

// syncComputation runs the whole frame inline on the calling goroutine when
// no workers are configured. Caller holds the simulation lock.
func (ts *TaskScheduler) syncComputation() {
	for ; ts.remainingSteps > 0; ts.remainingSteps-- {
		ts.updateAabbs()
		for _, d := range ts.actorsData {
			ts.solver.Unstuck(d, ts.world)
		}
		for _, d := range ts.actorsData {
			ts.solver.Move(d, ts.dt, ts.world, ts.worldFrameData)
		}
		ts.updateActorsPositions()
		ts.drainCollisionEvents()
	}

	for i := range ts.actors {
		handleFall(ts.actorsData[i], ts.advanceSimulation)
		ts.updateMechanics(ts.actors[i], ts.actorsData[i])
		ts.updateActor(ts.actors[i], ts.actorsData[i], ts.advanceSimulation, ts.timeAccum, ts.dt)
	}
	ts.refreshLOSCache()
	ts.losMu.Lock()
	ts.pruneLOSCacheLocked()
	ts.losMu.Unlock()
}
