package sim

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/zeebo/xxh3"

	"github.com/kinetic-engine/kinetic/entity"
	"github.com/kinetic-engine/kinetic/game"
)

// LOSRequest is one cached line-of-sight result between two actors. The
// actors are held as weak references (handle ids resolved against the
// registry), so a cache entry never keeps a dead actor alive.
type LOSRequest struct {
	key    uint64
	actors [2]uint64

	result bool
	age    int
	stale  bool
}

// losPair builds the unordered-pair identity of two actors: the ids are
// sorted so argument order never matters.
func losPair(a, b uint64) [2]uint64 {
	if a > b {
		a, b = b, a
	}
	return [2]uint64{a, b}
}

// losKey hashes an id pair for the cheap first-pass comparison. The pair
// itself is compared as well, since 64 bits of hash can alias.
func losKey(pair [2]uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], pair[0])
	binary.LittleEndian.PutUint64(buf[8:], pair[1])
	return xxh3.Hash(buf[:])
}

// GetLineOfSight returns whether two actors can see each other, serving from
// the cache when possible. A hit resets the entry's age and never recomputes.
func (ts *TaskScheduler) GetLineOfSight(a1, a2 *entity.Actor) bool {
	ts.losMu.Lock()
	defer ts.losMu.Unlock()

	pair := losPair(a1.HandleID(), a2.HandleID())
	key := losKey(pair)
	for _, req := range ts.losCache {
		if req.key == key && req.actors == pair {
			req.age = 0
			return req.result
		}
	}
	req := &LOSRequest{
		key:    key,
		actors: pair,
		result: ts.hasLineOfSight(a1, a2),
	}
	ts.losCache = append(ts.losCache, req)
	return req.result
}

// hasLineOfSight casts a ray between the two actors' eye points, filtered
// against world, heightmap and door geometry only; actors do not occlude each
// other. An actor without a collision handle is conservatively occluded.
func (ts *TaskScheduler) hasLineOfSight(a1, a2 *entity.Actor) bool {
	h1, h2 := a1.CollisionHandle(), a2.CollisionHandle()
	if h1 == nil || h2 == nil {
		return false
	}

	eye1 := h1.Position().Add(mgl32.Vec3{0, a1.HalfExtents().Y() * game.EyeLevelFactor, 0})
	eye2 := h2.Position().Add(mgl32.Vec3{0, a2.HalfExtents().Y() * game.EyeLevelFactor, 0})

	release := ts.lockWorld(ts.threadSafeWorld)
	_, hit := ts.world.RayTest(eye1, eye2, game.ColAll, game.ColWorld|game.ColHeightMap|game.ColDoor)
	release()

	return !hit
}

// refreshLOSCache ages and recomputes cache entries, each worker claiming a
// slice through the shared cursor during the final sweep of a frame.
func (ts *TaskScheduler) refreshLOSCache() {
	ts.losMu.RLock()
	defer ts.losMu.RUnlock()

	numLOS := len(ts.losCache)
	for {
		job := int(ts.nextLOS.Add(1)) - 1
		if job >= numLOS {
			break
		}
		req := ts.losCache[job]
		expired := req.age > ts.losExpiry
		req.age++

		a1 := ts.registry.Lookup(req.actors[0])
		a2 := ts.registry.Lookup(req.actors[1])
		if expired || a1 == nil || a2 == nil {
			req.stale = true
		} else {
			req.result = ts.hasLineOfSight(a1, a2)
		}
	}
}

// pruneLOSCacheLocked drops stale entries. Caller holds losMu exclusively;
// runs in the post-sim barrier action.
func (ts *TaskScheduler) pruneLOSCacheLocked() {
	kept := ts.losCache[:0]
	for _, req := range ts.losCache {
		if !req.stale {
			kept = append(kept, req)
		}
	}
	for i := len(kept); i < len(ts.losCache); i++ {
		ts.losCache[i] = nil
	}
	ts.losCache = kept
}
