package sim

import (
	"sync"

	"github.com/kinetic-engine/kinetic/assert"
)

// Barrier is a reusable synchronization point for a fixed set of cooperating
// threads. The last thread to arrive in a cycle runs the completion callback
// before the others are released, so the callback is exactly-once per cycle
// and needs no leader election.
type Barrier struct {
	mu   sync.Mutex
	cond *sync.Cond

	count   int
	arrived int
	phase   uint64
}

// NewBarrier creates a barrier for count participants. count must be at
// least 1.
func NewBarrier(count int) *Barrier {
	assert.IsTrue(count >= 1, "barrier requires at least one participant, got %d", count)
	b := &Barrier{count: count}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until every participant has arrived. The participant completing
// the cycle runs fn, if non-nil, while the others are still parked, then
// releases them.
func (b *Barrier) Wait(fn func()) {
	b.mu.Lock()
	phase := b.phase
	b.arrived++
	if b.arrived == b.count {
		if fn != nil {
			fn()
		}
		b.arrived = 0
		b.phase++
		b.mu.Unlock()
		b.cond.Broadcast()
		return
	}
	for phase == b.phase {
		b.cond.Wait()
	}
	b.mu.Unlock()
}
