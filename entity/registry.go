package entity

import (
	"github.com/sasha-s/go-deadlock"

	"github.com/kinetic-engine/kinetic/assert"
)

// Registry is the authoritative map of live actors. Weak references (the LOS
// cache's actor pairs) are plain handle ids checked against the registry, so
// a cache entry never extends an actor's lifetime.
type Registry struct {
	mu     deadlock.RWMutex
	actors map[uint64]*Actor
}

func NewRegistry() *Registry {
	return &Registry{actors: make(map[uint64]*Actor)}
}

// Register adds an actor to the registry. Registering a handle id that is
// already active is a broken caller contract.
func (r *Registry) Register(a *Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.actors[a.HandleID()]
	assert.IsTrue(!exists, "actor with handle %d is already active", a.HandleID())
	r.actors[a.HandleID()] = a
}

// Unregister removes an actor from the registry, releasing every weak
// reference to it.
func (r *Registry) Unregister(a *Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actors, a.HandleID())
}

// Lookup resolves a handle id to a live actor, or nil if it was released.
func (r *Registry) Lookup(id uint64) *Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actors[id]
}

// Len returns the number of live actors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// Each calls fn for every live actor.
func (r *Registry) Each(fn func(*Actor)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.actors {
		fn(a)
	}
}
