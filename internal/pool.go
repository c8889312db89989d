package internal

import (
	"sync"
)

// Pool is a typed wrapper around sync.Pool for per-frame scratch state that
// would otherwise churn the garbage collector.
type Pool[T any] struct {
	p sync.Pool
}

func NewPool[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{p: sync.Pool{New: func() interface{} { return newFn() }}}
}

func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

func (p *Pool[T]) Put(v T) {
	p.p.Put(v)
}
