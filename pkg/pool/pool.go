// Package pool provides bounded, non-blocking object pools used to recycle
// read buffers and response objects across exchanges.
//
// # Exhaustion Policy
//
// Poll never blocks: when the pool is empty a fresh object is created with the
// pool's creator (overflow allocation). Offer never blocks: when the pool
// already holds its maximum number of idle objects the offered object is
// dropped and left to the garbage collector. The pool therefore bounds idle
// memory, not the number of objects in use.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Idle objects are held in a
// buffered channel, so Poll and Offer are lock-free selects.
package pool

import (
	"sync/atomic"
)

// ObjectPool recycles objects of type T up to a fixed number of idle entries.
type ObjectPool[T any] struct {
	idle     chan T
	creator  func() T
	recycler func(T)

	created  atomic.Int64
	polled   atomic.Int64
	offered  atomic.Int64
	recycled atomic.Int64
	dropped  atomic.Int64
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	// Capacity is the maximum number of idle objects kept.
	Capacity int
	// Idle is the number of objects currently waiting in the pool.
	Idle int
	// Created counts objects built by the creator.
	Created int64
	// Recycled counts offers that went back into the pool.
	Recycled int64
	// Dropped counts offers discarded because the pool was full.
	Dropped int64
	// Outstanding is polled minus offered: objects currently in use.
	Outstanding int64
}

// New creates an ObjectPool holding at most size idle objects.
//
// creator builds a new object when the pool is empty and must not return a
// nil-like value the caller cannot use. recycler, when non-nil, resets an
// object before it is stored for reuse.
//
// Panics if size is not positive or creator is nil (programmer error).
func New[T any](size int, creator func() T, recycler func(T)) *ObjectPool[T] {
	if size <= 0 {
		panic("pool: size must be positive")
	}
	if creator == nil {
		panic("pool: creator cannot be nil")
	}
	return &ObjectPool[T]{
		idle:     make(chan T, size),
		creator:  creator,
		recycler: recycler,
	}
}

// Poll returns an idle object or a newly created one.
func (p *ObjectPool[T]) Poll() T {
	p.polled.Add(1)
	select {
	case obj := <-p.idle:
		return obj
	default:
		p.created.Add(1)
		return p.creator()
	}
}

// Offer returns obj to the pool. It reports whether obj was kept for reuse.
// The caller must not use obj after Offer.
func (p *ObjectPool[T]) Offer(obj T) bool {
	p.offered.Add(1)
	if p.recycler != nil {
		p.recycler(obj)
	}
	select {
	case p.idle <- obj:
		p.recycled.Add(1)
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Stats returns a snapshot of the pool counters.
func (p *ObjectPool[T]) Stats() Stats {
	return Stats{
		Capacity:    cap(p.idle),
		Idle:        len(p.idle),
		Created:     p.created.Load(),
		Recycled:    p.recycled.Load(),
		Dropped:     p.dropped.Load(),
		Outstanding: p.polled.Load() - p.offered.Load(),
	}
}
