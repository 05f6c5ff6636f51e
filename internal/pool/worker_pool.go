// Package pool provides a fixed-capacity worker slot pool for controlled concurrency.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed-capacity set of execution slots. Capacity is fixed at
// construction and never changes. Acquisition blocks (queues) when all slots
// are occupied; exhaustion is observed as latency, never as an error.
//
// Goroutines blocked on Acquire are served in FIFO order by the runtime's
// channel wait queue.
type WorkerPool struct {
	sem      chan struct{}
	capacity int

	inUse   atomic.Int32
	waiting atomic.Int32

	acquired atomic.Int64
	released atomic.Int64
}

// New creates a pool with the given slot capacity. Panics if capacity < 1.
func New(capacity int) *WorkerPool {
	if capacity < 1 {
		panic(fmt.Sprintf("pool: invalid capacity %d", capacity))
	}
	return &WorkerPool{
		sem:      make(chan struct{}, capacity),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free or ctx is done. On success it returns a
// release function that must be called exactly once on every exit path;
// calling it more than once is a no-op.
func (p *WorkerPool) Acquire(ctx context.Context) (release func(), err error) {
	// Fast path: slot immediately available.
	select {
	case p.sem <- struct{}{}:
		return p.makeRelease(), nil
	default:
	}

	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	select {
	case p.sem <- struct{}{}:
		return p.makeRelease(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire acquires a slot without blocking. Returns ok=false when the pool
// is exhausted.
func (p *WorkerPool) TryAcquire() (release func(), ok bool) {
	select {
	case p.sem <- struct{}{}:
		return p.makeRelease(), true
	default:
		return nil, false
	}
}

func (p *WorkerPool) makeRelease() func() {
	p.inUse.Add(1)
	p.acquired.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			<-p.sem
			p.inUse.Add(-1)
			p.released.Add(1)
		})
	}
}

// Run acquires a slot, executes fn while holding it, and releases the slot on
// every exit path including panic. A panic in fn is recovered and returned as
// an error so one request cannot take down the process.
func (p *WorkerPool) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool: task panicked: %v", r)
		}
	}()

	return fn(ctx)
}

// Capacity returns the fixed slot capacity.
func (p *WorkerPool) Capacity() int {
	return p.capacity
}

// InUse returns the number of currently occupied slots.
func (p *WorkerPool) InUse() int {
	return int(p.inUse.Load())
}

// Waiting returns the number of goroutines queued on Acquire.
func (p *WorkerPool) Waiting() int {
	return int(p.waiting.Load())
}

// Stats returns a snapshot of pool counters.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Capacity: p.capacity,
		InUse:    int(p.inUse.Load()),
		Waiting:  int(p.waiting.Load()),
		Acquired: p.acquired.Load(),
		Released: p.released.Load(),
	}
}

// Stats contains pool counters.
type Stats struct {
	Capacity int   `json:"capacity"`
	InUse    int   `json:"in_use"`
	Waiting  int   `json:"waiting"`
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
}
