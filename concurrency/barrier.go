package concurrency

import (
	"sync"
	"time"
)

// Barrier is a reusable cyclic barrier for a fixed number of
// goroutines, the Go equivalent of the C++ Barrier the Communicator
// wraps in original_source/.../multithreading/Communicator.hpp. Unlike
// sync.WaitGroup it can be Wait()ed on repeatedly across many rounds.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	n          int
	count      int
	generation uint64
}

// NewBarrier returns a Barrier that releases once n goroutines call Wait.
func NewBarrier(n int) *Barrier {
	b := &Barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until n goroutines (since the barrier was created or last
// tripped) have called Wait, then releases all of them together.
func (b *Barrier) Wait() {
	start := time.Now()
	defer func() { barrierWaitSeconds.Observe(time.Since(start).Seconds()) }()

	b.mu.Lock()
	gen := b.generation
	b.count++
	if b.count == b.n {
		b.count = 0
		b.generation++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
	b.mu.Unlock()
}
