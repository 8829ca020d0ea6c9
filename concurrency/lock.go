// Package concurrency implements the reduction/cancellation layer
// described in spec §4.7 and §5: a three-mode read/write lock, a
// reusable barrier, a communicator carrying the shared reduction
// buffer and the cancellation flag, and the all_reduce/broadcast/
// reduce_min_max primitives built on top of it.
package concurrency

import (
	"context"
	"sync"

	"github.com/relboost/relboost/errs"
)

// ReadWriteLock is the three-mode lock described in spec §5: readers,
// a single weak writer (tolerates readers, not other writers), and a
// single strong writer (tolerates nothing). A weak writer may upgrade
// to strong without releasing the lock, grounded on
// original_source/.../multithreading/ReadWriteLock.hpp.
type ReadWriteLock struct {
	mu sync.Mutex

	readerCond     *sync.Cond
	weakWriterCond *sync.Cond
	writerCond     *sync.Cond

	activeWeakWriter bool
	activeWriter     bool
	numActiveReaders int
	numWaitingWeak   int
	numWaitingWrite  int
}

// NewReadWriteLock returns an unlocked ReadWriteLock.
func NewReadWriteLock() *ReadWriteLock {
	l := &ReadWriteLock{}
	l.readerCond = sync.NewCond(&l.mu)
	l.weakWriterCond = sync.NewCond(&l.mu)
	l.writerCond = sync.NewCond(&l.mu)
	return l
}

func (l *ReadWriteLock) noActiveReaders() bool     { return l.numActiveReaders == 0 }
func (l *ReadWriteLock) noActiveWeakWriters() bool { return !l.activeWeakWriter }
func (l *ReadWriteLock) noActiveWriters() bool     { return !l.activeWriter }

// ReadLock blocks until no strong writer is active; an active weak
// writer does not block readers.
func (l *ReadWriteLock) ReadLock() {
	l.mu.Lock()
	for !l.noActiveWriters() {
		l.readerCond.Wait()
	}
	l.numActiveReaders++
	l.mu.Unlock()
}

// ReadLockContext is ReadLock with cancellation, returning
// errs.Interrupted if ctx is done before the lock is acquired.
func (l *ReadWriteLock) ReadLockContext(ctx context.Context) error {
	return waitWithContext(ctx, &l.mu, l.readerCond, l.noActiveWriters, func() { l.numActiveReaders++ })
}

// ReadUnlock releases a read lock, waking a waiting writer (strong
// takes priority over weak) or, if none, leaves other readers be.
func (l *ReadWriteLock) ReadUnlock() {
	l.mu.Lock()
	l.numActiveReaders--
	switch {
	case l.numWaitingWrite > 0:
		l.writerCond.Signal()
	case l.numWaitingWeak > 0:
		l.weakWriterCond.Signal()
	}
	l.mu.Unlock()
}

// WeakWriteLock blocks until no writer (weak or strong) is active, then
// marks this goroutine the active weak writer. Weak writers tolerate
// concurrent readers.
func (l *ReadWriteLock) WeakWriteLock() {
	l.mu.Lock()
	l.numWaitingWeak++
	for !(l.noActiveWriters() && l.noActiveWeakWriters()) {
		l.weakWriterCond.Wait()
	}
	l.numWaitingWeak--
	l.activeWeakWriter = true
	l.mu.Unlock()
}

// UpgradeWeakWriteLock blocks until readers and writers drain, then
// promotes the caller's weak write lock to a strong one.
func (l *ReadWriteLock) UpgradeWeakWriteLock() {
	l.mu.Lock()
	l.numWaitingWrite++
	for !(l.noActiveReaders() && l.noActiveWriters()) {
		l.writerCond.Wait()
	}
	l.numWaitingWrite--
	l.activeWeakWriter = false
	l.activeWriter = true
	l.mu.Unlock()
}

// WeakWriteUnlock releases a weak write lock.
func (l *ReadWriteLock) WeakWriteUnlock() {
	l.mu.Lock()
	l.activeWeakWriter = false
	l.wakeAfterUnlock()
	l.mu.Unlock()
}

// WriteLock blocks until no readers or writers (weak or strong) remain
// active, then marks this goroutine the active strong writer.
func (l *ReadWriteLock) WriteLock() {
	l.mu.Lock()
	l.numWaitingWrite++
	for !(l.noActiveReaders() && l.noActiveWriters() && l.noActiveWeakWriters()) {
		l.writerCond.Wait()
	}
	l.numWaitingWrite--
	l.activeWriter = true
	l.mu.Unlock()
}

// WriteUnlock releases a strong write lock.
func (l *ReadWriteLock) WriteUnlock() {
	l.mu.Lock()
	l.activeWriter = false
	l.wakeAfterUnlock()
	l.mu.Unlock()
}

// wakeAfterUnlock wakes the next waiter in writer > weak-writer >
// reader priority order; caller holds l.mu.
func (l *ReadWriteLock) wakeAfterUnlock() {
	switch {
	case l.numWaitingWrite > 0:
		l.writerCond.Signal()
	case l.numWaitingWeak > 0:
		l.weakWriterCond.Signal()
	default:
		l.readerCond.Broadcast()
	}
}

// waitWithContext waits on cond while pred() is false, honoring ctx
// cancellation by spawning a watcher goroutine that broadcasts the
// condition variable on cancel. On success, onAcquire runs with mu
// still held and the lock is returned held; on cancellation, mu is
// released and errs.Interrupted is returned.
func waitWithContext(ctx context.Context, mu *sync.Mutex, cond *sync.Cond, pred func() bool, onAcquire func()) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-done:
		}
	}()

	mu.Lock()
	for !pred() {
		select {
		case <-ctx.Done():
			mu.Unlock()
			return errs.Interrupted.Wrap(ctx.Err(), "read lock")
		default:
		}
		cond.Wait()
	}
	onAcquire()
	mu.Unlock()
	return nil
}
