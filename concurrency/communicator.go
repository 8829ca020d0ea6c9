package concurrency

import (
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relboost/relboost/errs"
)

var (
	checkpointTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relboost",
		Subsystem: "concurrency",
		Name:      "checkpoint_total",
		Help:      "Number of Communicator.Checkpoint calls, by outcome.",
	}, []string{"outcome"})

	barrierWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "relboost",
		Subsystem: "concurrency",
		Name:      "barrier_wait_seconds",
		Help:      "Time a goroutine spent blocked in Barrier.Wait.",
	})
)

func init() {
	prometheus.MustRegister(checkpointTotal, barrierWaitSeconds)
}

// Communicator is the single-process analogue of
// original_source/.../multithreading/Communicator.hpp: it gives a fixed
// pool of goroutines a shared barrier, a mutex-guarded reduction
// buffer, and a cooperative cancellation flag. The C++ original
// distinguishes threads by std::this_thread::get_id(); Go goroutines
// have no such identity, so every Communicator method that needs a
// caller identity instead takes an explicit rank, assigned by whatever
// spawns the goroutine pool (spec §9 favors explicit handles over
// ambient thread-local state for exactly this reason).
type Communicator struct {
	numThreads int
	barrier    *Barrier

	mu             sync.Mutex
	checkpointOK   bool
	numThreadsLeft int
	buf            interface{}
}

// NewCommunicator returns a Communicator for a fixed pool of n
// cooperating goroutines.
func NewCommunicator(n int) *Communicator {
	if n < 1 {
		n = 1
	}
	return &Communicator{
		numThreads:     n,
		barrier:        NewBarrier(n),
		checkpointOK:   true,
		numThreadsLeft: n,
	}
}

// NumThreads returns the size of the cooperating goroutine pool.
func (c *Communicator) NumThreads() int { return c.numThreads }

// Rank mirrors Communicator.hpp's MPI-compatibility shim: rank 0 is the
// coordinating ("main") goroutine, every other rank reports 1.
func (c *Communicator) Rank(rank int) int {
	if rank == 0 {
		return 0
	}
	return 1
}

// Checkpoint is a collective operation: every goroutine in the pool
// must call it once per round, passing whether its own local work
// succeeded. If any caller passes false, every caller's Checkpoint
// returns errs.Interrupted once all have arrived - mirroring
// Communicator::checkpoint's all-or-nothing throw semantics.
func (c *Communicator) Checkpoint(ctx opentracing.Span, ok bool) error {
	if ctx != nil {
		ctx.LogKV("event", "checkpoint")
	}
	if c.numThreads == 1 {
		if !ok {
			checkpointTotal.WithLabelValues("interrupted").Inc()
			return errs.Interrupted.New()
		}
		checkpointTotal.WithLabelValues("ok").Inc()
		return nil
	}

	if !ok {
		c.mu.Lock()
		c.checkpointOK = false
		c.mu.Unlock()
	}

	c.barrier.Wait()

	c.mu.Lock()
	passed := c.checkpointOK
	c.mu.Unlock()

	if !passed {
		checkpointTotal.WithLabelValues("interrupted").Inc()
		return errs.Interrupted.New()
	}
	checkpointTotal.WithLabelValues("ok").Inc()
	return nil
}

// Reset clears the checkpoint flag so the Communicator can be reused
// for another round after a Checkpoint failure has been handled.
func (c *Communicator) Reset() {
	c.mu.Lock()
	c.checkpointOK = true
	c.mu.Unlock()
}
