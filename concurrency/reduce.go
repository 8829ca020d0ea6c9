package concurrency

import "github.com/opentracing/opentracing-go"

// Number is the set of element types AllReduce/Broadcast/ReduceMinMax
// operate over - the numeric column payloads §4.7 reduces across
// goroutines (gradients, Hessians, per-leaf counts).
type Number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// AllReduce is the Go translation of
// original_source/.../multithreading/all_reduce.hpp: every rank
// contributes its local slice in, op combines them element-wise across
// all ranks, and every rank receives the same combined result. With a
// single-goroutine communicator it is a plain copy (the C++ fast path).
func AllReduce[T Number](c *Communicator, span opentracing.Span, in []T, op func(a, b T) T) []T {
	if span != nil {
		span.LogKV("event", "all_reduce", "count", len(in))
	}

	if c.numThreads == 1 {
		out := make([]T, len(in))
		copy(out, in)
		return out
	}

	c.mu.Lock()
	if c.numThreadsLeft == c.numThreads {
		buf := make([]T, len(in))
		copy(buf, in)
		c.buf = buf
	} else {
		buf := c.buf.([]T)
		for i, v := range in {
			buf[i] = op(buf[i], v)
		}
		c.buf = buf
	}
	c.numThreadsLeft--
	if c.numThreadsLeft == 0 {
		c.numThreadsLeft = c.numThreads
	}
	c.mu.Unlock()

	c.barrier.Wait()

	c.mu.Lock()
	buf := c.buf.([]T)
	out := make([]T, len(buf))
	copy(out, buf)
	c.mu.Unlock()

	// Every rank must have copied the result out before any rank can
	// start the next AllReduce and reseed c.buf.
	c.barrier.Wait()

	return out
}

// AllReduceScalar is the single-value overload all_reduce.hpp also
// provides.
func AllReduceScalar[T Number](c *Communicator, span opentracing.Span, v T, op func(a, b T) T) T {
	return AllReduce(c, span, []T{v}, op)[0]
}

// Broadcast is the Go translation of
// original_source/.../multithreading/broadcast.hpp: rank root's values
// are copied into every other rank's out slice. With a single-goroutine
// communicator it is a no-op copy.
func Broadcast[T Number](c *Communicator, span opentracing.Span, rank int, root int, values []T) []T {
	if span != nil {
		span.LogKV("event", "broadcast", "root", root)
	}

	if c.numThreads == 1 {
		out := make([]T, len(values))
		copy(out, values)
		return out
	}

	if rank == root {
		c.mu.Lock()
		buf := make([]T, len(values))
		copy(buf, values)
		c.buf = buf
		c.mu.Unlock()
	}

	c.barrier.Wait()

	c.mu.Lock()
	buf := c.buf.([]T)
	out := make([]T, len(buf))
	copy(out, buf)
	c.mu.Unlock()

	c.barrier.Wait()
	return out
}

// ReduceMinMax all-reduces in to its element-wise minimum and maximum
// across every rank in one pass - used by the split proposer (§4.5) to
// agree on a numeric column's candidate-grid bounds before any
// goroutine starts scoring cut points.
func ReduceMinMax[T Number](c *Communicator, span opentracing.Span, in []T) (min, max []T) {
	min = AllReduce(c, span, in, func(a, b T) T {
		if b < a {
			return b
		}
		return a
	})
	max = AllReduce(c, span, in, func(a, b T) T {
		if b > a {
			return b
		}
		return a
	})
	return min, max
}
