package concurrency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relboost/relboost/concurrency"
)

func TestReadWriteLockAllowsConcurrentReaders(t *testing.T) {
	require := require.New(t)
	lock := concurrency.NewReadWriteLock()

	var wg sync.WaitGroup
	var active, maxActive int32
	var mu sync.Mutex

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock.ReadLock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			lock.ReadUnlock()
		}()
	}
	wg.Wait()
	require.Greater(maxActive, int32(1))
}

func TestReadWriteLockWriterExcludesReader(t *testing.T) {
	require := require.New(t)
	lock := concurrency.NewReadWriteLock()

	lock.WriteLock()
	acquired := make(chan struct{})
	go func() {
		lock.ReadLock()
		close(acquired)
		lock.ReadUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired lock while writer held it")
	case <-time.After(20 * time.Millisecond):
	}
	lock.WriteUnlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired lock after writer released it")
	}
}

func TestReadWriteLockUpgrade(t *testing.T) {
	require := require.New(t)
	lock := concurrency.NewReadWriteLock()

	lock.WeakWriteLock()
	lock.UpgradeWeakWriteLock()
	lock.WriteUnlock()
	require.True(true)
}

func TestReadLockContextCancellation(t *testing.T) {
	require := require.New(t)
	lock := concurrency.NewReadWriteLock()
	lock.WriteLock()
	defer lock.WriteUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := lock.ReadLockContext(ctx)
	require.Error(err)
}

func TestBarrierReleasesAllGoroutines(t *testing.T) {
	require := require.New(t)
	const n = 5
	b := concurrency.NewBarrier(n)

	var wg sync.WaitGroup
	done := make([]bool, n)
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Wait()
			mu.Lock()
			done[i] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for _, d := range done {
		require.True(d)
	}
}

func TestAllReduceSumIsThreadCountInvariant(t *testing.T) {
	require := require.New(t)

	runWith := func(n int) []float64 {
		c := concurrency.NewCommunicator(n)
		values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
		per := len(values) / n

		var wg sync.WaitGroup
		results := make([][]float64, n)
		for rank := 0; rank < n; rank++ {
			wg.Add(1)
			go func(rank int) {
				defer wg.Done()
				// Each rank holds its own chunk in place and zeros
				// elsewhere, so the element-wise sum rebuilds values.
				local := make([]float64, len(values))
				copy(local[rank*per:(rank+1)*per], values[rank*per:(rank+1)*per])
				results[rank] = concurrency.AllReduce(c, nil, local, func(a, b float64) float64 { return a + b })
			}(rank)
		}
		wg.Wait()
		return results[0]
	}

	single := runWith(1)
	multi := runWith(4)
	require.Equal(len(single), len(multi))
	for i := range single {
		require.InDelta(single[i], multi[i], 1e-9)
	}
}

func TestBroadcastDeliversRootValues(t *testing.T) {
	require := require.New(t)
	const n = 4
	c := concurrency.NewCommunicator(n)

	var wg sync.WaitGroup
	results := make([][]int32, n)
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			var local []int32
			if rank == 0 {
				local = []int32{10, 20, 30}
			}
			results[rank] = concurrency.Broadcast(c, nil, rank, 0, local)
		}(rank)
	}
	wg.Wait()

	for rank := 0; rank < n; rank++ {
		require.Equal([]int32{10, 20, 30}, results[rank])
	}
}

func TestCheckpointInterruptsAllOnFailure(t *testing.T) {
	require := require.New(t)
	const n = 4
	c := concurrency.NewCommunicator(n)

	var wg sync.WaitGroup
	errsOut := make([]error, n)
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errsOut[rank] = c.Checkpoint(nil, rank != 2)
		}(rank)
	}
	wg.Wait()

	for rank := 0; rank < n; rank++ {
		require.Error(errsOut[rank])
	}
}

func TestCheckpointSucceedsWhenAllOK(t *testing.T) {
	require := require.New(t)
	const n = 4
	c := concurrency.NewCommunicator(n)

	var wg sync.WaitGroup
	errsOut := make([]error, n)
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errsOut[rank] = c.Checkpoint(nil, true)
		}(rank)
	}
	wg.Wait()

	for rank := 0; rank < n; rank++ {
		require.NoError(errsOut[rank])
	}
}

func TestReduceMinMax(t *testing.T) {
	require := require.New(t)
	const n = 2
	c := concurrency.NewCommunicator(n)

	var wg sync.WaitGroup
	mins := make([][]float64, n)
	maxs := make([][]float64, n)
	inputs := [][]float64{{3, -1}, {7, 2}}
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			mins[rank], maxs[rank] = concurrency.ReduceMinMax(c, nil, inputs[rank])
		}(rank)
	}
	wg.Wait()

	require.Equal([]float64{3, -1}, mins[0])
	require.Equal([]float64{7, 2}, maxs[0])
}
