package dedup

import (
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/rowdedup/pkg/chunk"
	"github.com/daviszhen/rowdedup/pkg/util"
)

func Test_strongUntilScenario(t *testing.T) {
	d := NewStrongUntil(4, 1)
	c := termChunk("s", 5)
	for row := 0; row < 4; row++ {
		assert.False(t, d.IsDuplicate(c, row, 0), "row %d", row)
	}
	assert.False(t, d.IsWeak())
	assert.True(t, d.IsDuplicate(c, 0, 0))

	assert.False(t, d.IsDuplicate(c, 4, 0))
	assert.True(t, d.IsWeak())
	// rows stored before weakening stay in the strong regions
	for row := 0; row < 4; row++ {
		assert.True(t, d.IsDuplicate(c, row, 0), "row %d", row)
	}
	assert.Equal(t, 5, d.Len())
}

func Test_strongExactBelowThreshold(t *testing.T) {
	const n = 5000
	d := NewStrongUntil(n, 1)
	c := termChunk("exact", n)
	for row := 0; row < n; row++ {
		require.False(t, d.IsDuplicate(c, row, 0), "row %d", row)
	}
	assert.False(t, d.IsWeak())
	for row := n - 1; row >= 0; row-- {
		require.True(t, d.IsDuplicate(c, row, 0), "row %d", row)
	}
	assert.Equal(t, n, d.Len())
	assert.GreaterOrEqual(t, d.Capacity(), n)
	assert.Greater(t, d.Stats().Buckets, initialBuckets(0))
}

func Test_strongForeverNeverWeakens(t *testing.T) {
	const n = 20000
	d := NewStrongForever(16, 2)
	c := chunk.NewChunk(2, n)
	for i := 0; i < n; i++ {
		c.Append(iri("a", i), iri("b", i%7))
	}
	for row := 0; row < n; row++ {
		require.False(t, d.IsDuplicate(c, row, 0))
	}
	assert.False(t, d.IsWeak())
	for row := 0; row < n; row++ {
		require.True(t, d.Contains(c, row))
	}
	assert.Equal(t, FlavorDistinct, d.Flavor())
}

func Test_strongContainsDoesNotMutate(t *testing.T) {
	d := NewStrongUntil(100, 1)
	c := termChunk("c", 3)
	for i := 0; i < 3; i++ {
		assert.False(t, d.Contains(c, 0))
	}
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.IsDuplicate(c, 0, 0))
	assert.True(t, d.Contains(c, 0))
	assert.False(t, d.Contains(c, 1))
	assert.True(t, d.Add(c, 1))
	assert.False(t, d.Add(c, 1))
}

func Test_strongClear(t *testing.T) {
	d := NewStrongUntil(8, 1)
	c := termChunk("clear", 20)
	for row := 0; row < c.Card(); row++ {
		d.IsDuplicate(c, row, 0)
	}
	require.True(t, d.IsWeak())
	capacity := d.Capacity()

	d.Clear(2)
	assert.Equal(t, 2, d.Cols())
	assert.False(t, d.IsWeak())
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, capacity, d.Capacity())

	c2 := rowsChunk([]string{iri("clear", 0), ""}, []string{iri("clear", 1), `"x"`})
	assert.False(t, d.Contains(c2, 0))
	assert.False(t, d.IsDuplicate(c2, 0, 0))
	assert.True(t, d.IsDuplicate(c2, 0, 0))
	assert.False(t, d.IsDuplicate(c2, 1, 0))

	cnt := 0
	d.ForEach(func(r chunk.Row) bool {
		cnt++
		assert.Len(t, r, 2)
		return true
	})
	assert.Equal(t, 2, cnt)
}

func Test_strongWeakMemoryIsBounded(t *testing.T) {
	d := NewStrongUntil(16, 1)
	c := termChunk("bounded", 20000)
	for row := 0; row < 10000; row++ {
		assert.False(t, d.IsDuplicate(c, row, 0))
	}
	require.True(t, d.IsWeak())
	capacity := d.Capacity()
	assert.Less(t, capacity, 1000)
	for row := 10000; row < 20000; row++ {
		d.IsDuplicate(c, row, 0)
	}
	assert.Equal(t, capacity, d.Capacity())
	assert.LessOrEqual(t, d.Len(), capacity)
}

func Test_strongSaturation(t *testing.T) {
	d := NewStrongForever(0, 1)
	c := termChunk("sat", 2)
	assert.False(t, d.IsDuplicate(c, 0, 0))

	d.mu.Lock()
	d.tableSize = SaturatedRows
	d.mu.Unlock()

	assert.False(t, d.IsDuplicate(c, 1, 0))
	assert.False(t, d.IsDuplicate(c, 1, 0))
	assert.False(t, d.Contains(c, 1))
	assert.True(t, d.IsDuplicate(c, 0, 0))
	assert.True(t, d.saturated.Load())
}

func Test_strongRecheckUnderLock(t *testing.T) {
	util.OpenFaults(util.FaultScopeDedup)
	defer util.CloseFaults(util.FaultScopeDedup)

	d := NewStrongForever(0, 1)
	c := termChunk("race", 1)
	var fired atomic.Bool
	hash := strconv.FormatInt(int64(c.Hash(0)), 10)
	fa := util.RegisterFault(util.FaultScopeDedup, FaultStrongBeforeLock, nil, func(args []string) error {
		assert.Equal(t, []string{hash}, args)
		if fired.Swap(true) {
			return nil
		}
		// another writer stores the same row before we take the lock
		done := make(chan bool)
		go func() {
			done <- d.IsDuplicate(c, 0, 0)
		}()
		assert.False(t, <-done)
		return nil
	})
	assert.True(t, d.IsDuplicate(c, 0, 0))
	assert.Equal(t, 1, d.Len())
	// once per caller
	assert.Equal(t, int64(2), fa.Hits())
}

func Test_strongConcurrentNoFalsePositive(t *testing.T) {
	const workers = 8
	const perWorker = 3000
	d := NewStrongForever(0, 1)
	chunks := make([]*chunk.Chunk, workers)
	for w := range chunks {
		chunks[w] = termChunk(iri("worker", w), perWorker)
	}
	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		c := chunks[w]
		eg.Go(func() error {
			for row := 0; row < c.Card(); row++ {
				if d.IsDuplicate(c, row, 0) {
					t.Errorf("false positive for %s", c.Data[0].GetValue(row))
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, workers*perWorker, d.Len())
	for _, c := range chunks {
		for row := 0; row < c.Card(); row++ {
			require.True(t, d.IsDuplicate(c, row, 0))
		}
	}
}

func Test_strongConcurrentSharedRows(t *testing.T) {
	const workers = 6
	d := NewStrongForever(0, 1)
	c := termChunk("shared", 2000)
	var news atomic.Int64
	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			for row := 0; row < c.Card(); row++ {
				if !d.IsDuplicate(c, row, 0) {
					news.Add(1)
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	// each row is accepted exactly once: inserts are serialized by the lock
	assert.Equal(t, int64(c.Card()), news.Load())
	assert.Equal(t, c.Card(), d.Len())
}

func Test_strongBucketWeaken(t *testing.T) {
	b := newStrongBucket(1, initialBucketSlots, false)
	c := termChunk("bucket", 5)
	for row := 0; row < initialBucketSlots; row++ {
		r := c.Row(row)
		nb, filled := b.add(c.Hash(row), &r)
		assert.True(t, filled)
		assert.Same(t, b, nb)
	}
	wb := b.weaken()
	assert.NotSame(t, b, wb)
	assert.True(t, wb.isWeak())
	assert.Equal(t, initialBucketSlots+minWeakWidth, wb.capacity())
	for row := 0; row < initialBucketSlots; row++ {
		assert.True(t, wb.contains(c.Hash(row), c, row))
	}
	r := c.Row(4)
	nb, filled := wb.add(c.Hash(4), &r)
	assert.Same(t, wb, nb)
	assert.True(t, filled)
	assert.True(t, wb.contains(c.Hash(4), c, 4))
	assert.Equal(t, int32(initialBucketSlots), wb.size.Load())
}
