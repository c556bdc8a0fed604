package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/rowdedup/pkg/chunk"
)

func Test_weakCapacity(t *testing.T) {
	assert.Equal(t, 8, NewWeak(0, 1).Capacity())
	assert.Equal(t, 8, NewWeak(3, 1).Capacity())
	assert.Equal(t, 128, NewWeak(100, 1).Capacity())
	d := NewWeak(128, 1)
	assert.Equal(t, 128, d.Capacity())
	assert.Equal(t, 129, d.rows.Capacity())
	assert.Equal(t, 64, d.bits.Words())
	assert.True(t, d.IsWeak())
}

func Test_weakSameBucket(t *testing.T) {
	d := NewWeak(8, 1)
	const target = 3
	c := collidingChunk("same", 100, func(hash int32) bool {
		return uint32(hash)&7 == target
	})
	for row := 0; row < c.Card(); row++ {
		require.False(t, d.IsDuplicate(c, row, 0), "row %d", row)
	}
	// the newest row owns the bucket, the first one was pushed to bucket+1
	assert.True(t, d.Contains(c, 99))
	assert.True(t, d.Contains(c, 0))
	assert.False(t, d.Contains(c, 50))

	assert.False(t, d.IsDuplicate(c, 50, 0))
	assert.True(t, d.IsDuplicate(c, 50, 0))
	assert.False(t, d.Contains(c, 99))
	assert.True(t, d.IsDuplicate(c, 0, 0))
	assert.Equal(t, 2, d.Stats().Rows)
}

func Test_weakStatsExcludeTrailingSlot(t *testing.T) {
	d := NewWeak(8, 1)
	c := collidingChunk("tail", 2, func(hash int32) bool {
		return uint32(hash)&7 == 7
	})
	assert.False(t, d.IsDuplicate(c, 0, 0))
	assert.False(t, d.IsDuplicate(c, 1, 0))
	// the first row moved to the trailing slot and is still found
	assert.True(t, d.Contains(c, 0))
	st := d.Stats()
	assert.Equal(t, 1, st.Rows)
	assert.LessOrEqual(t, st.Rows, st.Capacity)
}

func Test_weakRepeats(t *testing.T) {
	d := NewWeak(1024, 2)
	c := chunk.NewChunk(2, 64)
	for i := 0; i < 64; i++ {
		c.Append(iri("s", i), iri("o", i))
	}
	for row := 0; row < c.Card(); row++ {
		assert.False(t, d.Contains(c, row))
		assert.False(t, d.Contains(c, row))
		assert.True(t, d.Add(c, row))
	}
	retained := 0
	for row := 0; row < c.Card(); row++ {
		if d.IsDuplicate(c, row, 0) {
			retained++
		}
	}
	// 64 rows in 1024 buckets keep most of them
	assert.Greater(t, retained, 48)
}

func Test_weakClear(t *testing.T) {
	d := NewWeak(16, 1)
	c := termChunk("wc", 8)
	for row := 0; row < c.Card(); row++ {
		d.IsDuplicate(c, row, 0)
	}
	d.Clear(3)
	assert.Equal(t, 3, d.Cols())
	assert.Equal(t, 16, d.Capacity())
	assert.Equal(t, 0, d.bits.Count())
	cnt := 0
	d.ForEach(func(chunk.Row) bool {
		cnt++
		return true
	})
	assert.Equal(t, 0, cnt)

	c3 := rowsChunk([]string{"<a>", "<b>", "<c>"})
	assert.False(t, d.Contains(c3, 0))
	assert.False(t, d.IsDuplicate(c3, 0, 0))
	assert.True(t, d.IsDuplicate(c3, 0, 0))
}

func Test_weakConcurrentNoFalsePositive(t *testing.T) {
	const workers = 8
	d := NewWeak(64, 1)
	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		c := termChunk(iri("weak", w), 2000)
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
}
