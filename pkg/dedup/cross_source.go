// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dedup

import (
	"strconv"
	"sync/atomic"

	"github.com/daviszhen/rowdedup/pkg/chunk"
	"github.com/daviszhen/rowdedup/pkg/util"
)

const (
	// MaxSources is the number of distinct sources a cell can remember.
	MaxSources = 32

	wideBucketWidth     = 4
	narrowBucketWidth   = 1
	wideBucketThreshold = 16

	// each cell keeps a hash word followed by a source mask word
	cellWords      = 2
	cellHashWord   = 0
	cellSourceWord = 1

	FaultCrossSourceBeforeLock = "crossSourceBeforeLock"
)

// enhanceHash folds the top byte into the low bits before the modulo.
func enhanceHash(h int32) int32 {
	return h ^ int32(uint32(h)>>24)
}

func sourceBit(source int) uint32 {
	util.DebugAssert(source >= 0 && source < MaxSources,
		"source %d out of range [0, %d)", source, MaxSources)
	return 1 << (uint32(source) % MaxSources)
}

// WeakCrossSourceDedup remembers for every stored row which sources produced
// it. A row is a duplicate only when some other source produced an equal
// row; repeats within one source are left to per-source dedup.
type WeakCrossSourceDedup struct {
	dedupBase
	mu *util.ReentrantLock

	width   int
	buckets uint32
	rows    *chunk.RowBucket
	// cellWords per cell, see cellHashWord and cellSourceWord
	meta []uint32
	// next cell to overwrite in each bucket, guarded by mu
	insertion []uint8
}

// NewWeakCrossSource creates a set of capacity rows (rounded up to a power
// of two) laid out as buckets of 4 cells, or of a single cell for
// capacities of 16 or less.
func NewWeakCrossSource(capacity int, cols int) *WeakCrossSourceDedup {
	capacity = int(util.NextPowerOfTwo(uint64(max(capacity, 1))))
	width := narrowBucketWidth
	if capacity > wideBucketThreshold {
		width = wideBucketWidth
	}
	buckets := capacity / width
	d := &WeakCrossSourceDedup{
		mu:        util.NewReentrantLock(),
		width:     width,
		buckets:   uint32(buckets),
		rows:      chunk.NewRowBucket(cols, capacity),
		meta:      make([]uint32, capacity*cellWords),
		insertion: make([]uint8, buckets),
	}
	d.init(d, FlavorWeakCross, cols)
	return d
}

func (d *WeakCrossSourceDedup) BucketWidth() int {
	return d.width
}

func (d *WeakCrossSourceDedup) cellHash(cell int) int32 {
	return int32(atomic.LoadUint32(&d.meta[cell*cellWords+cellHashWord]))
}

func (d *WeakCrossSourceDedup) setCellHash(cell int, hash int32) {
	atomic.StoreUint32(&d.meta[cell*cellWords+cellHashWord], uint32(hash))
}

func (d *WeakCrossSourceDedup) cellSources(cell int) uint32 {
	return atomic.LoadUint32(&d.meta[cell*cellWords+cellSourceWord])
}

func (d *WeakCrossSourceDedup) setCellSources(cell int, mask uint32) {
	atomic.StoreUint32(&d.meta[cell*cellWords+cellSourceWord], mask)
}

func (d *WeakCrossSourceDedup) firstCell(hash int32) int {
	return int(uint32(hash)%d.buckets) * d.width
}

func (d *WeakCrossSourceDedup) holds(cell int, hash int32, c *chunk.Chunk, row int) bool {
	return d.cellHash(cell) == hash && d.rows.Has(cell, c, row)
}

func (d *WeakCrossSourceDedup) find(hash int32, c *chunk.Chunk, row int) int {
	begin := d.firstCell(hash)
	for cell := begin; cell < begin+d.width; cell++ {
		if d.holds(cell, hash, c, row) {
			return cell
		}
	}
	return -1
}

// claimLocked returns the oldest cell of the bucket starting at begin.
func (d *WeakCrossSourceDedup) claimLocked(begin int) int {
	bucket := begin / d.width
	next := int(d.insertion[bucket])
	d.insertion[bucket] = uint8((next + 1) % d.width)
	return begin + next
}

func (d *WeakCrossSourceDedup) IsDuplicate(c *chunk.Chunk, row int, source int) bool {
	d.checkChunk(c)
	bit := sourceBit(source)
	hash := enhanceHash(c.Hash(row))
	cell := d.find(hash, c, row)
	if util.FaultsEnabled(util.FaultScopeDedup) {
		_ = util.InjectFault(util.FaultScopeDedup, FaultCrossSourceBeforeLock,
			strconv.Itoa(source))
	}

	lockCounted(d.mu, d.flavor)
	defer d.mu.Unlock()
	if cell < 0 {
		// a concurrent writer may have stored an equal row meanwhile
		if cell = d.find(hash, c, row); cell < 0 {
			cell = d.claimLocked(d.firstCell(hash))
			d.rows.Set(cell, c, row)
			d.setCellHash(cell, hash)
			d.setCellSources(cell, 0)
		}
	} else if !d.holds(cell, hash, c, row) {
		// evicted by another writer after the lock-free scan
		CrossSourceRacesTotal.Inc()
		return false
	}
	sources := d.cellSources(cell)
	d.setCellSources(cell, sources|bit)
	return sources&^bit != 0
}

func (d *WeakCrossSourceDedup) Contains(c *chunk.Chunk, row int) bool {
	d.checkChunk(c)
	return d.find(enhanceHash(c.Hash(row)), c, row) >= 0
}

// Sources returns the source mask recorded for row, zero when absent.
func (d *WeakCrossSourceDedup) Sources(c *chunk.Chunk, row int) uint32 {
	cell := d.find(enhanceHash(c.Hash(row)), c, row)
	if cell < 0 {
		return 0
	}
	return d.cellSources(cell)
}

func (d *WeakCrossSourceDedup) Clear(cols int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cols.Store(int32(cols))
	d.rows.Clear(cols)
	for i := range d.meta {
		atomic.StoreUint32(&d.meta[i], 0)
	}
	clear(d.insertion)
}

func (d *WeakCrossSourceDedup) Capacity() int {
	return d.rows.Capacity()
}

func (d *WeakCrossSourceDedup) IsWeak() bool {
	return true
}

func (d *WeakCrossSourceDedup) ForEach(fn func(r chunk.Row) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows.ForEach(func(_ int, r chunk.Row) bool {
		return fn(r)
	})
}

func (d *WeakCrossSourceDedup) Stats() Stats {
	return Stats{
		Flavor:   d.flavor,
		Cols:     d.Cols(),
		Capacity: d.Capacity(),
		Rows:     d.rows.Occupied(),
		Buckets:  int(d.buckets),
		Weak:     true,
	}
}

var _ Dedup = (*WeakCrossSourceDedup)(nil)
