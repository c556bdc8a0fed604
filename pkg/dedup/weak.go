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
	"github.com/daviszhen/rowdedup/pkg/chunk"
	"github.com/daviszhen/rowdedup/pkg/util"
)

const minWeakCapacity = 8

// WeakDedup is a fixed size approximate set that never allocates after
// construction. Each row maps to one slot; a displaced occupant moves to the
// following slot when that one is free, otherwise it is forgotten.
//
// WeakDedup takes no lock. Slots and pre-filter words are accessed with
// atomic loads and stores, so a racing writer can only make a later lookup
// miss a row it overwrote. Every positive answer is confirmed by comparing
// the stored row, hence races never yield false positives.
type WeakDedup struct {
	dedupBase
	mask uint32
	// capacity+1 slots, the trailing one lets bucket+1 skip range checks
	rows *chunk.RowBucket
	bits *util.AtomicBitmap
}

// NewWeak creates a set of capacity rounded up to a power of two (min 8).
func NewWeak(capacity int, cols int) *WeakDedup {
	capacity = weakCapacity(capacity)
	d := &WeakDedup{
		mask: uint32(capacity - 1),
		rows: chunk.NewRowBucket(cols, capacity+1),
		bits: util.NewAtomicBitmap(capacity / 2),
	}
	d.init(d, FlavorWeak, cols)
	return d
}

func weakCapacity(capacity int) int {
	return int(util.NextPowerOfTwo(uint64(max(capacity, minWeakCapacity))))
}

func (d *WeakDedup) bucket(hash int32) int {
	return int(uint32(hash) & d.mask)
}

func (d *WeakDedup) IsDuplicate(c *chunk.Chunk, row int, _ int) bool {
	d.checkChunk(c)
	hash := c.Hash(row)
	bucket := d.bucket(hash)
	if d.bits.TestAndSet(uint32(hash)) {
		if d.rows.Has(bucket, c, row) || d.rows.Has(bucket+1, c, row) {
			return true
		}
	}
	if d.rows.Empty(bucket + 1) {
		d.rows.SetFrom(bucket+1, d.rows, bucket)
	}
	d.rows.Set(bucket, c, row)
	return false
}

func (d *WeakDedup) Contains(c *chunk.Chunk, row int) bool {
	d.checkChunk(c)
	hash := c.Hash(row)
	if !d.bits.Test(uint32(hash)) {
		return false
	}
	bucket := d.bucket(hash)
	return d.rows.Has(bucket, c, row) || d.rows.Has(bucket+1, c, row)
}

func (d *WeakDedup) Clear(cols int) {
	d.cols.Store(int32(cols))
	d.rows.Clear(cols)
	d.bits.Reset()
}

// Capacity counts the addressable buckets, excluding the trailing slot.
func (d *WeakDedup) Capacity() int {
	return int(d.mask) + 1
}

func (d *WeakDedup) IsWeak() bool {
	return true
}

func (d *WeakDedup) ForEach(fn func(r chunk.Row) bool) {
	d.rows.ForEach(func(_ int, r chunk.Row) bool {
		return fn(r)
	})
}

func (d *WeakDedup) Stats() Stats {
	return Stats{
		Flavor:   d.flavor,
		Cols:     d.Cols(),
		Capacity: d.Capacity(),
		// the trailing slot only buffers evictions from the last bucket
		Rows:     d.rows.OccupiedBelow(d.Capacity()),
		Buckets:  d.Capacity(),
		Weak:     true,
	}
}

var _ Dedup = (*WeakDedup)(nil)
