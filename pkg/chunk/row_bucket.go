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

package chunk

import (
	"sync/atomic"

	"github.com/daviszhen/rowdedup/pkg/util"
)

// RowBucket is a dense, fixed capacity array of stored rows. Every slot is
// published with an atomic pointer store, so readers that do not hold the
// writer's lock observe either the old or the new row, never a torn one.
// Growing produces a new bucket; the receiver is left untouched.
type RowBucket struct {
	cols  atomic.Int32
	slots []atomic.Pointer[Row]
}

func NewRowBucket(cols int, capacity int) *RowBucket {
	b := &RowBucket{
		slots: make([]atomic.Pointer[Row], capacity),
	}
	b.cols.Store(int32(cols))
	return b
}

func (b *RowBucket) Capacity() int {
	return len(b.slots)
}

func (b *RowBucket) Cols() int {
	return int(b.cols.Load())
}

func (b *RowBucket) checkChunk(c *Chunk) {
	util.DebugAssert(c.ColumnCount() == b.Cols(),
		"row of %d columns stored in bucket of %d columns", c.ColumnCount(), b.Cols())
}

// Set copies row of c into slot dst.
func (b *RowBucket) Set(dst int, c *Chunk, row int) {
	b.checkChunk(c)
	r := c.Row(row)
	b.slots[dst].Store(&r)
}

// Put stores an already owned row, typically one loaded from another slot.
func (b *RowBucket) Put(dst int, r *Row) {
	b.slots[dst].Store(r)
}

func (b *RowBucket) Load(i int) *Row {
	return b.slots[i].Load()
}

// SetFrom moves the row reference of slot src of other into slot dst.
func (b *RowBucket) SetFrom(dst int, other *RowBucket, src int) {
	b.slots[dst].Store(other.slots[src].Load())
}

func (b *RowBucket) Empty(i int) bool {
	return b.slots[i].Load() == nil
}

// Has reports whether slot i holds a row equal to row of c.
func (b *RowBucket) Has(i int, c *Chunk, row int) bool {
	r := b.slots[i].Load()
	return r != nil && c.EqualsRow(row, *r)
}

// Grown returns a bucket with additional slots and the contents of b.
func (b *RowBucket) Grown(additional int) *RowBucket {
	nb := NewRowBucket(b.Cols(), len(b.slots)+additional)
	for i := range b.slots {
		nb.slots[i].Store(b.slots[i].Load())
	}
	return nb
}

// Clear empties every slot and rebinds the bucket to cols columns.
func (b *RowBucket) Clear(cols int) {
	b.cols.Store(int32(cols))
	for i := range b.slots {
		b.slots[i].Store(nil)
	}
}

func (b *RowBucket) Occupied() int {
	return b.OccupiedBelow(len(b.slots))
}

// OccupiedBelow counts the occupied slots of index lower than n.
func (b *RowBucket) OccupiedBelow(n int) int {
	cnt := 0
	for i := range min(n, len(b.slots)) {
		if b.slots[i].Load() != nil {
			cnt++
		}
	}
	return cnt
}

// ForEach visits occupied slots in index order until fn returns false.
func (b *RowBucket) ForEach(fn func(i int, r Row) bool) {
	for i := range b.slots {
		r := b.slots[i].Load()
		if r == nil {
			continue
		}
		if !fn(i, *r) {
			return
		}
	}
}
