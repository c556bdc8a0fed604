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
	"math"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/daviszhen/rowdedup/pkg/chunk"
	"github.com/daviszhen/rowdedup/pkg/util"
)

const (
	initialBucketSlots = 4
	maxBucketGrowth    = 128
	// DefaultWeakBucketSlots is the capacity of buckets first allocated after
	// the table weakened.
	DefaultWeakBucketSlots = 16
	minWeakWidth           = 4

	// rows per bucket that trigger a rehash, and rows per bucket after it.
	rehashLoad = 8
	targetLoad = 4

	minBuckets        = 8
	maxInitialBuckets = 1 << 16

	// SaturatedRows is the row count at which a strong table stops inserting.
	SaturatedRows = math.MaxInt32

	FaultStrongBeforeLock = "strongBeforeLock"
)

// maxBuckets is the largest power of two not above MaxInt32>>4.
var maxBuckets = int(util.PrevPowerOfTwo(math.MaxInt32 >> 4))

func mixHash(hash int32) uint32 {
	return util.ChecksumU32(uint32(hash))
}

// summaryBit selects one of the 64 bits of a bucket summary. Rows sharing a
// bucket agree on their low hash bits, so the bit comes from the mixed high
// bits.
func summaryBit(hash int32) uint64 {
	return 1 << (mixHash(hash) >> 26)
}

func weakSlot(hash int32, width int) int {
	return int((mixHash(hash) >> 8) % uint32(width))
}

// strongBucket stores rows in [0, weakBegin) append only and in
// [weakBegin, capacity) at a slot chosen by hash, overwriting on collision.
// An unweakened bucket has weakBegin == capacity. The slice fields never
// change after publication; growth builds a new bucket.
type strongBucket struct {
	hashes    []int32
	rows      *chunk.RowBucket
	size      atomic.Int32
	weakBegin atomic.Int32
	summary   atomic.Uint64
}

func newStrongBucket(cols int, capacity int, weak bool) *strongBucket {
	b := &strongBucket{
		hashes: make([]int32, capacity),
		rows:   chunk.NewRowBucket(cols, capacity),
	}
	if !weak {
		b.weakBegin.Store(int32(capacity))
	}
	return b
}

func (b *strongBucket) capacity() int {
	return len(b.hashes)
}

func (b *strongBucket) isWeak() bool {
	return int(b.weakBegin.Load()) < b.capacity()
}

func (b *strongBucket) hashAt(i int) int32 {
	return atomic.LoadInt32(&b.hashes[i])
}

func (b *strongBucket) contains(hash int32, c *chunk.Chunk, row int) bool {
	if b.summary.Load()&summaryBit(hash) == 0 {
		return false
	}
	wb := int(b.weakBegin.Load())
	n := min(int(b.size.Load()), wb)
	for i := 0; i < n; i++ {
		if b.hashAt(i) == hash && b.rows.Has(i, c, row) {
			return true
		}
	}
	if width := b.capacity() - wb; width > 0 {
		i := wb + weakSlot(hash, width)
		return b.hashAt(i) == hash && b.rows.Has(i, c, row)
	}
	return false
}

func growthFor(capacity int) int {
	return max(1, min(capacity, maxBucketGrowth))
}

func (b *strongBucket) grown(additional int) *strongBucket {
	capacity := b.capacity() + additional
	nb := &strongBucket{
		hashes: make([]int32, capacity),
		rows:   b.rows.Grown(additional),
	}
	for i := range b.hashes {
		nb.hashes[i] = b.hashAt(i)
	}
	nb.size.Store(b.size.Load())
	nb.weakBegin.Store(int32(capacity))
	nb.summary.Store(b.summary.Load())
	return nb
}

// add stores r and returns the bucket now holding it, which differs from b
// when the strong region had to grow, and whether an empty slot was filled.
func (b *strongBucket) add(hash int32, r *chunk.Row) (*strongBucket, bool) {
	wb := int(b.weakBegin.Load())
	if width := b.capacity() - wb; width > 0 {
		i := wb + weakSlot(hash, width)
		empty := b.rows.Empty(i)
		b.rows.Put(i, r)
		atomic.StoreInt32(&b.hashes[i], hash)
		b.summary.Or(summaryBit(hash))
		return b, empty
	}
	nb := b
	size := int(b.size.Load())
	if size == b.capacity() {
		nb = b.grown(growthFor(size))
	}
	nb.rows.Put(size, r)
	atomic.StoreInt32(&nb.hashes[size], hash)
	nb.summary.Or(summaryBit(hash))
	nb.size.Store(int32(size + 1))
	return nb, true
}

// weaken freezes the strong region at its current size and makes sure at
// least minWeakWidth slots remain for overwriting inserts.
func (b *strongBucket) weaken() *strongBucket {
	if b.isWeak() {
		return b
	}
	size := int(b.size.Load())
	nb := b
	if free := b.capacity() - size; free < minWeakWidth {
		nb = b.grown(minWeakWidth - free)
	}
	nb.weakBegin.Store(int32(size))
	return nb
}

func (b *strongBucket) clear(cols int) {
	b.rows.Clear(cols)
	for i := range b.hashes {
		atomic.StoreInt32(&b.hashes[i], 0)
	}
	b.size.Store(0)
	b.weakBegin.Store(int32(b.capacity()))
	b.summary.Store(0)
}

type strongTable struct {
	buckets []atomic.Pointer[strongBucket]
	mask    uint32
}

func newStrongTable(count int) *strongTable {
	util.AssertFunc(util.IsPowerOfTwo(uint64(count)))
	return &strongTable{
		buckets: make([]atomic.Pointer[strongBucket], count),
		mask:    uint32(count - 1),
	}
}

func (t *strongTable) index(hash int32) int {
	return int(uint32(hash) & t.mask)
}

func (t *strongTable) bucket(hash int32) *strongBucket {
	return t.buckets[t.index(hash)].Load()
}

// StrongDedup is an exact set until weakenAt rows are stored. From then on
// every bucket keeps its strong rows but new rows only overwrite slots of
// the weak regions, which bounds memory.
type StrongDedup struct {
	dedupBase
	mu *util.ReentrantLock

	table atomic.Pointer[strongTable]

	// guarded by mu
	tableSize  int
	nextRehash int
	weakenAt   int

	weakened  atomic.Bool
	saturated atomic.Bool
	slots     atomic.Int64
	stored    atomic.Int64
}

// NewStrongUntil creates a set that is exact for the first strongCapacity
// rows and weak afterwards.
func NewStrongUntil(strongCapacity int, cols int) *StrongDedup {
	return newStrongDedup(FlavorReduced, max(strongCapacity, 0), strongCapacity, cols)
}

// NewStrongForever creates a set that never weakens. initialCapacity only
// sizes the first bucket array.
func NewStrongForever(initialCapacity int, cols int) *StrongDedup {
	return newStrongDedup(FlavorDistinct, math.MaxInt, initialCapacity, cols)
}

func newStrongDedup(flavor Flavor, weakenAt int, sizeHint int, cols int) *StrongDedup {
	d := &StrongDedup{
		mu:       util.NewReentrantLock(),
		weakenAt: weakenAt,
	}
	d.init(d, flavor, cols)
	d.table.Store(newStrongTable(initialBuckets(sizeHint)))
	d.resetCounters()
	return d
}

func initialBuckets(sizeHint int) int {
	want := uint64(max(sizeHint, 0)/targetLoad + 1)
	n := int(util.NextPowerOfTwo(want))
	return max(minBuckets, min(n, maxInitialBuckets))
}

func (d *StrongDedup) resetCounters() {
	count := len(d.table.Load().buckets)
	d.tableSize = 0
	d.nextRehash = rehashThreshold(count)
	d.stored.Store(0)
	d.weakened.Store(false)
	d.saturated.Store(false)
}

func rehashThreshold(buckets int) int {
	if buckets >= maxBuckets {
		return math.MaxInt
	}
	return buckets * rehashLoad
}

func (d *StrongDedup) StrongCapacity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.weakenAt
}

// setStrongCapacity changes the weakening threshold; it takes effect for
// sets that have not weakened yet.
func (d *StrongDedup) setStrongCapacity(strongCapacity int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.weakenAt = strongCapacity
}

func (d *StrongDedup) IsDuplicate(c *chunk.Chunk, row int, _ int) bool {
	d.checkChunk(c)
	hash := c.Hash(row)
	if b := d.table.Load().bucket(hash); b != nil && b.contains(hash, c, row) {
		return true
	}
	if util.FaultsEnabled(util.FaultScopeDedup) {
		_ = util.InjectFault(util.FaultScopeDedup, FaultStrongBeforeLock,
			strconv.FormatInt(int64(hash), 10))
	}

	lockCounted(d.mu, d.flavor)
	defer d.mu.Unlock()
	t := d.table.Load()
	if b := t.bucket(hash); b != nil && b.contains(hash, c, row) {
		return true
	}
	if d.tableSize >= SaturatedRows {
		if !d.saturated.Swap(true) {
			util.Warn("strong dedup saturated, rows are no longer recorded",
				zap.Int("rows", d.tableSize))
			SaturatedTotal.Inc()
		}
		return false
	}
	// a weakened table no longer grows, rows past weakenAt overwrite weak
	// slots instead
	if !d.weakened.Load() && d.tableSize >= d.nextRehash {
		d.rehash()
		t = d.table.Load()
	}
	if !d.weakened.Load() && d.tableSize >= d.weakenAt {
		d.weakenAll(t)
	}
	r := c.Row(row)
	d.insertLocked(t, hash, &r)
	return false
}

func (d *StrongDedup) insertLocked(t *strongTable, hash int32, r *chunk.Row) {
	slot := &t.buckets[t.index(hash)]
	b := slot.Load()
	if b == nil {
		capacity := initialBucketSlots
		if d.weakened.Load() {
			capacity = DefaultWeakBucketSlots
		}
		b = newStrongBucket(d.Cols(), capacity, d.weakened.Load())
		slot.Store(b)
		d.slots.Add(int64(capacity))
	}
	nb, filled := b.add(hash, r)
	if nb != b {
		d.slots.Add(int64(nb.capacity() - b.capacity()))
		slot.Store(nb)
	}
	if filled {
		d.tableSize++
		d.stored.Store(int64(d.tableSize))
	}
}

func (d *StrongDedup) Contains(c *chunk.Chunk, row int) bool {
	d.checkChunk(c)
	hash := c.Hash(row)
	b := d.table.Load().bucket(hash)
	return b != nil && b.contains(hash, c, row)
}

// rehash redistributes every row into a bucket array sized for tableSize.
// Readers still holding the old array may miss rows until they take the
// lock, which only produces false negatives on the fast path.
func (d *StrongDedup) rehash() {
	old := d.table.Load()
	oldCount := len(old.buckets)
	if oldCount >= maxBuckets {
		d.nextRehash = math.MaxInt
		return
	}
	count := int(util.NextPowerOfTwo(uint64(d.tableSize/targetLoad + 1)))
	count = min(max(count, oldCount*2), maxBuckets)

	t := newStrongTable(count)
	slots := int64(0)
	for i := range old.buckets {
		b := old.buckets[i].Load()
		if b == nil {
			continue
		}
		size := int(b.size.Load())
		for j := 0; j < size; j++ {
			hash := b.hashAt(j)
			slot := &t.buckets[t.index(hash)]
			nb := slot.Load()
			if nb == nil {
				nb = newStrongBucket(d.Cols(), initialBucketSlots, false)
				slots += initialBucketSlots
			}
			grownB, _ := nb.add(hash, b.rows.Load(j))
			slots += int64(grownB.capacity() - nb.capacity())
			slot.Store(grownB)
		}
	}
	d.table.Store(t)
	d.slots.Store(slots)
	d.nextRehash = rehashThreshold(count)
	RehashTotal.Inc()
	util.Debug("strong dedup rehashed",
		zap.Int("rows", d.tableSize),
		zap.Int("from", oldCount),
		zap.Int("to", count))
}

func (d *StrongDedup) weakenAll(t *strongTable) {
	for i := range t.buckets {
		b := t.buckets[i].Load()
		if b == nil {
			continue
		}
		nb := b.weaken()
		if nb != b {
			d.slots.Add(int64(nb.capacity() - b.capacity()))
			t.buckets[i].Store(nb)
		}
	}
	d.weakened.Store(true)
	WeakenTotal.Inc()
	util.Debug("strong dedup weakened",
		zap.Int("rows", d.tableSize),
		zap.Int("weakenAt", d.weakenAt))
}

// Clear keeps the bucket array and the allocated buckets so a reused set
// does not pay for growth and rehashing again.
func (d *StrongDedup) Clear(cols int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cols.Store(int32(cols))
	t := d.table.Load()
	for i := range t.buckets {
		if b := t.buckets[i].Load(); b != nil {
			b.clear(cols)
		}
	}
	d.resetCounters()
}

func (d *StrongDedup) Capacity() int {
	return int(d.slots.Load())
}

func (d *StrongDedup) IsWeak() bool {
	return d.weakened.Load()
}

func (d *StrongDedup) Len() int {
	return int(d.stored.Load())
}

func (d *StrongDedup) ForEach(fn func(r chunk.Row) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.table.Load()
	stop := false
	for i := range t.buckets {
		b := t.buckets[i].Load()
		if b == nil {
			continue
		}
		b.rows.ForEach(func(_ int, r chunk.Row) bool {
			stop = !fn(r)
			return !stop
		})
		if stop {
			return
		}
	}
}

func (d *StrongDedup) Stats() Stats {
	return Stats{
		Flavor:   d.flavor,
		Cols:     d.Cols(),
		Capacity: d.Capacity(),
		Rows:     d.Len(),
		Buckets:  len(d.table.Load().buckets),
		Weak:     d.IsWeak(),
	}
}

var _ Dedup = (*StrongDedup)(nil)
