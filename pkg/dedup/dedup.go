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
	"sync"
	"sync/atomic"

	"github.com/daviszhen/rowdedup/pkg/chunk"
	"github.com/daviszhen/rowdedup/pkg/util"
)

type Flavor int

const (
	FlavorWeakCross Flavor = iota
	FlavorWeak
	FlavorReduced
	FlavorDistinct
	flavorCount
)

func (f Flavor) String() string {
	switch f {
	case FlavorWeakCross:
		return "weak-cross"
	case FlavorWeak:
		return "weak"
	case FlavorReduced:
		return "reduced"
	case FlavorDistinct:
		return "distinct"
	default:
		return "unknown"
	}
}

// Dedup is a set of rows fed by the row filtering pipeline. No variant ever
// reports a row as duplicate unless an equal row was recorded before; weak
// variants may forget rows and thus fail to report a repeat.
type Dedup interface {
	// IsDuplicate tests whether an equal row was already recorded and
	// records row otherwise. source only matters for cross-source sets.
	IsDuplicate(c *chunk.Chunk, row int, source int) bool
	// Contains tests membership without mutating the set.
	Contains(c *chunk.Chunk, row int) bool
	// Add records row and reports whether it was new.
	Add(c *chunk.Chunk, row int) bool
	// Clear drops every row and rebinds the set to rows of cols columns.
	// Lookups racing with Clear may still see rows stored before it.
	Clear(cols int)
	Capacity() int
	IsWeak() bool
	Cols() int
	Flavor() Flavor
	Stats() Stats
	// ForEach visits stored rows until fn returns false.
	ForEach(fn func(r chunk.Row) bool)

	Release()
	RebindAcquire()
	RebindRelease()

	Filter() RowFilter
	SourcedFilter(source int) RowFilter

	base() *dedupBase
}

type Stats struct {
	Flavor   Flavor
	Cols     int
	Capacity int
	Rows     int
	Buckets  int
	Weak     bool
}

type releaseState uint8

const (
	stateActive releaseState = iota
	statePendingRelease
	stateReleased
)

func (s releaseState) String() string {
	switch s {
	case stateActive:
		return "active"
	case statePendingRelease:
		return "pending-release"
	case stateReleased:
		return "released"
	}
	return "unknown"
}

// releaser defers recycling while rebind users still reference the set.
// Recycling fires exactly once per activation: either from Release with no
// users, or from the RebindRelease that drops the count to zero after a
// Release was requested.
type releaser struct {
	mu    sync.Mutex
	state releaseState
	users uint32
}

func (r *releaser) acquire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users != math.MaxUint32 {
		r.users++
	}
}

func (r *releaser) releaseUser() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users > 0 {
		r.users--
	}
	if r.users == 0 && r.state == statePendingRelease {
		r.state = stateReleased
		return true
	}
	return false
}

func (r *releaser) release() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateActive {
		return false
	}
	if r.users > 0 {
		r.state = statePendingRelease
		return false
	}
	r.state = stateReleased
	return true
}

func (r *releaser) revive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateActive
	r.users = 0
}

func (r *releaser) current() (releaseState, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.users
}

// dedupBase holds what every variant shares: arity, flavor, the release
// state machine and the pool the set returns to.
type dedupBase struct {
	// written by Clear, read by lock-free lookups
	cols   atomic.Int32
	flavor Flavor
	rel    releaser
	home   *Pool
	self   Dedup
}

func (b *dedupBase) init(self Dedup, flavor Flavor, cols int) {
	b.self = self
	b.flavor = flavor
	b.cols.Store(int32(cols))
}

func (b *dedupBase) base() *dedupBase {
	return b
}

func (b *dedupBase) Cols() int {
	return int(b.cols.Load())
}

func (b *dedupBase) Flavor() Flavor {
	return b.flavor
}

func (b *dedupBase) Add(c *chunk.Chunk, row int) bool {
	return !b.self.IsDuplicate(c, row, 0)
}

// lockCounted takes mu, counting the acquisitions that had to wait.
func lockCounted(mu *util.ReentrantLock, flavor Flavor) {
	if mu.TryLock() {
		return
	}
	LockWaits.WithLabelValues(flavor.String()).Inc()
	mu.Lock()
}

func (b *dedupBase) checkChunk(c *chunk.Chunk) {
	util.DebugAssert(c.ColumnCount() == b.Cols(),
		"%s dedup bound to %d columns got a row of %d columns",
		b.flavor, b.Cols(), c.ColumnCount())
}

// Release hands the set back to its pool, or marks it for release once the
// last rebind user is gone.
func (b *dedupBase) Release() {
	if b.rel.release() {
		b.recycle()
	}
}

func (b *dedupBase) RebindAcquire() {
	b.rel.acquire()
}

func (b *dedupBase) RebindRelease() {
	if b.rel.releaseUser() {
		b.recycle()
	}
}

func (b *dedupBase) recycle() {
	if b.home != nil {
		b.home.offer(b.self)
	}
}

func (b *dedupBase) bitsets() *BitsetPool {
	if b.home != nil {
		return b.home.bitsets
	}
	return defaultBitsets
}

func (b *dedupBase) Filter() RowFilter {
	return newDedupFilter(b.self, 0)
}

func (b *dedupBase) SourcedFilter(source int) RowFilter {
	return newDedupFilter(b.self, source)
}
