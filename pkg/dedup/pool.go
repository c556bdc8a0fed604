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
	"sync"

	"go.uber.org/zap"

	"github.com/daviszhen/rowdedup/pkg/util"
)

// freeList is a bounded stack of idle sets of one flavor.
type freeList struct {
	mu    sync.Mutex
	items []Dedup
	max   int
}

// take removes the idle set with the smallest size hint not below capacity.
func (fl *freeList) take(capacity int) Dedup {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	best := -1
	bestHint := 0
	for i, d := range fl.items {
		hint := sizeHint(d)
		if hint < capacity {
			continue
		}
		if best < 0 || hint < bestHint {
			best, bestHint = i, hint
		}
	}
	if best < 0 {
		return nil
	}
	d := fl.items[best]
	fl.items = util.Erase(fl.items, best)
	return d
}

func (fl *freeList) put(d Dedup) bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	// a set listed twice would be handed to two owners
	if util.FindIf(fl.items, func(item Dedup) bool { return item == d }) >= 0 {
		return true
	}
	if len(fl.items) >= fl.max {
		return false
	}
	fl.items = append(fl.items, d)
	return true
}

func (fl *freeList) len() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.items)
}

// sizeHint is the capacity a pooled set can serve: the strong threshold for
// strong sets, the slot count for weak ones.
func sizeHint(d Dedup) int {
	if s, ok := d.(*StrongDedup); ok {
		return s.StrongCapacity()
	}
	return d.Capacity()
}

// Pool keeps idle dedup sets per flavor so repeated executions reuse their
// allocations. Each flavor holds at most LogicalCpus*PoolPerCpu sets.
type Pool struct {
	cfg     util.DedupConfig
	lists   [flavorCount]freeList
	bitsets *BitsetPool
}

func NewPool(cfg util.DedupConfig) *Pool {
	cfg.Normalize()
	p := &Pool{
		cfg:     cfg,
		bitsets: NewBitsetPool(cfg.BitsetPoolSize),
	}
	for i := range p.lists {
		p.lists[i].max = cfg.LogicalCpus * cfg.PoolPerCpu
	}
	util.Debug("dedup pool created",
		zap.Int("logicalCpus", cfg.LogicalCpus),
		zap.Int("perFlavor", p.lists[0].max))
	return p
}

func (p *Pool) Config() util.DedupConfig {
	return p.cfg
}

func (p *Pool) Bitsets() *BitsetPool {
	return p.bitsets
}

// Idle is the number of pooled sets of flavor f.
func (p *Pool) Idle(f Flavor) int {
	return p.lists[f].len()
}

func (p *Pool) take(f Flavor, capacity int) Dedup {
	d := p.lists[f].take(capacity)
	result := "miss"
	if d != nil {
		result = "hit"
	}
	PoolGets.WithLabelValues(f.String(), result).Inc()
	return d
}

func (p *Pool) activate(d Dedup, cols int) {
	b := d.base()
	b.home = p
	b.rel.revive()
	d.Clear(cols)
}

func (p *Pool) GetWeakCrossSource(capacity int, cols int) *WeakCrossSourceDedup {
	capacity = int(util.NextPowerOfTwo(uint64(max(capacity, 1))))
	var d *WeakCrossSourceDedup
	if pooled := p.take(FlavorWeakCross, capacity); pooled != nil {
		d = pooled.(*WeakCrossSourceDedup)
	} else {
		d = NewWeakCrossSource(capacity, cols)
	}
	p.activate(d, cols)
	return d
}

func (p *Pool) GetWeak(capacity int, cols int) *WeakDedup {
	capacity = weakCapacity(capacity)
	var d *WeakDedup
	if pooled := p.take(FlavorWeak, capacity); pooled != nil {
		d = pooled.(*WeakDedup)
	} else {
		d = NewWeak(capacity, cols)
	}
	p.activate(d, cols)
	return d
}

// GetReduced returns a set exact for strongCapacity rows, for REDUCED.
func (p *Pool) GetReduced(strongCapacity int, cols int) *StrongDedup {
	return p.getStrong(FlavorReduced, strongCapacity, cols)
}

// GetDistinct returns a set exact for strongCapacity rows, for DISTINCT.
func (p *Pool) GetDistinct(strongCapacity int, cols int) *StrongDedup {
	return p.getStrong(FlavorDistinct, strongCapacity, cols)
}

func (p *Pool) getStrong(f Flavor, strongCapacity int, cols int) *StrongDedup {
	strongCapacity = max(strongCapacity, 0)
	var d *StrongDedup
	if pooled := p.take(f, strongCapacity); pooled != nil {
		d = pooled.(*StrongDedup)
		d.setStrongCapacity(strongCapacity)
	} else {
		d = newStrongDedup(f, strongCapacity, strongCapacity, cols)
	}
	p.activate(d, cols)
	return d
}

func (p *Pool) OfferWeakCrossSource(d *WeakCrossSourceDedup) {
	p.giveBack(d)
}

func (p *Pool) OfferWeak(d *WeakDedup) {
	p.giveBack(d)
}

func (p *Pool) OfferReduced(d *StrongDedup) {
	p.giveBack(d)
}

func (p *Pool) OfferDistinct(d *StrongDedup) {
	p.giveBack(d)
}

// giveBack ends the activation of d the way Release does. Returning a set
// twice, or after Release, has no effect; a set still held by rebind users
// goes back when the last one leaves.
func (p *Pool) giveBack(d Dedup) {
	if d == nil {
		return
	}
	b := d.base()
	if b.home == nil {
		b.home = p
	}
	if b.rel.release() {
		p.offer(d)
	}
}

// offer keeps d for reuse, or drops it when the flavor's list is full.
func (p *Pool) offer(d Dedup) {
	if d == nil {
		return
	}
	f := d.Flavor()
	if !p.lists[f].put(d) {
		PoolDropped.WithLabelValues(f.String()).Inc()
	}
}
