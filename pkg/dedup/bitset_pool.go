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

	"github.com/bits-and-blooms/bitset"

	"github.com/daviszhen/rowdedup/pkg/util"
)

// BitsetBits is the length of every bitset handed out by a BitsetPool.
const BitsetBits = 1 << 16

var defaultBitsets = NewBitsetPool(util.DefaultBitsetPoolSize)

// BitsetPool recycles large bitsets. Get always returns a zeroed bitset.
type BitsetPool struct {
	mu   sync.Mutex
	free []*bitset.BitSet
	max  int
}

func NewBitsetPool(max int) *BitsetPool {
	return &BitsetPool{max: max}
}

func (p *BitsetPool) Get() *bitset.BitSet {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return bitset.New(BitsetBits)
	}
	bs := p.free[n-1]
	p.free = util.Erase(p.free, n-1)
	p.mu.Unlock()
	return bs.ClearAll()
}

// Recycle returns bs to the pool. Foreign sized bitsets and bitsets beyond
// the pool limit are dropped.
func (p *BitsetPool) Recycle(bs *bitset.BitSet) {
	if bs == nil || bs.Len() != BitsetBits {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.max {
		return
	}
	p.free = append(p.free, bs)
}

func (p *BitsetPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
