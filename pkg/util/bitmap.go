package util

import (
	"sync/atomic"
)

const wordBits = 32

// AtomicBitmap is a fixed size bit vector whose words are read and written
// with atomic operations. Concurrent Set calls on the same word never lose
// bits; Reset is not safe against concurrent Set.
type AtomicBitmap struct {
	words []uint32
	mask  uint32
}

// NewAtomicBitmap allocates words*32 bits. words must be a power of two.
func NewAtomicBitmap(words int) *AtomicBitmap {
	AssertFunc(words > 0 && IsPowerOfTwo(uint64(words)))
	return &AtomicBitmap{
		words: make([]uint32, words),
		mask:  uint32(words*wordBits - 1),
	}
}

func GetWordIndex(bit uint32) (uint32, uint32) {
	return bit / wordBits, bit % wordBits
}

func WordIsSet(w uint32, pos uint32) bool {
	return w&(1<<pos) != 0
}

// Mask is the bit count minus one, suitable for hash & Mask().
func (bm *AtomicBitmap) Mask() uint32 {
	return bm.mask
}

func (bm *AtomicBitmap) Len() int {
	return len(bm.words) * wordBits
}

func (bm *AtomicBitmap) Words() int {
	return len(bm.words)
}

func (bm *AtomicBitmap) Test(bit uint32) bool {
	wIdx, pos := GetWordIndex(bit & bm.mask)
	return WordIsSet(atomic.LoadUint32(&bm.words[wIdx]), pos)
}

func (bm *AtomicBitmap) Set(bit uint32) {
	wIdx, pos := GetWordIndex(bit & bm.mask)
	atomic.OrUint32(&bm.words[wIdx], 1<<pos)
}

// TestAndSet sets the bit and reports whether it was already set.
func (bm *AtomicBitmap) TestAndSet(bit uint32) bool {
	wIdx, pos := GetWordIndex(bit & bm.mask)
	ptr := &bm.words[wIdx]
	if WordIsSet(atomic.LoadUint32(ptr), pos) {
		return true
	}
	old := atomic.OrUint32(ptr, 1<<pos)
	return WordIsSet(old, pos)
}

func (bm *AtomicBitmap) Reset() {
	for i := range bm.words {
		atomic.StoreUint32(&bm.words[i], 0)
	}
}

func (bm *AtomicBitmap) Count() int {
	cnt := 0
	for i := range bm.words {
		w := atomic.LoadUint32(&bm.words[i])
		for ; w != 0; w &= w - 1 {
			cnt++
		}
	}
	return cnt
}
