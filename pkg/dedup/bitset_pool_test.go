package dedup

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
)

func Test_bitsetPool(t *testing.T) {
	p := NewBitsetPool(1)
	bs := p.Get()
	assert.Equal(t, uint(BitsetBits), bs.Len())
	assert.Equal(t, uint(0), bs.Count())
	bs.Set(7).Set(BitsetBits - 1)

	p.Recycle(bs)
	assert.Equal(t, 1, p.Len())
	// full pool drops the extra bitset
	p.Recycle(bitset.New(BitsetBits))
	assert.Equal(t, 1, p.Len())

	again := p.Get()
	assert.Same(t, bs, again)
	assert.Equal(t, uint(0), again.Count())
	assert.Equal(t, 0, p.Len())

	p.Recycle(bitset.New(128))
	p.Recycle(nil)
	assert.Equal(t, 0, p.Len())
}
