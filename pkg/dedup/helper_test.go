package dedup

import (
	"fmt"

	"github.com/daviszhen/rowdedup/pkg/chunk"
)

func iri(prefix string, i int) string {
	return fmt.Sprintf("<http://example.org/%s/%d>", prefix, i)
}

// termChunk builds a one column chunk of n distinct IRIs.
func termChunk(prefix string, n int) *chunk.Chunk {
	c := chunk.NewChunk(1, n)
	for i := 0; i < n; i++ {
		c.Append(iri(prefix, i))
	}
	return c
}

func rowsChunk(rows ...[]string) *chunk.Chunk {
	c := chunk.NewChunk(len(rows[0]), len(rows))
	for _, row := range rows {
		c.Append(row...)
	}
	return c
}

// collidingChunk builds n distinct one column rows whose hash satisfies
// accept.
func collidingChunk(prefix string, n int, accept func(hash int32) bool) *chunk.Chunk {
	c := chunk.NewChunk(1, n)
	for i := 0; c.Card() < n; i++ {
		term := iri(prefix, i)
		if accept(chunk.HashRow([]string{term})) {
			c.Append(term)
		}
	}
	return c
}
