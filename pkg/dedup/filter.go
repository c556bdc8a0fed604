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
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/daviszhen/rowdedup/pkg/chunk"
	"github.com/daviszhen/rowdedup/pkg/util"
)

type Decision int8

const (
	Keep Decision = iota
	Drop
)

func (d Decision) String() string {
	if d == Drop {
		return "drop"
	}
	return "keep"
}

// Binding holds the parameter values of one execution of a rebound
// operator, keyed by variable name.
type Binding map[string]string

// RowFilter decides per row whether it continues down the pipeline.
type RowFilter interface {
	Drop(c *chunk.Chunk, row int) Decision
	// FilterChunk returns a new chunk holding the kept rows of c.
	FilterChunk(c *chunk.Chunk) *chunk.Chunk
	// Rebind is called before the owning operator runs with new bindings.
	Rebind(binding Binding)
}

type dedupFilter struct {
	d       Dedup
	source  int
	kept    prometheus.Counter
	dropped prometheus.Counter
}

func newDedupFilter(d Dedup, source int) *dedupFilter {
	flavor := d.Flavor().String()
	return &dedupFilter{
		d:       d,
		source:  source,
		kept:    FilterRows.WithLabelValues(flavor, Keep.String()),
		dropped: FilterRows.WithLabelValues(flavor, Drop.String()),
	}
}

func (f *dedupFilter) Drop(c *chunk.Chunk, row int) Decision {
	if f.d.IsDuplicate(c, row, f.source) {
		f.dropped.Inc()
		return Drop
	}
	f.kept.Inc()
	return Keep
}

// FilterChunk decides every row first so the output chunk is allocated with
// its exact size.
func (f *dedupFilter) FilterChunk(c *chunk.Chunk) *chunk.Chunk {
	pool := f.d.base().bitsets()
	sel := pool.Get()
	defer pool.Recycle(sel)

	out := chunk.NewChunk(c.ColumnCount(), 0)
	for begin := 0; begin < c.Card(); begin += BitsetBits {
		end := min(begin+BitsetBits, c.Card())
		sel.ClearAll()
		kept := 0
		for row := begin; row < end; row++ {
			if f.Drop(c, row) == Keep {
				sel.Set(uint(row - begin))
				kept++
			}
		}
		if kept == 0 {
			continue
		}
		if begin == 0 {
			out = chunk.NewChunk(c.ColumnCount(), kept)
		}
		for i, ok := sel.NextSet(0); ok; i, ok = sel.NextSet(i + 1) {
			out.AppendFrom(c, begin+int(i))
		}
	}
	return out
}

func (f *dedupFilter) Rebind(binding Binding) {
	util.Debug("dedup filter rebind",
		zap.String("flavor", f.d.Flavor().String()),
		zap.Int("source", f.source),
		zap.Int("bindings", len(binding)))
	f.d.Clear(f.d.Cols())
}

var _ RowFilter = (*dedupFilter)(nil)
