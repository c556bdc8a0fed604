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
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/daviszhen/rowdedup/pkg/util"
)

const (
	DefaultVectorSize = 2048
)

// Row is an owned copy of a chunk row.
type Row []string

func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

func (r Row) Hash() int32 {
	return HashRow(r)
}

// Chunk is a columnar batch of rows.
type Chunk struct {
	Data  []*Vector
	Count int
	_Cap  int
}

func NewChunk(cols int, cap int) *Chunk {
	c := &Chunk{}
	c.Init(cols, cap)
	return c
}

func (c *Chunk) Init(cols int, cap int) {
	c._Cap = cap
	c.Data = nil
	c.Count = 0
	for i := 0; i < cols; i++ {
		c.Data = append(c.Data, NewVector(cap))
	}
}

func (c *Chunk) Reset() {
	for _, vec := range c.Data {
		vec.Reset()
	}
	c.Count = 0
}

func (c *Chunk) Card() int {
	return c.Count
}

func (c *Chunk) IsFull() bool {
	return c.Count >= c._Cap
}

func (c *Chunk) ColumnCount() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

func (c *Chunk) Append(terms ...string) {
	util.AssertFunc(len(terms) == c.ColumnCount())
	for i, term := range terms {
		c.Data[i].Append(term)
	}
	c.Count++
}

func (c *Chunk) AppendRow(row Row) {
	c.Append(row...)
}

// AppendFrom copies row of other into c.
func (c *Chunk) AppendFrom(other *Chunk, row int) {
	util.AssertFunc(other.ColumnCount() == c.ColumnCount())
	for i, vec := range other.Data {
		c.Data[i].Append(vec.Data[row])
	}
	c.Count++
}

func (c *Chunk) Row(row int) Row {
	ret := make(Row, c.ColumnCount())
	for i, vec := range c.Data {
		ret[i] = vec.Data[row]
	}
	return ret
}

func (c *Chunk) Hash(row int) int32 {
	if c.ColumnCount() == 0 {
		return 0
	}
	h := HashTerm(c.Data[0].Data[row])
	for i := 1; i < c.ColumnCount(); i++ {
		h = CombineHashScalar(h, HashTerm(c.Data[i].Data[row]))
	}
	return FoldHash(h)
}

// Equals compares row of c with otherRow of other column by column.
func (c *Chunk) Equals(row int, other *Chunk, otherRow int) bool {
	if c.ColumnCount() != other.ColumnCount() {
		return false
	}
	for i, vec := range c.Data {
		if vec.Data[row] != other.Data[i].Data[otherRow] {
			return false
		}
	}
	return true
}

// EqualsRow compares row of c with a stored row.
func (c *Chunk) EqualsRow(row int, stored Row) bool {
	if c.ColumnCount() != len(stored) {
		return false
	}
	for i, vec := range c.Data {
		if vec.Data[row] != stored[i] {
			return false
		}
	}
	return true
}

// SaveToFile writes the chunk as tab separated rows.
func (c *Chunk) SaveToFile(w io.Writer) (err error) {
	rowCnt := c.Card()
	colCnt := c.ColumnCount()
	for i := 0; i < rowCnt; i++ {
		for j := 0; j < colCnt; j++ {
			_, err = io.WriteString(w, c.Data[j].GetValue(i))
			if err != nil {
				return err
			}
			if j == colCnt-1 {
				continue
			}
			_, err = io.WriteString(w, "\t")
			if err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, "\n")
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadTSV reads tab separated rows of exactly cols columns and hands them to
// fn in chunks of at most cap rows. The chunk passed to fn is reused.
func ReadTSV(r io.Reader, cols int, cap int, fn func(*Chunk) error) error {
	if cap <= 0 {
		cap = DefaultVectorSize
	}
	c := NewChunk(cols, cap)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		terms := strings.Split(text, "\t")
		if len(terms) != cols {
			return fmt.Errorf("line %d: expected %d columns, got %d", line, cols, len(terms))
		}
		c.Append(terms...)
		if c.IsFull() {
			if err := fn(c); err != nil {
				return err
			}
			c.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	if c.Card() > 0 {
		return fn(c)
	}
	return nil
}
