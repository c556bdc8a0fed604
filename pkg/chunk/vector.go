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

// Vector is one column of a chunk. Terms are kept in their N-Triples
// encoding; the empty string marks an unbound variable.
type Vector struct {
	Data []string
}

func NewVector(cap int) *Vector {
	return &Vector{Data: make([]string, 0, cap)}
}

func (vec *Vector) Reset() {
	for i := range vec.Data {
		vec.Data[i] = ""
	}
	vec.Data = vec.Data[:0]
}

func (vec *Vector) GetValue(idx int) string {
	return vec.Data[idx]
}

func (vec *Vector) IsUnbound(idx int) bool {
	return vec.Data[idx] == ""
}

func (vec *Vector) Append(term string) {
	vec.Data = append(vec.Data, term)
}
