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
	"github.com/cespare/xxhash/v2"

	"github.com/daviszhen/rowdedup/pkg/util"
)

const (
	UNBOUND_HASH = 0xbf58476d1ce4e5b9
)

func CombineHashScalar(a, b uint64) uint64 {
	return util.ChecksumU64(a) ^ b
}

func HashTerm(term string) uint64 {
	if term == "" {
		return UNBOUND_HASH
	}
	return xxhash.Sum64String(term)
}

// HashRow hashes every column of a row and folds the result to 32 bits.
func HashRow(terms []string) int32 {
	if len(terms) == 0 {
		return 0
	}
	h := HashTerm(terms[0])
	for _, term := range terms[1:] {
		h = CombineHashScalar(h, HashTerm(term))
	}
	return FoldHash(h)
}

func FoldHash(h uint64) int32 {
	return int32(uint32(h) ^ uint32(h>>32))
}
