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

package util

import (
	"fmt"
	"os"
	"sync/atomic"
)

var debugChecks atomic.Bool

// EnableDebugChecks toggles the programmer error assertions that are
// skipped on the hot path in release runs.
func EnableDebugChecks(on bool) {
	debugChecks.Store(on)
}

func DebugChecks() bool {
	return debugChecks.Load()
}

func AssertFunc(b bool) {
	if !b {
		panic("assertion failed")
	}
}

// DebugAssert panics with an illegal argument message when debug checks are
// enabled and b does not hold.
func DebugAssert(b bool, format string, args ...any) {
	if !b && debugChecks.Load() {
		panic(fmt.Sprintf("illegal argument: "+format, args...))
	}
}

func FileIsValid(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}

func NextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return v
}

func IsPowerOfTwo(v uint64) bool {
	return (v & (v - 1)) == 0
}

// PrevPowerOfTwo is the largest power of two not greater than v (v > 0).
func PrevPowerOfTwo(v uint64) uint64 {
	AssertFunc(v > 0)
	p := NextPowerOfTwo(v)
	if p != v {
		p >>= 1
	}
	return p
}
