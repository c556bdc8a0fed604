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
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilterRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rowdedup_filter_rows_total",
		Help: "Rows seen by dedup filters, by dedup flavor and decision",
	}, []string{"flavor", "decision"})
	WeakenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rowdedup_strong_weaken_total",
		Help: "Strong dedup tables that switched to weak mode",
	})
	RehashTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rowdedup_strong_rehash_total",
		Help: "Bucket array rehashes of strong dedup tables",
	})
	SaturatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rowdedup_strong_saturated_total",
		Help: "Strong dedup tables that stopped recording rows",
	})
	CrossSourceRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rowdedup_cross_source_races_total",
		Help: "Cross-source lookups whose match was evicted before the lock was taken",
	})
	LockWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rowdedup_lock_waits_total",
		Help: "Inserts that found the dedup lock held by another goroutine",
	}, []string{"flavor"})
	PoolGets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rowdedup_pool_gets_total",
		Help: "Dedup pool requests, by flavor and whether a pooled instance was reused",
	}, []string{"flavor", "result"})
	PoolDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rowdedup_pool_dropped_total",
		Help: "Dedup instances dropped because their pool was full",
	}, []string{"flavor"})
)
