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
	"runtime"

	"github.com/BurntSushi/toml"
)

// DedupConfig carries the capacity tiers handed to the dedup pool.
// Capacities are expressed in rows.
type DedupConfig struct {
	DistinctCapacity    int `toml:"distinctCapacity"`
	ReducedCapacity     int `toml:"reducedCapacity"`
	WindowCapacity      int `toml:"windowCapacity"`
	CrossSourceCapacity int `toml:"crossSourceCapacity"`
	LogicalCpus         int `toml:"logicalCpus"`
	PoolPerCpu          int `toml:"poolPerCpu"`
	BitsetPoolSize      int `toml:"bitsetPoolSize"`
}

type DebugOptions struct {
	Checks   bool   `toml:"checks"`
	LogLevel string `toml:"logLevel"`
}

type Config struct {
	Dedup DedupConfig  `toml:"dedup"`
	Debug DebugOptions `toml:"debug"`
}

const (
	DefaultDistinctCapacity    = 1 << 20
	DefaultReducedCapacity     = 1 << 16
	DefaultWindowCapacity      = 1 << 10
	DefaultCrossSourceCapacity = 1 << 12
	DefaultPoolPerCpu          = 2
	DefaultBitsetPoolSize      = 64
)

func DefaultConfig() Config {
	return Config{
		Dedup: DedupConfig{
			DistinctCapacity:    DefaultDistinctCapacity,
			ReducedCapacity:     DefaultReducedCapacity,
			WindowCapacity:      DefaultWindowCapacity,
			CrossSourceCapacity: DefaultCrossSourceCapacity,
			LogicalCpus:         runtime.NumCPU(),
			PoolPerCpu:          DefaultPoolPerCpu,
			BitsetPoolSize:      DefaultBitsetPoolSize,
		},
		Debug: DebugOptions{
			LogLevel: "info",
		},
	}
}

// Normalize replaces non-positive values with their defaults.
func (cfg *DedupConfig) Normalize() {
	def := DefaultConfig().Dedup
	if cfg.DistinctCapacity <= 0 {
		cfg.DistinctCapacity = def.DistinctCapacity
	}
	if cfg.ReducedCapacity <= 0 {
		cfg.ReducedCapacity = def.ReducedCapacity
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = def.WindowCapacity
	}
	if cfg.CrossSourceCapacity <= 0 {
		cfg.CrossSourceCapacity = def.CrossSourceCapacity
	}
	if cfg.LogicalCpus <= 0 {
		cfg.LogicalCpus = def.LogicalCpus
	}
	if cfg.PoolPerCpu <= 0 {
		cfg.PoolPerCpu = def.PoolPerCpu
	}
	if cfg.BitsetPoolSize <= 0 {
		cfg.BitsetPoolSize = def.BitsetPoolSize
	}
}

// LoadConfig decodes a toml file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if !FileIsValid(path) {
		return cfg, fmt.Errorf("config file %s does not exist", path)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Dedup.Normalize()
	return cfg, nil
}
