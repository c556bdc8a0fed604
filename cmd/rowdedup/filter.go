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

package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/rowdedup/pkg/chunk"
	"github.com/daviszhen/rowdedup/pkg/dedup"
	"github.com/daviszhen/rowdedup/pkg/util"
)

const (
	ModeDistinct = "distinct"
	ModeReduced  = "reduced"
	ModeWindow   = "window"
	ModeCross    = "cross"
)

type filterOptions struct {
	mode     string
	cols     int
	capacity int
	output   string
	dump     string
	describe bool
}

type filterResult struct {
	Read int
	Kept int
}

var filterOpts = filterOptions{}

//filter cmd

var filterInfo = "drop duplicate rows of tab separated files; in cross mode every file is a source"
var filterCmd = &cobra.Command{
	Use:   "filter [flags] file...",
	Short: "drop duplicate rows",
	Long:  filterInfo,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyOverrides(&runCfg); err != nil {
			return err
		}
		return filterFiles(runCfg, filterOpts, args)
	},
}

func initFilterCmd() {
	RootCmd.AddCommand(filterCmd)
	flags := filterCmd.Flags()
	flags.StringVar(&filterOpts.mode, "mode", ModeDistinct, "distinct, reduced, window or cross")
	flags.IntVar(&filterOpts.cols, "cols", 1, "columns per row")
	flags.IntVar(&filterOpts.capacity, "capacity", 0, "rows kept by the dedup set (default: from config for the mode)")
	flags.StringVar(&filterOpts.output, "output", "", "output file (default: stdout)")
	flags.StringVar(&filterOpts.dump, "dump", "", "write the rows remembered by the dedup set to this file")
	flags.BoolVar(&filterOpts.describe, "describe", false, "print the dedup set layout to stderr when done")
}

//describe cmd

var describeOpts = filterOptions{}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "print the layout of the dedup set a mode uses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyOverrides(&runCfg); err != nil {
			return err
		}
		p := dedup.NewPool(runCfg.Dedup)
		d, err := acquire(p, describeOpts.mode, describeOpts.capacity, describeOpts.cols)
		if err != nil {
			return err
		}
		defer d.Release()
		_, err = fmt.Fprint(cmd.OutOrStdout(), dedup.Describe(d))
		return err
	},
}

func initDescribeCmd() {
	RootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVar(&describeOpts.mode, "mode", ModeDistinct, "distinct, reduced, window or cross")
	describeCmd.Flags().IntVar(&describeOpts.cols, "cols", 1, "columns per row")
	describeCmd.Flags().IntVar(&describeOpts.capacity, "capacity", 0, "rows kept by the dedup set")
}

// acquire draws the dedup set of a mode from the pool. capacity <= 0 picks
// the configured tier.
func acquire(p *dedup.Pool, mode string, capacity int, cols int) (dedup.Dedup, error) {
	cfg := p.Config()
	pick := func(def int) int {
		if capacity > 0 {
			return capacity
		}
		return def
	}
	switch mode {
	case ModeDistinct:
		return p.GetDistinct(pick(cfg.DistinctCapacity), cols), nil
	case ModeReduced:
		return p.GetReduced(pick(cfg.ReducedCapacity), cols), nil
	case ModeWindow:
		return p.GetWeak(pick(cfg.WindowCapacity), cols), nil
	case ModeCross:
		return p.GetWeakCrossSource(pick(cfg.CrossSourceCapacity), cols), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func filterFiles(cfg util.Config, opts filterOptions, paths []string) (err error) {
	inputs := make([]io.Reader, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		inputs = append(inputs, f)
	}
	var out io.Writer = os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		out = f
	}
	res, err := runFilter(cfg, opts, inputs, out, os.Stderr)
	if err != nil {
		return err
	}
	util.Info("filter done",
		zap.String("mode", opts.mode),
		zap.Int("read", res.Read),
		zap.Int("kept", res.Kept))
	return nil
}

func runFilter(cfg util.Config, opts filterOptions, inputs []io.Reader, out io.Writer, diag io.Writer) (filterResult, error) {
	if opts.cols <= 0 {
		return filterResult{}, fmt.Errorf("invalid column count %d", opts.cols)
	}
	p := dedup.NewPool(cfg.Dedup)
	d, err := acquire(p, opts.mode, opts.capacity, opts.cols)
	if err != nil {
		return filterResult{}, err
	}
	defer d.Release()

	var res filterResult
	if opts.mode == ModeCross {
		res, err = filterSources(p, d, opts.cols, inputs, out)
	} else {
		res, err = filterStream(d.Filter(), opts.cols, inputs, out)
	}
	if err != nil {
		return res, err
	}
	if opts.dump != "" {
		if err = dumpRows(d, opts.dump); err != nil {
			return res, err
		}
	}
	if opts.describe {
		_, err = fmt.Fprint(diag, dedup.Describe(d))
	}
	return res, err
}

func filterStream(f dedup.RowFilter, cols int, inputs []io.Reader, out io.Writer) (filterResult, error) {
	var res filterResult
	for _, r := range inputs {
		err := chunk.ReadTSV(r, cols, chunk.DefaultVectorSize, func(c *chunk.Chunk) error {
			kept := f.FilterChunk(c)
			res.Read += c.Card()
			res.Kept += kept.Card()
			return kept.SaveToFile(out)
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// filterSources reads every source concurrently. Each source drops its own
// repeats through a window set, then drops rows another source already
// produced through the shared cross-source set.
func filterSources(p *dedup.Pool, d dedup.Dedup, cols int, inputs []io.Reader, out io.Writer) (filterResult, error) {
	if len(inputs) > dedup.MaxSources {
		return filterResult{}, fmt.Errorf("at most %d sources, got %d", dedup.MaxSources, len(inputs))
	}
	var (
		mu  sync.Mutex
		res filterResult
		eg  errgroup.Group
	)
	for i, r := range inputs {
		d.RebindAcquire()
		eg.Go(func() error {
			defer d.RebindRelease()
			window := p.GetWeak(p.Config().WindowCapacity, cols)
			defer window.Release()
			local := window.Filter()
			cross := d.SourcedFilter(i)
			return chunk.ReadTSV(r, cols, chunk.DefaultVectorSize, func(c *chunk.Chunk) error {
				kept := cross.FilterChunk(local.FilterChunk(c))
				mu.Lock()
				defer mu.Unlock()
				res.Read += c.Card()
				res.Kept += kept.Card()
				return kept.SaveToFile(out)
			})
		})
	}
	err := eg.Wait()
	return res, err
}

func dumpRows(d dedup.Dedup, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	c := chunk.NewChunk(d.Cols(), chunk.DefaultVectorSize)
	d.ForEach(func(r chunk.Row) bool {
		c.AppendRow(r)
		if c.IsFull() {
			if err = c.SaveToFile(f); err != nil {
				return false
			}
			c.Reset()
		}
		return true
	})
	if err != nil {
		return err
	}
	return c.SaveToFile(f)
}
