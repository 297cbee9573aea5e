/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package options

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	cliflag "k8s.io/component-base/cli/flag"

	memprobeconfig "github.com/kubewharf/katalyst-memprobe/pkg/config/memprobe"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
)

// MatrixOptions holds the flags for the benchmark matrix dimensions
type MatrixOptions struct {
	VectorWidthHint int

	MemNodes    []int
	CPUNodes    []int
	LoadCPUNode int
	HugePages   string

	Kinds        []string
	PatternKinds []string
	RWModes      []string
	ChunkSizes   []string
	Strides      []int
	Threads      []int
	Delays       []int
	StreamOps    []string
	ProbeChunk   int

	RegionSize string
	Duration   time.Duration
	Passes     uint64
	Trials     int
	Seed       string
	BaseIndex  int
}

// NewMatrixOptions creates a new Options with a default config.
func NewMatrixOptions() *MatrixOptions {
	c := memprobeconfig.NewMatrixConfiguration()
	o := &MatrixOptions{
		LoadCPUNode: c.LoadCPUNode,
		HugePages:   string(c.HugePages),
		Strides:     c.Strides,
		Threads:     c.Threads,
		RegionSize:  humanize.IBytes(uint64(c.RegionSize)),
		Duration:    c.Duration,
		Trials:      c.Trials,
		BaseIndex:   c.BaseIndex,
	}
	for _, k := range c.Kinds {
		o.Kinds = append(o.Kinds, string(k))
	}
	for _, p := range c.PatternKinds {
		o.PatternKinds = append(o.PatternKinds, string(p))
	}
	for _, m := range c.RWModes {
		o.RWModes = append(o.RWModes, string(m))
	}
	for _, op := range c.StreamOps {
		o.StreamOps = append(o.StreamOps, string(op))
	}
	return o
}

func (o *MatrixOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("matrix")

	fs.IntVar(&o.VectorWidthHint, "vector-width", o.VectorWidthHint,
		"vector width in bits used to pick the default chunk sizes, 0 to detect with cpuid")
	fs.IntSliceVar(&o.MemNodes, "mem-nodes", o.MemNodes, "NUMA nodes to allocate memory on, empty for all")
	fs.IntSliceVar(&o.CPUNodes, "cpu-nodes", o.CPUNodes, "NUMA nodes to run workers on, empty for all")
	fs.IntVar(&o.LoadCPUNode, "load-cpu-node", o.LoadCPUNode,
		"NUMA node of the load workers of loaded latency cells, -1 for the node of the latency worker")
	fs.StringVar(&o.HugePages, "huge-pages", o.HugePages, "huge page policy, one of off, preferred, required")

	fs.StringSliceVar(&o.Kinds, "benchmarks", o.Kinds,
		"benchmarks to run: latency, throughput, loaded-latency, delay-injected-latency, stream")
	fs.StringSliceVar(&o.PatternKinds, "patterns", o.PatternKinds, "access patterns: sequential, random")
	fs.StringSliceVar(&o.RWModes, "rw-modes", o.RWModes, "bandwidth access modes: read, write, copy")
	fs.StringSliceVar(&o.ChunkSizes, "chunk-sizes", o.ChunkSizes,
		"access sizes such as 4B, 8B, 64B; empty derives them from the vector width")
	fs.IntSliceVar(&o.Strides, "strides", o.Strides, "sequential strides in chunks: 1, -1, 2, -2, 4, -4, 8, -8, 16, -16")
	fs.IntSliceVar(&o.Threads, "threads", o.Threads,
		"worker counts per cell, loaded latency cells run one latency worker and threads-1 load workers")
	fs.IntSliceVar(&o.Delays, "delays", o.Delays, "idle loop lengths of the delay injected benchmark, empty for 0 to 1024")
	fs.StringSliceVar(&o.StreamOps, "stream-ops", o.StreamOps, "stream kernels: copy, scale, add, triad")
	fs.IntVar(&o.ProbeChunk, "probe-chunk", o.ProbeChunk,
		"latency chain spacing in bytes under load, 0 for the cache line")

	fs.StringVar(&o.RegionSize, "region-size", o.RegionSize, "working set per worker, e.g. 64MiB")
	fs.DurationVar(&o.Duration, "duration", o.Duration, "measured time per trial")
	fs.Uint64Var(&o.Passes, "passes", o.Passes, "measured passes per trial, overrides duration when set")
	fs.IntVar(&o.Trials, "trials", o.Trials, "trials per cell")
	fs.StringVar(&o.Seed, "seed", o.Seed, "seed of the random access patterns, empty to vary every run")
	fs.IntVar(&o.BaseIndex, "base-index", o.BaseIndex, "number of the first test")
}

func (o *MatrixOptions) ApplyTo(c *memprobeconfig.MatrixConfiguration) error {
	c.VectorWidthHint = o.VectorWidthHint
	c.MemNodes = o.MemNodes
	c.CPUNodes = o.CPUNodes
	c.LoadCPUNode = o.LoadCPUNode
	if c.LoadCPUNode < 0 {
		c.LoadCPUNode = region.NoNode
	}

	var err error
	if c.HugePages, err = region.ParseHugePagePolicy(o.HugePages); err != nil {
		return err
	}

	c.Kinds = nil
	for _, s := range o.Kinds {
		k, err := benchmark.ParseKind(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		c.Kinds = append(c.Kinds, k)
	}
	c.PatternKinds = nil
	for _, s := range o.PatternKinds {
		p, err := pattern.ParseKind(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		c.PatternKinds = append(c.PatternKinds, p)
	}
	c.RWModes = nil
	for _, s := range o.RWModes {
		m, err := pattern.ParseRWMode(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		c.RWModes = append(c.RWModes, m)
	}
	c.ChunkSizes = nil
	for _, s := range o.ChunkSizes {
		size, err := parseBytes(s)
		if err != nil {
			return err
		}
		c.ChunkSizes = append(c.ChunkSizes, size)
	}
	c.StreamOps = nil
	for _, s := range o.StreamOps {
		op, err := kernel.ParseStreamOp(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		c.StreamOps = append(c.StreamOps, op)
	}
	c.Strides = o.Strides
	c.Threads = o.Threads
	c.Delays = o.Delays
	c.ProbeChunk = o.ProbeChunk

	if c.RegionSize, err = parseBytes(o.RegionSize); err != nil {
		return err
	}
	c.Duration = o.Duration
	c.Passes = o.Passes
	c.Trials = o.Trials
	c.BaseIndex = o.BaseIndex

	c.Seed = pattern.Seed{}
	if o.Seed != "" {
		v, err := strconv.ParseInt(o.Seed, 0, 64)
		if err != nil {
			return errors.Wrapf(probeerrors.ErrInvalidConfig, "seed %q: %v", o.Seed, err)
		}
		c.Seed = pattern.FixedSeed(v)
	}
	return nil
}

// parseBytes accepts plain byte counts as well as humanized sizes such as 64MiB
func parseBytes(s string) (int, error) {
	v, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(probeerrors.ErrInvalidConfig, "size %q: %v", s, err)
	}
	if v == 0 || v > uint64(maxInt) {
		return 0, errors.Wrapf(probeerrors.ErrInvalidConfig, "size %q out of range", s)
	}
	return int(v), nil
}

const maxInt = int(^uint(0) >> 1)
