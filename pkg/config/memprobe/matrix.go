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

package memprobe

import (
	"time"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
)

// MatrixConfiguration holds the dimensions whose cross product forms the benchmark matrix
type MatrixConfiguration struct {
	// VectorWidthHint overrides the detected vector width in bits, 0 to detect
	VectorWidthHint int

	// MemNodes and CPUNodes empty means every NUMA node of the machine
	MemNodes []int
	CPUNodes []int
	// LoadCPUNode places load workers on another node than the latency worker;
	// region.NoNode keeps them on the cpu node of the cell
	LoadCPUNode int
	HugePages   region.HugePagePolicy

	Kinds        []benchmark.Kind
	PatternKinds []pattern.Kind
	RWModes      []pattern.RWMode
	// ChunkSizes in bytes; empty derives them from the vector width
	ChunkSizes []int
	Strides    []int
	// Threads counts every worker of a cell, so loaded latency cells run
	// Threads-1 load workers next to the latency worker
	Threads []int
	// Delays of the delay injected kind; empty runs the default sweep
	Delays    []int
	StreamOps []kernel.StreamOp
	// ProbeChunk is the latency chain spacing under load, 0 for the cache line
	ProbeChunk int

	RegionSize int
	Duration   time.Duration
	// Passes, when set, replaces Duration as the per trial target
	Passes uint64
	Trials int
	Seed   pattern.Seed

	BaseIndex int
}

func NewMatrixConfiguration() *MatrixConfiguration {
	return &MatrixConfiguration{
		LoadCPUNode:  region.NoNode,
		HugePages:    region.HugePagesOff,
		Kinds:        []benchmark.Kind{benchmark.KindLatency, benchmark.KindThroughput},
		PatternKinds: []pattern.Kind{pattern.KindSequential, pattern.KindRandom},
		RWModes:      []pattern.RWMode{pattern.RWRead, pattern.RWWrite},
		Strides:      []int{1},
		Threads:      []int{1},
		StreamOps:    kernel.StreamOps,
		RegionSize:   64 << 20,
		Duration:     500 * time.Millisecond,
		Trials:       3,
		BaseIndex:    1,
	}
}
