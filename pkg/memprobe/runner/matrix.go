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

package runner

import (
	"fmt"

	"github.com/kubewharf/katalyst-memprobe/pkg/config"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/machine"
)

// DefaultChunkSizes are the kernel widths from 64 bits up to the vector width of the cpu
func DefaultChunkSizes(c machine.Capability) []int {
	var chunks []int
	for _, w := range kernel.Widths {
		if w >= kernel.Word64 && int(w) <= c.VectorBytes() {
			chunks = append(chunks, int(w))
		}
	}
	if len(chunks) == 0 {
		chunks = []int{int(kernel.Word64)}
	}
	return chunks
}

type matrixBuilder struct {
	conf  *config.Configuration
	cells []benchmark.Config
	// cells rejected by Validate, numbered like the others
	skipped []*probeerrors.CellError
	next    int

	chunks     []int
	probeChunk int
	delays     []int
}

// BuildMatrix enumerates memNode x cpuNode x kind x pattern x rw x chunk x
// stride x threads, plus the delay or stream op of the extension kinds.
// Combinations no kernel implements are left out silently; cells that fail
// validation are numbered and returned as skipped.
func BuildMatrix(conf *config.Configuration, topology machine.Topology, capability machine.Capability) ([]benchmark.Config, []*probeerrors.CellError) {
	b := &matrixBuilder{
		conf:       conf,
		next:       conf.BaseIndex,
		chunks:     conf.ChunkSizes,
		probeChunk: conf.ProbeChunk,
		delays:     conf.Delays,
	}
	if len(b.chunks) == 0 {
		b.chunks = DefaultChunkSizes(capability)
	}
	if b.probeChunk == 0 {
		b.probeChunk = capability.CacheLine
	}
	if len(b.delays) == 0 {
		b.delays = benchmark.DelaySweep()
	}

	memNodes := conf.MemNodes
	if len(memNodes) == 0 {
		memNodes = topology.NUMANodes()
	}
	cpuNodes := conf.CPUNodes
	if len(cpuNodes) == 0 {
		cpuNodes = cpuBearingNodes(topology)
	}

	for _, memNode := range memNodes {
		for _, cpuNode := range cpuNodes {
			for _, kind := range conf.Kinds {
				b.kind(memNode, cpuNode, kind)
			}
		}
	}

	general.Infof("memprobe: matrix: %d cells, %d rejected", len(b.cells), len(b.skipped))
	return b.cells, b.skipped
}

// cpuBearingNodes lists the nodes workers can run on; memory-only nodes
// are still measured as memory nodes
func cpuBearingNodes(topology machine.Topology) []int {
	nodes := make([]int, 0, len(topology.NUMANodes()))
	for _, node := range topology.NUMANodes() {
		if len(topology.CPUsInNUMANode(node)) > 0 {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func (b *matrixBuilder) kind(memNode, cpuNode int, kind benchmark.Kind) {
	base := benchmark.Config{
		Kind:        kind,
		ProbeChunk:  b.probeChunk,
		RegionSize:  b.conf.RegionSize,
		MemNode:     memNode,
		CPUNode:     cpuNode,
		LoadCPUNode: b.conf.LoadCPUNode,
		HugePages:   b.conf.HugePages,
		Target:      benchmark.Target{Duration: b.conf.Duration, Passes: b.conf.Passes},
		Trials:      b.conf.Trials,
		Seed:        b.conf.Seed,
	}

	switch kind {
	case benchmark.KindLatency:
		for _, pk := range b.conf.PatternKinds {
			for _, chunk := range b.chunks {
				if chunk < pattern.MinChainChunk {
					continue
				}
				cfg := base
				cfg.Pattern = pattern.Pattern{Kind: pk, ChunkSize: chunk, Stride: 1, RW: pattern.RWRead}
				b.add(cfg)
			}
		}
	case benchmark.KindThroughput, benchmark.KindLoadedLatency:
		b.patterns(func(p pattern.Pattern) {
			for _, threads := range b.conf.Threads {
				cfg := base
				cfg.Pattern = p
				cfg.Threads = threads
				if kind == benchmark.KindLoadedLatency {
					cfg.Threads = threads - 1
				}
				b.add(cfg)
			}
		})
	case benchmark.KindDelayInjectedLatency:
		for _, chunk := range b.chunks {
			w, err := kernel.WidthOf(chunk)
			if err != nil || kernel.ValidDelayWidth(w) != nil {
				continue
			}
			for _, threads := range b.conf.Threads {
				// without load there is nothing to delay
				if threads < 2 {
					continue
				}
				for _, delay := range b.delays {
					cfg := base
					cfg.Pattern = pattern.Pattern{Kind: pattern.KindSequential, ChunkSize: chunk, Stride: 1, RW: pattern.RWRead}
					cfg.Threads = threads - 1
					cfg.Delay = delay
					b.add(cfg)
				}
			}
		}
	case benchmark.KindStream:
		for _, op := range b.conf.StreamOps {
			for _, threads := range b.conf.Threads {
				cfg := base
				cfg.Pattern = pattern.Pattern{Kind: pattern.KindSequential, ChunkSize: int(kernel.Word64), Stride: 1, RW: pattern.RWRead}
				cfg.StreamOp = op
				cfg.Threads = threads
				b.add(cfg)
			}
		}
	}
}

// patterns calls fn for every pattern x rw x chunk x stride combination a
// bandwidth kernel implements
func (b *matrixBuilder) patterns(fn func(p pattern.Pattern)) {
	for _, pk := range b.conf.PatternKinds {
		for _, rw := range b.conf.RWModes {
			if rw == pattern.RWCopy && pk != pattern.KindSequential {
				continue
			}
			for _, chunk := range b.chunks {
				if pk == pattern.KindRandom && chunk < pattern.MinChainChunk {
					continue
				}
				for i, stride := range b.conf.Strides {
					p := pattern.Pattern{Kind: pk, ChunkSize: chunk, Stride: stride, RW: rw}
					switch {
					case pk == pattern.KindRandom:
						// stride has no meaning for a permutation
						if i > 0 {
							continue
						}
						p.Stride = 1
					case rw == pattern.RWCopy && stride != 1:
						continue
					}
					fn(p)
				}
			}
		}
	}
}

func (b *matrixBuilder) add(cfg benchmark.Config) {
	cfg.Index = b.next
	cfg.Name = fmt.Sprintf("Test #%d", b.next)
	b.next++

	if err := cfg.Validate(); err != nil {
		b.skipped = append(b.skipped, probeerrors.NewCellError(cfg.String(), err))
		return
	}
	b.cells = append(b.cells, cfg)
}
