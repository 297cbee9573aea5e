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

package machine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"k8s.io/apimachinery/pkg/util/sets"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

// Topology is what the probe needs to know about the machine it runs on
type Topology interface {
	// CPUs returns the online cpus, sorted
	CPUs() []int
	// NUMANodes returns the numa nodes that have memory or cpus, sorted
	NUMANodes() []int
	// CPUsInNUMANode returns the online cpus of node, sorted; nil if node is unknown
	CPUsInNUMANode(node int) []int
	HugePages() HugePageInfo
	// Pin binds the calling OS thread to cpu. Callers must hold runtime.LockOSThread.
	Pin(cpu int) error
}

// CPUTopology keeps the relationship of numa nodes and cpus
type CPUTopology struct {
	NUMAs      int                   // number of numa nodes on whole machine
	CPUsInNUMA map[int]sets.Set[int] // mapping from numa node to cpus

	OnlineCPUs sets.Set[int]
	HugePage   HugePageInfo

	pinner func(cpu int) error
}

// NewCPUTopology builds a topology from a numa to cpus mapping; the pinner
// defaults to sched_setaffinity of the calling thread.
func NewCPUTopology(cpusInNUMA map[int][]int, hugePage HugePageInfo) *CPUTopology {
	topo := &CPUTopology{
		CPUsInNUMA: make(map[int]sets.Set[int], len(cpusInNUMA)),
		OnlineCPUs: sets.New[int](),
		HugePage:   hugePage,
		pinner:     pinCurrentThread,
	}
	for node, cpus := range cpusInNUMA {
		topo.CPUsInNUMA[node] = sets.New[int](cpus...)
		topo.OnlineCPUs.Insert(cpus...)
	}
	topo.NUMAs = len(topo.CPUsInNUMA)
	return topo
}

// WithPinner replaces the thread pinning function; tests use it to avoid
// touching the real scheduler affinity.
func (t *CPUTopology) WithPinner(pinner func(cpu int) error) *CPUTopology {
	c := *t
	c.CPUsInNUMA = maps.Clone(t.CPUsInNUMA)
	c.pinner = pinner
	return &c
}

func (t *CPUTopology) CPUs() []int {
	return sets.List(t.OnlineCPUs)
}

func (t *CPUTopology) NUMANodes() []int {
	nodes := make([]int, 0, len(t.CPUsInNUMA))
	for node := range t.CPUsInNUMA {
		nodes = append(nodes, node)
	}
	sort.Ints(nodes)
	return nodes
}

func (t *CPUTopology) CPUsInNUMANode(node int) []int {
	cpus, ok := t.CPUsInNUMA[node]
	if !ok {
		return nil
	}
	return sets.List(cpus)
}

func (t *CPUTopology) HugePages() HugePageInfo {
	return t.HugePage
}

func (t *CPUTopology) Pin(cpu int) error {
	if !t.OnlineCPUs.Has(cpu) {
		return errors.Wrapf(probeerrors.ErrPinFailed, "cpu %d is not online", cpu)
	}
	if err := t.pinner(cpu); err != nil {
		return errors.Wrapf(probeerrors.ErrPinFailed, "cpu %d: %v", cpu, err)
	}
	return nil
}

func (t *CPUTopology) String() string {
	var sb strings.Builder
	for _, node := range t.NUMANodes() {
		fmt.Fprintf(&sb, "node %d: cpus %v\n", node, t.CPUsInNUMANode(node))
	}
	fmt.Fprintf(&sb, "hugepages: %s", t.HugePage)
	return sb.String()
}
