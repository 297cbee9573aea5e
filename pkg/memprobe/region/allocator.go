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

package region

import (
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/machine"
)

type Request struct {
	Size      int // bytes, rounded up to ChunkSize
	ChunkSize int // power of two
	Node      int // NoNode for no binding
	HugePages HugePagePolicy
}

type Allocator interface {
	Allocate(req Request) (*Region, error)
}

// mapper is the OS facing half of the allocator
type mapper interface {
	Map(length int, huge bool) ([]byte, error)
	// Bind must be called before the pages are first touched
	Bind(mem []byte, node int) error
	Unmap(mem []byte) error
	PageSize() int
}

type allocator struct {
	topology  machine.Topology
	mapper    mapper
	available func() (uint64, error)
}

func NewAllocator(topology machine.Topology) Allocator {
	return &allocator{
		topology:  topology,
		mapper:    newOSMapper(),
		available: machine.AvailableMemory,
	}
}

func (a *allocator) Allocate(req Request) (*Region, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	size := roundUp(req.Size, req.ChunkSize)
	if req.Node != NoNode && !contains(a.topology.NUMANodes(), req.Node) {
		return nil, errors.Wrapf(probeerrors.ErrNUMANodeInvalid, "node %d not in %v", req.Node, a.topology.NUMANodes())
	}

	if a.available != nil {
		if avail, err := a.available(); err == nil && avail > 0 && uint64(size) > avail {
			return nil, errors.Wrapf(probeerrors.ErrInsufficientMemory, "requested %s, available %s",
				humanize.IBytes(uint64(size)), humanize.IBytes(avail))
		}
	}

	mem, backing, degraded, err := a.mapBacking(size, req.HugePages)
	if err != nil {
		return nil, err
	}

	if req.Node != NoNode && len(a.topology.NUMANodes()) > 1 {
		if err := a.mapper.Bind(mem, req.Node); err != nil {
			_ = a.mapper.Unmap(mem)
			return nil, errors.Wrapf(probeerrors.ErrNUMANodeUnavailable, "bind to node %d: %v", req.Node, err)
		}
	}

	if uintptr(unsafe.Pointer(&mem[0]))%uintptr(req.ChunkSize) != 0 {
		_ = a.mapper.Unmap(mem)
		return nil, errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "mapping is not %d byte aligned", req.ChunkSize)
	}

	touch(mem)

	r := &Region{
		mapping:  mem,
		buf:      mem[:size:size],
		node:     req.Node,
		backing:  backing,
		degraded: degraded,
		release:  a.mapper.Unmap,
	}
	general.InfofV(5, "memprobe: region: allocated %s", r)
	return r, nil
}

// mapBacking applies the huge page policy
func (a *allocator) mapBacking(size int, policy HugePagePolicy) ([]byte, Backing, bool, error) {
	if policy == HugePagesPreferred || policy == HugePagesRequired {
		info := a.topology.HugePages()
		length := size
		if info.Supported() {
			length = roundUp(size, int(info.PageSize))
		}

		var cause error
		if info.Available(int64(length)) {
			mem, err := a.mapper.Map(length, true)
			if err == nil {
				return mem, BackingHugePages, false, nil
			}
			cause = err
		} else {
			cause = errors.Errorf("platform reports %s", info)
		}

		if policy == HugePagesRequired {
			return nil, BackingStandard, false, errors.Wrapf(probeerrors.ErrHugePagesUnavailable, "%s: %v",
				humanize.IBytes(uint64(length)), cause)
		}
		general.Warningf("memprobe: region: huge pages unavailable (%v), falling back to standard pages", cause)

		mem, err := a.mapStandard(size)
		return mem, BackingStandard, true, err
	}

	mem, err := a.mapStandard(size)
	return mem, BackingStandard, false, err
}

func (a *allocator) mapStandard(size int) ([]byte, error) {
	mem, err := a.mapper.Map(roundUp(size, a.mapper.PageSize()), false)
	if err != nil {
		if isNoMemory(err) {
			return nil, errors.Wrapf(probeerrors.ErrInsufficientMemory, "map %s: %v", humanize.IBytes(uint64(size)), err)
		}
		return nil, errors.Wrap(err, "failed to map region")
	}
	return mem, nil
}

func validate(req Request) error {
	if req.Size <= 0 {
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "region size %d", req.Size)
	}
	if req.ChunkSize <= 0 || req.ChunkSize&(req.ChunkSize-1) != 0 {
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "chunk size %d is not a power of two", req.ChunkSize)
	}
	if req.Size < 2*req.ChunkSize {
		return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "region of %d bytes holds less than two %d byte chunks",
			req.Size, req.ChunkSize)
	}
	return nil
}

// touch writes every word so all pages are faulted in and zeroed
func touch(mem []byte) {
	words := unsafe.Slice((*uint64)(unsafe.Pointer(&mem[0])), len(mem)/8)
	for i := range words {
		words[i] = 0
	}
}

func roundUp(n, multiple int) int {
	if multiple <= 0 {
		return n
	}
	return (n + multiple - 1) / multiple * multiple
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
