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

// Package region hands out pre-faulted memory regions for benchmark workers,
// optionally bound to a numa node and backed by huge pages.
package region

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

// NoNode leaves numa placement to the kernel
const NoNode = -1

type Backing int

const (
	BackingStandard Backing = iota
	BackingHugePages
)

func (b Backing) String() string {
	if b == BackingHugePages {
		return "hugepages"
	}
	return "standard"
}

type HugePagePolicy string

const (
	HugePagesOff       HugePagePolicy = "off"
	HugePagesPreferred HugePagePolicy = "preferred"
	HugePagesRequired  HugePagePolicy = "required"
)

func ParseHugePagePolicy(s string) (HugePagePolicy, error) {
	switch p := HugePagePolicy(strings.ToLower(s)); p {
	case HugePagesOff, HugePagesPreferred, HugePagesRequired:
		return p, nil
	case "":
		return HugePagesOff, nil
	}
	return "", errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown huge page policy %q", s)
}

// Region is a contiguous, touched block of memory owned by a single worker
type Region struct {
	mapping  []byte // whole mapping, page granular
	buf      []byte // usable part, a multiple of the chunk size
	node     int
	backing  Backing
	degraded bool
	release  func([]byte) error
	released bool
}

func (r *Region) Bytes() []byte { return r.buf }

func (r *Region) Base() unsafe.Pointer { return unsafe.Pointer(&r.buf[0]) }

func (r *Region) Len() int { return len(r.buf) }

// Node is the numa node the region is bound to, or NoNode
func (r *Region) Node() int { return r.node }

func (r *Region) Backing() Backing { return r.backing }

// Degraded reports huge pages were preferred but standard pages were used
func (r *Region) Degraded() bool { return r.degraded }

// Release returns the memory to the OS; the region must not be used afterwards
func (r *Region) Release() error {
	if r.released {
		return nil
	}
	r.released = true
	r.buf = nil
	if r.release == nil {
		return nil
	}
	return r.release(r.mapping)
}

func (r *Region) String() string {
	return fmt.Sprintf("%s node=%d %s degraded=%v", humanize.IBytes(uint64(len(r.buf))), r.node, r.backing, r.degraded)
}
