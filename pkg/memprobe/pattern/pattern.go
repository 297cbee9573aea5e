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

// Package pattern generates the order in which a benchmark visits the chunks
// of a region, and embeds random orders into the region as a pointer chain.
package pattern

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

type Kind string

const (
	KindSequential Kind = "sequential"
	KindRandom     Kind = "random"
)

type RWMode string

const (
	RWRead  RWMode = "read"
	RWWrite RWMode = "write"
	RWCopy  RWMode = "copy"
)

// MinChainChunk is the smallest chunk that can hold a chain link
const MinChainChunk = 8

// ValidStrides are the strides, in chunks, the kernels implement
var ValidStrides = []int{1, -1, 2, -2, 4, -4, 8, -8, 16, -16}

type Pattern struct {
	Kind      Kind
	ChunkSize int // bytes
	Stride    int // chunks; negative walks the region backwards
	RW        RWMode
}

func (p Pattern) Reverse() bool {
	return p.Stride < 0
}

// StrideMagnitude is |Stride|, at least 1
func (p Pattern) StrideMagnitude() int {
	if p.Stride < 0 {
		return -p.Stride
	}
	if p.Stride == 0 {
		return 1
	}
	return p.Stride
}

func (p Pattern) String() string {
	if p.Kind == KindRandom {
		return fmt.Sprintf("%s/%dB/%s", p.Kind, p.ChunkSize, p.RW)
	}
	return fmt.Sprintf("%s/%dB/stride%+d/%s", p.Kind, p.ChunkSize, p.Stride, p.RW)
}

// Validate checks that p can be applied to a region of size bytes
func (p Pattern) Validate(size int) error {
	if p.ChunkSize <= 0 || p.ChunkSize&(p.ChunkSize-1) != 0 {
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "chunk size %d is not a power of two", p.ChunkSize)
	}
	if size%p.ChunkSize != 0 || size/p.ChunkSize < 2 {
		return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "region of %d bytes with %d byte chunks", size, p.ChunkSize)
	}

	switch p.Kind {
	case KindSequential:
		if !validStride(p.Stride) {
			return errors.Wrapf(probeerrors.ErrInvalidConfig, "stride %d", p.Stride)
		}
	case KindRandom:
		if p.ChunkSize < MinChainChunk {
			return errors.Wrapf(probeerrors.ErrChunkTooSmall, "random pattern needs chunks of at least %d bytes, got %d",
				MinChainChunk, p.ChunkSize)
		}
	default:
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown pattern kind %q", p.Kind)
	}

	switch p.RW {
	case RWRead, RWWrite:
	case RWCopy:
		if p.Kind != KindSequential || p.Stride != 1 {
			return errors.Wrapf(probeerrors.ErrInvalidConfig, "copy only supports forward sequential access, got %s", p)
		}
	default:
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown rw mode %q", p.RW)
	}
	return nil
}

func validStride(stride int) bool {
	for _, s := range ValidStrides {
		if s == stride {
			return true
		}
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindSequential, KindRandom:
		return k, nil
	}
	return "", errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown pattern kind %q", s)
}

func ParseRWMode(s string) (RWMode, error) {
	switch m := RWMode(strings.ToLower(s)); m {
	case RWRead, RWWrite, RWCopy:
		return m, nil
	}
	return "", errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown rw mode %q", s)
}
