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

// Package kernel holds the memory access loops that run inside timed
// windows. Kernels take a region base pointer and byte offsets; they never
// allocate, lock, or log. Every kernel has a dummy twin with the same loop
// structure and no memory traffic, timed to subtract loop overhead.
//
// Callers must keep the region alive while a kernel runs and must pass offsets
// that stay inside it; kernels do no bounds checking.
package kernel

import (
	"sync/atomic"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

// Width is the size of one access primitive in bytes
type Width int

const (
	Word32  Width = 4
	Word64  Width = 8
	Word128 Width = 16
	Word256 Width = 32
	Word512 Width = 64
)

var Widths = []Width{Word32, Word64, Word128, Word256, Word512}

// WidthOf maps a chunk size in bytes to its primitive width
func WidthOf(chunk int) (Width, error) {
	for _, w := range Widths {
		if int(w) == chunk {
			return w, nil
		}
	}
	return 0, errors.Wrapf(probeerrors.ErrInvalidConfig, "unsupported chunk size %d, want one of %v", chunk, Widths)
}

func (w Width) Bits() int {
	return int(w) * 8
}

// ChaseUnroll is the number of dependent loads per iteration of Chase
const ChaseUnroll = 16

var sink atomic.Uint64

// Consume publishes v so the loads that produced it cannot be elided
func Consume(v uint64) {
	sink.Add(v)
}
