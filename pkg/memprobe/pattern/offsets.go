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

package pattern

import (
	"unsafe"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

// Offsets returns the byte offset of every chunk of a size byte region in
// the order p visits them. Each chunk appears exactly once.
func Offsets(size int, p Pattern, seed Seed) ([]uint64, error) {
	if err := p.Validate(size); err != nil {
		return nil, err
	}

	n := size / p.ChunkSize
	chunk := uint64(p.ChunkSize)
	offsets := make([]uint64, 0, n)

	if p.Kind == KindRandom {
		for _, i := range seed.rand().Perm(n) {
			offsets = append(offsets, uint64(i)*chunk)
		}
		return offsets, nil
	}

	// strided: every k-th chunk, then the next residue class
	k := p.StrideMagnitude()
	for r := 0; r < k; r++ {
		for i := r; i < n; i += k {
			offsets = append(offsets, uint64(i)*chunk)
		}
	}
	if p.Reverse() {
		for i, j := 0, len(offsets)-1; i < j; i, j = i+1, j-1 {
			offsets[i], offsets[j] = offsets[j], offsets[i]
		}
	}
	return offsets, nil
}

// EmbedChain writes into each visited chunk the offset of the next one, the
// last pointing back to the first, so following the chain from offsets[0]
// walks every chunk once per cycle with each load depending on the previous.
func EmbedChain(buf []byte, offsets []uint64) error {
	if len(offsets) < 2 {
		return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "chain needs at least two chunks, got %d", len(offsets))
	}
	for _, off := range offsets {
		if off+MinChainChunk > uint64(len(buf)) {
			return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "offset %d out of region of %d bytes", off, len(buf))
		}
	}

	base := unsafe.Pointer(&buf[0])
	for i, off := range offsets {
		next := offsets[0]
		if i+1 < len(offsets) {
			next = offsets[i+1]
		}
		*(*uint64)(unsafe.Add(base, off)) = next
	}
	return nil
}

// Walk follows an embedded chain for n links starting at start
func Walk(buf []byte, start uint64, n int) []uint64 {
	visited := make([]uint64, 0, n)
	off := start
	for i := 0; i < n; i++ {
		visited = append(visited, off)
		off = *(*uint64)(unsafe.Pointer(&buf[off]))
	}
	return visited
}
