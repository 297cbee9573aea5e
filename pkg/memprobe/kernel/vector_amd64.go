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

package kernel

import (
	"unsafe"

	"github.com/klauspost/cpuid/v2"
)

var (
	// SSE2 is part of the amd64 baseline; cpuid also checks the OS saves the wider state
	hasAVX    = cpuid.CPU.Supports(cpuid.AVX)
	hasAVX512 = cpuid.CPU.Supports(cpuid.AVX512F)
)

// Native reports whether one chunk of width w is a single load or store
func Native(w Width) bool {
	switch w {
	case Word32, Word64, Word128:
		return true
	case Word256:
		return hasAVX
	case Word512:
		return hasAVX512
	}
	return false
}

//go:noescape
func readVec128(base unsafe.Pointer, off, count, step int) uint64

//go:noescape
func readVec256(base unsafe.Pointer, off, count, step int) uint64

//go:noescape
func readVec512(base unsafe.Pointer, off, count, step int) uint64

//go:noescape
func writeVec128(base unsafe.Pointer, off, count, step int, v uint64)

//go:noescape
func writeVec256(base unsafe.Pointer, off, count, step int, v uint64)

//go:noescape
func writeVec512(base unsafe.Pointer, off, count, step int, v uint64)

//go:noescape
func copyVec128(base unsafe.Pointer, src, dst, n int)

//go:noescape
func copyVec256(base unsafe.Pointer, src, dst, n int)

//go:noescape
func copyVec512(base unsafe.Pointer, src, dst, n int)

//go:noescape
func chaseReadVec128(base unsafe.Pointer, off uint64, count int) (next uint64, acc uint64)

//go:noescape
func chaseReadVec256(base unsafe.Pointer, off uint64, count int) (next uint64, acc uint64)

//go:noescape
func chaseReadVec512(base unsafe.Pointer, off uint64, count int) (next uint64, acc uint64)

//go:noescape
func chaseWriteVec128(base unsafe.Pointer, off uint64, count int, v uint64) uint64

//go:noescape
func chaseWriteVec256(base unsafe.Pointer, off uint64, count int, v uint64) uint64

//go:noescape
func chaseWriteVec512(base unsafe.Pointer, off uint64, count int, v uint64) uint64

// readVector xors the low 64 bit lane of every chunk
func readVector(base unsafe.Pointer, off, count, step int, w Width) uint64 {
	switch w {
	case Word128:
		return readVec128(base, off, count, step)
	case Word256:
		return readVec256(base, off, count, step)
	default:
		return readVec512(base, off, count, step)
	}
}

func writeVector(base unsafe.Pointer, off, count, step int, w Width, v uint64) {
	switch w {
	case Word128:
		writeVec128(base, off, count, step, v)
	case Word256:
		writeVec256(base, off, count, step, v)
	default:
		writeVec512(base, off, count, step, v)
	}
}

func copyVector(base unsafe.Pointer, src, dst, n int, w Width) {
	switch w {
	case Word128:
		copyVec128(base, src, dst, n)
	case Word256:
		copyVec256(base, src, dst, n)
	default:
		copyVec512(base, src, dst, n)
	}
}

func chaseReadVector(base unsafe.Pointer, off uint64, count int, w Width) (uint64, uint64) {
	switch w {
	case Word128:
		return chaseReadVec128(base, off, count)
	case Word256:
		return chaseReadVec256(base, off, count)
	default:
		return chaseReadVec512(base, off, count)
	}
}

func chaseWriteVector(base unsafe.Pointer, off uint64, count int, w Width, v uint64) uint64 {
	switch w {
	case Word128:
		return chaseWriteVec128(base, off, count, v)
	case Word256:
		return chaseWriteVec256(base, off, count, v)
	default:
		return chaseWriteVec512(base, off, count, v)
	}
}
