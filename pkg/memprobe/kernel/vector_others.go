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

//go:build !amd64

package kernel

import "unsafe"

// Native reports whether one chunk of width w is a single load or store.
// Without vector kernels for this architecture only the scalar words are.
func Native(w Width) bool {
	return w == Word32 || w == Word64
}

func readVector(base unsafe.Pointer, off, count, step int, w Width) uint64 {
	return readScalar(base, off, count, step, w)
}

func writeVector(base unsafe.Pointer, off, count, step int, w Width, v uint64) {
	writeScalar(base, off, count, step, w, v)
}

func copyVector(base unsafe.Pointer, src, dst, n int, _ Width) {
	copy(unsafe.Slice((*byte)(unsafe.Add(base, dst)), n), unsafe.Slice((*byte)(unsafe.Add(base, src)), n))
}

func chaseReadVector(base unsafe.Pointer, off uint64, count int, w Width) (uint64, uint64) {
	return chaseReadScalar(base, off, count, w)
}

func chaseWriteVector(base unsafe.Pointer, off uint64, count int, w Width, v uint64) uint64 {
	return chaseWriteScalar(base, off, count, w, v)
}
