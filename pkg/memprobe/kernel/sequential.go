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

import "unsafe"

// Read loads count chunks of width w, the first at byte offset off, moving
// step bytes between chunks (negative step walks backwards). Widths above
// 64 bits are single vector loads where Native reports so.
func Read(base unsafe.Pointer, off, count, step int, w Width) uint64 {
	if w > Word64 && Native(w) {
		return readVector(base, off, count, step, w)
	}
	return readScalar(base, off, count, step, w)
}

func readScalar(base unsafe.Pointer, off, count, step int, w Width) uint64 {
	var acc uint64
	switch w {
	case Word32:
		for i := 0; i < count; i++ {
			acc += uint64(*(*uint32)(unsafe.Add(base, off)))
			off += step
		}
	case Word64:
		for i := 0; i < count; i++ {
			acc += *(*uint64)(unsafe.Add(base, off))
			off += step
		}
	case Word128:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			acc += *(*uint64)(p) ^ *(*uint64)(unsafe.Add(p, 8))
			off += step
		}
	case Word256:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			acc += *(*uint64)(p) ^ *(*uint64)(unsafe.Add(p, 8)) ^
				*(*uint64)(unsafe.Add(p, 16)) ^ *(*uint64)(unsafe.Add(p, 24))
			off += step
		}
	case Word512:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			acc += *(*uint64)(p) ^ *(*uint64)(unsafe.Add(p, 8)) ^
				*(*uint64)(unsafe.Add(p, 16)) ^ *(*uint64)(unsafe.Add(p, 24)) ^
				*(*uint64)(unsafe.Add(p, 32)) ^ *(*uint64)(unsafe.Add(p, 40)) ^
				*(*uint64)(unsafe.Add(p, 48)) ^ *(*uint64)(unsafe.Add(p, 56))
			off += step
		}
	}
	return acc
}

// Write stores v into count chunks, walking like Read
func Write(base unsafe.Pointer, off, count, step int, w Width, v uint64) {
	if w > Word64 && Native(w) {
		writeVector(base, off, count, step, w, v)
		return
	}
	writeScalar(base, off, count, step, w, v)
}

func writeScalar(base unsafe.Pointer, off, count, step int, w Width, v uint64) {
	switch w {
	case Word32:
		for i := 0; i < count; i++ {
			*(*uint32)(unsafe.Add(base, off)) = uint32(v)
			off += step
		}
	case Word64:
		for i := 0; i < count; i++ {
			*(*uint64)(unsafe.Add(base, off)) = v
			off += step
		}
	case Word128:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			*(*uint64)(p) = v
			*(*uint64)(unsafe.Add(p, 8)) = v
			off += step
		}
	case Word256:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			*(*uint64)(p) = v
			*(*uint64)(unsafe.Add(p, 8)) = v
			*(*uint64)(unsafe.Add(p, 16)) = v
			*(*uint64)(unsafe.Add(p, 24)) = v
			off += step
		}
	case Word512:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			*(*uint64)(p) = v
			*(*uint64)(unsafe.Add(p, 8)) = v
			*(*uint64)(unsafe.Add(p, 16)) = v
			*(*uint64)(unsafe.Add(p, 24)) = v
			*(*uint64)(unsafe.Add(p, 32)) = v
			*(*uint64)(unsafe.Add(p, 40)) = v
			*(*uint64)(unsafe.Add(p, 48)) = v
			*(*uint64)(unsafe.Add(p, 56)) = v
			off += step
		}
	}
}

// Copy moves n bytes from src to dst, both byte offsets into base, in
// primitives of width w. n must be a multiple of w.
func Copy(base unsafe.Pointer, src, dst, n int, w Width) {
	switch {
	case w == Word32:
		for i := 0; i < n; i += 4 {
			*(*uint32)(unsafe.Add(base, dst+i)) = *(*uint32)(unsafe.Add(base, src+i))
		}
	case w == Word64:
		for i := 0; i < n; i += 8 {
			*(*uint64)(unsafe.Add(base, dst+i)) = *(*uint64)(unsafe.Add(base, src+i))
		}
	case Native(w):
		copyVector(base, src, dst, n, w)
	default:
		// memmove picks the widest moves the cpu has
		copy(unsafe.Slice((*byte)(unsafe.Add(base, dst)), n), unsafe.Slice((*byte)(unsafe.Add(base, src)), n))
	}
}

// DummySequential walks the same offsets as Read without touching memory
func DummySequential(off, count, step int) uint64 {
	var acc uint64
	for i := 0; i < count; i++ {
		acc += uint64(off)
		off += step
	}
	return acc
}
