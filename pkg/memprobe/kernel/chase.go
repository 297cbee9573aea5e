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

// Chase follows count links of a chain embedded by pattern.EmbedChain and
// returns the offset it stopped at. count must be a multiple of ChaseUnroll.
func Chase(base unsafe.Pointer, off uint64, count int) uint64 {
	for i := 0; i < count; i += ChaseUnroll {
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
		off = *(*uint64)(unsafe.Add(base, off))
	}
	return off
}

// DummyChase has Chase's loop shape with the loads replaced by increments
func DummyChase(off uint64, count int) uint64 {
	for i := 0; i < count; i += ChaseUnroll {
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
		off++
	}
	return off
}

// ChaseRead follows count links and also loads the rest of each w wide chunk.
// The link word is always a separate 64 bit load so the dependency chain
// does not go through a vector register.
func ChaseRead(base unsafe.Pointer, off uint64, count int, w Width) (uint64, uint64) {
	if w > Word64 && Native(w) {
		return chaseReadVector(base, off, count, w)
	}
	return chaseReadScalar(base, off, count, w)
}

func chaseReadScalar(base unsafe.Pointer, off uint64, count int, w Width) (uint64, uint64) {
	var acc uint64
	switch w {
	case Word64:
		for i := 0; i < count; i++ {
			off = *(*uint64)(unsafe.Add(base, off))
		}
	case Word128:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			acc += *(*uint64)(unsafe.Add(p, 8))
			off = *(*uint64)(p)
		}
	case Word256:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			acc += *(*uint64)(unsafe.Add(p, 8)) ^ *(*uint64)(unsafe.Add(p, 16)) ^ *(*uint64)(unsafe.Add(p, 24))
			off = *(*uint64)(p)
		}
	case Word512:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			acc += *(*uint64)(unsafe.Add(p, 8)) ^ *(*uint64)(unsafe.Add(p, 16)) ^ *(*uint64)(unsafe.Add(p, 24)) ^
				*(*uint64)(unsafe.Add(p, 32)) ^ *(*uint64)(unsafe.Add(p, 40)) ^ *(*uint64)(unsafe.Add(p, 48)) ^
				*(*uint64)(unsafe.Add(p, 56))
			off = *(*uint64)(p)
		}
	}
	return off, acc
}

// ChaseWrite follows count links and stores into each w wide chunk. The link
// word is written back unchanged so the chain survives.
func ChaseWrite(base unsafe.Pointer, off uint64, count int, w Width, v uint64) uint64 {
	if w > Word64 && Native(w) {
		return chaseWriteVector(base, off, count, w, v)
	}
	return chaseWriteScalar(base, off, count, w, v)
}

func chaseWriteScalar(base unsafe.Pointer, off uint64, count int, w Width, v uint64) uint64 {
	switch w {
	case Word64:
		for i := 0; i < count; i++ {
			p := (*uint64)(unsafe.Add(base, off))
			next := *p
			*p = next
			off = next
		}
	case Word128:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			next := *(*uint64)(p)
			*(*uint64)(p) = next
			*(*uint64)(unsafe.Add(p, 8)) = v
			off = next
		}
	case Word256:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			next := *(*uint64)(p)
			*(*uint64)(p) = next
			*(*uint64)(unsafe.Add(p, 8)) = v
			*(*uint64)(unsafe.Add(p, 16)) = v
			*(*uint64)(unsafe.Add(p, 24)) = v
			off = next
		}
	case Word512:
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			next := *(*uint64)(p)
			*(*uint64)(p) = next
			*(*uint64)(unsafe.Add(p, 8)) = v
			*(*uint64)(unsafe.Add(p, 16)) = v
			*(*uint64)(unsafe.Add(p, 24)) = v
			*(*uint64)(unsafe.Add(p, 32)) = v
			*(*uint64)(unsafe.Add(p, 40)) = v
			*(*uint64)(unsafe.Add(p, 48)) = v
			*(*uint64)(unsafe.Add(p, 56)) = v
			off = next
		}
	}
	return off
}

// DummyChaseChunks is the overhead twin of ChaseRead and ChaseWrite
func DummyChaseChunks(off uint64, count int) uint64 {
	for i := 0; i < count; i++ {
		off++
	}
	return off
}
