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

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

// DelayWidths are the primitives the delay-injected load supports
var DelayWidths = []Width{Word64, Word256}

func ValidDelayWidth(w Width) error {
	if w == Word64 || w == Word256 {
		return nil
	}
	return errors.Wrapf(probeerrors.ErrInvalidConfig, "delay injected load supports %v byte chunks, got %d", DelayWidths, w)
}

// spin burns delay dependent integer ops
func spin(x uint64, delay int) uint64 {
	for d := 0; d < delay; d++ {
		x = x*6364136223846793005 + 1442695040888963407
	}
	return x
}

// ReadDelayed reads count chunks forward from off, idling delay iterations
// after every access. w must be Word64 or Word256.
func ReadDelayed(base unsafe.Pointer, off, count int, w Width, delay int) uint64 {
	var acc uint64
	if w == Word256 {
		for i := 0; i < count; i++ {
			p := unsafe.Add(base, off)
			acc += *(*uint64)(p) ^ *(*uint64)(unsafe.Add(p, 8)) ^
				*(*uint64)(unsafe.Add(p, 16)) ^ *(*uint64)(unsafe.Add(p, 24))
			acc = spin(acc, delay)
			off += 32
		}
		return acc
	}
	for i := 0; i < count; i++ {
		acc += *(*uint64)(unsafe.Add(base, off))
		acc = spin(acc, delay)
		off += 8
	}
	return acc
}

// DummyDelayed keeps the delay loops of ReadDelayed and drops the loads
func DummyDelayed(off, count int, delay int) uint64 {
	acc := uint64(off)
	for i := 0; i < count; i++ {
		acc += uint64(i)
		acc = spin(acc, delay)
	}
	return acc
}
