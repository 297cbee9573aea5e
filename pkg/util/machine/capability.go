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

package machine

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
)

const defaultCacheLine = 64

// Capability describes the access primitives the cpu offers
type Capability struct {
	Arch       string
	Brand      string
	VectorBits int // widest load/store the cpu supports natively
	CacheLine  int // bytes
	L3Bytes    int // -1 if unknown
}

// DetectCapability queries cpuid; vectorHint, when positive, overrides the detected width
func DetectCapability(vectorHint int) Capability {
	c := Capability{
		Arch:       runtime.GOARCH,
		Brand:      cpuid.CPU.BrandName,
		VectorBits: detectVectorBits(),
		CacheLine:  cpuid.CPU.CacheLine,
		L3Bytes:    cpuid.CPU.Cache.L3,
	}
	if c.CacheLine <= 0 {
		c.CacheLine = defaultCacheLine
	}
	if vectorHint > 0 {
		c.VectorBits = vectorHint
	}
	return c
}

func detectVectorBits() int {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return 512
	case cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.AVX):
		return 256
	case cpuid.CPU.Supports(cpuid.SSE2), cpuid.CPU.Supports(cpuid.ASIMD):
		return 128
	}
	return strconv.IntSize
}

// VectorBytes is VectorBits in bytes
func (c Capability) VectorBytes() int {
	return c.VectorBits / 8
}

func (c Capability) String() string {
	l3 := "unknown"
	if c.L3Bytes > 0 {
		l3 = humanize.IBytes(uint64(c.L3Bytes))
	}
	return fmt.Sprintf("%s %q vector=%db cacheline=%dB l3=%s", c.Arch, c.Brand, c.VectorBits, c.CacheLine, l3)
}
