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
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"
)

// Seed is an optional random seed; the zero value means "vary every run"
type Seed struct {
	Value int64
	Set   bool
}

func FixedSeed(v int64) Seed {
	return Seed{Value: v, Set: true}
}

// Derive returns a distinct, still reproducible seed for the i-th worker
func (s Seed) Derive(i int) Seed {
	if !s.Set {
		return s
	}
	return FixedSeed(s.Value + int64(i)*0x4f1bbcdcbfa53e0b)
}

// Resolve pins an unset seed to a fresh random value so the run can be
// reported and replayed. A set seed is returned unchanged.
func (s Seed) Resolve() Seed {
	if s.Set {
		return s
	}
	return FixedSeed(s.rand().Int63())
}

func (s Seed) String() string {
	if !s.Set {
		return "random"
	}
	return strconv.FormatInt(s.Value, 10)
}

var unseededCalls atomic.Int64

func (s Seed) rand() *rand.Rand {
	if s.Set {
		return rand.New(rand.NewSource(s.Value))
	}
	var b [8]byte
	v := time.Now().UnixNano() + unseededCalls.Add(1)
	if _, err := crand.Read(b[:]); err == nil {
		v ^= int64(binary.LittleEndian.Uint64(b[:]))
	}
	return rand.New(rand.NewSource(v))
}
