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

package timer

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

const (
	SourceOS  = "os"
	SourceTSC = "tsc"
)

// NewClock returns the clock for a configured source name
func NewClock(source string) (Clock, error) {
	switch strings.ToLower(source) {
	case "", SourceOS:
		return NewOSClock(), nil
	case SourceTSC:
		return NewTSCClock()
	}
	return nil, errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown clock source %q", source)
}

// osClock reads the monotonic clock of the Go runtime
type osClock struct {
	epoch time.Time
}

func NewOSClock() Clock {
	return &osClock{epoch: time.Now()}
}

func (c *osClock) Now() Tick { return Tick(time.Since(c.epoch)) }

func (c *osClock) Name() string { return SourceOS }

func (c *osClock) NsPerTick() float64 { return 1 }

// FakeClock advances by a fixed step on every reading
type FakeClock struct {
	step int64
	now  atomic.Int64
}

func NewFakeClock(step time.Duration) *FakeClock {
	return &FakeClock{step: int64(step)}
}

func (c *FakeClock) Now() Tick { return Tick(c.now.Add(c.step)) }

func (c *FakeClock) Name() string { return "fake" }

func (c *FakeClock) NsPerTick() float64 { return 1 }
