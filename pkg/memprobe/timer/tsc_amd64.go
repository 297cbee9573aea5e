//go:build amd64

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
	"github.com/dterei/gotsc"
	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

// tscClock reads the time stamp counter, fenced with cpuid before an
// interval and with rdtscp after it. Its rate is unknown until calibrated
// against the OS clock.
type tscClock struct{}

func NewTSCClock() (Clock, error) {
	if !cpuid.CPU.Supports(cpuid.RDTSCP) {
		return nil, errors.Wrap(probeerrors.ErrTimerCalibration, "cpu has no rdtscp")
	}
	return tscClock{}, nil
}

func (tscClock) Now() Tick { return Tick(gotsc.BenchStart()) }

func (tscClock) End() Tick { return Tick(gotsc.BenchEnd()) }

func (tscClock) Name() string { return SourceTSC }
