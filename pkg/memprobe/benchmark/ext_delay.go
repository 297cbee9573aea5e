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

package benchmark

import (
	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
)

// MaxDelay is the last step of the default delay sweep
const MaxDelay = 1024

// DelaySweep returns 0, 1, 2, 4, ... up to MaxDelay
func DelaySweep() []int {
	delays := []int{0}
	for d := 1; d <= MaxDelay; d *= 2 {
		delays = append(delays, d)
	}
	return delays
}

func validateDelayLoad(c Config) error {
	if c.Delay < 0 {
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: delay %d", c.Name, c.Delay)
	}
	w, err := kernel.WidthOf(c.Pattern.ChunkSize)
	if err != nil {
		return errors.Wrapf(err, "%s", c.Name)
	}
	if err := kernel.ValidDelayWidth(w); err != nil {
		return errors.Wrapf(err, "%s", c.Name)
	}
	if c.RegionSize < BytesPerPass {
		return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "%s: region smaller than one pass", c.Name)
	}
	return nil
}

// initDelayed sets up forward sequential reads with idle loops between accesses
func (k *loadKernel) initDelayed(cfg Config, buf []byte) error {
	w, err := kernel.WidthOf(cfg.Pattern.ChunkSize)
	if err != nil {
		return err
	}
	if err := kernel.ValidDelayWidth(w); err != nil {
		return err
	}
	k.mode = modeDelayed
	k.width = w
	k.delay = cfg.Delay
	k.count = BytesPerPass / int(w)
	k.windowSize = BytesPerPass
	k.windows = len(buf) / BytesPerPass
	k.bytesPerPass = BytesPerPass
	return nil
}
