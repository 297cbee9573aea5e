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

package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
)

const cpuSampleWindow = 200 * time.Millisecond

// Settler waits for the machine to go quiet between cells
type Settler interface {
	Settle(ctx context.Context) error
}

type cpuSettler struct {
	threshold float64
	interval  time.Duration
	timeout   time.Duration
	percent   func(ctx context.Context) (float64, error)
}

// NewCPUSettler polls the system wide cpu utilization every interval until it
// is below threshold percent, giving up after timeout
func NewCPUSettler(threshold float64, interval, timeout time.Duration) Settler {
	return &cpuSettler{
		threshold: threshold,
		interval:  interval,
		timeout:   timeout,
		percent:   systemCPUPercent,
	}
}

func systemCPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, errors.New("no cpu utilization sample")
	}
	return percents[0], nil
}

func (s *cpuSettler) Settle(ctx context.Context) error {
	var last float64
	err := wait.PollUntilContextTimeout(ctx, s.interval, s.timeout, true, func(ctx context.Context) (bool, error) {
		p, err := s.percent(ctx)
		if err != nil {
			return false, err
		}
		last = p
		return p < s.threshold, nil
	})
	if err != nil {
		return errors.Wrapf(err, "cpu utilization still %.1f%%, want below %.1f%%", last, s.threshold)
	}
	general.InfofV(4, "memprobe: runner: settled at %.1f%% cpu", last)
	return nil
}
