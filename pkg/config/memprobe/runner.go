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

package memprobe

import (
	"time"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/resctrl"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
)

type RunnerConfiguration struct {
	// ClockSource is one of timer.SourceOS and timer.SourceTSC
	ClockSource string
	CVThreshold float64
	// CellTimeout bounds every trial of a cell, 0 for none
	CellTimeout time.Duration

	// SettleCPUPercent waits between cells until system cpu utilization
	// drops below it; 0 disables settling
	SettleCPUPercent float64
	SettleInterval   time.Duration
	SettleTimeout    time.Duration

	ResctrlObserve  bool
	ResctrlMonGroup string
}

func NewRunnerConfiguration() *RunnerConfiguration {
	return &RunnerConfiguration{
		ClockSource:     timer.SourceOS,
		CVThreshold:     aggregator.DefaultCVThreshold,
		SettleInterval:  time.Second,
		SettleTimeout:   30 * time.Second,
		ResctrlMonGroup: resctrl.Root,
	}
}
