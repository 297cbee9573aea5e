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

package options

import (
	"time"

	cliflag "k8s.io/component-base/cli/flag"

	memprobeconfig "github.com/kubewharf/katalyst-memprobe/pkg/config/memprobe"
)

type RunnerOptions struct {
	ClockSource string
	CVThreshold float64
	CellTimeout time.Duration

	SettleCPUPercent float64
	SettleInterval   time.Duration
	SettleTimeout    time.Duration

	ResctrlObserve  bool
	ResctrlMonGroup string
}

func NewRunnerOptions() *RunnerOptions {
	c := memprobeconfig.NewRunnerConfiguration()
	return &RunnerOptions{
		ClockSource:     c.ClockSource,
		CVThreshold:     c.CVThreshold,
		CellTimeout:     c.CellTimeout,
		SettleInterval:  c.SettleInterval,
		SettleTimeout:   c.SettleTimeout,
		ResctrlMonGroup: c.ResctrlMonGroup,
	}
}

func (o *RunnerOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("runner")

	fs.StringVar(&o.ClockSource, "clock", o.ClockSource, "timer clock source, os or tsc")
	fs.Float64Var(&o.CVThreshold, "cv-threshold", o.CVThreshold,
		"coefficient of variation above which a cell is reported unreliable")
	fs.DurationVar(&o.CellTimeout, "cell-timeout", o.CellTimeout, "upper bound of one trial, 0 for none")
	fs.Float64Var(&o.SettleCPUPercent, "settle-cpu-percent", o.SettleCPUPercent,
		"wait before each cell until cpu utilization is below this percentage, 0 to disable")
	fs.DurationVar(&o.SettleInterval, "settle-interval", o.SettleInterval, "poll interval while settling")
	fs.DurationVar(&o.SettleTimeout, "settle-timeout", o.SettleTimeout, "give up settling after this long")
	fs.BoolVar(&o.ResctrlObserve, "resctrl-observe", o.ResctrlObserve,
		"record the bandwidth resctrl mbm counters observed during each trial")
	fs.StringVar(&o.ResctrlMonGroup, "resctrl-mon-group", o.ResctrlMonGroup, "resctrl monitor group to observe")
}

func (o *RunnerOptions) ApplyTo(c *memprobeconfig.RunnerConfiguration) error {
	c.ClockSource = o.ClockSource
	c.CVThreshold = o.CVThreshold
	c.CellTimeout = o.CellTimeout
	c.SettleCPUPercent = o.SettleCPUPercent
	c.SettleInterval = o.SettleInterval
	c.SettleTimeout = o.SettleTimeout
	c.ResctrlObserve = o.ResctrlObserve
	c.ResctrlMonGroup = o.ResctrlMonGroup
	return nil
}
