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

package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/kubewharf/katalyst-memprobe/pkg/config"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/report"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/resctrl"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/runner"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/machine"
)

// Run discovers the machine, builds the benchmark matrix from conf and
// streams every finished cell to the configured report.
func Run(ctx context.Context, conf *config.Configuration) error {
	fs := afero.NewOsFs()
	topology, err := machine.Discover(fs)
	if err != nil {
		return errors.Wrap(err, "failed to discover machine topology")
	}
	capability := machine.DetectCapability(conf.VectorWidthHint)
	general.Infof("memprobe: machine: %s", topology)
	general.Infof("memprobe: cpu: %s", capability)

	var observer resctrl.Observer
	if conf.ResctrlObserve {
		observer, err = resctrl.NewObserver(fs, conf.ResctrlMonGroup)
		if err != nil {
			general.Warningf("memprobe: resctrl observation disabled: %v", err)
		}
	}

	_, err = run(ctx, conf, topology, capability, observer)
	return err
}

func run(ctx context.Context, conf *config.Configuration, topology machine.Topology,
	capability machine.Capability, observer resctrl.Observer,
) (*runner.Result, error) {
	clock, err := timer.NewClock(conf.ClockSource)
	if err != nil {
		return nil, err
	}
	tm := timer.New(clock)
	if _, err := tm.Calibrate(); err != nil {
		return nil, err
	}

	cells, rejected := runner.BuildMatrix(conf, topology, capability)
	for _, cellErr := range rejected {
		general.Warningf("memprobe: rejected: %v", cellErr)
	}
	general.Infof("memprobe: %d cells to run, %d rejected", len(cells), len(rejected))

	w, err := report.Open(conf.Format, conf.Destination)
	if err != nil {
		return nil, err
	}

	opts := []runner.Option{runner.WithSink(w.Write)}
	if conf.CellTimeout > 0 {
		opts = append(opts, runner.WithCellTimeout(conf.CellTimeout))
	}
	if conf.SettleCPUPercent > 0 {
		opts = append(opts, runner.WithSettler(runner.NewCPUSettler(conf.SettleCPUPercent, conf.SettleInterval, conf.SettleTimeout)))
	}
	if observer != nil {
		opts = append(opts, runner.WithObserver(observer))
	}

	r := runner.NewRunner(topology, region.NewAllocator(topology), tm, aggregator.NewAggregator(conf.CVThreshold), opts...)

	start := time.Now()
	result, runErr := r.Run(ctx, cells)
	if err := w.Close(); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "failed to close report")
	}

	result.Skipped = append(rejected, result.Skipped...)
	for _, cellErr := range result.Skipped {
		general.Infof("memprobe: skipped: %v", cellErr)
	}
	general.Infof("memprobe: %d cells reported, %d skipped in %v",
		len(result.Entries), len(result.Skipped), time.Since(start).Round(time.Millisecond))
	return result, runErr
}
