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

package config

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	memprobeconfig "github.com/kubewharf/katalyst-memprobe/pkg/config/memprobe"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
)

// Configuration stores all the configurations needed by memprobe
type Configuration struct {
	*memprobeconfig.MatrixConfiguration
	*memprobeconfig.RunnerConfiguration
	*memprobeconfig.OutputConfiguration
}

// NewConfiguration creates a new configuration with defaults
func NewConfiguration() *Configuration {
	return &Configuration{
		MatrixConfiguration: memprobeconfig.NewMatrixConfiguration(),
		RunnerConfiguration: memprobeconfig.NewRunnerConfiguration(),
		OutputConfiguration: memprobeconfig.NewOutputConfiguration(),
	}
}

// Validate rejects contradictory or out of range options before anything is allocated.
// Per cell constraints are checked again when the matrix is built.
func (c *Configuration) Validate() error {
	var errs []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}

	check(len(c.Kinds) > 0, "no benchmark kind selected")
	for _, k := range c.Kinds {
		_, err := benchmark.ParseKind(string(k))
		check(err == nil, "unknown benchmark kind %q", k)
	}
	check(len(c.PatternKinds) > 0, "no access pattern selected")
	for _, p := range c.PatternKinds {
		_, err := pattern.ParseKind(string(p))
		check(err == nil, "unknown pattern %q", p)
	}
	check(len(c.RWModes) > 0, "no read/write mode selected")
	for _, m := range c.RWModes {
		_, err := pattern.ParseRWMode(string(m))
		check(err == nil, "unknown read/write mode %q", m)
	}
	for _, chunk := range c.ChunkSizes {
		_, err := kernel.WidthOf(chunk)
		check(err == nil, "unsupported chunk size %d", chunk)
	}
	validStrides := sets.New[int](pattern.ValidStrides...)
	check(len(c.Strides) > 0, "no stride selected")
	for _, s := range c.Strides {
		check(validStrides.Has(s), "unsupported stride %d", s)
	}
	check(len(c.Threads) > 0, "no thread count selected")
	for _, t := range c.Threads {
		check(t >= 1, "thread count %d below 1", t)
	}
	for _, d := range c.Delays {
		check(d >= 0, "negative delay %d", d)
	}
	for _, op := range c.StreamOps {
		_, err := kernel.ParseStreamOp(string(op))
		check(err == nil, "unknown stream op %q", op)
	}
	check(c.ProbeChunk == 0 || c.ProbeChunk >= pattern.MinChainChunk, "probe chunk %d below %d", c.ProbeChunk, pattern.MinChainChunk)
	check(c.VectorWidthHint >= 0, "negative vector width hint %d", c.VectorWidthHint)

	check(c.RegionSize > 0, "region size %d", c.RegionSize)
	check(c.Duration > 0 || c.Passes > 0, "neither duration nor passes set")
	check(c.Trials >= 1, "trials %d below 1", c.Trials)
	check(c.BaseIndex >= 0, "negative base index %d", c.BaseIndex)

	check(c.ClockSource == timer.SourceOS || c.ClockSource == timer.SourceTSC, "unknown clock source %q", c.ClockSource)
	check(c.CVThreshold > 0, "cv threshold %v must be positive", c.CVThreshold)
	check(c.CellTimeout >= 0, "negative cell timeout %v", c.CellTimeout)
	check(c.SettleCPUPercent >= 0 && c.SettleCPUPercent <= 100, "settle cpu percent %v out of range", c.SettleCPUPercent)
	if c.SettleCPUPercent > 0 {
		check(c.SettleInterval > 0 && c.SettleTimeout > 0, "settle interval and timeout must be positive")
	}
	check(!c.ResctrlObserve || c.ResctrlMonGroup != "", "resctrl observation needs a monitor group")

	check(sets.New[string](memprobeconfig.Formats...).Has(c.Format), "unknown output format %q", c.Format)
	check(c.Format != memprobeconfig.FormatSQLite || c.Destination != memprobeconfig.StdoutDestination,
		"sqlite output needs a file destination")

	if len(errs) > 0 {
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "%v", errs)
	}
	return nil
}
