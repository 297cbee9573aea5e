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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/kubewharf/katalyst-memprobe/pkg/config"
	memprobeconfig "github.com/kubewharf/katalyst-memprobe/pkg/config/memprobe"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
)

func parse(t *testing.T, args ...string) *Options {
	t.Helper()

	o := NewOptions()
	fss := &cliflag.NamedFlagSets{}
	o.AddFlags(fss)

	fs := pflag.NewFlagSet("memprobe", pflag.ContinueOnError)
	for _, name := range fss.Order {
		fs.AddFlagSet(fss.FlagSets[name])
	}
	require.NoError(t, fs.Parse(args))
	return o
}

func TestOptions_defaults(t *testing.T) {
	t.Parallel()

	conf, err := parse(t).Config()
	require.NoError(t, err)

	defaults := config.NewConfiguration()
	assert.Equal(t, defaults.Kinds, conf.Kinds)
	assert.Equal(t, defaults.PatternKinds, conf.PatternKinds)
	assert.Equal(t, defaults.RWModes, conf.RWModes)
	assert.Equal(t, defaults.StreamOps, conf.StreamOps)
	assert.Equal(t, defaults.RegionSize, conf.RegionSize)
	assert.Equal(t, defaults.Duration, conf.Duration)
	assert.Equal(t, defaults.Trials, conf.Trials)
	assert.Equal(t, region.NoNode, conf.LoadCPUNode)
	assert.Equal(t, region.HugePagesOff, conf.HugePages)
	assert.False(t, conf.Seed.Set)
	assert.Empty(t, conf.ChunkSizes)
	assert.Equal(t, timer.SourceOS, conf.ClockSource)
	assert.Equal(t, memprobeconfig.FormatCSV, conf.Format)
	assert.Equal(t, memprobeconfig.StdoutDestination, conf.Destination)
}

func TestOptions_flags(t *testing.T) {
	t.Parallel()

	conf, err := parse(t,
		"--benchmarks=loaded-latency,stream",
		"--patterns=random",
		"--rw-modes=read,copy",
		"--chunk-sizes=4B,8,64B",
		"--strides=1,-2",
		"--threads=2,4",
		"--delays=0,32",
		"--stream-ops=Triad",
		"--probe-chunk=128",
		"--region-size=16MiB",
		"--duration=50ms",
		"--passes=64",
		"--trials=5",
		"--seed=0x2a",
		"--base-index=10",
		"--mem-nodes=0",
		"--cpu-nodes=0,1",
		"--load-cpu-node=1",
		"--huge-pages=preferred",
		"--clock=tsc",
		"--cv-threshold=0.1",
		"--cell-timeout=1m",
		"--settle-cpu-percent=20",
		"--resctrl-observe",
		"--output-format=jsonl",
		"-o", "out.jsonl",
	).Config()
	require.NoError(t, err)

	assert.Equal(t, []benchmark.Kind{benchmark.KindLoadedLatency, benchmark.KindStream}, conf.Kinds)
	assert.Equal(t, []pattern.Kind{pattern.KindRandom}, conf.PatternKinds)
	assert.Equal(t, []pattern.RWMode{pattern.RWRead, pattern.RWCopy}, conf.RWModes)
	assert.Equal(t, []int{4, 8, 64}, conf.ChunkSizes)
	assert.Equal(t, []int{1, -2}, conf.Strides)
	assert.Equal(t, []int{2, 4}, conf.Threads)
	assert.Equal(t, []int{0, 32}, conf.Delays)
	assert.Equal(t, []kernel.StreamOp{kernel.StreamTriad}, conf.StreamOps)
	assert.Equal(t, 128, conf.ProbeChunk)
	assert.Equal(t, 16<<20, conf.RegionSize)
	assert.Equal(t, 50*time.Millisecond, conf.Duration)
	assert.Equal(t, uint64(64), conf.Passes)
	assert.Equal(t, 5, conf.Trials)
	assert.Equal(t, pattern.FixedSeed(42), conf.Seed)
	assert.Equal(t, 10, conf.BaseIndex)
	assert.Equal(t, []int{0}, conf.MemNodes)
	assert.Equal(t, []int{0, 1}, conf.CPUNodes)
	assert.Equal(t, 1, conf.LoadCPUNode)
	assert.Equal(t, region.HugePagesPreferred, conf.HugePages)
	assert.Equal(t, timer.SourceTSC, conf.ClockSource)
	assert.Equal(t, 0.1, conf.CVThreshold)
	assert.Equal(t, time.Minute, conf.CellTimeout)
	assert.Equal(t, 20.0, conf.SettleCPUPercent)
	assert.True(t, conf.ResctrlObserve)
	assert.Equal(t, memprobeconfig.FormatJSONL, conf.Format)
	assert.Equal(t, "out.jsonl", conf.Destination)
}

func TestOptions_invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown benchmark", args: []string{"--benchmarks=bandwidth"}},
		{name: "unknown pattern", args: []string{"--patterns=zigzag"}},
		{name: "unknown rw mode", args: []string{"--rw-modes=append"}},
		{name: "unknown stream op", args: []string{"--stream-ops=fma"}},
		{name: "bad chunk size", args: []string{"--chunk-sizes=lots"}},
		{name: "zero region", args: []string{"--region-size=0"}},
		{name: "bad seed", args: []string{"--seed=abc"}},
		{name: "bad huge page policy", args: []string{"--huge-pages=always"}},
		{name: "unsupported chunk", args: []string{"--chunk-sizes=48"}},
		{name: "unsupported stride", args: []string{"--strides=3"}},
		{name: "no trials", args: []string{"--trials=0"}},
		{name: "unknown clock", args: []string{"--clock=hpet"}},
		{name: "sqlite to stdout", args: []string{"--output-format=sqlite"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := parse(t, tt.args...).Config()
			require.Error(t, err)
			assert.True(t, errors.Is(err, probeerrors.ErrInvalidConfig), err.Error())
		})
	}
}
