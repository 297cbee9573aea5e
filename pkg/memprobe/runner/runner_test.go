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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/resctrl"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/machine"
)

type mockBenchmark struct {
	mock.Mock
	cfg benchmark.Config
}

func (m *mockBenchmark) Config() benchmark.Config {
	return m.cfg
}

func (m *mockBenchmark) Run(ctx context.Context, env benchmark.Env, res benchmark.Resources) (benchmark.Sample, error) {
	args := m.Called(res.Probe != nil, len(res.Load))
	return args.Get(0).(benchmark.Sample), args.Error(1)
}

type fakeObserver struct {
	mbps float64
}

func (f *fakeObserver) Snapshot(ts time.Time) resctrl.Snapshot {
	return resctrl.Snapshot{Time: ts}
}

func (f *fakeObserver) Bandwidth(prev, curr resctrl.Snapshot) float64 {
	return f.mbps
}

func oneNodeTopology() machine.Topology {
	return machine.NewCPUTopology(map[int][]int{0: {0, 1, 2, 3}}, machine.HugePageInfo{}).
		WithPinner(func(int) error { return nil })
}

func calibratedTimer() *timer.Timer {
	return timer.NewCalibrated(timer.NewOSClock(), timer.Calibration{NsPerTick: 1, Resolution: time.Nanosecond})
}

func cell(name string, kind benchmark.Kind, threads int) benchmark.Config {
	return benchmark.Config{
		Name:        name,
		Kind:        kind,
		Pattern:     pattern.Pattern{Kind: pattern.KindRandom, ChunkSize: 64, Stride: 1, RW: pattern.RWRead},
		ProbeChunk:  64,
		RegionSize:  64 << 10,
		Threads:     threads,
		LoadCPUNode: region.NoNode,
		Target:      benchmark.Target{Duration: time.Millisecond},
		Trials:      2,
	}
}

func newMockedRunner(benches map[string]*mockBenchmark, opts ...Option) *Runner {
	topology := oneNodeTopology()
	r := NewRunner(topology, region.NewAllocator(topology), calibratedTimer(), aggregator.NewAggregator(0), opts...)
	r.newBenchmark = func(cfg benchmark.Config) (benchmark.Benchmark, error) {
		b := benches[cfg.Name]
		b.cfg = cfg
		return b, nil
	}
	return r
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	latency := new(mockBenchmark)
	latency.On("Run", true, 0).Return(benchmark.Sample{Metric: 80}, nil).Twice()
	unpinnable := new(mockBenchmark)
	unpinnable.On("Run", false, 2).Return(benchmark.Sample{}, errors.Wrap(probeerrors.ErrPinFailed, "cpu 1"))
	loaded := new(mockBenchmark)
	loaded.On("Run", true, 1).Return(benchmark.Sample{Metric: 100, LoadMetric: 5000, LoadThreads: 1}, nil).Twice()

	var sunk []string
	r := newMockedRunner(map[string]*mockBenchmark{
		"Test #1": latency,
		"Test #2": unpinnable,
		"Test #3": loaded,
	}, WithSink(func(e *aggregator.ReportEntry) error {
		sunk = append(sunk, e.Config.Name)
		return nil
	}))

	result, err := r.Run(context.Background(), []benchmark.Config{
		cell("Test #1", benchmark.KindLatency, 0),
		cell("Test #2", benchmark.KindThroughput, 2),
		cell("Test #3", benchmark.KindLoadedLatency, 1),
	})
	require.NoError(t, err)

	require.Len(t, result.Entries, 2)
	assert.Equal(t, "Test #1", result.Entries[0].Config.Name)
	assert.Equal(t, 80.0, result.Entries[0].Metric.Best)
	assert.Equal(t, float64(resctrl.InvalidMB), result.Entries[0].ObservedMBps)
	assert.Equal(t, "Test #3", result.Entries[1].Config.Name)
	require.NotNil(t, result.Entries[1].Load)
	assert.Equal(t, 5000.0, result.Entries[1].Load.Best)

	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Cell, "Test #2")
	assert.True(t, errors.Is(result.Skipped[0], probeerrors.ErrPinFailed))
	assert.Equal(t, probeerrors.KindAffinity, result.Skipped[0].Kind())

	assert.Equal(t, []string{"Test #1", "Test #3"}, sunk)
	latency.AssertExpectations(t)
	unpinnable.AssertNumberOfCalls(t, "Run", 1)
	loaded.AssertExpectations(t)
}

func TestRunner_Run_observer(t *testing.T) {
	t.Parallel()

	b := new(mockBenchmark)
	b.On("Run", false, 1).Return(benchmark.Sample{Metric: 9000}, nil)
	r := newMockedRunner(map[string]*mockBenchmark{"Test #1": b}, WithObserver(&fakeObserver{mbps: 8500}))

	result, err := r.Run(context.Background(), []benchmark.Config{cell("Test #1", benchmark.KindThroughput, 1)})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, 8500.0, result.Entries[0].ObservedMBps)
}

func TestRunner_Run_fatalTimer(t *testing.T) {
	t.Parallel()

	b := new(mockBenchmark)
	b.On("Run", true, 0).Return(benchmark.Sample{}, errors.Wrap(probeerrors.ErrTimerCalibration, "clock jumped"))
	never := new(mockBenchmark)
	r := newMockedRunner(map[string]*mockBenchmark{"Test #1": b, "Test #2": never})

	result, err := r.Run(context.Background(), []benchmark.Config{
		cell("Test #1", benchmark.KindLatency, 0),
		cell("Test #2", benchmark.KindLatency, 0),
	})
	assert.True(t, errors.Is(err, probeerrors.ErrTimerCalibration))
	assert.True(t, probeerrors.IsFatal(err))
	assert.Empty(t, result.Entries)
	assert.Empty(t, result.Skipped)
	never.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunner_Run_uncalibratableClock(t *testing.T) {
	t.Parallel()

	topology := oneNodeTopology()
	r := NewRunner(topology, region.NewAllocator(topology), timer.New(timer.NewFakeClock(0)), aggregator.NewAggregator(0))
	_, err := r.Run(context.Background(), []benchmark.Config{cell("Test #1", benchmark.KindLatency, 0)})
	assert.True(t, errors.Is(err, probeerrors.ErrTimerCalibration))
}

func TestRunner_Run_cancelled(t *testing.T) {
	t.Parallel()

	never := new(mockBenchmark)
	r := newMockedRunner(map[string]*mockBenchmark{"Test #1": never})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := r.Run(ctx, []benchmark.Config{cell("Test #1", benchmark.KindLatency, 0)})
	assert.True(t, errors.Is(err, probeerrors.ErrCancelled))
	assert.Empty(t, result.Entries)
	never.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunner_Run_requiredHugePages(t *testing.T) {
	t.Parallel()

	never := new(mockBenchmark)
	r := newMockedRunner(map[string]*mockBenchmark{"Test #1": never})

	c := cell("Test #1", benchmark.KindLatency, 0)
	c.HugePages = region.HugePagesRequired
	result, err := r.Run(context.Background(), []benchmark.Config{c})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
	require.Len(t, result.Skipped, 1)
	assert.True(t, errors.Is(result.Skipped[0], probeerrors.ErrHugePagesUnavailable))
	assert.Equal(t, probeerrors.KindAllocation, result.Skipped[0].Kind())
	never.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunner_assignCPUs(t *testing.T) {
	t.Parallel()

	withLoadNode := func(c benchmark.Config, node int) benchmark.Config {
		c.LoadCPUNode = node
		return c
	}
	withCPUNode := func(c benchmark.Config, node int) benchmark.Config {
		c.CPUNode = node
		return c
	}

	tests := []struct {
		name      string
		cfg       benchmark.Config
		wantProbe int
		wantLoad  []int
		wantErr   error
	}{
		{
			name:      "latency on the second node",
			cfg:       withCPUNode(cell("latency", benchmark.KindLatency, 0), 1),
			wantProbe: 2,
		},
		{
			name:     "throughput fills the node",
			cfg:      cell("throughput", benchmark.KindThroughput, 2),
			wantLoad: []int{0, 1},
		},
		{
			name:    "throughput beyond the node",
			cfg:     cell("throughput", benchmark.KindThroughput, 3),
			wantErr: probeerrors.ErrNotEnoughCPUs,
		},
		{
			name:      "loaded latency next to its load",
			cfg:       cell("loaded", benchmark.KindLoadedLatency, 1),
			wantProbe: 0,
			wantLoad:  []int{1},
		},
		{
			name:    "loaded latency without spare cpus",
			cfg:     cell("loaded", benchmark.KindLoadedLatency, 2),
			wantErr: probeerrors.ErrNotEnoughCPUs,
		},
		{
			name:      "remote load",
			cfg:       withLoadNode(cell("loaded", benchmark.KindLoadedLatency, 2), 1),
			wantProbe: 0,
			wantLoad:  []int{2, 3},
		},
		{
			name:    "unknown node",
			cfg:     withCPUNode(cell("latency", benchmark.KindLatency, 0), 5),
			wantErr: probeerrors.ErrNUMANodeInvalid,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			topology := twoNodeTopology()
			r := NewRunner(topology, region.NewAllocator(topology), calibratedTimer(), aggregator.NewAggregator(0))
			probe, load, err := r.assignCPUs(tt.cfg)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProbe, probe)
			assert.Equal(t, tt.wantLoad, load)
		})
	}
}

func TestRunner_Run_realBenchmarks(t *testing.T) {
	t.Parallel()

	conf := testConfiguration()
	conf.Kinds = []benchmark.Kind{benchmark.KindLatency, benchmark.KindThroughput, benchmark.KindLoadedLatency}
	conf.PatternKinds = []pattern.Kind{pattern.KindRandom}
	conf.RWModes = []pattern.RWMode{pattern.RWRead}
	conf.ChunkSizes = []int{64}
	conf.Threads = []int{2}
	conf.RegionSize = 256 << 10
	conf.Duration = 2 * time.Millisecond
	conf.Trials = 2

	topology := oneNodeTopology()
	cells, skipped := BuildMatrix(conf, topology, testCapability)
	require.Empty(t, skipped)
	require.Len(t, cells, 3)

	tm := timer.New(timer.NewOSClock())
	r := NewRunner(topology, region.NewAllocator(topology), tm, aggregator.NewAggregator(0), WithCellTimeout(time.Minute))
	result, err := r.Run(context.Background(), cells)
	require.NoError(t, err)
	assert.Empty(t, result.Skipped)
	require.Len(t, result.Entries, 3)
	assert.True(t, tm.Calibrated())
	for _, e := range result.Entries {
		assert.Greater(t, e.Metric.Best, 0.0, e.Config.Name)
		assert.Equal(t, 2, e.Trials)
	}
}

// chainRecorder runs a real benchmark and keeps a copy of the probe region
// it leaves behind, which holds the embedded chain
type chainRecorder struct {
	benchmark.Benchmark
	chains *[][]byte
}

func (c *chainRecorder) Run(ctx context.Context, env benchmark.Env, res benchmark.Resources) (benchmark.Sample, error) {
	s, err := c.Benchmark.Run(ctx, env, res)
	if err == nil && res.Probe != nil {
		*c.chains = append(*c.chains, append([]byte(nil), res.Probe.Bytes()...))
	}
	return s, err
}

func TestRunner_Run_seedReplaysChain(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, seed pattern.Seed) ([][]byte, pattern.Seed) {
		topology := oneNodeTopology()
		r := NewRunner(topology, region.NewAllocator(topology), calibratedTimer(), aggregator.NewAggregator(0))
		var chains [][]byte
		r.newBenchmark = func(cfg benchmark.Config) (benchmark.Benchmark, error) {
			b, err := benchmark.New(cfg)
			if err != nil {
				return nil, err
			}
			return &chainRecorder{Benchmark: b, chains: &chains}, nil
		}

		c := cell("Test #1", benchmark.KindLatency, 0)
		c.Seed = seed
		result, err := r.Run(context.Background(), []benchmark.Config{c})
		require.NoError(t, err)
		require.Len(t, result.Entries, 1)
		require.Len(t, chains, c.Trials)
		return chains, result.Entries[0].Config.Seed
	}

	tests := []struct {
		name     string
		seed     pattern.Seed
		wantSame bool
	}{
		{name: "fixed seed", seed: pattern.FixedSeed(7), wantSame: true},
		{name: "unseeded", seed: pattern.Seed{}, wantSame: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			first, firstSeed := run(t, tt.seed)
			second, secondSeed := run(t, tt.seed)
			assert.True(t, firstSeed.Set)
			assert.True(t, secondSeed.Set)
			// trials of one cell always share the chain of its reported seed
			assert.Equal(t, first[0], first[1])
			assert.Equal(t, second[0], second[1])
			if tt.wantSame {
				assert.Equal(t, tt.seed, firstSeed)
				assert.Equal(t, firstSeed, secondSeed)
				assert.Equal(t, first[0], second[0])
				return
			}
			assert.NotEqual(t, firstSeed, secondSeed)
			assert.NotEqual(t, first[0], second[0])
		})
	}
}
