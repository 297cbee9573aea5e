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

// Package runner drives the benchmark matrix: one cell after another, each
// trial on freshly allocated regions, samples folded by the aggregator.
package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/resctrl"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/machine"
)

// Result is what a run produced; Skipped cells keep their configuration attached
type Result struct {
	Entries []*aggregator.ReportEntry
	Skipped []*probeerrors.CellError
}

// Sink receives every entry as soon as its cell completes
type Sink func(entry *aggregator.ReportEntry) error

type Runner struct {
	topology   machine.Topology
	allocator  region.Allocator
	timer      *timer.Timer
	aggregator *aggregator.Aggregator

	observer    resctrl.Observer
	settler     Settler
	sink        Sink
	cellTimeout time.Duration

	newBenchmark func(cfg benchmark.Config) (benchmark.Benchmark, error)
}

type Option func(r *Runner)

func WithObserver(o resctrl.Observer) Option {
	return func(r *Runner) { r.observer = o }
}

func WithSettler(s Settler) Option {
	return func(r *Runner) { r.settler = s }
}

func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithCellTimeout bounds each trial; an expired trial stops its workers and skips the cell
func WithCellTimeout(d time.Duration) Option {
	return func(r *Runner) { r.cellTimeout = d }
}

func NewRunner(topology machine.Topology, allocator region.Allocator, tm *timer.Timer,
	agg *aggregator.Aggregator, opts ...Option,
) *Runner {
	r := &Runner{
		topology:     topology,
		allocator:    allocator,
		timer:        tm,
		aggregator:   agg,
		newBenchmark: benchmark.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cells strictly in order. Cell level failures are recorded in
// Result.Skipped and the run goes on; timer failures and cancellation of ctx
// end the run and return what was collected so far.
func (r *Runner) Run(ctx context.Context, cells []benchmark.Config) (*Result, error) {
	result := &Result{}
	if !r.timer.Calibrated() {
		cal, err := r.timer.Calibrate()
		if err != nil {
			return result, err
		}
		general.Infof("memprobe: runner: timer %s", cal)
	}

	for _, cfg := range cells {
		if ctx.Err() != nil {
			return result, errors.Wrapf(probeerrors.ErrCancelled, "before %s: %v", cfg.Name, ctx.Err())
		}
		if r.settler != nil {
			if err := r.settler.Settle(ctx); err != nil {
				general.Warningf("memprobe: runner: %s starts unsettled: %v", cfg.Name, err)
			}
		}

		// every trial of a cell replays one chain, and the report carries its seed
		cfg.Seed = cfg.Seed.Resolve()
		general.Infof("memprobe: runner: %s seed %s", cfg, cfg.Seed)
		entry, err := r.runCell(ctx, cfg)
		if err != nil {
			if probeerrors.IsFatal(err) {
				return result, probeerrors.NewCellError(cfg.String(), err)
			}
			if ctx.Err() != nil {
				return result, errors.Wrapf(probeerrors.ErrCancelled, "during %s: %v", cfg.Name, err)
			}
			cellErr := probeerrors.NewCellError(cfg.String(), err)
			general.Warningf("memprobe: runner: skipped: %v", cellErr)
			result.Skipped = append(result.Skipped, cellErr)
			continue
		}

		general.Infof("memprobe: runner: %s", entry)
		result.Entries = append(result.Entries, entry)
		if r.sink != nil {
			if err := r.sink(entry); err != nil {
				return result, errors.Wrapf(err, "failed to write %s", cfg.Name)
			}
		}
	}
	return result, nil
}

func (r *Runner) runCell(ctx context.Context, cfg benchmark.Config) (*aggregator.ReportEntry, error) {
	b, err := r.newBenchmark(cfg)
	if err != nil {
		return nil, err
	}
	probeCPU, loadCPUs, err := r.assignCPUs(cfg)
	if err != nil {
		return nil, err
	}

	env := benchmark.Env{Timer: r.timer, Topology: r.topology}
	samples := make([]benchmark.Sample, 0, cfg.Trials)
	for trial := 0; trial < cfg.Trials; trial++ {
		s, err := r.runTrial(ctx, b, env, probeCPU, loadCPUs)
		if err != nil {
			return nil, errors.Wrapf(err, "trial %d", trial)
		}
		general.InfofV(2, "memprobe: runner: %s trial %d: %.3f %s", cfg.Name, trial, s.Metric, cfg.Kind.Units())
		samples = append(samples, s)
	}
	return r.aggregator.Reduce(cfg, samples)
}

func (r *Runner) runTrial(ctx context.Context, b benchmark.Benchmark, env benchmark.Env, probeCPU int, loadCPUs []int) (benchmark.Sample, error) {
	res, release, err := r.allocate(b.Config(), probeCPU, loadCPUs)
	if err != nil {
		return benchmark.Sample{}, err
	}
	defer release()

	if r.cellTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cellTimeout)
		defer cancel()
	}

	var before resctrl.Snapshot
	if r.observer != nil {
		before = r.observer.Snapshot(time.Now())
	}
	s, err := b.Run(ctx, env, res)
	if err != nil {
		return benchmark.Sample{}, err
	}
	s.ObservedMBps = resctrl.InvalidMB
	if r.observer != nil {
		s.ObservedMBps = r.observer.Bandwidth(before, r.observer.Snapshot(time.Now()))
	}
	return s, nil
}

// assignCPUs picks the latency worker cpu and one distinct cpu per load or
// bandwidth worker from the nodes of cfg
func (r *Runner) assignCPUs(cfg benchmark.Config) (int, []int, error) {
	cpus := r.topology.CPUsInNUMANode(cfg.CPUNode)
	if len(cpus) == 0 {
		return 0, nil, errors.Wrapf(probeerrors.ErrNUMANodeInvalid, "cpu node %d has no cpus", cfg.CPUNode)
	}

	switch {
	case cfg.Kind == benchmark.KindLatency:
		return cpus[0], nil, nil
	case !cfg.Kind.MeasuresLatency():
		if len(cpus) < cfg.Threads {
			return 0, nil, errors.Wrapf(probeerrors.ErrNotEnoughCPUs, "%d workers on node %d with %d cpus",
				cfg.Threads, cfg.CPUNode, len(cpus))
		}
		return 0, cpus[:cfg.Threads], nil
	}

	probeCPU := cpus[0]
	loadNode := cfg.LoadNode()
	loadPool := cpus[1:]
	if loadNode != cfg.CPUNode {
		loadPool = r.topology.CPUsInNUMANode(loadNode)
		if len(loadPool) == 0 {
			return 0, nil, errors.Wrapf(probeerrors.ErrNUMANodeInvalid, "load node %d has no cpus", loadNode)
		}
	}
	if len(loadPool) < cfg.Threads {
		return 0, nil, errors.Wrapf(probeerrors.ErrNotEnoughCPUs, "%d load workers on node %d with %d spare cpus",
			cfg.Threads, loadNode, len(loadPool))
	}
	return probeCPU, loadPool[:cfg.Threads], nil
}

// allocate gets fresh regions for one trial; release frees all of them
func (r *Runner) allocate(cfg benchmark.Config, probeCPU int, loadCPUs []int) (benchmark.Resources, func(), error) {
	res := benchmark.Resources{ProbeCPU: probeCPU, LoadCPUs: loadCPUs}
	release := func() {
		regions := res.Load
		if res.Probe != nil {
			regions = append([]*region.Region{res.Probe}, regions...)
		}
		for _, rg := range regions {
			if err := rg.Release(); err != nil {
				general.Warningf("memprobe: runner: failed to release %s: %v", rg, err)
			}
		}
	}

	if cfg.Kind.MeasuresLatency() {
		chunk := cfg.ProbeChunk
		if cfg.Kind == benchmark.KindLatency {
			chunk = cfg.Pattern.ChunkSize
		}
		probe, err := r.allocator.Allocate(region.Request{
			Size:      cfg.RegionSize,
			ChunkSize: chunk,
			Node:      cfg.MemNode,
			HugePages: cfg.HugePages,
		})
		if err != nil {
			return res, nil, err
		}
		res.Probe = probe
	}

	for range loadCPUs {
		rg, err := r.allocator.Allocate(region.Request{
			Size:      cfg.RegionSize,
			ChunkSize: cfg.Pattern.ChunkSize,
			Node:      cfg.MemNode,
			HugePages: cfg.HugePages,
		})
		if err != nil {
			release()
			return res, nil, err
		}
		res.Load = append(res.Load, rg)
	}
	return res, release, nil
}
