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
	"context"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/worker"
)

// loadedLatencyBenchmark measures latency on worker 0 while the other
// workers generate bandwidth load. Load workers run until worker 0 raises the
// stop flag. The delay-injected kind differs only in its load kernel.
type loadedLatencyBenchmark struct {
	cfg Config
}

func (b *loadedLatencyBenchmark) Config() Config { return b.cfg }

func (b *loadedLatencyBenchmark) Run(ctx context.Context, env Env, res Resources) (Sample, error) {
	if res.Probe == nil {
		return Sample{}, errors.Errorf("%s needs a probe region", b.cfg.Name)
	}
	if len(res.Load) != len(res.LoadCPUs) {
		return Sample{}, errors.Errorf("%s needs one cpu per load region, got %d regions and %d cpus",
			b.cfg.Name, len(res.Load), len(res.LoadCPUs))
	}

	probe := pattern.Pattern{Kind: pattern.KindRandom, ChunkSize: b.cfg.ProbeChunk, Stride: 1, RW: pattern.RWRead}
	start, err := embedProbeChain(res.Probe.Bytes(), probe, b.cfg.Seed)
	if err != nil {
		return Sample{}, err
	}

	workers := make([]*worker.Worker, 0, len(res.Load)+1)
	workers = append(workers, &worker.Worker{ID: 0, CPU: res.ProbeCPU, Role: worker.RoleLatency, Region: res.Probe})
	kernels := make([]*loadKernel, len(res.Load)+1)
	degraded := res.Probe.Degraded()
	for i, r := range res.Load {
		k, err := newLoadKernel(b.cfg, r.Bytes(), b.cfg.Seed.Derive(i+1))
		if err != nil {
			return Sample{}, err
		}
		kernels[i+1] = k
		workers = append(workers, &worker.Worker{ID: i + 1, CPU: res.LoadCPUs[i], Role: worker.RoleLoad, Region: r})
		degraded = degraded || r.Degraded()
	}

	err = worker.Run(ctx, env.Topology, workers, func(w *worker.Worker, c *worker.Control) error {
		if w.Role == worker.RoleLatency {
			return runProbe(env.Timer, w, c, start, probe.ChunkSize, b.cfg.Target, true)
		}
		return runLoad(env.Timer, w, c, kernels[w.ID], b.cfg.Target, true)
	})
	if err != nil {
		return Sample{}, err
	}

	s, err := probeSample(env.Timer, workers[0])
	if err != nil {
		return Sample{}, err
	}

	loadMBps, loadBytes, _, loadWarn, _ := bandwidth(env.Timer, workers[1:], false)
	s.Bytes = loadBytes
	s.LoadMetric = loadMBps
	s.LoadThreads = len(res.Load)
	s.Warning = s.Warning || loadWarn
	s.Degraded = degraded
	return s, nil
}
