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

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/worker"
)

// throughputBenchmark runs one bandwidth worker per load region, each until
// the target, and reports their aggregate bandwidth. It serves both the
// pattern driven throughput kind and the stream kind.
type throughputBenchmark struct {
	cfg Config
}

func (b *throughputBenchmark) Config() Config { return b.cfg }

func (b *throughputBenchmark) Run(ctx context.Context, env Env, res Resources) (Sample, error) {
	if len(res.Load) == 0 || len(res.Load) != len(res.LoadCPUs) {
		return Sample{}, errors.Errorf("%s needs one cpu per region, got %d regions and %d cpus",
			b.cfg.Name, len(res.Load), len(res.LoadCPUs))
	}

	workers := make([]*worker.Worker, len(res.Load))
	kernels := make([]*loadKernel, len(res.Load))
	degraded := false
	for i, r := range res.Load {
		k, err := newLoadKernel(b.cfg, r.Bytes(), b.cfg.Seed.Derive(i))
		if err != nil {
			return Sample{}, err
		}
		kernels[i] = k
		// every worker is a load worker so nothing waits on WaitActive
		workers[i] = &worker.Worker{ID: i, CPU: res.LoadCPUs[i], Role: worker.RoleLoad, Region: r}
		degraded = degraded || r.Degraded()
	}

	err := worker.Run(ctx, env.Topology, workers, func(w *worker.Worker, c *worker.Control) error {
		return runLoad(env.Timer, w, c, kernels[w.ID], b.cfg.Target, false)
	})
	if err != nil {
		return Sample{}, err
	}

	mbps, bytes, mean, warn, err := bandwidth(env.Timer, workers, true)
	if err != nil {
		return Sample{}, err
	}
	var accesses uint64
	for _, w := range workers {
		accesses += w.Accesses
	}
	return Sample{
		Elapsed:  mean,
		Accesses: accesses,
		Bytes:    bytes,
		Metric:   mbps,
		Warning:  warn,
		Degraded: degraded,
	}, nil
}
