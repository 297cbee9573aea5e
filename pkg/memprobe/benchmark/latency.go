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
	"time"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/worker"
)

// latencyBenchmark measures unloaded latency with a single pointer chasing worker
type latencyBenchmark struct {
	cfg Config
}

func (b *latencyBenchmark) Config() Config { return b.cfg }

func (b *latencyBenchmark) Run(ctx context.Context, env Env, res Resources) (Sample, error) {
	if res.Probe == nil {
		return Sample{}, errors.New("latency benchmark needs a probe region")
	}

	chain := b.cfg.Pattern
	chain.RW = pattern.RWRead
	start, err := embedProbeChain(res.Probe.Bytes(), chain, b.cfg.Seed)
	if err != nil {
		return Sample{}, err
	}

	w := &worker.Worker{ID: 0, CPU: res.ProbeCPU, Role: worker.RoleLatency, Region: res.Probe}
	err = worker.Run(ctx, env.Topology, []*worker.Worker{w}, func(w *worker.Worker, c *worker.Control) error {
		return runProbe(env.Timer, w, c, start, chain.ChunkSize, b.cfg.Target, false)
	})
	if err != nil {
		return Sample{}, err
	}

	s, err := probeSample(env.Timer, w)
	if err != nil {
		return Sample{}, err
	}
	s.Degraded = res.Probe.Degraded()
	return s, nil
}

// embedProbeChain writes the latency chain into buf and returns its first offset
func embedProbeChain(buf []byte, p pattern.Pattern, seed pattern.Seed) (uint64, error) {
	offsets, err := pattern.Offsets(len(buf), p, seed)
	if err != nil {
		return 0, err
	}
	if err := pattern.EmbedChain(buf, offsets); err != nil {
		return 0, err
	}
	return offsets[0], nil
}

// runProbe is the body of a latency worker. With waitLoad it starts timing
// only once every load worker is active, and raises the stop flag when done.
func runProbe(tm *timer.Timer, w *worker.Worker, c *worker.Control, start uint64, chunk int, target Target, waitLoad bool) error {
	base := w.Region.Base()
	prime(w.Region)

	// one unmeasured lap of the chain
	links := w.Region.Len() / chunk
	links = (links + kernel.ChaseUnroll - 1) / kernel.ChaseUnroll * kernel.ChaseUnroll
	off := kernel.Chase(base, start, links)

	if !c.WaitStart() {
		return cancelled(w, "aborted before start")
	}
	if waitLoad && !c.WaitActive() {
		return cancelled(w, "aborted waiting for load")
	}

	var (
		elapsed time.Duration
		passes  uint64
	)
	for !target.Reached(elapsed, passes) {
		if c.Stopped() {
			return cancelled(w, "stopped before target")
		}
		n := target.batch(passes)
		t0 := tm.Now()
		off = kernel.Chase(base, off, int(n)*AccessesPerPass)
		t1 := tm.End()
		elapsed += tm.Elapsed(t0, t1)
		passes += n
	}
	c.Stop()

	var dummy time.Duration
	doff := start
	for p := uint64(0); p < passes; {
		n := min(batchPasses, passes-p)
		t0 := tm.Now()
		doff = kernel.DummyChase(doff, int(n)*AccessesPerPass)
		t1 := tm.End()
		dummy += tm.Elapsed(t0, t1)
		p += n
	}
	kernel.Consume(off + doff)

	w.Passes = passes
	w.Accesses = passes * AccessesPerPass
	w.Elapsed = elapsed
	w.Dummy = dummy
	return nil
}
