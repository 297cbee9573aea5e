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
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/machine"
)

type Kind string

const (
	KindLatency              Kind = "latency"
	KindThroughput           Kind = "throughput"
	KindLoadedLatency        Kind = "loaded-latency"
	KindDelayInjectedLatency Kind = "delay-injected-latency"
	KindStream               Kind = "stream"
)

var Kinds = []Kind{KindLatency, KindThroughput, KindLoadedLatency, KindDelayInjectedLatency, KindStream}

const (
	UnitsLatency    = "ns/access"
	UnitsThroughput = "MB/s"
)

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == strings.ToLower(s) {
			return k, nil
		}
	}
	return "", errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown benchmark kind %q", s)
}

// MeasuresLatency is true for kinds whose primary metric is ns/access
func (k Kind) MeasuresLatency() bool {
	return k == KindLatency || k == KindLoadedLatency || k == KindDelayInjectedLatency
}

// HasLoad is true for kinds that report load worker bandwidth next to latency
func (k Kind) HasLoad() bool {
	return k == KindLoadedLatency || k == KindDelayInjectedLatency
}

func (k Kind) Units() string {
	if k.MeasuresLatency() {
		return UnitsLatency
	}
	return UnitsThroughput
}

// Target ends a measurement: a pass count when Passes is set, a measured duration otherwise
type Target struct {
	Duration time.Duration
	Passes   uint64
}

func (t Target) Reached(elapsed time.Duration, passes uint64) bool {
	if t.Passes > 0 {
		return passes >= t.Passes
	}
	return elapsed >= t.Duration
}

// batch is the number of passes until the next timer reading. A pass count
// target ends on a short batch instead of overshooting.
func (t Target) batch(done uint64) uint64 {
	if t.Passes > done && t.Passes-done < batchPasses {
		return t.Passes - done
	}
	return batchPasses
}

func (t Target) String() string {
	if t.Passes > 0 {
		return fmt.Sprintf("%d passes", t.Passes)
	}
	return t.Duration.String()
}

// Config is one immutable cell of the benchmark matrix
type Config struct {
	Index int
	Name  string
	Kind  Kind

	// Pattern drives the bandwidth and load workers. For KindLatency it is
	// the order of the probe chain.
	Pattern pattern.Pattern
	// ProbeChunk is the spacing of the latency chain of loaded latency kinds
	ProbeChunk int
	RegionSize int // bytes per worker
	Threads    int // bandwidth workers, or load workers next to the latency worker

	MemNode     int
	CPUNode     int
	LoadCPUNode int // region.NoNode means CPUNode
	HugePages   region.HugePagePolicy

	Target Target
	Trials int

	Delay    int             // delay-injected latency only
	StreamOp kernel.StreamOp // stream only
	Seed     pattern.Seed
}

func (c Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s mem=%d cpu=%d", c.Name, c.MemNode, c.CPUNode)
	switch c.Kind {
	case KindLatency:
		fmt.Fprintf(&sb, " chain=%s", c.Pattern)
	case KindStream:
		fmt.Fprintf(&sb, " op=%s threads=%d", c.StreamOp, c.Threads)
	case KindDelayInjectedLatency:
		fmt.Fprintf(&sb, " load=%s threads=%d delay=%d", c.Pattern, c.Threads, c.Delay)
	default:
		fmt.Fprintf(&sb, " %s threads=%d", c.Pattern, c.Threads)
	}
	fmt.Fprintf(&sb, " region=%s", humanize.IBytes(uint64(c.RegionSize)))
	return sb.String()
}

// LoadNode is the cpu node of the load workers
func (c Config) LoadNode() int {
	if c.LoadCPUNode == region.NoNode {
		return c.CPUNode
	}
	return c.LoadCPUNode
}

// Validate checks the cell on its own; placement on the machine is checked by the runner
func (c Config) Validate() error {
	if c.Trials < 1 {
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: trials %d", c.Name, c.Trials)
	}
	if c.Target.Duration <= 0 && c.Target.Passes == 0 {
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: neither duration nor passes set", c.Name)
	}
	if c.RegionSize <= 0 {
		return errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: region size %d", c.Name, c.RegionSize)
	}

	switch c.Kind {
	case KindLatency:
		if c.Pattern.ChunkSize < pattern.MinChainChunk {
			return errors.Wrapf(probeerrors.ErrChunkTooSmall, "%s: latency chain chunk %d", c.Name, c.Pattern.ChunkSize)
		}
		return c.Pattern.Validate(c.RegionSize)
	case KindThroughput:
		if c.Threads < 1 {
			return errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: threads %d", c.Name, c.Threads)
		}
		return validateLoadPattern(c)
	case KindLoadedLatency, KindDelayInjectedLatency:
		if c.Threads < 0 {
			return errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: load threads %d", c.Name, c.Threads)
		}
		probe := pattern.Pattern{Kind: pattern.KindRandom, ChunkSize: c.ProbeChunk, RW: pattern.RWRead}
		if err := probe.Validate(c.RegionSize); err != nil {
			return errors.Wrapf(err, "%s: probe chain", c.Name)
		}
		if c.Kind == KindDelayInjectedLatency {
			return validateDelayLoad(c)
		}
		return validateLoadPattern(c)
	case KindStream:
		if c.Threads < 1 {
			return errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: threads %d", c.Name, c.Threads)
		}
		return validateStream(c)
	}
	return errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: unknown kind %q", c.Name, c.Kind)
}

// Sample is the outcome of one trial of one cell
type Sample struct {
	Elapsed  time.Duration // adjusted measured window; mean over workers for bandwidth
	Accesses uint64
	Bytes    uint64

	Metric      float64 // ns/access or MB/s, see Kind.Units
	LoadMetric  float64 // MB/s of the load workers, loaded latency kinds only
	LoadThreads int

	Warning  bool // overhead or window checks flagged the measurement
	Degraded bool // huge pages were preferred but not obtained

	ObservedMBps float64 // resctrl mbm bandwidth during the trial, -1 if not observed
}

// Resources are the regions and cpus the runner prepared for one trial
type Resources struct {
	Probe    *region.Region
	ProbeCPU int
	Load     []*region.Region
	LoadCPUs []int
}

type Env struct {
	Timer    *timer.Timer
	Topology machine.Topology
}

type Benchmark interface {
	Config() Config
	Run(ctx context.Context, env Env, res Resources) (Sample, error)
}

// New returns the benchmark implementing cfg.Kind
func New(cfg Config) (Benchmark, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindLatency:
		return &latencyBenchmark{cfg: cfg}, nil
	case KindThroughput, KindStream:
		return &throughputBenchmark{cfg: cfg}, nil
	case KindLoadedLatency, KindDelayInjectedLatency:
		return &loadedLatencyBenchmark{cfg: cfg}, nil
	}
	return nil, errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown kind %q", cfg.Kind)
}
