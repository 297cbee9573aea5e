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

// Package aggregator reduces the trial samples of one matrix cell into a
// report entry.
//
// The primary statistic of a latency cell is the minimum over trials, the
// fastest observation being the one least disturbed by the rest of the
// system. Throughput cells report the maximum for the same reason. All other
// statistics are kept next to it.
package aggregator

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
)

// DefaultCVThreshold marks a cell unreliable when its coefficient of
// variation exceeds 5%
const DefaultCVThreshold = 0.05

type Statistics struct {
	Best   float64 // min for latency, max for throughput
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	P25    float64
	P75    float64
	P95    float64
	P99    float64
	StdDev float64
	CV     float64
}

// Summarize computes the statistics of values; lowerIsBetter selects Best
func Summarize(values []float64, lowerIsBetter bool) Statistics {
	if len(values) == 0 {
		return Statistics{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s := Statistics{
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		P75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99:    stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	if s.Mean != 0 {
		s.CV = s.StdDev / math.Abs(s.Mean)
	}

	s.Best = s.Max
	if lowerIsBetter {
		s.Best = s.Min
	}
	return s
}

// ReportEntry is the immutable outcome of one cell
type ReportEntry struct {
	Config benchmark.Config
	Units  string
	Trials int

	Metric Statistics

	// load worker bandwidth of loaded latency kinds, nil otherwise
	LoadUnits string
	Load      *Statistics

	// mean resctrl observed bandwidth, -1 when not observed
	ObservedMBps float64

	Warning    bool
	Unreliable bool
	Degraded   bool
}

func (e *ReportEntry) String() string {
	flags := ""
	if e.Unreliable {
		flags += " unreliable"
	}
	if e.Warning {
		flags += " warning"
	}
	if e.Degraded {
		flags += " degraded"
	}
	s := fmt.Sprintf("%s: %.3f %s (mean %.3f, cv %.3f, %d trials)%s",
		e.Config.Name, e.Metric.Best, e.Units, e.Metric.Mean, e.Metric.CV, e.Trials, flags)
	if e.Load != nil {
		s += fmt.Sprintf(" load %.1f %s", e.Load.Best, e.LoadUnits)
	}
	return s
}

type Aggregator struct {
	CVThreshold float64
}

func NewAggregator(cvThreshold float64) *Aggregator {
	if cvThreshold <= 0 {
		cvThreshold = DefaultCVThreshold
	}
	return &Aggregator{CVThreshold: cvThreshold}
}

// Reduce folds the samples of all trials of cfg. Unstable cells are flagged,
// never dropped.
func (a *Aggregator) Reduce(cfg benchmark.Config, samples []benchmark.Sample) (*ReportEntry, error) {
	if len(samples) == 0 {
		return nil, errors.Wrapf(probeerrors.ErrInvalidConfig, "%s: no samples to aggregate", cfg.Name)
	}

	metrics := make([]float64, 0, len(samples))
	loads := make([]float64, 0, len(samples))
	observed := make([]float64, 0, len(samples))
	entry := &ReportEntry{
		Config:       cfg,
		Units:        cfg.Kind.Units(),
		Trials:       len(samples),
		ObservedMBps: -1,
	}
	for _, s := range samples {
		metrics = append(metrics, s.Metric)
		loads = append(loads, s.LoadMetric)
		if s.ObservedMBps >= 0 {
			observed = append(observed, s.ObservedMBps)
		}
		entry.Warning = entry.Warning || s.Warning
		entry.Degraded = entry.Degraded || s.Degraded
	}

	entry.Metric = Summarize(metrics, cfg.Kind.MeasuresLatency())
	if cfg.Kind.HasLoad() {
		load := Summarize(loads, false)
		entry.Load = &load
		entry.LoadUnits = benchmark.UnitsThroughput
	}
	if len(observed) > 0 {
		entry.ObservedMBps = stat.Mean(observed, nil)
	}

	if entry.Metric.CV > a.CVThreshold {
		entry.Unreliable = true
		general.Warningf("memprobe: aggregator: %s cv %.3f above %.3f, kept as unreliable",
			cfg.Name, entry.Metric.CV, a.CVThreshold)
	}
	return entry, nil
}
