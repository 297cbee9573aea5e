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

package report

import (
	"strconv"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
)

// Record is the flat form of a report entry shared by every writer. Field
// order is the column order and must stay stable.
type Record struct {
	Index       int     `json:"index"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	MemNode     int     `json:"mem_node"`
	CPUNode     int     `json:"cpu_node"`
	LoadCPUNode int     `json:"load_cpu_node"`
	Pattern     string  `json:"pattern"`
	RW          string  `json:"rw"`
	ChunkBytes  int     `json:"chunk_bytes"`
	Stride      int     `json:"stride"`
	Threads     int     `json:"threads"`
	RegionBytes int     `json:"region_bytes"`
	HugePages   string  `json:"huge_pages"`
	Delay       int     `json:"delay"`
	StreamOp    string  `json:"stream_op"`
	ProbeChunk  int     `json:"probe_chunk_bytes"`
	Seed        int64   `json:"seed"`
	DurationNs  int64   `json:"duration_ns"`
	Passes      uint64  `json:"passes"`
	Trials      int     `json:"trials"`
	Units       string  `json:"units"`
	Best        float64 `json:"best"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	Median      float64 `json:"median"`
	P25         float64 `json:"p25"`
	P75         float64 `json:"p75"`
	P95         float64 `json:"p95"`
	P99         float64 `json:"p99"`
	StdDev      float64 `json:"stddev"`
	CV          float64 `json:"cv"`
	LoadUnits   string  `json:"load_units"`
	LoadBest    float64 `json:"load_best"`
	LoadMean    float64 `json:"load_mean"`
	Observed    float64 `json:"observed_mbps"`
	Warning     bool    `json:"warning"`
	Unreliable  bool    `json:"unreliable"`
	Degraded    bool    `json:"degraded"`
}

// Header is the column list of Record
var Header = []string{
	"index", "name", "kind", "mem_node", "cpu_node", "load_cpu_node",
	"pattern", "rw", "chunk_bytes", "stride", "threads", "region_bytes",
	"huge_pages", "delay", "stream_op", "probe_chunk_bytes", "seed", "duration_ns", "passes",
	"trials", "units",
	"best", "min", "max", "mean", "median", "p25", "p75", "p95", "p99", "stddev", "cv",
	"load_units", "load_best", "load_mean", "observed_mbps",
	"warning", "unreliable", "degraded",
}

func NewRecord(e *aggregator.ReportEntry) Record {
	c := e.Config
	r := Record{
		Index:       c.Index,
		Name:        c.Name,
		Kind:        string(c.Kind),
		MemNode:     c.MemNode,
		CPUNode:     c.CPUNode,
		LoadCPUNode: c.LoadNode(),
		Pattern:     string(c.Pattern.Kind),
		RW:          string(c.Pattern.RW),
		ChunkBytes:  c.Pattern.ChunkSize,
		Stride:      c.Pattern.Stride,
		Threads:     c.Threads,
		RegionBytes: c.RegionSize,
		HugePages:   string(c.HugePages),
		Delay:       c.Delay,
		StreamOp:    string(c.StreamOp),
		ProbeChunk:  c.ProbeChunk,
		Seed:        c.Seed.Value,
		DurationNs:  c.Target.Duration.Nanoseconds(),
		Passes:      c.Target.Passes,
		Trials:      e.Trials,
		Units:       e.Units,
		Best:        e.Metric.Best,
		Min:         e.Metric.Min,
		Max:         e.Metric.Max,
		Mean:        e.Metric.Mean,
		Median:      e.Metric.Median,
		P25:         e.Metric.P25,
		P75:         e.Metric.P75,
		P95:         e.Metric.P95,
		P99:         e.Metric.P99,
		StdDev:      e.Metric.StdDev,
		CV:          e.Metric.CV,
		Observed:    e.ObservedMBps,
		Warning:     e.Warning,
		Unreliable:  e.Unreliable,
		Degraded:    e.Degraded,
	}
	if c.Kind == benchmark.KindLatency {
		// the latency chain has no load side
		r.LoadCPUNode = c.CPUNode
	}
	if e.Load != nil {
		r.LoadUnits = e.LoadUnits
		r.LoadBest = e.Load.Best
		r.LoadMean = e.Load.Mean
	}
	return r
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Values renders r in Header order
func (r Record) Values() []string {
	return []string{
		strconv.Itoa(r.Index), r.Name, r.Kind, strconv.Itoa(r.MemNode), strconv.Itoa(r.CPUNode), strconv.Itoa(r.LoadCPUNode),
		r.Pattern, r.RW, strconv.Itoa(r.ChunkBytes), strconv.Itoa(r.Stride), strconv.Itoa(r.Threads), strconv.Itoa(r.RegionBytes),
		r.HugePages, strconv.Itoa(r.Delay), r.StreamOp, strconv.Itoa(r.ProbeChunk),
		strconv.FormatInt(r.Seed, 10), strconv.FormatInt(r.DurationNs, 10), strconv.FormatUint(r.Passes, 10),
		strconv.Itoa(r.Trials), r.Units,
		formatFloat(r.Best), formatFloat(r.Min), formatFloat(r.Max), formatFloat(r.Mean), formatFloat(r.Median),
		formatFloat(r.P25), formatFloat(r.P75), formatFloat(r.P95), formatFloat(r.P99), formatFloat(r.StdDev), formatFloat(r.CV),
		r.LoadUnits, formatFloat(r.LoadBest), formatFloat(r.LoadMean), formatFloat(r.Observed),
		strconv.FormatBool(r.Warning), strconv.FormatBool(r.Unreliable), strconv.FormatBool(r.Degraded),
	}
}

// Args renders r in Header order as sql arguments
func (r Record) Args() []interface{} {
	return []interface{}{
		r.Index, r.Name, r.Kind, r.MemNode, r.CPUNode, r.LoadCPUNode,
		r.Pattern, r.RW, r.ChunkBytes, r.Stride, r.Threads, r.RegionBytes,
		r.HugePages, r.Delay, r.StreamOp, r.ProbeChunk, r.Seed, r.DurationNs, int64(r.Passes),
		r.Trials, r.Units,
		r.Best, r.Min, r.Max, r.Mean, r.Median, r.P25, r.P75, r.P95, r.P99, r.StdDev, r.CV,
		r.LoadUnits, r.LoadBest, r.LoadMean, r.Observed,
		r.Warning, r.Unreliable, r.Degraded,
	}
}
