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
	"time"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/worker"
)

const (
	// BytesPerPass is what one pass of a bandwidth kernel moves
	BytesPerPass = 4096
	// AccessesPerPass is the number of dependent loads in one latency pass
	AccessesPerPass = 512
	// PrimeSweeps sequential read sweeps precede every measurement
	PrimeSweeps = 4
	// SafetyFactor is the minimum adjusted window in timer resolutions
	SafetyFactor = 100
	// WarnFactor windows shorter than this many resolutions are flagged
	WarnFactor = 10000

	MiB = 1 << 20

	// passes between two timer readings
	batchPasses = 16
)

// prime reads the whole region a few times so the measurement starts warm
func prime(r *region.Region) {
	var acc uint64
	for i := 0; i < PrimeSweeps; i++ {
		acc += kernel.Read(r.Base(), 0, r.Len()/8, 8, kernel.Word64)
	}
	kernel.Consume(acc)
}

func checkWindow(tm *timer.Timer, w *worker.Worker, adjusted time.Duration) error {
	if floor := tm.Resolution() * SafetyFactor; adjusted < floor {
		return errors.Wrapf(probeerrors.ErrDurationTooShort, "%s measured %v, need at least %v", w, adjusted, floor)
	}
	return nil
}

// suspicious applies the overhead sanity checks of one worker
func suspicious(tm *timer.Timer, w *worker.Worker) bool {
	adjusted, ok := w.Adjusted()
	return !ok || adjusted < w.Elapsed/2 || w.Elapsed < tm.Resolution()*WarnFactor
}

func cancelled(w *worker.Worker, stage string) error {
	return errors.Wrapf(probeerrors.ErrCancelled, "%s %s", w, stage)
}

// probeSample turns the latency worker counters into ns/access
func probeSample(tm *timer.Timer, w *worker.Worker) (Sample, error) {
	adjusted, _ := w.Adjusted()
	if err := checkWindow(tm, w, adjusted); err != nil {
		return Sample{}, err
	}
	return Sample{
		Elapsed:  adjusted,
		Accesses: w.Accesses,
		Metric:   float64(adjusted.Nanoseconds()) / float64(w.Accesses),
		Warning:  suspicious(tm, w),
	}, nil
}

// bandwidth is total bytes over the mean adjusted window of the workers, in MiB/s.
// With strict set a too short window is an error, otherwise only a warning.
func bandwidth(tm *timer.Timer, workers []*worker.Worker, strict bool) (mbps float64, bytes uint64, mean time.Duration, warn bool, err error) {
	if len(workers) == 0 {
		return 0, 0, 0, false, nil
	}

	var sum time.Duration
	for _, w := range workers {
		adjusted, _ := w.Adjusted()
		if err := checkWindow(tm, w, adjusted); err != nil {
			if strict {
				return 0, 0, 0, true, err
			}
			warn = true
		}
		if suspicious(tm, w) {
			warn = true
		}
		sum += adjusted
		bytes += w.Bytes
	}

	mean = sum / time.Duration(len(workers))
	if mean <= 0 {
		return 0, bytes, 0, true, nil
	}
	mbps = float64(bytes) / MiB / mean.Seconds()
	return mbps, bytes, mean, warn, nil
}
