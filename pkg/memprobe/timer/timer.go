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

package timer

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
)

const (
	defaultRateWindow = 250 * time.Millisecond
	defaultSamples    = 1000
	// spinLimit bounds the wait for a clock to advance once
	spinLimit = 1 << 24
)

// Tick is a raw clock reading; only differences are meaningful
type Tick int64

type Clock interface {
	Now() Tick
	Name() string
}

// Enders read the end of an interval differently from its start, e.g. a
// counter that must not be sampled before the timed code retires
type Ender interface {
	End() Tick
}

// Rated clocks know their tick length and skip rate calibration
type Rated interface {
	NsPerTick() float64
}

type Calibration struct {
	Clock      string
	NsPerTick  float64
	Resolution time.Duration // smallest observable step
	Overhead   time.Duration // cost of one pair of readings
}

func (c Calibration) String() string {
	return fmt.Sprintf("clock=%s ns/tick=%.4f resolution=%v overhead=%v", c.Clock, c.NsPerTick, c.Resolution, c.Overhead)
}

// Timer converts clock readings to durations with the read overhead removed.
// It is created once per run and passed to benchmarks explicitly.
type Timer struct {
	clock      Clock
	cal        Calibration
	calibrated bool

	rateWindow time.Duration
	samples    int
}

func New(clock Clock) *Timer {
	return &Timer{
		clock:      clock,
		rateWindow: defaultRateWindow,
		samples:    defaultSamples,
	}
}

// NewCalibrated returns a timer that trusts cal instead of measuring
func NewCalibrated(clock Clock, cal Calibration) *Timer {
	t := New(clock)
	cal.Clock = clock.Name()
	t.cal = cal
	t.calibrated = true
	return t
}

// Calibrate measures tick rate, resolution and read overhead. Failure is
// fatal for a run.
func (t *Timer) Calibrate() (Calibration, error) {
	cal := Calibration{Clock: t.clock.Name()}

	if rated, ok := t.clock.(Rated); ok {
		cal.NsPerTick = rated.NsPerTick()
	} else {
		rate, err := t.measureRate()
		if err != nil {
			return Calibration{}, err
		}
		cal.NsPerTick = rate
	}
	if cal.NsPerTick <= 0 {
		return Calibration{}, errors.Wrapf(probeerrors.ErrTimerCalibration, "clock %s: non-positive tick rate %f", cal.Clock, cal.NsPerTick)
	}

	minStep := int64(-1)
	deltas := make([]int64, 0, t.samples)
	for i := 0; i < t.samples; i++ {
		t0 := t.clock.Now()
		t1 := t.End()
		if t1 < t0 {
			return Calibration{}, errors.Wrapf(probeerrors.ErrTimerCalibration, "clock %s went backwards", cal.Clock)
		}
		deltas = append(deltas, int64(t1-t0))

		step, err := t.step()
		if err != nil {
			return Calibration{}, err
		}
		if minStep < 0 || step < minStep {
			minStep = step
		}
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })

	cal.Resolution = toDuration(minStep, cal.NsPerTick)
	cal.Overhead = toDuration(deltas[len(deltas)/2], cal.NsPerTick)
	if cal.Resolution <= 0 {
		cal.Resolution = time.Nanosecond
	}

	t.cal = cal
	t.calibrated = true
	general.Infof("memprobe: timer: calibrated %s", cal)
	return cal, nil
}

// step waits for the clock to advance and returns the increment
func (t *Timer) step() (int64, error) {
	t0 := t.clock.Now()
	for i := 0; i < spinLimit; i++ {
		t1 := t.clock.Now()
		if t1 < t0 {
			return 0, errors.Wrapf(probeerrors.ErrTimerCalibration, "clock %s went backwards", t.clock.Name())
		}
		if t1 > t0 {
			return int64(t1 - t0), nil
		}
	}
	return 0, errors.Wrapf(probeerrors.ErrTimerCalibration, "clock %s did not advance", t.clock.Name())
}

func (t *Timer) measureRate() (float64, error) {
	w0 := time.Now()
	t0 := t.clock.Now()
	time.Sleep(t.rateWindow)
	t1 := t.clock.Now()
	wall := time.Since(w0)
	if t1 <= t0 {
		return 0, errors.Wrapf(probeerrors.ErrTimerCalibration, "clock %s did not advance over %v", t.clock.Name(), wall)
	}
	return float64(wall.Nanoseconds()) / float64(t1-t0), nil
}

func (t *Timer) Calibrated() bool {
	return t.calibrated
}

func (t *Timer) Calibration() Calibration {
	return t.cal
}

// Now reads the start of an interval
func (t *Timer) Now() Tick {
	return t.clock.Now()
}

// End reads the end of an interval
func (t *Timer) End() Tick {
	if e, ok := t.clock.(Ender); ok {
		return e.End()
	}
	return t.clock.Now()
}

// Elapsed is the time between two readings minus the read overhead, never negative
func (t *Timer) Elapsed(t0, t1 Tick) time.Duration {
	d := toDuration(int64(t1-t0), t.cal.NsPerTick) - t.cal.Overhead
	if d < 0 {
		return 0
	}
	return d
}

func (t *Timer) Resolution() time.Duration {
	return t.cal.Resolution
}

func (t *Timer) Overhead() time.Duration {
	return t.cal.Overhead
}

func toDuration(ticks int64, nsPerTick float64) time.Duration {
	return time.Duration(float64(ticks) * nsPerTick)
}
