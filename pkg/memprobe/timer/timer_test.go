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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

type mockClock struct {
	mock.Mock
}

func (m *mockClock) Now() Tick {
	args := m.Called()
	return args.Get(0).(Tick)
}

func (m *mockClock) Name() string {
	return "mock"
}

type mockEnderClock struct {
	mockClock
}

func (m *mockEnderClock) End() Tick {
	args := m.Called()
	return args.Get(0).(Tick)
}

func TestTimer_End(t *testing.T) {
	t.Parallel()

	plain := &mockClock{}
	plain.On("Now").Return(Tick(7))
	assert.Equal(t, Tick(7), New(plain).End())

	ender := &mockEnderClock{}
	ender.On("Now").Return(Tick(10))
	ender.On("End").Return(Tick(25))
	tm := NewCalibrated(ender, Calibration{NsPerTick: 1, Resolution: time.Nanosecond})
	assert.Equal(t, 15*time.Nanosecond, tm.Elapsed(tm.Now(), tm.End()))
	ender.AssertNumberOfCalls(t, "Now", 1)
	ender.AssertNumberOfCalls(t, "End", 1)
}

func TestTimer_End_tsc(t *testing.T) {
	t.Parallel()

	c, err := NewClock(SourceTSC)
	if err != nil {
		t.Skipf("no tsc clock: %v", err)
	}
	_, ok := c.(Ender)
	require.True(t, ok, "tsc intervals end on a separate reading")

	tm := New(c)
	t0 := tm.Now()
	assert.GreaterOrEqual(t, tm.End(), t0)
}

func TestTimer_Calibrate_fake(t *testing.T) {
	t.Parallel()

	tm := New(NewFakeClock(50 * time.Nanosecond))
	cal, err := tm.Calibrate()
	require.NoError(t, err)

	assert.True(t, tm.Calibrated())
	assert.Equal(t, "fake", cal.Clock)
	assert.Equal(t, 50*time.Nanosecond, cal.Resolution)
	assert.Equal(t, 50*time.Nanosecond, cal.Overhead)
	assert.Equal(t, 150*time.Nanosecond, tm.Elapsed(0, 200))
	assert.Equal(t, time.Duration(0), tm.Elapsed(0, 10), "elapsed is clamped at zero")
}

func TestTimer_Calibrate_os(t *testing.T) {
	t.Parallel()

	tm := New(NewOSClock())
	cal, err := tm.Calibrate()
	require.NoError(t, err)
	assert.Greater(t, cal.Resolution, time.Duration(0))
	assert.Less(t, cal.Overhead, time.Millisecond)

	t0 := tm.Now()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, tm.Elapsed(t0, tm.Now()), time.Millisecond)
}

func TestTimer_Calibrate_frozenClock(t *testing.T) {
	t.Parallel()

	c := &mockClock{}
	c.On("Now").Return(Tick(100))

	tm := New(c)
	tm.rateWindow = time.Millisecond
	_, err := tm.Calibrate()
	assert.True(t, errors.Is(err, probeerrors.ErrTimerCalibration))
	assert.True(t, probeerrors.IsFatal(err))
	assert.False(t, tm.Calibrated())
}

func TestTimer_Calibrate_backwards(t *testing.T) {
	t.Parallel()

	c := &mockClock{}
	c.On("Now").Return(Tick(100)).Once()
	c.On("Now").Return(Tick(1_000_000)).Once()
	c.On("Now").Return(Tick(2_000_000)).Once()
	c.On("Now").Return(Tick(1_000))

	tm := New(c)
	tm.rateWindow = time.Millisecond
	_, err := tm.Calibrate()
	assert.True(t, errors.Is(err, probeerrors.ErrTimerCalibration))
}

func TestNewClock(t *testing.T) {
	t.Parallel()

	c, err := NewClock("")
	require.NoError(t, err)
	assert.Equal(t, SourceOS, c.Name())

	_, err = NewClock("hpet")
	assert.True(t, errors.Is(err, probeerrors.ErrInvalidConfig))
}

func TestNewCalibrated(t *testing.T) {
	t.Parallel()

	tm := NewCalibrated(NewFakeClock(time.Nanosecond), Calibration{NsPerTick: 1, Resolution: time.Microsecond})
	assert.True(t, tm.Calibrated())
	assert.Equal(t, time.Microsecond, tm.Resolution())
	assert.Equal(t, time.Duration(0), tm.Overhead())
	assert.Equal(t, 1000*time.Nanosecond, tm.Elapsed(Tick(0), Tick(1000)))
}
