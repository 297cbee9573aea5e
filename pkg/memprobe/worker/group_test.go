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

package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/machine"
)

func newTestTopology(failCPU int) machine.Topology {
	return machine.NewCPUTopology(map[int][]int{0: {0, 1, 2, 3}}, machine.HugePageInfo{}).
		WithPinner(func(cpu int) error {
			if cpu == failCPU {
				return errors.New("permission denied")
			}
			return nil
		})
}

func TestRun_latencyWaitsForLoad(t *testing.T) {
	t.Parallel()

	workers := []*Worker{
		{ID: 0, CPU: 0, Role: RoleLatency},
		{ID: 1, CPU: 1, Role: RoleLoad},
		{ID: 2, CPU: 2, Role: RoleLoad},
	}

	var activeLoads atomic.Int32
	var seenActive int32
	err := Run(context.Background(), newTestTopology(-1), workers, func(w *Worker, c *Control) error {
		if !c.WaitStart() {
			return probeerrors.ErrCancelled
		}
		if w.Role == RoleLatency {
			if !c.WaitActive() {
				return probeerrors.ErrCancelled
			}
			seenActive = activeLoads.Load()
			w.Passes = 1
			c.Stop()
			return nil
		}

		time.Sleep(time.Millisecond)
		activeLoads.Add(1)
		c.MarkActive()
		for !c.Stopped() {
			w.Passes++
			time.Sleep(100 * time.Microsecond)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(2), seenActive, "latency must start only after every load is active")
	for _, w := range workers {
		assert.Greaterf(t, w.Passes, uint64(0), "%s", w)
	}
}

func TestRun_pinFailureAborts(t *testing.T) {
	t.Parallel()

	workers := []*Worker{
		{ID: 0, CPU: 0, Role: RoleLatency},
		{ID: 1, CPU: 3, Role: RoleLoad},
	}

	var started atomic.Int32
	err := Run(context.Background(), newTestTopology(3), workers, func(w *Worker, c *Control) error {
		if !c.WaitStart() {
			return probeerrors.ErrCancelled
		}
		started.Add(1)
		return nil
	})

	assert.True(t, errors.Is(err, probeerrors.ErrPinFailed), "got %v", err)
	assert.Equal(t, int32(0), started.Load(), "no worker may start after a pin failure")
}

func TestRun_contextTimeoutStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	workers := []*Worker{{ID: 0, CPU: 1, Role: RoleLoad}}
	err := Run(ctx, newTestTopology(-1), workers, func(w *Worker, c *Control) error {
		c.WaitStart()
		c.MarkActive()
		for !c.Stopped() {
			time.Sleep(time.Millisecond)
		}
		return nil
	})
	assert.True(t, errors.Is(err, probeerrors.ErrCancelled), "got %v", err)
}

func TestWorker_Adjusted(t *testing.T) {
	t.Parallel()

	w := &Worker{Elapsed: 10 * time.Millisecond, Dummy: 2 * time.Millisecond}
	d, ok := w.Adjusted()
	assert.True(t, ok)
	assert.Equal(t, 8*time.Millisecond, d)

	w.Dummy = 11 * time.Millisecond
	d, ok = w.Adjusted()
	assert.False(t, ok)
	assert.Equal(t, 10*time.Millisecond, d)
}
