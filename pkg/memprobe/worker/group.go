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
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
	"github.com/kubewharf/katalyst-memprobe/pkg/util/machine"
)

// Body is the per worker benchmark code, run after the thread is pinned
type Body func(w *Worker, c *Control) error

// Control is the view a Body has of its group
type Control struct {
	g           *group
	readyOnce   sync.Once
	activeOnce  sync.Once
	countActive bool
}

// WaitStart marks the worker ready and blocks until every worker is ready.
// It returns false if the group was aborted meanwhile.
func (c *Control) WaitStart() bool {
	c.markReady()
	<-c.g.start
	return !c.g.aborted.Load()
}

// MarkActive tells latency workers this load worker has its traffic running
func (c *Control) MarkActive() {
	if c.countActive {
		c.activeOnce.Do(c.g.active.Done)
	}
}

// WaitActive blocks until every load worker is active. It returns false if
// the group was aborted meanwhile.
func (c *Control) WaitActive() bool {
	<-c.g.allActive
	return !c.g.aborted.Load()
}

// Stopped is checked by load workers at batch boundaries
func (c *Control) Stopped() bool {
	return c.g.stop.Load()
}

// Stop raises the shared stop flag
func (c *Control) Stop() {
	c.g.stop.Store(true)
}

func (c *Control) markReady() {
	c.readyOnce.Do(c.g.ready.Done)
}

type group struct {
	stop    atomic.Bool
	aborted atomic.Bool

	ready     sync.WaitGroup
	start     chan struct{}
	active    sync.WaitGroup
	allActive chan struct{}
}

// Run starts one locked, pinned goroutine per worker and waits for all of
// them. Load workers count towards WaitActive. If ctx ends first the stop flag
// is raised and workers are expected to return ErrCancelled.
func Run(ctx context.Context, topology machine.Topology, workers []*Worker, body Body) error {
	g := &group{
		start:     make(chan struct{}),
		allActive: make(chan struct{}),
	}
	g.ready.Add(len(workers))
	for _, w := range workers {
		if w.Role == RoleLoad {
			g.active.Add(1)
		}
	}
	go func() {
		g.ready.Wait()
		close(g.start)
	}()
	go func() {
		g.active.Wait()
		close(g.allActive)
	}()

	done := make(chan struct{})
	eg, egCtx := errgroup.WithContext(ctx)
	go func() {
		select {
		case <-egCtx.Done():
			g.stop.Store(true)
		case <-done:
		}
	}()

	errs := make([]error, len(workers))
	for i, w := range workers {
		i, w := i, w
		c := &Control{g: g, countActive: w.Role == RoleLoad}
		eg.Go(func() error {
			// never unlocked: the pinned thread is discarded when the goroutine exits
			runtime.LockOSThread()

			defer c.MarkActive()
			defer c.markReady()

			err := topology.Pin(w.CPU)
			if err == nil {
				err = body(w, c)
			}
			if err != nil {
				g.aborted.Store(true)
				g.stop.Store(true)
				general.Warningf("memprobe: %s failed: %v", w, err)
			}
			errs[i] = err
			return err
		})
	}

	err := eg.Wait()
	close(done)
	if err != nil {
		return rootCause(errs)
	}
	if ctx.Err() != nil {
		return errors.Wrap(probeerrors.ErrCancelled, ctx.Err().Error())
	}
	return nil
}

// rootCause prefers the error that aborted the group over the cancellations it caused
func rootCause(errs []error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, probeerrors.ErrCancelled) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}
