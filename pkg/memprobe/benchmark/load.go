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
	"unsafe"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/timer"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/worker"
)

type loadMode int

const (
	modeSequential loadMode = iota
	modeCopy
	modeRandom
	modeDelayed
	modeStream
)

// loadKernel runs one pass of a bandwidth pattern at a time, cycling over
// its region in BytesPerPass windows
type loadKernel struct {
	mode  loadMode
	base  unsafe.Pointer
	width kernel.Width
	rw    pattern.RWMode

	// sequential, copy, delayed and stream walk windows of windowSize bytes
	// (elements for stream) in order
	windowSize int
	windows    int
	window     int
	reverse    bool
	count      int // chunks per pass
	step       int // bytes between chunks

	// copy
	dst int

	// random
	chain uint64

	delay int

	streamOp    kernel.StreamOp
	a, b, c     []float64
	streamElems int

	bytesPerPass uint64
	dummyCursor  int
}

func validateLoadPattern(c Config) error {
	p := c.Pattern
	if err := p.Validate(c.RegionSize); err != nil {
		return errors.Wrapf(err, "%s", c.Name)
	}
	if _, err := kernel.WidthOf(p.ChunkSize); err != nil {
		return errors.Wrapf(err, "%s", c.Name)
	}
	switch {
	case p.Kind == pattern.KindRandom:
		if c.RegionSize < BytesPerPass {
			return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "%s: region smaller than one pass", c.Name)
		}
	case p.RW == pattern.RWCopy:
		if c.RegionSize < 2*BytesPerPass {
			return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "%s: copy needs two %d byte windows", c.Name, BytesPerPass)
		}
	default:
		if window := BytesPerPass * p.StrideMagnitude(); c.RegionSize < window {
			return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "%s: stride %d needs %d byte windows",
				c.Name, p.Stride, window)
		}
	}
	return nil
}

// newLoadKernel prepares buf for cfg's load pattern; random patterns get a
// chain embedded with seed
func newLoadKernel(cfg Config, buf []byte, seed pattern.Seed) (*loadKernel, error) {
	k := &loadKernel{base: unsafe.Pointer(&buf[0]), rw: cfg.Pattern.RW}

	switch {
	case cfg.Kind == KindStream:
		return k, k.initStream(cfg, buf)
	case cfg.Kind == KindDelayInjectedLatency:
		return k, k.initDelayed(cfg, buf)
	}

	w, err := kernel.WidthOf(cfg.Pattern.ChunkSize)
	if err != nil {
		return nil, err
	}
	k.width = w
	k.bytesPerPass = BytesPerPass
	k.count = BytesPerPass / int(w)

	switch {
	case cfg.Pattern.Kind == pattern.KindRandom:
		offsets, err := pattern.Offsets(len(buf), cfg.Pattern, seed)
		if err != nil {
			return nil, err
		}
		if err := pattern.EmbedChain(buf, offsets); err != nil {
			return nil, err
		}
		k.mode = modeRandom
		k.chain = offsets[0]
	case cfg.Pattern.RW == pattern.RWCopy:
		k.mode = modeCopy
		k.windowSize = BytesPerPass
		k.windows = len(buf) / 2 / BytesPerPass
		k.dst = k.windows * BytesPerPass
		k.bytesPerPass = 2 * BytesPerPass
	default:
		stride := cfg.Pattern.StrideMagnitude()
		k.mode = modeSequential
		k.windowSize = BytesPerPass * stride
		k.windows = len(buf) / k.windowSize
		k.reverse = cfg.Pattern.Reverse()
		k.step = int(w) * stride
		if k.reverse {
			k.step = -k.step
			k.window = k.windows - 1
		}
	}
	return k, nil
}

// nextWindow returns the start of the current window and moves to the next one
func (k *loadKernel) nextWindow() int {
	start := k.window * k.windowSize
	if k.reverse {
		k.window--
		if k.window < 0 {
			k.window = k.windows - 1
		}
	} else {
		k.window++
		if k.window == k.windows {
			k.window = 0
		}
	}
	return start
}

// pass runs one measured pass and returns a value to be consumed
func (k *loadKernel) pass(v uint64) uint64 {
	switch k.mode {
	case modeSequential:
		start := k.nextWindow()
		off := start
		if k.reverse {
			off = start + k.windowSize - int(k.width)
		}
		if k.rw == pattern.RWWrite {
			kernel.Write(k.base, off, k.count, k.step, k.width, v)
			return 0
		}
		return kernel.Read(k.base, off, k.count, k.step, k.width)
	case modeCopy:
		start := k.nextWindow()
		kernel.Copy(k.base, start, k.dst+start, BytesPerPass, k.width)
		return 0
	case modeRandom:
		if k.rw == pattern.RWWrite {
			k.chain = kernel.ChaseWrite(k.base, k.chain, k.count, k.width, v)
			return 0
		}
		var acc uint64
		k.chain, acc = kernel.ChaseRead(k.base, k.chain, k.count, k.width)
		return acc
	case modeDelayed:
		return kernel.ReadDelayed(k.base, k.nextWindow(), k.count, k.width, k.delay)
	case modeStream:
		lo := k.nextWindow()
		kernel.Stream(k.streamOp, k.a, k.b, k.c, lo, lo+k.streamElems)
		return 0
	}
	return 0
}

// dummyPass has the loop shape of pass without the memory traffic
func (k *loadKernel) dummyPass() uint64 {
	switch k.mode {
	case modeRandom:
		return kernel.DummyChaseChunks(uint64(k.dummyCursor), k.count)
	case modeDelayed:
		return kernel.DummyDelayed(k.dummyCursor, k.count, k.delay)
	case modeStream:
		return kernel.DummyStream(k.dummyCursor, k.dummyCursor+k.streamElems)
	case modeCopy:
		return kernel.DummySequential(k.dummyCursor, BytesPerPass/8, 8)
	}
	return kernel.DummySequential(k.dummyCursor, k.count, k.step)
}

// runLoad is the body of a bandwidth or load worker. With untilStop it runs
// until the group stop flag, otherwise until target.
func runLoad(tm *timer.Timer, w *worker.Worker, c *worker.Control, k *loadKernel, target Target, untilStop bool) error {
	prime(w.Region)

	if !c.WaitStart() {
		return cancelled(w, "aborted before start")
	}

	var (
		acc     uint64
		elapsed time.Duration
		passes  uint64
	)
	for {
		if untilStop {
			if c.Stopped() {
				break
			}
		} else {
			if target.Reached(elapsed, passes) {
				break
			}
			if c.Stopped() {
				return cancelled(w, "stopped before target")
			}
		}

		n := uint64(batchPasses)
		if !untilStop {
			n = target.batch(passes)
		}
		t0 := tm.Now()
		for i := uint64(0); i < n; i++ {
			acc += k.pass(passes + i)
		}
		t1 := tm.End()
		elapsed += tm.Elapsed(t0, t1)
		passes += n
		c.MarkActive()
	}

	var dummy time.Duration
	for p := uint64(0); p < passes; {
		n := min(batchPasses, passes-p)
		t0 := tm.Now()
		for i := uint64(0); i < n; i++ {
			acc += k.dummyPass()
		}
		t1 := tm.End()
		dummy += tm.Elapsed(t0, t1)
		p += n
	}
	kernel.Consume(acc)

	w.Passes = passes
	w.Bytes = passes * k.bytesPerPass
	w.Accesses = passes * uint64(k.count)
	w.Elapsed = elapsed
	w.Dummy = dummy
	return nil
}
