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

// Package worker runs benchmark bodies on goroutines locked to OS threads and
// pinned to cpus, coordinated by a start barrier and a shared stop flag.
package worker

import (
	"fmt"
	"time"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/region"
)

type Role string

const (
	RoleLatency Role = "latency"
	RoleLoad    Role = "load"
)

// Worker is one pinned measurement thread. The result fields are written by
// the worker's own goroutine and read by the coordinator only after join.
type Worker struct {
	ID     int
	CPU    int
	Role   Role
	Region *region.Region

	Passes   uint64
	Accesses uint64
	Bytes    uint64
	Elapsed  time.Duration // measured, read overhead removed
	Dummy    time.Duration // same pass count on the dummy kernel
}

func (w *Worker) String() string {
	return fmt.Sprintf("worker %d (%s) cpu %d", w.ID, w.Role, w.CPU)
}

// Adjusted is Elapsed minus the dummy kernel time; ok is false when the dummy
// took as long as the measurement and the raw time is returned instead.
func (w *Worker) Adjusted() (time.Duration, bool) {
	if w.Dummy >= w.Elapsed {
		return w.Elapsed, false
	}
	return w.Elapsed - w.Dummy, true
}
