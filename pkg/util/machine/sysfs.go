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

package machine

import (
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/spf13/afero"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
)

const (
	sysCPUOnline = "/sys/devices/system/cpu/online"
	sysNodeRoot  = "/sys/devices/system/node"
)

// Discover reads the cpu/numa layout and huge page pool from sysfs.
// Machines without numa information are reported as one node 0 that owns every cpu.
func Discover(fs afero.Fs) (*CPUTopology, error) {
	online, err := onlineCPUs(fs)
	if err != nil {
		return nil, err
	}

	cpusInNUMA := make(map[int][]int)
	entries, err := afero.ReadDir(fs, sysNodeRoot)
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasPrefix(name, "node") {
				continue
			}
			node, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
			if err != nil {
				continue
			}
			buffer, err := afero.ReadFile(fs, path.Join(sysNodeRoot, name, "cpulist"))
			if err != nil {
				general.Warningf("memprobe: machine: skip node %d: %v", node, err)
				continue
			}
			cpus, err := ParseCPUList(string(buffer))
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse cpulist of node %d", node)
			}
			cpusInNUMA[node] = intersect(cpus, online)
		}
	}

	if len(cpusInNUMA) == 0 {
		general.InfofV(4, "memprobe: machine: no numa info, treating machine as single node")
		cpusInNUMA[0] = online
	}

	return NewCPUTopology(cpusInNUMA, readHugePageInfo(fs)), nil
}

func onlineCPUs(fs afero.Fs) ([]int, error) {
	buffer, err := afero.ReadFile(fs, sysCPUOnline)
	if err == nil {
		return ParseCPUList(string(buffer))
	}

	count, cerr := cpu.Counts(true)
	if cerr != nil || count <= 0 {
		return nil, errors.Wrapf(err, "failed to find online cpus (gopsutil: %v)", cerr)
	}
	cpus := make([]int, count)
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

// ParseCPUList parses the kernel list format, e.g. "0-3,8,10-11"
func ParseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var cpus []int
	for _, part := range strings.Split(s, ",") {
		bounds := strings.SplitN(part, "-", 2)
		lo, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid cpu list %q", s)
		}
		hi := lo
		if len(bounds) == 2 {
			if hi, err = strconv.Atoi(bounds[1]); err != nil {
				return nil, errors.Wrapf(err, "invalid cpu list %q", s)
			}
		}
		if hi < lo {
			return nil, errors.Errorf("invalid cpu range %q", part)
		}
		for c := lo; c <= hi; c++ {
			cpus = append(cpus, c)
		}
	}
	return cpus, nil
}

func intersect(cpus, online []int) []int {
	return sets.List(sets.New[int](cpus...).Intersection(sets.New[int](online...)))
}
