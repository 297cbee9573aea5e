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

// Package resctrl reads the memory bandwidth monitoring counters of a resctrl
// monitor group, so that a bandwidth trial can be compared against what the
// hardware observed.
package resctrl

import (
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/kubewharf/katalyst-memprobe/pkg/util/general"
)

// Snapshot holds the raw mbm_total_bytes of every L3 domain at one instant
type Snapshot struct {
	Time   time.Time
	Values map[int]int64
}

type Observer interface {
	Snapshot(ts time.Time) Snapshot
	// Bandwidth is the MB/s summed over all domains between two snapshots,
	// InvalidMB when no domain had usable counters
	Bandwidth(prev, curr Snapshot) float64
}

type monGroupObserver struct {
	fs       afero.Fs
	monGroup string
	domains  []int
}

// NewObserver discovers the L3 monitoring domains of monGroup, e.g. /sys/fs/resctrl
// for the default group
func NewObserver(fs afero.Fs, monGroup string) (Observer, error) {
	entries, err := afero.ReadDir(fs, path.Join(monGroup, MonData))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list resctrl mon data of %s", monGroup)
	}

	var domains []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var id int
		if _, err := fmt.Sscanf(e.Name(), TmplL3MonFolder, &id); err != nil {
			continue
		}
		domains = append(domains, id)
	}
	if len(domains) == 0 {
		return nil, errors.Errorf("no L3 monitoring domain under %s", monGroup)
	}
	sort.Ints(domains)

	general.InfofV(4, "memprobe: resctrl: observing %s over L3 domains %v", monGroup, domains)
	return &monGroupObserver{fs: fs, monGroup: monGroup, domains: domains}, nil
}

func (o *monGroupObserver) monPath(domain int) string {
	return path.Join(o.monGroup, MonData, fmt.Sprintf(TmplL3MonFolder, domain), MBRawFile)
}

func (o *monGroupObserver) Snapshot(ts time.Time) Snapshot {
	s := Snapshot{Time: ts, Values: make(map[int]int64, len(o.domains))}
	for _, d := range o.domains {
		s.Values[d] = readRawData(o.fs, o.monPath(d))
	}
	return s
}

func (o *monGroupObserver) Bandwidth(prev, curr Snapshot) float64 {
	var (
		total float64
		valid bool
	)
	for _, d := range o.domains {
		last, ok := prev.Values[d]
		if !ok {
			continue
		}
		mb, err := calcAverageMBinMBps(curr.Values[d], curr.Time, last, prev.Time)
		if err != nil {
			continue
		}
		total += mb
		valid = true
	}
	if !valid {
		return InvalidMB
	}
	return total
}
