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

package resctrl

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	Root = "/sys/fs/resctrl"

	MonData          = "mon_data"
	MBRawFile        = "mbm_total_bytes"
	TmplL3MonFolder  = "mon_L3_%02d"
	unavailableValue = "Unavailable"

	InvalidMB = -1

	// BytesPerMB matches the MB of the throughput benchmarks, 2^20 bytes
	BytesPerMB = 1 << 20
)

// readRawData returns InvalidMB if the counter file is missing, unavailable or not digits
func readRawData(fs afero.Fs, path string) int64 {
	buffer, err := afero.ReadFile(fs, path)
	if err != nil {
		return InvalidMB
	}

	content := strings.TrimSpace(string(buffer))
	if content == unavailableValue {
		return InvalidMB
	}

	v, err := strconv.ParseInt(content, 10, 64)
	if err != nil {
		return InvalidMB
	}

	return v
}

// calcAverageMBinMBps is the byte count delta in MB (2^20 bytes) per second
func calcAverageMBinMBps(currV int64, nowTime time.Time, lastV int64, lastTime time.Time) (float64, error) {
	if currV == InvalidMB || lastV == InvalidMB || currV < lastV {
		return InvalidMB, errors.New("invalid MB should ignore")
	}

	elapsed := nowTime.Sub(lastTime)
	if elapsed.Microseconds() <= 0 {
		return InvalidMB, errors.Errorf("elapsed %v too short to derive MB", elapsed)
	}
	return float64(currV-lastV) / BytesPerMB / elapsed.Seconds(), nil
}
