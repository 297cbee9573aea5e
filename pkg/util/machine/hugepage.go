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
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

const (
	hugePagesRoot       = "/sys/kernel/mm/hugepages"
	defaultHugePageSize = "hugepages-2048kB"
)

// HugePageInfo describes the pool of one huge page size
type HugePageInfo struct {
	PageSize int64 // bytes; 0 means the platform offers no huge pages
	Total    int64 // pages
	Free     int64 // pages
}

func (h HugePageInfo) Supported() bool {
	return h.PageSize > 0
}

// Available reports whether size bytes can be backed by free huge pages
func (h HugePageInfo) Available(size int64) bool {
	if !h.Supported() || size <= 0 {
		return false
	}
	pages := (size + h.PageSize - 1) / h.PageSize
	return pages <= h.Free
}

func (h HugePageInfo) String() string {
	if !h.Supported() {
		return "unsupported"
	}
	return fmt.Sprintf("%s pages, %d/%d free", humanize.IBytes(uint64(h.PageSize)), h.Free, h.Total)
}

// readHugePageInfo prefers the 2MiB pool, falling back to the first pool found
func readHugePageInfo(fs afero.Fs) HugePageInfo {
	entries, err := afero.ReadDir(fs, hugePagesRoot)
	if err != nil || len(entries) == 0 {
		return HugePageInfo{}
	}

	dir := ""
	for _, entry := range entries {
		if entry.Name() == defaultHugePageSize {
			dir = entry.Name()
			break
		}
		if dir == "" && strings.HasPrefix(entry.Name(), "hugepages-") {
			dir = entry.Name()
		}
	}
	if dir == "" {
		return HugePageInfo{}
	}

	sizeKB, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(dir, "hugepages-"), "kB"), 10, 64)
	if err != nil || sizeKB <= 0 {
		return HugePageInfo{}
	}

	return HugePageInfo{
		PageSize: sizeKB * 1024,
		Total:    readInt(fs, path.Join(hugePagesRoot, dir, "nr_hugepages")),
		Free:     readInt(fs, path.Join(hugePagesRoot, dir, "free_hugepages")),
	}
}

// readInt returns 0 if the file is missing or not a number
func readInt(fs afero.Fs, file string) int64 {
	buffer, err := afero.ReadFile(fs, file)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(buffer)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
