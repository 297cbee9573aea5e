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

package region

import (
	"unsafe"

	"github.com/pkg/errors"
)

// heapMapper serves page aligned slices from the Go heap. It backs platforms
// without mmap/mbind and the allocator tests.
type heapMapper struct {
	pageSize int
	noHuge   bool
	bound    map[int]int // node -> bind calls
	live     int
}

func (h *heapMapper) Map(length int, huge bool) ([]byte, error) {
	if huge && h.noHuge {
		return nil, errors.New("huge pages not supported by heap mapper")
	}
	raw := make([]byte, length+h.pageSize)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(h.pageSize)); rem != 0 {
		off = h.pageSize - rem
	}
	h.live++
	return raw[off : off+length : off+length], nil
}

func (h *heapMapper) Bind(_ []byte, node int) error {
	if h.bound == nil {
		return errors.Errorf("numa binding to node %d not supported", node)
	}
	h.bound[node]++
	return nil
}

func (h *heapMapper) Unmap([]byte) error {
	h.live--
	return nil
}

func (h *heapMapper) PageSize() int {
	return h.pageSize
}
