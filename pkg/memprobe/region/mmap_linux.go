//go:build linux

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
	"golang.org/x/sys/unix"
)

// mempolicy constants of linux/mempolicy.h
const (
	mpolBind     = 2
	mpolMFStrict = 1 << 0
	mpolMFMove   = 1 << 1

	maxNodeMaskWords = 16 // 1024 nodes
)

type osMapper struct {
	pageSize int
}

func newOSMapper() mapper {
	return &osMapper{pageSize: unix.Getpagesize()}
}

func (m *osMapper) Map(length int, huge bool) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if huge {
		flags |= unix.MAP_HUGETLB
	}
	mem, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, err
	}
	if !huge {
		// standard pages only, no transparent huge page promotion
		_ = unix.Madvise(mem, unix.MADV_NOHUGEPAGE)
	}
	return mem, nil
}

func (m *osMapper) Bind(mem []byte, node int) error {
	if node < 0 || node >= maxNodeMaskWords*64 {
		return errors.Errorf("node %d out of nodemask range", node)
	}
	var mask [maxNodeMaskWords]uint64
	mask[node/64] |= 1 << (uint(node) % 64)

	_, _, errno := unix.Syscall6(unix.SYS_MBIND,
		uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)),
		mpolBind, uintptr(unsafe.Pointer(&mask[0])), uintptr(maxNodeMaskWords*64),
		mpolMFStrict|mpolMFMove)
	if errno != 0 {
		return errno
	}
	return nil
}

func (m *osMapper) Unmap(mem []byte) error {
	return unix.Munmap(mem)
}

func (m *osMapper) PageSize() int {
	return m.pageSize
}

func isNoMemory(err error) bool {
	return errors.Is(err, unix.ENOMEM)
}
