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
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPUList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		s       string
		want    []int
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:    "empty",
			s:       "\n",
			want:    nil,
			wantErr: assert.NoError,
		},
		{
			name:    "ranges and singles",
			s:       "0-3,8,10-11\n",
			want:    []int{0, 1, 2, 3, 8, 10, 11},
			wantErr: assert.NoError,
		},
		{
			name:    "reversed range",
			s:       "4-2",
			wantErr: assert.Error,
		},
		{
			name:    "garbage",
			s:       "a-b",
			wantErr: assert.Error,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCPUList(tt.s)
			if !tt.wantErr(t, err, "ParseCPUList(%q)", tt.s) {
				return
			}
			assert.Equalf(t, tt.want, got, "ParseCPUList(%q)", tt.s)
		})
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/sys/devices/system/cpu/online", []byte("0-7\n"), 0o644)
	_ = afero.WriteFile(fs, "/sys/devices/system/node/node0/cpulist", []byte("0-3\n"), 0o644)
	_ = afero.WriteFile(fs, "/sys/devices/system/node/node1/cpulist", []byte("4-7,12\n"), 0o644)
	_ = afero.WriteFile(fs, "/sys/devices/system/node/node2/cpulist", []byte("\n"), 0o644)
	_ = afero.WriteFile(fs, "/sys/devices/system/node/possible", []byte("0-2\n"), 0o644)
	_ = afero.WriteFile(fs, "/sys/kernel/mm/hugepages/hugepages-1048576kB/nr_hugepages", []byte("0\n"), 0o644)
	_ = afero.WriteFile(fs, "/sys/kernel/mm/hugepages/hugepages-2048kB/nr_hugepages", []byte("64\n"), 0o644)
	_ = afero.WriteFile(fs, "/sys/kernel/mm/hugepages/hugepages-2048kB/free_hugepages", []byte("32\n"), 0o644)

	topo, err := Discover(fs)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, topo.CPUs())
	assert.Equal(t, []int{0, 1, 2}, topo.NUMANodes())
	assert.Empty(t, topo.CPUsInNUMANode(2), "memory-only node")
	assert.Equal(t, []int{4, 5, 6, 7}, topo.CPUsInNUMANode(1), "offline cpu 12 must be dropped")
	assert.Nil(t, topo.CPUsInNUMANode(3))
	assert.Equal(t, HugePageInfo{PageSize: 2 << 20, Total: 64, Free: 32}, topo.HugePages())
}

func TestDiscover_singleNode(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/sys/devices/system/cpu/online", []byte("0-1"), 0o644)

	topo, err := Discover(fs)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, topo.NUMANodes())
	assert.Equal(t, []int{0, 1}, topo.CPUsInNUMANode(0))
	assert.False(t, topo.HugePages().Supported())
}

func TestHugePageInfo_Available(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info HugePageInfo
		size int64
		want bool
	}{
		{
			name: "unsupported",
			info: HugePageInfo{},
			size: 1,
			want: false,
		},
		{
			name: "fits in free pool",
			info: HugePageInfo{PageSize: 2 << 20, Total: 64, Free: 32},
			size: 64 << 20,
			want: true,
		},
		{
			name: "partial page rounds up",
			info: HugePageInfo{PageSize: 2 << 20, Total: 64, Free: 32},
			size: 64<<20 + 1,
			want: false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equalf(t, tt.want, tt.info.Available(tt.size), "Available(%d)", tt.size)
		})
	}
}
