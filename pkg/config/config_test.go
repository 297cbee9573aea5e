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

package config

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	memprobeconfig "github.com/kubewharf/katalyst-memprobe/pkg/config/memprobe"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/benchmark"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/pattern"
)

func TestConfiguration_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Configuration) {},
		},
		{
			name:    "no kinds",
			mutate:  func(c *Configuration) { c.Kinds = nil },
			wantErr: true,
		},
		{
			name:    "unknown kind",
			mutate:  func(c *Configuration) { c.Kinds = []benchmark.Kind{"power"} },
			wantErr: true,
		},
		{
			name:    "unknown pattern",
			mutate:  func(c *Configuration) { c.PatternKinds = []pattern.Kind{"zigzag"} },
			wantErr: true,
		},
		{
			name:    "chunk size not a kernel width",
			mutate:  func(c *Configuration) { c.ChunkSizes = []int{24} },
			wantErr: true,
		},
		{
			name:    "stride out of range",
			mutate:  func(c *Configuration) { c.Strides = []int{3} },
			wantErr: true,
		},
		{
			name:    "zero threads",
			mutate:  func(c *Configuration) { c.Threads = []int{0} },
			wantErr: true,
		},
		{
			name:    "no target",
			mutate:  func(c *Configuration) { c.Duration = 0 },
			wantErr: true,
		},
		{
			name:   "passes replace duration",
			mutate: func(c *Configuration) { c.Duration = 0; c.Passes = 64 },
		},
		{
			name:    "unknown clock",
			mutate:  func(c *Configuration) { c.ClockSource = "hpet" },
			wantErr: true,
		},
		{
			name:    "sqlite to stdout",
			mutate:  func(c *Configuration) { c.Format = memprobeconfig.FormatSQLite },
			wantErr: true,
		},
		{
			name: "sqlite to a file",
			mutate: func(c *Configuration) {
				c.Format = memprobeconfig.FormatSQLite
				c.Destination = "/tmp/memprobe.db"
			},
		},
		{
			name:    "settle percent out of range",
			mutate:  func(c *Configuration) { c.SettleCPUPercent = 120 },
			wantErr: true,
		},
		{
			name:    "probe chunk cannot hold a link",
			mutate:  func(c *Configuration) { c.ProbeChunk = 4 },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewConfiguration()
			tt.mutate(c)
			err := c.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, probeerrors.ErrInvalidConfig), "got %v", err)
			assert.Equal(t, probeerrors.KindConfiguration, probeerrors.KindOf(err))
		})
	}
}
