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

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

func TestCPUTopology_Pin(t *testing.T) {
	t.Parallel()

	var pinned []int
	topo := NewCPUTopology(map[int][]int{0: {0, 1}, 1: {2, 3}}, HugePageInfo{}).
		WithPinner(func(cpu int) error {
			if cpu == 3 {
				return errors.New("operation not permitted")
			}
			pinned = append(pinned, cpu)
			return nil
		})

	assert.NoError(t, topo.Pin(2))
	assert.Equal(t, []int{2}, pinned)

	err := topo.Pin(9)
	assert.True(t, errors.Is(err, probeerrors.ErrPinFailed))
	assert.Equal(t, probeerrors.KindAffinity, probeerrors.KindOf(err))

	err = topo.Pin(3)
	assert.True(t, errors.Is(err, probeerrors.ErrPinFailed))
	assert.Contains(t, err.Error(), "operation not permitted")
}

func TestCapability(t *testing.T) {
	t.Parallel()

	c := DetectCapability(0)
	assert.Greater(t, c.VectorBits, 0)
	assert.Greater(t, c.CacheLine, 0)

	hinted := DetectCapability(256)
	assert.Equal(t, 256, hinted.VectorBits)
	assert.Equal(t, 32, hinted.VectorBytes())
}
