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

package pattern

import (
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

func TestOffsets_sequential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		pattern Pattern
		want    []uint64
	}{
		{
			name:    "forward",
			size:    256,
			pattern: Pattern{Kind: KindSequential, ChunkSize: 64, Stride: 1, RW: RWRead},
			want:    []uint64{0, 64, 128, 192},
		},
		{
			name:    "reverse",
			size:    256,
			pattern: Pattern{Kind: KindSequential, ChunkSize: 64, Stride: -1, RW: RWRead},
			want:    []uint64{192, 128, 64, 0},
		},
		{
			name:    "stride 2 visits every residue class",
			size:    48,
			pattern: Pattern{Kind: KindSequential, ChunkSize: 8, Stride: 2, RW: RWWrite},
			want:    []uint64{0, 16, 32, 8, 24, 40},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Offsets(tt.size, tt.pattern, Seed{})
			require.NoError(t, err)
			assert.Equalf(t, tt.want, got, "Offsets(%d, %s)", tt.size, tt.pattern)
		})
	}
}

func TestOffsets_randomIsPermutation(t *testing.T) {
	t.Parallel()

	const size, chunk = 64 << 10, 64
	got, err := Offsets(size, Pattern{Kind: KindRandom, ChunkSize: chunk, RW: RWRead}, FixedSeed(42))
	require.NoError(t, err)
	require.Len(t, got, size/chunk)

	sorted := append([]uint64(nil), got...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, off := range sorted {
		require.Equalf(t, uint64(i*chunk), off, "chunk %d missing or duplicated", i)
	}
}

func TestOffsets_seed(t *testing.T) {
	t.Parallel()

	p := Pattern{Kind: KindRandom, ChunkSize: 8, RW: RWRead}
	a, err := Offsets(32<<10, p, FixedSeed(7))
	require.NoError(t, err)
	b, err := Offsets(32<<10, p, FixedSeed(7))
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed must give the same order")

	c, err := Offsets(32<<10, p, FixedSeed(7).Derive(1))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	u1, err := Offsets(32<<10, p, Seed{})
	require.NoError(t, err)
	u2, err := Offsets(32<<10, p, Seed{})
	require.NoError(t, err)
	assert.NotEqual(t, u1, u2, "unseeded orders should differ")
}

func TestSeed_Resolve(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FixedSeed(-3), FixedSeed(-3).Resolve())

	r1, r2 := Seed{}.Resolve(), Seed{}.Resolve()
	assert.True(t, r1.Set)
	assert.True(t, r2.Set)
	assert.NotEqual(t, r1.Value, r2.Value)

	p := Pattern{Kind: KindRandom, ChunkSize: 8, RW: RWRead}
	a, err := Offsets(32<<10, p, r1)
	require.NoError(t, err)
	b, err := Offsets(32<<10, p, FixedSeed(r1.Value))
	require.NoError(t, err)
	assert.Equal(t, a, b, "a resolved seed replays through its reported value")
}

func TestEmbedChain_singleCycle(t *testing.T) {
	t.Parallel()

	const size = 16 << 10
	for _, p := range []Pattern{
		{Kind: KindRandom, ChunkSize: 8, RW: RWRead},
		{Kind: KindRandom, ChunkSize: 64, RW: RWRead},
		{Kind: KindSequential, ChunkSize: 64, Stride: 1, RW: RWRead},
	} {
		p := p
		t.Run(p.String(), func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, size)
			offsets, err := Offsets(size, p, FixedSeed(1))
			require.NoError(t, err)
			require.NoError(t, EmbedChain(buf, offsets))

			n := len(offsets)
			walked := Walk(buf, offsets[0], n+1)
			assert.Equal(t, offsets, walked[:n])
			assert.Equal(t, offsets[0], walked[n], "chain must close after visiting every chunk")
		})
	}
}

func TestPattern_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		pattern Pattern
		wantErr error
	}{
		{
			name:    "ok",
			size:    4096,
			pattern: Pattern{Kind: KindSequential, ChunkSize: 32, Stride: -8, RW: RWRead},
		},
		{
			name:    "random 4 byte chunks",
			size:    4096,
			pattern: Pattern{Kind: KindRandom, ChunkSize: 4, RW: RWRead},
			wantErr: probeerrors.ErrChunkTooSmall,
		},
		{
			name:    "size not a multiple of chunk",
			size:    100,
			pattern: Pattern{Kind: KindSequential, ChunkSize: 64, Stride: 1, RW: RWRead},
			wantErr: probeerrors.ErrPatternRegionMismatch,
		},
		{
			name:    "unsupported stride",
			size:    4096,
			pattern: Pattern{Kind: KindSequential, ChunkSize: 8, Stride: 3, RW: RWRead},
			wantErr: probeerrors.ErrInvalidConfig,
		},
		{
			name:    "random copy",
			size:    4096,
			pattern: Pattern{Kind: KindRandom, ChunkSize: 8, RW: RWCopy},
			wantErr: probeerrors.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.pattern.Validate(tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Truef(t, errors.Is(err, tt.wantErr), "Validate() = %v, want %v", err, tt.wantErr)
		})
	}
}
