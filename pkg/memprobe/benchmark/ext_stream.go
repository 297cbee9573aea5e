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

package benchmark

import (
	"unsafe"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/kernel"
)

// streamPassElems float64 elements of each array per pass
const streamPassElems = BytesPerPass / 8

func validateStream(c Config) error {
	if _, err := kernel.ParseStreamOp(string(c.StreamOp)); err != nil {
		return errors.Wrapf(err, "%s", c.Name)
	}
	if c.RegionSize < 3*BytesPerPass {
		return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "%s: stream needs three %d byte arrays", c.Name, BytesPerPass)
	}
	return nil
}

// initStream carves the region into the a, b and c arrays
func (k *loadKernel) initStream(cfg Config, buf []byte) error {
	n := len(buf) / 8 / 3 / streamPassElems * streamPassElems
	if n == 0 {
		return errors.Wrapf(probeerrors.ErrPatternRegionMismatch, "region of %d bytes too small for stream", len(buf))
	}

	all := unsafe.Slice((*float64)(unsafe.Pointer(&buf[0])), 3*n)
	k.a, k.b, k.c = all[:n:n], all[n:2*n:2*n], all[2*n:]
	for j := range k.a {
		k.a[j] = 1
		k.b[j] = 2
		k.c[j] = 0
	}

	k.mode = modeStream
	k.streamOp = cfg.StreamOp
	k.streamElems = streamPassElems
	k.windowSize = streamPassElems
	k.windows = n / streamPassElems
	k.count = streamPassElems
	k.bytesPerPass = uint64(streamPassElems * cfg.StreamOp.BytesPerElement())
	return nil
}
