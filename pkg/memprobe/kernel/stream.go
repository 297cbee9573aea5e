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

package kernel

import (
	"strings"

	"github.com/pkg/errors"

	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

// StreamOp is one of the four STREAM operations
type StreamOp string

const (
	StreamCopy  StreamOp = "copy"  // c = a
	StreamScale StreamOp = "scale" // b = q*c
	StreamAdd   StreamOp = "add"   // c = a + b
	StreamTriad StreamOp = "triad" // a = b + q*c
)

var StreamOps = []StreamOp{StreamCopy, StreamScale, StreamAdd, StreamTriad}

// StreamScalar is q in scale and triad
const StreamScalar = 3.0

func ParseStreamOp(s string) (StreamOp, error) {
	for _, op := range StreamOps {
		if string(op) == strings.ToLower(s) {
			return op, nil
		}
	}
	return "", errors.Wrapf(probeerrors.ErrInvalidConfig, "unknown stream op %q", s)
}

// BytesPerElement counts the bytes moved per array index, as STREAM does
func (op StreamOp) BytesPerElement() int {
	switch op {
	case StreamAdd, StreamTriad:
		return 24
	}
	return 16
}

// Stream applies op to elements [lo, hi) of the three arrays
func Stream(op StreamOp, a, b, c []float64, lo, hi int) {
	switch op {
	case StreamCopy:
		for j := lo; j < hi; j++ {
			c[j] = a[j]
		}
	case StreamScale:
		for j := lo; j < hi; j++ {
			b[j] = StreamScalar * c[j]
		}
	case StreamAdd:
		for j := lo; j < hi; j++ {
			c[j] = a[j] + b[j]
		}
	case StreamTriad:
		for j := lo; j < hi; j++ {
			a[j] = b[j] + StreamScalar*c[j]
		}
	}
}

// DummyStream iterates [lo, hi) without touching the arrays
func DummyStream(lo, hi int) uint64 {
	var acc uint64
	for j := lo; j < hi; j++ {
		acc += uint64(j)
	}
	return acc
}
