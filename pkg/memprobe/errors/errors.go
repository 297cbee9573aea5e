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

// Package errors is the error taxonomy of the memory probe. Every failure a
// benchmark cell can hit carries a Kind; the runner skips the cell for all
// kinds except KindTimer, which aborts the whole run.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type Kind string

const (
	KindUnknown       Kind = "UnknownError"
	KindAllocation    Kind = "AllocationError"
	KindAffinity      Kind = "AffinityError"
	KindBenchmark     Kind = "BenchmarkError"
	KindConfiguration Kind = "ConfigurationError"
	KindTimer         Kind = "TimerError"
)

// kinded is implemented by every error that knows its own Kind
type kinded interface {
	Kind() Kind
}

type sentinel struct {
	kind Kind
	msg  string
}

func (s *sentinel) Error() string { return s.msg }

func (s *sentinel) Kind() Kind { return s.kind }

func newSentinel(kind Kind, msg string) error {
	return &sentinel{kind: kind, msg: msg}
}

var (
	ErrInsufficientMemory   = newSentinel(KindAllocation, "insufficient memory")
	ErrHugePagesUnavailable = newSentinel(KindAllocation, "huge pages unavailable")
	ErrNUMANodeInvalid      = newSentinel(KindAllocation, "numa node invalid")
	ErrNUMANodeUnavailable  = newSentinel(KindAllocation, "numa node unavailable")

	ErrPinFailed        = newSentinel(KindAffinity, "pin to cpu failed")
	ErrNotEnoughCPUs    = newSentinel(KindAffinity, "not enough cpus")
	ErrDurationTooShort = newSentinel(KindBenchmark, "measured duration too short")
	ErrCancelled        = newSentinel(KindBenchmark, "cancelled")

	ErrPatternRegionMismatch = newSentinel(KindConfiguration, "pattern does not fit region")
	ErrChunkTooSmall         = newSentinel(KindConfiguration, "chunk too small")
	ErrInvalidConfig         = newSentinel(KindConfiguration, "invalid configuration")

	ErrTimerCalibration = newSentinel(KindTimer, "timer calibration failed")
)

// KindOf returns the Kind of the first kinded error in err's chain
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k kinded
	if pkgerrors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the whole run instead of one cell
func IsFatal(err error) bool {
	return KindOf(err) == KindTimer
}

// CellError binds an error to the benchmark cell it came from
type CellError struct {
	Cell string
	Err  error
}

func NewCellError(cell string, err error) *CellError {
	return &CellError{Cell: cell, Err: err}
}

func (e *CellError) Error() string {
	return fmt.Sprintf("%s in %s: %v", e.Kind(), e.Cell, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

func (e *CellError) Kind() Kind { return KindOf(e.Err) }
