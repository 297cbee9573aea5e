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

package report

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
)

type csvWriter struct {
	out         io.WriteCloser
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVWriter writes a header line followed by one line per entry
func NewCSVWriter(out io.WriteCloser) Writer {
	return &csvWriter{out: out, w: csv.NewWriter(out)}
}

func (c *csvWriter) Write(entry *aggregator.ReportEntry) error {
	if !c.wroteHeader {
		if err := c.w.Write(Header); err != nil {
			return errors.Wrap(err, "failed to write csv header")
		}
		c.wroteHeader = true
	}
	if err := c.w.Write(NewRecord(entry).Values()); err != nil {
		return errors.Wrapf(err, "failed to write %s", entry.Config.Name)
	}
	// flushed per entry so an aborted run keeps what it measured
	c.w.Flush()
	return c.w.Error()
}

func (c *csvWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.out.Close()
		return err
	}
	return c.out.Close()
}
