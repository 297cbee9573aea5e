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
	"io"

	"github.com/pkg/errors"
	"github.com/sugawarayuuta/sonnet"

	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
)

type jsonlWriter struct {
	out io.WriteCloser
}

// NewJSONLWriter writes one json object per line
func NewJSONLWriter(out io.WriteCloser) Writer {
	return &jsonlWriter{out: out}
}

func (j *jsonlWriter) Write(entry *aggregator.ReportEntry) error {
	line, err := sonnet.Marshal(NewRecord(entry))
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", entry.Config.Name)
	}
	line = append(line, '\n')
	if _, err := j.out.Write(line); err != nil {
		return errors.Wrapf(err, "failed to write %s", entry.Config.Name)
	}
	return nil
}

func (j *jsonlWriter) Close() error {
	return j.out.Close()
}
