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
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	memprobeconfig "github.com/kubewharf/katalyst-memprobe/pkg/config/memprobe"
	"github.com/kubewharf/katalyst-memprobe/pkg/memprobe/aggregator"
	probeerrors "github.com/kubewharf/katalyst-memprobe/pkg/memprobe/errors"
)

// Writer persists report entries in arrival order
type Writer interface {
	Write(entry *aggregator.ReportEntry) error
	Close() error
}

// InitFunc opens a writer for a destination
type InitFunc func(dest string) (Writer, error)

// writerInitializers is used to store the initializing function for each output format
var writerInitializers sync.Map

// RegisterWriterInitializer is used to register user-defined output formats
func RegisterWriterInitializer(format string, initFunc InitFunc) {
	klog.V(6).Infof("memprobe: report: reg format %s", format)
	writerInitializers.Store(format, initFunc)
}

// getWriterInitializers returns those formats with initialized functions
func getWriterInitializers() map[string]InitFunc {
	formats := make(map[string]InitFunc)
	writerInitializers.Range(func(key, value interface{}) bool {
		formats[key.(string)] = value.(InitFunc)
		return true
	})
	return formats
}

// Formats lists the registered output formats
func Formats() []string {
	var names []string
	for name := range getWriterInitializers() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterWriterInitializer(memprobeconfig.FormatCSV, func(dest string) (Writer, error) {
		out, err := openOutput(dest)
		if err != nil {
			return nil, err
		}
		return NewCSVWriter(out), nil
	})
	RegisterWriterInitializer(memprobeconfig.FormatJSONL, func(dest string) (Writer, error) {
		out, err := openOutput(dest)
		if err != nil {
			return nil, err
		}
		return NewJSONLWriter(out), nil
	})
	RegisterWriterInitializer(memprobeconfig.FormatSQLite, func(dest string) (Writer, error) {
		return NewSQLiteWriter(dest)
	})
}

// Open returns the writer of the named format for dest
func Open(format, dest string) (Writer, error) {
	initFunc, ok := getWriterInitializers()[format]
	if !ok {
		return nil, errors.Wrapf(probeerrors.ErrInvalidConfig, "invalid output format %v", format)
	}
	return initFunc(dest)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func openOutput(dest string) (io.WriteCloser, error) {
	if dest == "" || dest == memprobeconfig.StdoutDestination {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", dest)
	}
	return f, nil
}
