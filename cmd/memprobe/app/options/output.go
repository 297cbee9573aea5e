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

package options

import (
	cliflag "k8s.io/component-base/cli/flag"

	memprobeconfig "github.com/kubewharf/katalyst-memprobe/pkg/config/memprobe"
)

type OutputOptions struct {
	Format      string
	Destination string
}

func NewOutputOptions() *OutputOptions {
	c := memprobeconfig.NewOutputConfiguration()
	return &OutputOptions{
		Format:      c.Format,
		Destination: c.Destination,
	}
}

func (o *OutputOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("output")

	fs.StringVar(&o.Format, "output-format", o.Format, "report format, one of csv, jsonl, sqlite")
	fs.StringVarP(&o.Destination, "output", "o", o.Destination, "report file, - for standard output")
}

func (o *OutputOptions) ApplyTo(c *memprobeconfig.OutputConfiguration) error {
	c.Format = o.Format
	c.Destination = o.Destination
	return nil
}
