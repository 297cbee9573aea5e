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

	"github.com/kubewharf/katalyst-memprobe/pkg/config"
)

// Options holds the configurations for memprobe
type Options struct {
	*MatrixOptions
	*RunnerOptions
	*OutputOptions
}

// NewOptions creates a new Options with a default config.
func NewOptions() *Options {
	return &Options{
		MatrixOptions: NewMatrixOptions(),
		RunnerOptions: NewRunnerOptions(),
		OutputOptions: NewOutputOptions(),
	}
}

// AddFlags adds flags to the specified FlagSet.
func (o *Options) AddFlags(fss *cliflag.NamedFlagSets) {
	o.MatrixOptions.AddFlags(fss)
	o.RunnerOptions.AddFlags(fss)
	o.OutputOptions.AddFlags(fss)
}

// ApplyTo fills up config with options
func (o *Options) ApplyTo(c *config.Configuration) error {
	errList := make([]error, 0, 3)
	errList = append(errList, o.MatrixOptions.ApplyTo(c.MatrixConfiguration))
	errList = append(errList, o.RunnerOptions.ApplyTo(c.RunnerConfiguration))
	errList = append(errList, o.OutputOptions.ApplyTo(c.OutputConfiguration))
	for _, err := range errList {
		if err != nil {
			return err
		}
	}
	return nil
}

// Config returns a validated configuration built from the options
func (o *Options) Config() (*config.Configuration, error) {
	c := config.NewConfiguration()
	if err := o.ApplyTo(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
