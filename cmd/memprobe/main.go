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

package main

import (
	"context"
	goflag "flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/klog/v2"

	"github.com/kubewharf/katalyst-memprobe/cmd/memprobe/app"
	"github.com/kubewharf/katalyst-memprobe/cmd/memprobe/app/options"
)

const usageColumns = 100

func main() {
	opts := options.NewOptions()
	fss := &cliflag.NamedFlagSets{}
	opts.AddFlags(fss)

	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	fss.FlagSet("logging").AddGoFlagSet(klogFlags)

	commandLine := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	for _, name := range fss.Order {
		commandLine.AddFlagSet(fss.FlagSets[name])
	}
	commandLine.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nMeasures memory latency and bandwidth per numa node pair.\n", os.Args[0])
		cliflag.PrintSections(os.Stderr, *fss, usageColumns)
	}
	_ = commandLine.Parse(os.Args[1:])
	defer klog.Flush()

	conf, err := opts.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid options: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, conf); err != nil {
		klog.Errorf("memprobe failed: %v", err)
		klog.Flush()
		cancel()
		os.Exit(1)
	}
}
