// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

// Command fairbench drives synthetic multi-shard load through a
// fairqueue.FairGroup/FairQueue pair and prints, or exports over
// Prometheus, how fairly each named scheduling group's share of device
// capacity was actually honored.
//
// The default scenario reproduces the three named scheduling groups the
// original io_controller_demo used to sanity-check bandwidth
// provisioning: "statement", "commitlog" and "streaming", each pinned to
// its own share of a single simulated device.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fairbench",
	Short: "drive synthetic load through a fairqueue scheduler",
	Long: `fairbench simulates several shards of a single device sharing one
fairqueue.FairGroup, each shard running its own fairqueue.FairQueue with
a fixed set of named priority classes. It is a load-testing and
demonstration harness, not a benchmark of fairqueue's own overhead.`,
}

func init() {
	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
