// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package main

import (
	"time"

	"github.com/spf13/cobra"
)

// runConfig collects run's flags. Field names mirror the flag names so
// runBench can be read alongside the flag registration below.
type runConfig struct {
	shards   uint32
	duration time.Duration

	weightRate uint64 // device ops/s
	sizeRate   uint64 // device bytes/s
	rateFactor float64

	statementQPS float64
	commitlogQPS float64
	streamingQPS float64

	metricsAddr string
}

var runCfg = runConfig{
	shards:       4,
	duration:     10 * time.Second,
	weightRate:   200_000,
	sizeRate:     200 << 20, // 200MB/s, matching io_controller_demo's statement group
	rateFactor:   0.9,
	statementQPS: 1000,
	commitlogQPS: 500,
	streamingQPS: 100,
	metricsAddr:  "",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the statement/commitlog/streaming scheduling-group scenario",
	Long: `run starts one fairqueue.FairQueue per shard, all sharing a single
fairqueue.FairGroup sized by --weight-rate/--size-rate/--rate-factor, and
drives synthetic requests into three priority classes named after the
scheduling groups io_controller_demo.cc provisions: statement, commitlog
and streaming. Each class's offered load is paced independently by
--statement-qps/--commitlog-qps/--streaming-qps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd.Context(), runCfg)
	},
}

func init() {
	f := runCmd.Flags()
	f.Uint32Var(&runCfg.shards, "shards", runCfg.shards, "number of independent FairQueue shards sharing the device")
	f.DurationVar(&runCfg.duration, "duration", runCfg.duration, "how long to run the scenario")
	f.Uint64Var(&runCfg.weightRate, "weight-rate", runCfg.weightRate, "device sustained rate on the weight (IOPS) axis")
	f.Uint64Var(&runCfg.sizeRate, "size-rate", runCfg.sizeRate, "device sustained rate on the size (bytes/s) axis")
	f.Float64Var(&runCfg.rateFactor, "rate-factor", runCfg.rateFactor, "fraction of the device's rated capacity to admit for, in (0,1]")
	f.Float64Var(&runCfg.statementQPS, "statement-qps", runCfg.statementQPS, "offered load for the statement class")
	f.Float64Var(&runCfg.commitlogQPS, "commitlog-qps", runCfg.commitlogQPS, "offered load for the commitlog class")
	f.Float64Var(&runCfg.streamingQPS, "streaming-qps", runCfg.streamingQPS, "offered load for the streaming class")
	f.StringVar(&runCfg.metricsAddr, "metrics-addr", runCfg.metricsAddr, "if set, serve Prometheus metrics on this address instead of printing a summary")
}
