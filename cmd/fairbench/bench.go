// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xemul/seastar/fairqueue"
)

// schedulingGroup mirrors one of io_controller_demo.cc's named groups: a
// priority class plus the offered load it's paced at.
type schedulingGroup struct {
	name   string
	id     fairqueue.ClassID
	shares uint32
	qps    float64
}

func defaultGroups(cfg runConfig) []schedulingGroup {
	return []schedulingGroup{
		{name: "statement", id: 0, shares: 1000, qps: cfg.statementQPS},
		{name: "commitlog", id: 1, shares: 500, qps: cfg.commitlogQPS},
		{name: "streaming", id: 2, shares: 100, qps: cfg.streamingQPS},
	}
}

type arrival struct {
	class  fairqueue.ClassID
	ticket fairqueue.Ticket
}

type inflightReq struct {
	finishAt time.Time
	ticket   fairqueue.Ticket
}

// shardCounters is one shard's dispatch tally per class, read only after
// the run finishes.
type shardCounters struct {
	mu         sync.Mutex
	dispatched map[fairqueue.ClassID]int
}

func newShardCounters() *shardCounters {
	return &shardCounters{dispatched: make(map[fairqueue.ClassID]int)}
}

func (c *shardCounters) record(id fairqueue.ClassID) {
	c.mu.Lock()
	c.dispatched[id]++
	c.mu.Unlock()
}

func (c *shardCounters) snapshot() map[fairqueue.ClassID]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[fairqueue.ClassID]int, len(c.dispatched))
	for k, v := range c.dispatched {
		out[k] = v
	}
	return out
}

func runBench(ctx context.Context, cfg runConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer func() { _ = logger.Sync() }()

	groups := defaultGroups(cfg)

	group, err := fairqueue.NewFairGroup(fairqueue.FairGroupConfig{
		Label:             "fairbench",
		MinWeight:         1,
		MinSize:           fairqueue.MinimalRequestSize,
		WeightRate:        cfg.weightRate,
		SizeRate:          cfg.sizeRate,
		RateFactor:        cfg.rateFactor,
		RateLimitDuration: 100 * time.Millisecond,
		Logger:            logger,
	})
	if err != nil {
		return errors.Wrap(err, "configuring fair group")
	}

	registry := prometheus.NewRegistry()
	var metricsServer *http.Server
	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server exited", zap.Error(err))
			}
		}()
		defer metricsServer.Close()
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	var wg sync.WaitGroup
	counters := make([]*shardCounters, cfg.shards)

	for shard := uint32(0); shard < cfg.shards; shard++ {
		sc := newShardCounters()
		counters[shard] = sc

		q := fairqueue.NewFairQueue(group, fairqueue.FairQueueConfig{
			Label:     fmt.Sprintf("shard-%d", shard),
			NumShards: cfg.shards,
			Logger:    logger,
		})
		for _, g := range groups {
			if err := q.RegisterPriorityClass(g.id, g.shares); err != nil {
				return errors.Wrapf(err, "registering class %s on shard %d", g.name, shard)
			}
			if err := registerClassMetrics(registry, q, g); err != nil {
				return errors.Wrapf(err, "registering metrics for class %s on shard %d", g.name, shard)
			}
		}

		wg.Add(1)
		go func(shard uint32, q *fairqueue.FairQueue, sc *shardCounters) {
			defer wg.Done()
			runShard(runCtx, q, groups, cfg.shards, sc)
		}(shard, q, sc)
	}

	wg.Wait()
	if cfg.metricsAddr == "" {
		report(groups, counters)
	}
	return nil
}

func registerClassMetrics(reg *prometheus.Registry, q *fairqueue.FairQueue, g schedulingGroup) error {
	m, err := q.NewClassMetrics(g.id)
	if err != nil {
		return err
	}
	return errors.CombineErrors(
		reg.Register(m.Consumption),
		reg.Register(m.AdjustedConsumption),
	)
}

// runShard owns exactly one FairQueue for its entire lifetime: fairqueue's
// contract requires a single goroutine driving Queue/DispatchRequests/
// NotifyRequestFinished for a given queue (spec.md §5), so arrivals from
// the per-class pacers are funneled through a channel instead of calling
// into q directly from their own goroutines.
func runShard(ctx context.Context, q *fairqueue.FairQueue, groups []schedulingGroup, shards uint32, sc *shardCounters) {
	arrivals := make(chan arrival, 256)

	var pacers sync.WaitGroup
	for _, g := range groups {
		pacers.Add(1)
		go func(g schedulingGroup) {
			defer pacers.Done()
			pace(ctx, g, shards, arrivals)
		}(g)
	}
	go func() {
		pacers.Wait()
		close(arrivals)
	}()

	ticker := time.NewTicker(200 * time.Microsecond)
	defer ticker.Stop()

	var inflight []inflightReq
	rng := rand.New(rand.NewSource(int64(shards) + 1))

	drained := false
	for !drained {
		select {
		case <-ctx.Done():
			drained = true
		case a, ok := <-arrivals:
			if !ok {
				arrivals = nil
				continue
			}
			_ = q.Queue(a.class, fairqueue.NewEntry(a.ticket, a.class))
		case now := <-ticker.C:
			inflight = reapFinished(inflight, now, q)
			q.DispatchRequests(func(e *fairqueue.Entry) {
				sc.record(e.Payload.(fairqueue.ClassID))
				latency := time.Duration(200+rng.Intn(800)) * time.Microsecond
				inflight = append(inflight, inflightReq{finishAt: now.Add(latency), ticket: e.Ticket()})
			})
		}
	}

	// Drain whatever is still in flight so the group's capacity accounting
	// doesn't leak past this shard's lifetime.
	for _, r := range inflight {
		q.NotifyRequestFinished(r.ticket)
	}
}

func reapFinished(inflight []inflightReq, now time.Time, q *fairqueue.FairQueue) []inflightReq {
	remaining := inflight[:0]
	for _, r := range inflight {
		if !now.Before(r.finishAt) {
			q.NotifyRequestFinished(r.ticket)
			continue
		}
		remaining = append(remaining, r)
	}
	return remaining
}

// pace generates one arrival per tick of a per-class rate limiter, sized
// like a small-to-medium disk read: weight 1 (one op), size sampled around
// a handful of filesystem blocks.
func pace(ctx context.Context, g schedulingGroup, shards uint32, out chan<- arrival) {
	limiter := rate.NewLimiter(rate.Limit(g.qps/float64(shards)), 1)
	rng := rand.New(rand.NewSource(int64(g.id) + 1))
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		size := uint32(fairqueue.MinimalRequestSize * (1 + rng.Intn(16)))
		select {
		case out <- arrival{class: g.id, ticket: fairqueue.Ticket{Weight: 1, Size: size}}:
		case <-ctx.Done():
			return
		}
	}
}

func report(groups []schedulingGroup, counters []*shardCounters) {
	totals := make(map[fairqueue.ClassID]int)
	for _, sc := range counters {
		for id, n := range sc.snapshot() {
			totals[id] += n
		}
	}

	type row struct {
		name       string
		shares     uint32
		dispatched int
	}
	rows := make([]row, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, row{name: g.name, shares: g.shares, dispatched: totals[g.id]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].shares > rows[j].shares })

	fmt.Println("class       shares  dispatched")
	for _, r := range rows {
		fmt.Printf("%-10s  %6d  %10d\n", r.name, r.shares, r.dispatched)
	}
}
