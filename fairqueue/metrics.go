// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ClassMetrics are the two per-class counters spec.md §6 asks callers to
// surface: Consumption, the raw disk-capacity units this class has ever
// dispatched (a monotone counter whose per-second rate of 1.0 means the
// class alone is using the device's full rated capacity), and
// AdjustedConsumption, the same quantity
// after the shares/idling-preemption fairness adjustment. Both are
// reported on the "seconds of device time" scale CapacityTokens defines.
//
// These are prometheus.CounterFunc collectors: pull-based, computed
// on-scrape from the live priorityClass fields, mirroring how
// pkg/util/admission/granter.go and pkg/util/admission/io_grant_coordinator.go
// wire prometheus directly against live scheduler state rather than
// incrementing a separate counter on every dispatch.
type ClassMetrics struct {
	Consumption         prometheus.CounterFunc
	AdjustedConsumption prometheus.CounterFunc
}

// NewClassMetrics builds the ClassMetrics collectors for a registered
// class. The caller is responsible for registering them with whatever
// prometheus.Registerer it uses; fairqueue never registers metrics behind
// a caller's back.
func (q *FairQueue) NewClassMetrics(id ClassID) (*ClassMetrics, error) {
	pc, err := q.classFor(id)
	if err != nil {
		return nil, err
	}

	labels := prometheus.Labels{"queue": q.config.Label, "class": classLabel(id)}
	return &ClassMetrics{
		Consumption: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "fairqueue",
			Name:        "consumption",
			Help:        "Accumulated disk capacity units consumed by this class; an increment per-second rate indicates full utilization.",
			ConstLabels: labels,
		}, func() float64 { return CapacityTokens(pc.pureAccumulated) }),
		AdjustedConsumption: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "fairqueue",
			Name:        "adjusted_consumption",
			Help:        "Consumed disk capacity units adjusted for class shares and idling preemption.",
			ConstLabels: labels,
		}, func() float64 { return CapacityTokens(clampNonNegative(pc.accumulated)) }),
	}, nil
}

func clampNonNegative(v int64) Capacity {
	if v < 0 {
		return 0
	}
	return Capacity(v)
}

func classLabel(id ClassID) string {
	return strconv.FormatUint(uint64(id), 10)
}
