// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/xemul/seastar/fairqueue/internal/clock"
	"go.uber.org/zap"
)

// maxReplenishRate bounds cfg.RateFactor*FixedPointFactor. It exists so a
// misconfigured rate can't make Replenish's round(rate*deltaMs) computation
// overflow a uint64 even across a multi-hour scheduling stall; 2^40 leaves
// 23 bits of headroom below the 2^63 window aheadOf relies on once the
// configured rate_limit_duration (bucket depth) is folded in.
const maxReplenishRate = Capacity(1) << 40

// FairGroupConfig parametrizes a FairGroup. It mirrors the C++
// fair_group::config aggregate field for field (spec.md §6).
type FairGroupConfig struct {
	// Label identifies the group in logs; purely cosmetic.
	Label string
	// MinWeight and MinSize describe the smallest ticket this device is
	// ever expected to see. Its capacity becomes the replenish threshold
	// (the least capacity Replenish releases at once), and NewFairGroup
	// rejects a configuration where that exceeds the bucket limit.
	MinWeight, MinSize uint32
	// WeightRate and SizeRate are the device's sustained per-second
	// capacities on each axis (ops/s and bytes/s respectively).
	WeightRate, SizeRate uint64
	// RateFactor downscales the above to preserve headroom; must be in
	// (0, 1].
	RateFactor float64
	// RateLimitDuration is the latency goal: how deep (in time) the
	// token bucket is allowed to be.
	RateLimitDuration time.Duration

	// Clock is the time source used by Replenish; defaults to the real
	// wall clock. Tests inject clock.Manual.
	Clock clock.Source
	// Logger receives the one-line construction summary FairGroup logs,
	// matching fair_group::fair_group's seastar_logger.info call. A nil
	// Logger disables this.
	Logger *zap.Logger
}

// FairGroup is the shared, cross-shard token bucket: a process-wide
// capacity budget rationed to many independent FairQueues via two wrapping
// atomic rovers (tail, head) with no mutex anywhere on the hot path. One
// FairGroup exists per device and is shared by every shard's FairQueue.
type FairGroup struct {
	costCapacity       Ticket
	replenishRate      Capacity
	replenishLimit     Capacity
	replenishThreshold Capacity

	tail rover
	head rover

	lastReplenished atomic.Int64 // UnixNano

	clock clock.Source
}

// NewFairGroup constructs a FairGroup from cfg, returning a ConfigInvalid
// error if the configuration is internally inconsistent.
func NewFairGroup(cfg FairGroupConfig) (*FairGroup, error) {
	if cfg.RateFactor <= 0 || cfg.RateFactor > 1 {
		return nil, newConfigInvalidError("rate_factor %v must be in (0, 1]", cfg.RateFactor)
	}
	if cfg.WeightRate == 0 || cfg.SizeRate == 0 {
		return nil, newConfigInvalidError("weight_rate and size_rate must both be nonzero")
	}

	ticksPerSecond := uint64(time.Second / RateResolution)
	costCapacity := Ticket{
		Weight: uint32(cfg.WeightRate / ticksPerSecond),
		Size:   uint32(cfg.SizeRate / ticksPerSecond),
	}
	if costCapacity.Weight == 0 || costCapacity.Size == 0 {
		return nil, newConfigInvalidError(
			"cost capacity %s has a zero axis; weight_rate/size_rate too small relative to rate resolution", costCapacity)
	}

	replenishRate := Capacity(math.Round(cfg.RateFactor * FixedPointFactor))
	if replenishRate > maxReplenishRate {
		return nil, newConfigInvalidError("rate_factor is too large: %v * fixed_point_factor exceeds the arithmetic limit", cfg.RateFactor)
	}

	durationTicks := float64(cfg.RateLimitDuration) / float64(RateResolution)
	replenishLimit := Capacity(math.Round(float64(replenishRate) * durationTicks))

	g := &FairGroup{
		costCapacity:   costCapacity,
		replenishRate:  replenishRate,
		replenishLimit: replenishLimit,
	}
	g.replenishThreshold = g.ticketCapacityLocked(Ticket{Weight: cfg.MinWeight, Size: cfg.MinSize})
	if g.replenishThreshold > replenishLimit {
		return nil, newConfigInvalidError(
			"minimal request (weight=%d, size=%d) normalizes above the replenish limit; it could never be batched",
			cfg.MinWeight, cfg.MinSize)
	}

	cs := cfg.Clock
	if cs == nil {
		cs = clock.Real{}
	}
	g.clock = cs
	newRover(&g.tail, 0)
	newRover(&g.head, replenishLimit)
	g.lastReplenished.Store(cs.Now().UnixNano())

	if cfg.Logger != nil {
		cfg.Logger.Info("created fair group",
			zap.String("label", cfg.Label),
			zap.String("cost_capacity", costCapacity.String()),
			zap.Uint64("limit", replenishLimit),
			zap.Uint64("rate", replenishRate),
			zap.Float64("rate_factor", cfg.RateFactor),
			zap.Uint64("threshold", g.replenishThreshold),
		)
	}

	return g, nil
}

// CostCapacity returns the ticket used as the normalization axis: the
// per-rate-tick device capacity this group was configured with.
func (g *FairGroup) CostCapacity() Ticket { return g.costCapacity }

// MaximumCapacity returns the bucket depth (replenish_limit): the largest
// outstanding capacity the group will ever carry ahead of its head rover.
func (g *FairGroup) MaximumCapacity() Capacity { return g.replenishLimit }

// TicketCapacity converts a ticket into the fixed-point Capacity unit the
// token bucket trades in: round(ticket.Normalize(costCapacity) *
// FixedPointFactor). This is the only floating-point step in a request's
// cost accounting; the per-class accumulation in DispatchRequests is
// integer (spec.md §9).
func (g *FairGroup) TicketCapacity(t Ticket) Capacity {
	return g.ticketCapacityLocked(t)
}

func (g *FairGroup) ticketCapacityLocked(t Ticket) Capacity {
	return Capacity(math.Round(t.Normalize(g.costCapacity) * FixedPointFactor))
}

// Grab atomically advances the tail rover by cap and returns the position
// it held beforehand. Grab never blocks and never fails: it is purely
// optimistic admission. It is the caller's responsibility (FairQueue does
// this) to check whether the resulting position is within head+limit and,
// if not, to wait. cap must not exceed MaximumCapacity.
func (g *FairGroup) Grab(cap Capacity) Capacity {
	return g.tail.fetchAdd(cap)
}

// Release atomically advances the head rover by cap, returning capacity to
// the bucket. Monotone; never blocks.
func (g *FairGroup) Release(cap Capacity) {
	g.head.fetchAdd(cap)
}

// Deficiency reports how far, if at all, tailTarget is ahead of the
// current head: wrapping max(0, tailTarget-head).
func (g *FairGroup) Deficiency(tailTarget Capacity) Capacity {
	return satDiff(tailTarget, g.head.load())
}

// Replenish converts the elapsed time since the group's last replenishment
// into capacity and releases it, batched: if the elapsed time hasn't
// accumulated at least replenishThreshold worth of capacity, this is a
// no-op, so a fast-polling shard doesn't contend the head rover on every
// call. Like Grab/Release, this never takes a lock; concurrent callers
// racing to replenish are permitted (each computes its own extra from a
// shared lastReplenished snapshot) and merely wasteful, never incorrect,
// because the head advance is itself a plain fetch-add.
func (g *FairGroup) Replenish(now time.Time) {
	lastNanos := g.lastReplenished.Load()
	delta := now.Sub(time.Unix(0, lastNanos))
	if delta <= 0 {
		return
	}

	deltaTicks := float64(delta) / float64(RateResolution)
	extra := Capacity(math.Round(float64(g.replenishRate) * deltaTicks))
	if extra < g.replenishThreshold {
		return
	}

	g.lastReplenished.Store(now.UnixNano())

	// Clamp the amount released so head never runs more than limit ahead
	// of tail. This is a best-effort snapshot-based clamp, not a CAS loop:
	// under concurrent replenishers it can let head creep slightly past
	// tail+limit, which the deficiency/backpressure path simply absorbs on
	// its next check.
	tail := g.tail.load()
	head := g.head.load()
	room := satDiff(tail+g.replenishLimit, head)
	if extra > room {
		extra = room
	}
	if extra == 0 {
		return
	}
	g.head.fetchAdd(extra)
}

// MaybeReplenish calls Replenish only if enough time has passed since
// localLastReplenished (a per-shard cursor the caller owns) to matter,
// updating *localLastReplenished on success. This is the per-shard gate
// fair_group::maybe_replenish_capacity implements in the original source:
// a single waiting shard can self-serve once enough time has passed,
// without every shard hammering the shared state on every dispatch call.
func (g *FairGroup) MaybeReplenish(localLastReplenished *time.Time) {
	now := g.clock.Now()
	delta := now.Sub(*localLastReplenished)
	if delta <= 0 {
		return
	}
	deltaTicks := float64(delta) / float64(RateResolution)
	extra := Capacity(math.Round(float64(g.replenishRate) * deltaTicks))
	if extra < g.replenishThreshold {
		return
	}
	*localLastReplenished = now
	g.Replenish(now)
}

// CapacityDuration estimates the wall-clock time needed to accumulate cap
// worth of capacity at the group's replenish rate; the peer of the
// accumulated-capacity computation Replenish performs, used by
// FairQueue.NextPendingAIO to produce a reactor wakeup hint.
func (g *FairGroup) CapacityDuration(cap Capacity) time.Duration {
	if g.replenishRate == 0 {
		return 0
	}
	ticks := float64(cap) / float64(g.replenishRate)
	return time.Duration(ticks * float64(RateResolution))
}
