// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xemul/seastar/fairqueue/internal/clock"
)

func testGroupConfig(c clock.Source) FairGroupConfig {
	return FairGroupConfig{
		Label:             "test",
		MinWeight:         1,
		MinSize:           MinimalRequestSize,
		WeightRate:        100_000,
		SizeRate:          1_000_000_000,
		RateFactor:        1.0,
		RateLimitDuration: 10 * time.Millisecond,
		Clock:             c,
	}
}

func newTestGroup(t *testing.T) (*FairGroup, *clock.Manual) {
	t.Helper()
	mc := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	g, err := NewFairGroup(testGroupConfig(mc))
	require.NoError(t, err)
	return g, mc
}

func TestNewFairGroupValidation(t *testing.T) {
	base := testGroupConfig(clock.Real{})

	t.Run("rate factor zero", func(t *testing.T) {
		cfg := base
		cfg.RateFactor = 0
		_, err := NewFairGroup(cfg)
		require.Error(t, err)
	})

	t.Run("rate factor too large", func(t *testing.T) {
		cfg := base
		cfg.RateFactor = 1.5
		_, err := NewFairGroup(cfg)
		require.Error(t, err)
	})

	t.Run("zero weight rate", func(t *testing.T) {
		cfg := base
		cfg.WeightRate = 0
		_, err := NewFairGroup(cfg)
		require.Error(t, err)
	})

	t.Run("zero size rate", func(t *testing.T) {
		cfg := base
		cfg.SizeRate = 0
		_, err := NewFairGroup(cfg)
		require.Error(t, err)
	})

	t.Run("rate below resolution collapses an axis to zero", func(t *testing.T) {
		cfg := base
		cfg.WeightRate = 1 // less than one tick per millisecond
		_, err := NewFairGroup(cfg)
		require.Error(t, err)
	})

	t.Run("minimal ticket above replenish limit", func(t *testing.T) {
		cfg := base
		cfg.MinWeight = 1 << 20
		cfg.MinSize = 1 << 20
		_, err := NewFairGroup(cfg)
		require.Error(t, err)
	})

	t.Run("valid config succeeds", func(t *testing.T) {
		g, err := NewFairGroup(base)
		require.NoError(t, err)
		require.NotNil(t, g)
		require.Equal(t, g.replenishLimit, g.MaximumCapacity())
	})
}

func TestFairGroupTicketCapacity(t *testing.T) {
	g, _ := newTestGroup(t)

	// A ticket exactly matching the cost-capacity axis on weight alone
	// normalizes to 1.0 rate tick, i.e. exactly replenishRate.
	oneTick := Ticket{Weight: g.CostCapacity().Weight}
	require.Equal(t, g.replenishRate, g.TicketCapacity(oneTick))

	// The zero ticket costs nothing.
	require.Equal(t, Capacity(0), g.TicketCapacity(Ticket{}))
}

func TestFairGroupGrabReleaseDeficiency(t *testing.T) {
	g, _ := newTestGroup(t)

	oneTick := g.replenishRate

	// Fresh group: grabbing less than the bucket depth never runs short.
	prev := g.Grab(oneTick)
	require.Equal(t, Capacity(0), prev)
	require.Equal(t, Capacity(0), g.Deficiency(oneTick))

	// Grabbing past the bucket depth reports a positive deficiency.
	want := g.MaximumCapacity() + oneTick
	require.Greater(t, g.Deficiency(want), Capacity(0))

	// Releasing capacity advances head and can clear a deficiency.
	g.Release(oneTick)
	require.Equal(t, g.MaximumCapacity()+oneTick, g.head.load())
}

func TestFairGroupReplenishBelowThresholdIsANoOp(t *testing.T) {
	g, mc := newTestGroup(t)
	g.Grab(g.replenishRate) // open one tick of room, so only the threshold can hold head still
	headBefore := g.head.load()

	// One microsecond's worth of capacity (a thousandth of a tick) is below
	// replenishThreshold for this config (the minimal ticket's capacity,
	// about a hundredth of a tick), so nothing should move.
	mc.Advance(time.Microsecond)
	g.Replenish(mc.Now())

	require.Equal(t, headBefore, g.head.load())
}

func TestFairGroupReplenishClampsToRoom(t *testing.T) {
	g, mc := newTestGroup(t)

	oneTick := g.replenishRate
	g.Grab(oneTick) // tail now one tick ahead; head unchanged at the limit.

	// head is already sitting at tail+limit (zero room) before the grab's
	// effect is accounted; after grabbing, there is exactly one tick of
	// room for replenish to fill.
	mc.Advance(time.Second) // far more than enough capacity to fill that room
	g.Replenish(mc.Now())

	require.Equal(t, g.tail.load()+g.MaximumCapacity(), g.head.load(),
		"head must never be pushed past tail+limit by replenish")
}

func TestFairGroupMaybeReplenishGatesOnLocalCursor(t *testing.T) {
	g, mc := newTestGroup(t)
	g.Grab(g.replenishRate)

	cursor := mc.Now()
	headBefore := g.head.load()

	// Advancing past the local cursor by a microsecond changes nothing:
	// that yields less capacity than replenishThreshold, and MaybeReplenish
	// gates on the same computation Replenish uses.
	mc.Advance(time.Microsecond)
	g.MaybeReplenish(&cursor)
	require.Equal(t, headBefore, g.head.load())

	mc.Advance(time.Second)
	g.MaybeReplenish(&cursor)
	require.Greater(t, g.head.load(), headBefore)
	require.Equal(t, mc.Now(), cursor, "cursor advances only once replenish actually ran")
}

func TestFairGroupCapacityDuration(t *testing.T) {
	g, _ := newTestGroup(t)

	require.Equal(t, time.Duration(0), g.CapacityDuration(0))

	d := g.CapacityDuration(g.replenishRate)
	require.Equal(t, RateResolution, d)
}
