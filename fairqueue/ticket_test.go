// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTicketZero(t *testing.T) {
	require.True(t, Ticket{}.IsZero())
	require.False(t, Ticket{}.NonZero())
	require.False(t, Ticket{Weight: 1}.IsZero())
	require.True(t, Ticket{Weight: 1}.NonZero())
	require.True(t, Ticket{Size: 1}.NonZero())
}

func TestTicketAddSub(t *testing.T) {
	a := Ticket{Weight: 3, Size: 100}
	b := Ticket{Weight: 1, Size: 40}

	require.Equal(t, Ticket{Weight: 4, Size: 140}, a.Add(b))
	require.Equal(t, Ticket{Weight: 2, Size: 60}, a.Sub(b))
}

func TestTicketSubSaturatesAtZero(t *testing.T) {
	a := Ticket{Weight: 1, Size: 10}
	b := Ticket{Weight: 5, Size: 5}

	got := a.Sub(b)
	require.Equal(t, uint32(0), got.Weight, "weight must saturate instead of wrapping")
	require.Equal(t, uint32(5), got.Size)
}

func TestTicketNormalize(t *testing.T) {
	axis := Ticket{Weight: 1000, Size: 1 << 20}
	t1 := Ticket{Weight: 1, Size: 4096}

	got := t1.Normalize(axis)
	require.Greater(t, got, 0.0)
	require.Less(t, got, 0.01, "a single small request should normalize to a tiny fraction of one rate tick")

	// A request that is large on both axes costs strictly more than one
	// large on a single axis (spec.md §4.1 rationale for sum over max).
	big := Ticket{Weight: 500, Size: 1 << 19}
	oneAxis := Ticket{Weight: 500, Size: 0}
	require.Greater(t, big.Normalize(axis), oneAxis.Normalize(axis))
}

func TestWrappingDifference(t *testing.T) {
	a := Ticket{Weight: 2, Size: 2}
	b := Ticket{Weight: 5, Size: 1}
	got := WrappingDifference(a, b)
	require.Equal(t, Ticket{Weight: 0, Size: 1}, got)
}
