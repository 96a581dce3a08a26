// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRealAdvancesOnItsOwn(t *testing.T) {
	var r Real
	a := r.Now()
	b := r.Now()
	require.False(t, b.Before(a))
}

func TestManualHoldsUntilAdvanced(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	require.Equal(t, start, m.Now())
	require.Equal(t, start, m.Now())

	next := m.Advance(time.Second)
	require.Equal(t, start.Add(time.Second), next)
	require.Equal(t, next, m.Now())
}

func TestManualSatisfiesSource(t *testing.T) {
	var _ Source = (*Manual)(nil)
	var _ Source = Real{}
}
