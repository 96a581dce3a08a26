// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import "sync/atomic"

// rover is one end of the cross-shard token bucket: a wrapping, monotone
// capacity_t counter advanced only by fetch-add, never by a mutex or a
// compare-and-swap. Two rovers (tail, head) form a FairGroup; "ahead of"
// comparisons interpret the wraparound-prone subtraction as signed, giving
// a window of +/-2^63 within which ordering is well defined, exactly as
// spec.md §4.2 and §9 require.
type rover struct {
	v atomic.Uint64
}

func newRover(r *rover, initial Capacity) {
	r.v.Store(initial)
}

// load reads the current value.
func (r *rover) load() Capacity {
	return r.v.Load()
}

// fetchAdd adds delta and returns the value the rover held *before* the
// add — the "grabbed" position a caller reserved.
func (r *rover) fetchAdd(delta Capacity) Capacity {
	return r.v.Add(delta) - delta
}

// aheadOf reports whether a is ahead of b in the wrapping sense, i.e.
// whether interpreting (a-b) as a signed 64-bit quantity yields a positive
// value. This is the single primitive every deficiency/clamp computation
// in this package is built from.
func aheadOf(a, b Capacity) bool {
	return int64(a-b) > 0
}

// satDiff returns max(0, a-b) in the wrapping sense described by aheadOf:
// if a is not ahead of b the difference saturates to zero instead of
// wrapping around to a huge unsigned value.
func satDiff(a, b Capacity) Capacity {
	d := int64(a - b)
	if d <= 0 {
		return 0
	}
	return Capacity(d)
}

// minCapacity returns the smaller of a and b by the same wrapping-aware
// comparison used throughout this file.
func minCapacity(a, b Capacity) Capacity {
	if aheadOf(a, b) {
		return b
	}
	return a
}
