// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import "time"

// Capacity is the fixed-point currency the token bucket trades in: a
// ticket normalized against the group's cost-capacity axis and scaled by
// FixedPointFactor. All hot-path arithmetic on Capacity is plain uint64
// addition and wraps modulo 2^64 by design — see rover.go.
type Capacity = uint64

const (
	// FixedPointFactor converts the small (~2^-30 seconds order of
	// magnitude) float64 produced by Ticket.Normalize into a non-zero
	// integer. 2^24 is the value the original source settles on: large
	// enough that the smallest realistic request still rounds to a
	// nonzero Capacity, small enough that accumulated costs don't run
	// into float64 precision loss while still being built from floats at
	// construction time.
	FixedPointFactor = float64(1 << 24)

	// RateResolution is the tick length used to convert a per-second rate
	// into per-tick capacity; constants that must match bit-exactly
	// between cooperating shards (spec.md §6).
	RateResolution = time.Millisecond

	// ReadRequestBaseCount, RequestTicketSizeShift and MinimalRequestSize
	// are the upper-layer (io_queue) scaling constants spec.md §6 asks to
	// be preserved even though io_queue itself is out of this module's
	// scope: a caller translating read_base_count-scaled tickets into
	// FairGroup/FairQueue calls needs them to stay bit-compatible with
	// any sibling implementation.
	ReadRequestBaseCount   = 128
	RequestTicketSizeShift = 9
	MinimalRequestSize     = 512
)

// CapacityTokens converts an internal Capacity value back into the real
// token domain: "seconds of device time" this amount of capacity
// represents. It is the inverse of the *FixedPointFactor*RateResolution
// scaling NewFairGroup applies, and is how the per-class consumption
// metrics (spec.md §6) are reported.
func CapacityTokens(cap Capacity) float64 {
	return float64(cap) / FixedPointFactor / float64(time.Second/RateResolution)
}
