// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

// Package fairqueue implements the I/O fair-scheduling core of a
// shared-nothing, per-shard runtime: a process-wide token bucket (FairGroup)
// that rations a device's aggregate IOPS/bandwidth envelope across many
// independent shards without a mutex, and a per-shard weighted priority
// scheduler (FairQueue) built on an accumulated-cost heap, a bounded clamp
// on the credit a class returning from idle can redeem, and a
// pending-capacity reservation that cooperates with the group.
//
// The asynchronous I/O submission path, the upper-layer queue that maps
// user priority classes to tickets, and the reactor loop are all external
// collaborators: this package only ever sees opaque Entry values carrying a
// Ticket, and invokes a caller-supplied callback on them at dispatch time.
package fairqueue
