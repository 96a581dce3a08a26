// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import (
	"container/heap"
	"time"

	"github.com/xemul/seastar/fairqueue/internal/clock"
	"go.uber.org/zap"
)

// FairQueueConfig parametrizes a FairQueue.
type FairQueueConfig struct {
	// Label identifies the queue in logs; purely cosmetic.
	Label string
	// Tau is the fairness decay window: how much idle credit a class can
	// redeem when it transitions from empty back to nonempty. Defaults to
	// 5ms if zero.
	Tau time.Duration
	// NumShards is the number of shards sharing the underlying FairGroup;
	// each DispatchRequests call is capped at group.MaximumCapacity() /
	// NumShards so a single shard cannot monopolize a dispatch round.
	// Defaults to 1.
	NumShards uint32
	// Clock is the time source for this queue's local replenish cursor
	// and its NextPendingAIO hint; defaults to the FairGroup's clock.
	Clock clock.Source
	// Logger receives the construction summary; nil disables logging.
	Logger *zap.Logger
}

const defaultTau = 5 * time.Millisecond

// pendingReservation is the single outstanding grab a FairQueue may be
// waiting on: a promise from the group that hasn't yet cleared.
type pendingReservation struct {
	head Capacity
	cap  Capacity
}

// grabResult is the outcome of trying to reserve capacity for the
// head-of-line entry of some priority class.
type grabResult int

const (
	grabResultGrabbed grabResult = iota
	grabResultPending
	grabResultCantPreempt
)

// FairQueue is the per-shard weighted-fair scheduler: it owns a set of
// priority classes, dispatches their head-of-line entries in
// accumulated-cost order, and cooperates with a shared FairGroup to keep
// the aggregate dispatch rate across all shards within the device's
// capacity envelope. FairQueue is not safe for concurrent use: it is
// designed to be owned and driven by exactly one shard's event loop
// (spec.md §5).
type FairQueue struct {
	config FairQueueConfig
	group  *FairGroup

	// groupReplenish is this shard's local cursor into the group's
	// replenishment clock, passed to FairGroup.MaybeReplenish so a single
	// waiting shard can self-serve once enough time has passed without
	// every shard hammering the group's shared state.
	groupReplenish time.Time

	resourcesExecuting Ticket
	resourcesQueued    Ticket
	requestsExecuting  int
	requestsQueued     int

	heap    classHeap
	classes []*priorityClass

	lastAccumulated int64
	pending         *pendingReservation

	clock clock.Source
}

// NewFairQueue constructs a FairQueue driven off the shared group. Unlike
// NewFairGroup, this never fails: any invalid Tau/NumShards is silently
// defaulted, matching the C++ constructor's total lack of validation
// (fair_queue::fair_queue takes whatever config it's given).
func NewFairQueue(group *FairGroup, cfg FairQueueConfig) *FairQueue {
	if cfg.Tau <= 0 {
		cfg.Tau = defaultTau
	}
	if cfg.NumShards == 0 {
		cfg.NumShards = 1
	}
	cs := cfg.Clock
	if cs == nil {
		cs = group.clock
	}

	if cfg.Logger != nil {
		cfg.Logger.Debug("created fair queue", zap.String("label", cfg.Label), zap.Duration("tau", cfg.Tau))
	}

	return &FairQueue{
		config:         cfg,
		group:          group,
		groupReplenish: cs.Now(),
		clock:          cs,
	}
}

func (q *FairQueue) classFor(id ClassID) (*priorityClass, error) {
	if int(id) >= len(q.classes) || q.classes[id] == nil {
		return nil, newContractViolationError("class %d is not registered", id)
	}
	return q.classes[id], nil
}

// RegisterPriorityClass creates a class with the given share weight.
func (q *FairQueue) RegisterPriorityClass(id ClassID, shares uint32) error {
	if int(id) < len(q.classes) && q.classes[id] != nil {
		return newContractViolationError("class %d is already registered", id)
	}
	if int(id) >= len(q.classes) {
		grown := make([]*priorityClass, id+1)
		copy(grown, q.classes)
		q.classes = grown
	}
	q.classes[id] = newPriorityClass(id, shares)
	return nil
}

// UnregisterPriorityClass releases a class's slot. It is a contract
// violation to unregister a class whose queue is nonempty.
func (q *FairQueue) UnregisterPriorityClass(id ClassID) error {
	pc, err := q.classFor(id)
	if err != nil {
		return err
	}
	if !pc.queue.empty() {
		return newContractViolationError("class %d cannot be unregistered while its queue is nonempty", id)
	}
	q.classes[id] = nil
	return nil
}

// UpdateSharesForClass changes a class's weight; it takes effect on the
// next cost accumulation, not retroactively.
func (q *FairQueue) UpdateSharesForClass(id ClassID, shares uint32) error {
	pc, err := q.classFor(id)
	if err != nil {
		return err
	}
	pc.updateShares(shares)
	return nil
}

// ResourcesCurrentlyWaiting returns how much resource (weight, size) is
// currently queued across all classes.
func (q *FairQueue) ResourcesCurrentlyWaiting() Ticket { return q.resourcesQueued }

// ResourcesCurrentlyExecuting returns how much resource is currently
// dispatched but not yet finished.
func (q *FairQueue) ResourcesCurrentlyExecuting() Ticket { return q.resourcesExecuting }

// Waiters returns how many requests are currently queued across all
// classes.
//
// Deprecated: callers should track resources (weight, size), not
// individual request counts; use ResourcesCurrentlyWaiting instead.
func (q *FairQueue) Waiters() int { return q.requestsQueued }

// RequestsCurrentlyExecuting returns the number of requests currently
// dispatched but not yet finished.
//
// Deprecated: callers should track resources (weight, size), not
// individual request counts; use ResourcesCurrentlyExecuting instead.
func (q *FairQueue) RequestsCurrentlyExecuting() int { return q.requestsExecuting }

// pushPriorityClass inserts an already-plugged, not-yet-queued class into
// the dispatch heap.
func (q *FairQueue) pushPriorityClass(pc *priorityClass) {
	heap.Push(&q.heap, pc)
	pc.queued = true
}

// pushPriorityClassFromIdle inserts pc into the heap, first clamping its
// accumulated cost so it cannot redeem more than tau's worth of idle
// credit — the idling-preemption bound of spec.md §4.3.
func (q *FairQueue) pushPriorityClassFromIdle(pc *priorityClass) {
	if pc.queued {
		return
	}
	tauTicks := float64(q.config.Tau) / float64(RateResolution)
	maxDeviation := int64(FixedPointFactor / float64(pc.shares) * tauTicks)
	if floor := q.lastAccumulated - maxDeviation; floor > pc.accumulated {
		pc.accumulated = floor
	}
	q.pushPriorityClass(pc)
}

func (q *FairQueue) popPriorityClass(pc *priorityClass) {
	heap.Remove(&q.heap, pc.heapIndex)
	pc.queued = false
}

// PlugClass marks a class eligible to run again, reinserting it into the
// dispatch heap (via the idle-preemption path) if its queue is nonempty.
func (q *FairQueue) PlugClass(id ClassID) error {
	pc, err := q.classFor(id)
	if err != nil {
		return err
	}
	if pc.plugged {
		return newContractViolationError("class %d is already plugged", id)
	}
	pc.plugged = true
	if !pc.queue.empty() {
		q.pushPriorityClassFromIdle(pc)
	}
	return nil
}

// UnplugClass marks a class ineligible to run: it is removed from the
// dispatch heap even if nonempty, and stays out until replugged.
func (q *FairQueue) UnplugClass(id ClassID) error {
	pc, err := q.classFor(id)
	if err != nil {
		return err
	}
	if pc.queued {
		q.popPriorityClass(pc)
	}
	pc.plugged = false
	return nil
}

// Queue enqueues ent onto class id's FIFO. The caller retains ownership of
// ent until the dispatch callback fires or NotifyRequestCancelled is
// called.
func (q *FairQueue) Queue(id ClassID, ent *Entry) error {
	pc, err := q.classFor(id)
	if err != nil {
		return err
	}
	if pc.plugged {
		q.pushPriorityClassFromIdle(pc)
	}
	pc.queue.pushBack(ent)
	q.resourcesQueued = q.resourcesQueued.Add(ent.ticket)
	q.requestsQueued++
	return nil
}

// NotifyRequestFinished tells the queue that a dispatched request finished
// (successfully or not), releasing its reserved capacity back to the
// group. The ticket must match what was originally queued; passing a
// mismatched ticket produces a slow drift in the group's bucket rather
// than an error (spec.md §4.3 Failure semantics).
func (q *FairQueue) NotifyRequestFinished(t Ticket) {
	q.resourcesExecuting = q.resourcesExecuting.Sub(t)
	q.requestsExecuting--
	q.group.Release(q.group.TicketCapacity(t))
}

// NotifyRequestCancelled zeroes ent's contribution to the queued resource
// count. The caller is still responsible for unlinking ent from whatever
// external bookkeeping it uses and for not passing it to Queue again.
func (q *FairQueue) NotifyRequestCancelled(ent *Entry) {
	q.resourcesQueued = q.resourcesQueued.Sub(ent.ticket)
	q.requestsQueued--
	ent.ticket = Ticket{}
}

// grabPendingCapacity resolves an outstanding pending reservation against
// ent, per the state table in spec.md §4.3. The comparison against
// pending.cap always comes first: a head-of-line entry larger than what's
// reserved can never be satisfied by that reservation, so it is
// CantPreempt regardless of whether the group is still deficient. Only the
// equal and smaller cases fall back on checking deficiency.
func (q *FairQueue) grabPendingCapacity(ent *Entry) grabResult {
	q.group.MaybeReplenish(&q.groupReplenish)

	cap := q.group.TicketCapacity(ent.ticket)

	switch {
	case cap > q.pending.cap:
		return grabResultCantPreempt

	case cap < q.pending.cap:
		if q.group.Deficiency(q.pending.head) > 0 {
			return grabResultCantPreempt
		}
		q.group.Release(q.pending.cap - cap)
		q.pending = nil
		return grabResultGrabbed

	default: // cap == q.pending.cap: resuming the same request.
		if q.group.Deficiency(q.pending.head) > 0 {
			return grabResultPending
		}
		q.pending = nil
		return grabResultGrabbed
	}
}

// grabCapacity tries to reserve capacity for ent's ticket, either
// resolving an existing pending reservation or starting a fresh grab.
func (q *FairQueue) grabCapacity(ent *Entry) grabResult {
	if q.pending != nil {
		return q.grabPendingCapacity(ent)
	}

	cap := q.group.TicketCapacity(ent.ticket)
	wantHead := q.group.Grab(cap) + cap
	if q.group.Deficiency(wantHead) > 0 {
		q.pending = &pendingReservation{head: wantHead, cap: cap}
		return grabResultPending
	}
	return grabResultGrabbed
}

// DispatchRequests drains ready work, invoking cb on each entry whose
// capacity has been successfully reserved from the group, until either
// the heap empties, the group denies further capacity (a pending
// reservation), or this shard's per-round budget (group.MaximumCapacity /
// NumShards) is exhausted.
func (q *FairQueue) DispatchRequests(cb func(*Entry)) {
	var dispatched Capacity
	budget := q.group.MaximumCapacity() / Capacity(q.config.NumShards)

	var preempted []*priorityClass

dispatchLoop:
	for q.heap.Len() > 0 && dispatched < budget {
		top := q.heap[0]
		if top.queue.empty() {
			q.popPriorityClass(top)
			continue
		}

		ent := top.queue.front()
		if ent.ticket.IsZero() {
			// Cancelled since it was queued (NotifyRequestCancelled zeroed
			// its ticket but left it linked, per entry.go's list contract);
			// drop it from the FIFO without a grab or a callback.
			top.queue.popFront()
			continue
		}
		switch q.grabCapacity(ent) {
		case grabResultPending:
			break dispatchLoop
		case grabResultCantPreempt:
			q.popPriorityClass(top)
			preempted = append(preempted, top)
			continue
		}

		if top.accumulated > q.lastAccumulated {
			q.lastAccumulated = top.accumulated
		}
		q.popPriorityClass(top)
		top.queue.popFront()

		q.resourcesExecuting = q.resourcesExecuting.Add(ent.ticket)
		q.resourcesQueued = q.resourcesQueued.Sub(ent.ticket)
		q.requestsExecuting++
		q.requestsQueued--

		reqCap := q.group.TicketCapacity(ent.ticket)
		reqCost := int64(reqCap / Capacity(top.shares))
		if reqCost < 1 {
			reqCost = 1
		}

		if top.accumulated >= signedCapacityMax-reqCost {
			q.renormalize(top)
		}
		top.accumulated += reqCost
		top.pureAccumulated += reqCap

		dispatched += reqCap
		cb(ent)

		if top.plugged && !top.queue.empty() {
			q.pushPriorityClass(top)
		}
	}

	for _, pc := range preempted {
		q.pushPriorityClass(pc)
	}
}

// renormalize keeps accumulated cost from overflowing int64 without
// perturbing the relative order among queued classes (spec.md §4.3): the
// class about to dispatch (dispatching) has its accumulated cost
// subtracted from every other queued class, and every non-queued class —
// dispatching included — resets to zero.
func (q *FairQueue) renormalize(dispatching *priorityClass) {
	base := dispatching.accumulated
	for _, pc := range q.classes {
		if pc == nil {
			continue
		}
		if pc.queued {
			pc.accumulated -= base
		} else {
			pc.accumulated = 0
		}
	}
	q.lastAccumulated = 0
}

// NextPendingAIO returns a hint for when the reactor should next expect
// capacity to become available: now + however long the outstanding
// deficiency will take to drain at the group's replenish rate, or the
// zero time if there is no pending reservation.
func (q *FairQueue) NextPendingAIO() time.Time {
	if q.pending == nil {
		return time.Time{}
	}
	over := q.group.Deficiency(q.pending.head)
	return q.clock.Now().Add(q.group.CapacityDuration(over))
}
