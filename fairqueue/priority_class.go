// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import "math"

// ClassID identifies a priority class within a FairQueue. IDs are small,
// dense, caller-assigned integers; FairQueue backs them with a slice grown
// to id+1 on registration, exactly as the original's
// std::vector<std::unique_ptr<priority_class_data>> does.
type ClassID uint32

// priorityClass holds the per-class scheduling state: its FIFO of queued
// entries, its share weight, and its accumulated-cost position in the
// fairness heap.
type priorityClass struct {
	id     ClassID
	shares uint32

	// accumulated is signed capacity, so the overflow-guard
	// renormalisation logic in dispatch has clean signed-max semantics to
	// check against (spec.md §4.3). push_from_idle's clamp only ever
	// raises it.
	accumulated int64
	// pureAccumulated is the monotone, unscaled raw cost consumed —
	// observability only, never read back into scheduling decisions.
	pureAccumulated uint64

	queue entryList

	// queued reports whether this class currently has a slot in the
	// dispatch heap; plugged reports whether it is externally eligible to
	// run at all. An unplugged class is removed from the heap even if its
	// queue is nonempty, and cannot be reinserted until replugged.
	queued  bool
	plugged bool

	// heapIndex is maintained by container/heap for O(log n) Remove/Fix.
	heapIndex int
}

func newPriorityClass(id ClassID, shares uint32) *priorityClass {
	return &priorityClass{id: id, shares: normalizeShares(shares), plugged: true}
}

func normalizeShares(shares uint32) uint32 {
	if shares < 1 {
		return 1
	}
	return shares
}

func (pc *priorityClass) updateShares(shares uint32) {
	pc.shares = normalizeShares(shares)
}

// classHeap implements container/heap.Interface over priority classes,
// ordered so the class with the *smallest* accumulated cost is always
// classHeap[0] — the "max-heap-with-reversed-compare" the original source
// documents: semantically it is a min-heap on consumption, so the class
// that has consumed the least runs next.
type classHeap []*priorityClass

func (h classHeap) Len() int { return len(h) }

func (h classHeap) Less(i, j int) bool {
	return h[i].accumulated < h[j].accumulated
}

func (h classHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *classHeap) Push(x interface{}) {
	pc := x.(*priorityClass)
	pc.heapIndex = len(*h)
	*h = append(*h, pc)
}

func (h *classHeap) Pop() interface{} {
	old := *h
	n := len(old)
	pc := old[n-1]
	old[n-1] = nil
	pc.heapIndex = -1
	*h = old[:n-1]
	return pc
}

// signedCapacityMax is the largest value priorityClass.accumulated may
// hold before the dispatch loop must renormalise (spec.md §4.3's overflow
// guard); math.MaxInt64 since accumulated is an int64.
const signedCapacityMax = int64(math.MaxInt64)
