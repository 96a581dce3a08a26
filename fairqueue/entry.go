// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

// Entry is a caller-owned node threaded through a priority class's
// intrusive FIFO list. It carries a ticket, the linkage and a caller
// payload; the
// FairQueue never allocates, copies or frees an Entry — the caller owns
// its storage for the entry's entire lifetime, from Queue() through the
// dispatch callback (or NotifyRequestCancelled).
//
// The Payload field is for the caller's use (typically the actual I/O
// request); fairqueue never inspects it.
type Entry struct {
	ticket  Ticket
	next    *Entry
	Payload interface{}
}

// NewEntry constructs an Entry carrying the given ticket.
func NewEntry(t Ticket, payload interface{}) *Entry {
	return &Entry{ticket: t, Payload: payload}
}

// Ticket returns the cost this entry was queued with. After
// NotifyRequestCancelled, this reads back as the zero ticket.
func (e *Entry) Ticket() Ticket { return e.ticket }

// entryList is the intrusive singly-linked FIFO backing one priority
// class's queue: push_back/pop_front are O(1), and there is no
// arbitrary-position removal. A cancelled entry (NotifyRequestCancelled
// zeroes its ticket) stays linked exactly where it was queued; it is
// dropped for free the next time DispatchRequests walks past it, without
// ever reaching a grab or the dispatch callback (spec.md §4.4).
type entryList struct {
	head, tail *Entry
	len        int
}

func (l *entryList) empty() bool { return l.head == nil }

func (l *entryList) pushBack(e *Entry) {
	e.next = nil
	if l.tail == nil {
		l.head, l.tail = e, e
	} else {
		l.tail.next = e
		l.tail = e
	}
	l.len++
}

func (l *entryList) front() *Entry { return l.head }

func (l *entryList) popFront() *Entry {
	e := l.head
	if e == nil {
		return nil
	}
	l.head = e.next
	if l.head == nil {
		l.tail = nil
	}
	e.next = nil
	l.len--
	return e
}
