// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package deferred implements the bounded priority queue of §4.5: encrypted
// records buffered because they arrived before the keys that decrypt them
// (next-epoch, during in_init) or because renegotiation withheld already
// decrypted records from delivery.
package deferred

import (
	"github.com/hrissan/dtlsrecord/constants"
	"github.com/hrissan/dtlsrecord/intrusive"
	"github.com/hrissan/dtlsrecord/record"
)

// Item is one buffered record. heapIndex is intrusive storage for the
// backing heap (§3 "DeferredRecord"); callers must not touch it.
type Item struct {
	Priority record.Number
	Packet   []byte

	heapIndex int
}

func less(a, b *Item) bool {
	return a.Priority.Less(b.Priority)
}

// Queue is the bounded priority queue of §4.5. Zero value is not usable;
// construct with New.
type Queue struct {
	heap *intrusive.IntrusiveHeap[Item]
	seen map[record.Number]struct{}
}

func New() *Queue {
	return &Queue{
		heap: intrusive.NewIntrusiveHeap[Item](less, constants.MaxDeferredQueueSize),
		seen: make(map[record.Number]struct{}, constants.MaxDeferredQueueSize),
	}
}

func (q *Queue) Len() int { return q.heap.Len() }

// Insert buffers packet under priority. Returns false if the queue is at
// its cap (§4.5, §8 P6) or if an item with the same priority is already
// queued — both are silent rejections, never errors (§4.5 "rejected" /
// "dropped silently").
func (q *Queue) Insert(priority record.Number, packet []byte) bool {
	if q.heap.Len() >= constants.MaxDeferredQueueSize {
		return false
	}
	if _, dup := q.seen[priority]; dup {
		return false
	}
	item := &Item{Priority: priority, Packet: packet}
	q.heap.Insert(item, &item.heapIndex)
	q.seen[priority] = struct{}{}
	return true
}

// PopMin removes and returns the smallest-priority item, or (nil, false)
// if the queue is empty.
func (q *Queue) PopMin() (*Item, bool) {
	if q.heap.Len() == 0 {
		return nil, false
	}
	item := q.heap.Front()
	q.heap.PopFront()
	delete(q.seen, item.Priority)
	return item, true
}

// DrainTo pops every item in ascending priority order and forwards its raw
// packet to sink, satisfying §8 P7 (non-decreasing epoch,seq order on
// teardown). sink returning an error aborts the drain and that error is
// returned; the item passed to the failing sink call has already been
// popped and is not re-queued, and the items after it stay queued.
func (q *Queue) DrainTo(sink func(packet []byte) error) error {
	for {
		item, ok := q.PopMin()
		if !ok {
			return nil
		}
		if err := sink(item.Packet); err != nil {
			return err
		}
	}
}
