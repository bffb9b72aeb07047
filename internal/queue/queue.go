// Package queue implements the engine's ordered event queue: events are
// admitted for a future simulation time and drained in the priority
// order laid out below, earliest time first and, within a tied time,
// entity-lifecycle events ahead of everything else.
package queue

import (
	"container/heap"
	"fmt"

	"github.com/billdback/scarab/internal/core"
)

// band indexes a priority class. Lower bands drain first within a tick.
type band int

const (
	bandEntityCreated band = iota
	bandEntityChanged
	bandEntityDestroyed
	bandOther
	numBands
)

func bandFor(k core.Kind) band {
	switch k {
	case core.KindEntityCreated:
		return bandEntityCreated
	case core.KindEntityChanged:
		return bandEntityChanged
	case core.KindEntityDestroyed:
		return bandEntityDestroyed
	default:
		return bandOther
	}
}

// Queue is an ordered event queue. It is not safe for concurrent use;
// the driver owns it and holds its own mutex around every call.
type Queue struct {
	times    *timeHeap
	byTime   map[int64][numBands][]core.Event
	lastTime int64
	hasTaken bool
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		times:  &timeHeap{},
		byTime: make(map[int64][numBands][]core.Event),
	}
}

// Put admits e for delivery at e.EventTime(). It returns
// core.ErrTimeInPast if that time is at or before the last time
// TakeNext returned, since the queue can never rewind.
func (q *Queue) Put(e core.Event) error {
	t := e.EventTime()
	if q.hasTaken && t <= q.lastTime {
		return fmt.Errorf("%w: event time %d, last taken %d", core.ErrTimeInPast, t, q.lastTime)
	}
	slots, ok := q.byTime[t]
	if !ok {
		heap.Push(q.times, t)
	}
	b := bandFor(e.EventKind())
	slots[b] = append(slots[b], e)
	q.byTime[t] = slots
	return nil
}

// NextTime reports the earliest pending time and whether the queue has
// anything pending at all.
func (q *Queue) NextTime() (int64, bool) {
	if q.times.Len() == 0 {
		return 0, false
	}
	return (*q.times)[0], true
}

// Len returns the total number of pending events across all times.
func (q *Queue) Len() int {
	n := 0
	for _, slots := range q.byTime {
		for _, s := range slots {
			n += len(s)
		}
	}
	return n
}

// TakeNext removes and returns every event pending at the earliest
// time, band-ordered (entity-created, then entity-changed, then
// entity-destroyed, then everything else), and that time. ok is false
// if the queue is empty.
func (q *Queue) TakeNext() (t int64, events []core.Event, ok bool) {
	if q.times.Len() == 0 {
		return 0, nil, false
	}
	t = heap.Pop(q.times).(int64)
	slots := q.byTime[t]
	delete(q.byTime, t)
	for b := band(0); b < numBands; b++ {
		events = append(events, slots[b]...)
	}
	q.lastTime = t
	q.hasTaken = true
	return t, events, true
}

// timeHeap is a min-heap of pending times, each present at most once.
type timeHeap []int64

func (h timeHeap) Len() int            { return len(h) }
func (h timeHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h timeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timeHeap) Push(x interface{}) { *h = append(*h, x.(int64)) }
func (h *timeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
