package playback

import "container/heap"

// Event is a payload due at Timestamp.
type Event struct {
	Timestamp uint64
	Payload   []byte

	seq uint64
}

// Scheduler is a min-heap of events ordered by timestamp; events with equal
// timestamps leave in insertion order. It is not safe for concurrent use.
type Scheduler struct {
	h   eventHeap
	seq uint64
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler { return &Scheduler{} }

// Push queues ev.
func (s *Scheduler) Push(ev Event) {
	ev.seq = s.seq
	s.seq++
	heap.Push(&s.h, ev)
}

// NextDue pops the earliest event if its timestamp is at or before now.
// Otherwise it returns false and leaves the queue unchanged.
func (s *Scheduler) NextDue(now uint64) (Event, bool) {
	if len(s.h) == 0 || s.h[0].Timestamp > now {
		return Event{}, false
	}
	return heap.Pop(&s.h).(Event), true
}

// Peek returns the earliest event without removing it.
func (s *Scheduler) Peek() (Event, bool) {
	if len(s.h) == 0 {
		return Event{}, false
	}
	return s.h[0], true
}

// Len returns the number of queued events.
func (s *Scheduler) Len() int { return len(s.h) }

// Clear drops every queued event.
func (s *Scheduler) Clear() {
	s.h = s.h[:0]
	s.seq = 0
}

type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Timestamp != h[j].Timestamp {
		return h[i].Timestamp < h[j].Timestamp
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = Event{}
	*h = old[:n-1]
	return ev
}
