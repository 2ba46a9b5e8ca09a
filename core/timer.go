package core

import (
	"container/heap"
	"time"
)

// timer is a one-shot callback run by an arbiter. Cancellation is lazy: a
// stopped timer stays in the heap until it reaches the top.
type timer struct {
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
}

func (t *timer) stop() {
	t.stopped = true
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timer))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// timers is owned by one arbiter goroutine and needs no locking.
type timers struct {
	heap timerHeap
	seq  uint64
}

func (ts *timers) add(d time.Duration, fn func()) *timer {
	ts.seq++
	t := &timer{at: time.Now().Add(d), seq: ts.seq, fn: fn}
	heap.Push(&ts.heap, t)
	return t
}

// due pops every timer whose deadline has passed.
func (ts *timers) due(now time.Time) []*timer {
	var out []*timer
	for len(ts.heap) > 0 {
		top := ts.heap[0]
		if top.stopped {
			heap.Pop(&ts.heap)
			continue
		}
		if top.at.After(now) {
			break
		}
		heap.Pop(&ts.heap)
		out = append(out, top)
	}
	return out
}

// next returns the earliest live deadline.
func (ts *timers) next() (time.Time, bool) {
	for len(ts.heap) > 0 {
		if ts.heap[0].stopped {
			heap.Pop(&ts.heap)
			continue
		}
		return ts.heap[0].at, true
	}
	return time.Time{}, false
}

func (ts *timers) reset() {
	ts.heap = nil
}
