// Package timer implements the kernel's deadline-ordered callback queue:
// the structure backing sleep(), alarm(), and any scheduler tick work
// that must happen at a specific point in time rather than on every trap.
// An explicit, testable priority queue lets internal/trap and
// internal/board's SBI timer client share one mechanism instead of each
// hand-rolling deadline math.
package timer

import (
	"container/heap"

	"rvcore/internal/klock"
)

// Callback runs when its deadline has passed. Runs on whatever hart
// services the timer interrupt, with no locks held by the timer queue
// itself, so it must not block.
type Callback func()

type entry struct {
	deadline uint64 // ticks since boot, board-defined unit
	seq      uint64 // insertion order, to break ties FIFO
	cb       Callback
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Queue is a lock-protected min-heap of pending deadlines.
type Queue struct {
	lock klock.Spinlock
	heap entryHeap
	next uint64
}

// New returns an empty timer queue.
func New() *Queue { return &Queue{} }

// Register schedules cb to run once the queue's clock reaches deadline.
func (q *Queue) Register(deadline uint64, cb Callback) {
	q.lock.Lock()
	defer q.lock.Unlock()
	heap.Push(&q.heap, &entry{deadline: deadline, seq: q.next, cb: cb})
	q.next++
}

// NextDeadline returns the earliest pending deadline and whether one
// exists, for the board layer to program the next one-shot timer
// interrupt against.
func (q *Queue) NextDeadline() (uint64, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.heap) == 0 {
		return 0, false
	}
	return q.heap[0].deadline, true
}

// Expire pops and runs every callback whose deadline is <= now, returning
// how many fired. Called from the timer-interrupt path in internal/trap.
func (q *Queue) Expire(now uint64) int {
	var fired []Callback
	q.lock.Lock()
	for len(q.heap) > 0 && q.heap[0].deadline <= now {
		e := heap.Pop(&q.heap).(*entry)
		fired = append(fired, e.cb)
	}
	q.lock.Unlock()
	for _, cb := range fired {
		cb()
	}
	return len(fired)
}

// Len reports the number of pending deadlines, for tests and stats.
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.heap)
}
