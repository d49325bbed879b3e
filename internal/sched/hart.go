// Package sched implements the per-hart scheduler: a strict FIFO ready
// queue per hart and a dedicated scheduler loop that hands the logical
// CPU to exactly one thread at a time.
//
// Every task.Thread body runs as an ordinary goroutine, and Hart hands
// control between them with a pair of unbuffered channels
// (task.Thread.ResumeCh / ParkedCh) instead of a hand-written
// register-save routine. Exactly one of a hart's threads ever holds the
// baton, so the ready-queue/Spinlock invariant "only the running thread
// touches this" still holds.
package sched

import (
	"rvcore/internal/klock"
	"rvcore/internal/task"
)

// Hart owns one ready queue and one scheduler goroutine. There is one Hart
// per physical hart the board brings up.
type Hart struct {
	ID int

	lock       klock.Spinlock
	head, tail *task.Thread
	current    *task.Thread

	// wake is signaled whenever the ready queue transitions from empty to
	// non-empty, so Run's idle loop does not busy-spin.
	wake chan struct{}
}

// NewHart allocates an idle hart with an empty ready queue.
func NewHart(id int) *Hart {
	return &Hart{ID: id, wake: make(chan struct{}, 1)}
}

// Enqueue appends t to the tail of the ready queue; it leaves t's state
// unchanged.
func (h *Hart) Enqueue(t *task.Thread) {
	h.lock.Lock()
	wasEmpty := h.head == nil
	t.SetReadyNext(nil)
	if h.tail == nil {
		h.head = t
	} else {
		h.tail.SetReadyNext(t)
	}
	h.tail = t
	h.lock.Unlock()
	if wasEmpty {
		select {
		case h.wake <- struct{}{}:
		default:
		}
	}
}

func (h *Hart) dequeueLocked() *task.Thread {
	t := h.head
	if t == nil {
		return nil
	}
	h.head = t.ReadyNext()
	if h.head == nil {
		h.tail = nil
	}
	t.SetReadyNext(nil)
	return t
}

// Current returns the thread presently holding this hart's baton, or nil
// if the hart is idle.
func (h *Hart) Current() *task.Thread {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.current
}

// Spawn starts t's body on its own goroutine, parked immediately on
// ResumeCh until the scheduler first picks it off the ready queue. body
// must call Yield at every suspension point and must not block on
// anything else while it holds the baton.
func Spawn(t *task.Thread, body func()) {
	go func() {
		bindCurrent(t)
		<-t.ResumeCh
		body()
		t.MarkZombie()
		t.ParkedCh <- struct{}{}
	}()
}

// park hands the baton back to t's hart and blocks the calling goroutine
// until the scheduler hands it back.
func park(t *task.Thread) {
	t.ParkedCh <- struct{}{}
	<-t.ResumeCh
}

// YieldToSched suspends t without changing its scheduling state, for
// klock.SchedHooks: the caller (Condvar.Wait) has already transitioned t
// to Waiting, so Hart.Run must not re-enqueue it on resume — whatever
// later calls NotifyOne/NotifyAll will do that via MarkReady.
func YieldToSched(t *task.Thread) { park(t) }

// Yield is an unconditional voluntary suspension point (a sched_yield
// syscall, or a cooperative preemption check): t goes back on its hart's
// ready queue immediately rather than waiting on any condition.
func Yield(t *task.Thread) {
	t.MarkRunnable()
	park(t)
}

// Schedule dequeues the next Runnable thread, marks it Running, and
// installs it as current. Returns nil if the ready queue is empty.
func (h *Hart) Schedule() *task.Thread {
	h.lock.Lock()
	t := h.dequeueLocked()
	h.current = t
	h.lock.Unlock()
	if t != nil {
		t.MarkRunning()
	}
	return t
}

// Run is the hart's dedicated scheduler loop: pick the next ready thread,
// hand it the baton, wait for it to yield or exit, repeat. Blocks until
// stop is closed. Intended to run as its own goroutine, one per hart,
// started by board/cmd/kernel boot code.
func (h *Hart) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		t := h.Schedule()
		if t == nil {
			select {
			case <-h.wake:
				continue
			case <-stop:
				return
			}
		}
		t.ResumeCh <- struct{}{}
		<-t.ParkedCh
		// Runnable here means a plain voluntary yield: nothing else will
		// re-enqueue t, so Run must. Waiting means some Condvar owns the
		// wakeup; Zombie means the thread body returned. Either way Run
		// must leave t off the ready queue.
		if t.Status() == task.Runnable {
			h.Enqueue(t)
		}
	}
}

// Len reports how many threads are presently ready on this hart, for
// tests and the stats device.
func (h *Hart) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	n := 0
	for t := h.head; t != nil; t = t.ReadyNext() {
		n++
	}
	return n
}
