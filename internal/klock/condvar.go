package klock

// ThreadRef is the minimal view of a schedulable thread that a condition
// variable needs: enough to mark it ready again, nothing else. The task
// package's *task.Thread satisfies this without klock importing task (that
// import would cycle, since task needs Spinlock).
//
// A wait queue holds no ownership over its threads; in a
// garbage-collected runtime the GC already makes a plain reference safe
// to hold, so Condvar simply keeps ThreadRef values without claiming
// ownership semantics beyond what the scheduler already provides.
type ThreadRef interface {
	// MarkReady transitions the thread back to Ready and reinserts it into
	// its hart's ready queue.
	MarkReady()
}

// SchedHooks lets the task/sched packages register the operations a
// condition variable needs from the scheduler without creating an import
// cycle.
type SchedHooks struct {
	// Current returns the calling thread.
	Current func() ThreadRef
	// MarkWaiting transitions the calling thread to Waiting.
	MarkWaiting func()
	// YieldToSched suspends the calling thread and switches to the
	// per-hart scheduler thread. Must be called with no Spinlock held.
	YieldToSched func()
}

var hooks SchedHooks

// InstallSchedHooks registers the scheduler callbacks. Called once during
// boot by sched.Init.
func InstallSchedHooks(h SchedHooks) { hooks = h }

// Condvar is a condition variable whose wait queue is a FIFO of thread
// references. It must always be used alongside a Spinlock that also
// guards the condition being waited on: Wait's caller must already hold
// that lock, and Wait releases it only after marking itself Waiting and
// enqueuing itself, so a notify between status-change and enqueue cannot
// be lost.
type Condvar struct {
	waiters []ThreadRef
}

// Wait marks the calling thread Waiting, enqueues it, releases guard, and
// yields to the scheduler. When the thread is next scheduled (because some
// other thread called Notify/NotifyAll), Wait re-acquires guard before
// returning, matching the usual "wait releases and reacquires the lock"
// contract.
func (c *Condvar) Wait(guard *Spinlock) {
	me := hooks.Current()
	hooks.MarkWaiting()
	c.waiters = append(c.waiters, me)
	guard.Unlock()
	hooks.YieldToSched()
	guard.Lock()
}

// NotifyOne wakes the longest-waiting thread, if any.
func (c *Condvar) NotifyOne() {
	if len(c.waiters) == 0 {
		return
	}
	t := c.waiters[0]
	c.waiters = c.waiters[1:]
	t.MarkReady()
}

// NotifyAll wakes every waiting thread, oldest first.
func (c *Condvar) NotifyAll() {
	w := c.waiters
	c.waiters = nil
	for _, t := range w {
		t.MarkReady()
	}
}

// Len reports the number of threads currently waiting. Intended for tests
// and the stats device, not for synchronization decisions.
func (c *Condvar) Len() int { return len(c.waiters) }
