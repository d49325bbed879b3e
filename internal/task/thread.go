package task

import (
	"time"

	"rvcore/internal/klock"
)

// Tid identifies a thread, unique across the lifetime of the kernel.
type Tid int64

// Pid identifies a process.
type Pid int64

// State is a thread's scheduling status.
type State int

const (
	Runnable State = iota // on a ready queue, not currently running
	Running                // currently executing on some hart
	Waiting                // blocked on a Condvar, off every ready queue
	Zombie                 // exited, waiting to be reaped by its parent
)

// Thread is one schedulable unit of execution. Its trapframe (for
// entering/leaving user mode) and its Context are held in their own
// fields; KStack is a plain byte slice that holds neither.
type Thread struct {
	ID     Tid
	Proc   *Process
	HartID int

	lock  klock.Spinlock
	state State

	TrapFrame *TrapFrame
	Context   Context
	KStack    []byte

	Accnt Accnt

	// readyNext threads the hart-local ready queue FIFO (internal/sched);
	// nil when not enqueued.
	readyNext *Thread

	// ResumeCh and ParkedCh are the baton-passing channels internal/sched
	// uses to hand the logical CPU to exactly one thread at a time: the
	// hart's scheduler goroutine sends on ResumeCh to let this thread run
	// and then blocks on ParkedCh until the thread either calls Yield or
	// returns, taking the place of a literal __switch/context-restore
	// since there is no real hart register file to save into Context here
	// — the host Go scheduler already keeps each thread's call stack
	// alive between turns.
	ResumeCh chan struct{}
	ParkedCh chan struct{}

	// LastTick is the timestamp internal/syscall's dispatcher last drew a
	// cycle-accounting bracket from; the gap between it and now is credited
	// to user or system time on every entry/exit.
	LastTick time.Time

	// ClearChildTid holds the address set_tid_address(2) or
	// clone(CLONE_CHILD_CLEARTID) recorded, the user-space word exit(2)
	// zeroes on thread death so a pthread join in user space can observe
	// it. No futex wake follows the store.
	ClearChildTid uint64
}

// Status returns the thread's current scheduling state.
func (t *Thread) Status() State {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.state
}

// setState transitions the thread's status; sched and klock's hooks are
// the only callers.
func (t *Thread) setState(s State) {
	t.lock.Lock()
	t.state = s
	t.lock.Unlock()
}

// MarkWaiting transitions this thread to Waiting, for klock.SchedHooks.
func (t *Thread) MarkWaiting() { t.setState(Waiting) }

// MarkRunning transitions this thread to Running, for internal/sched's
// Hart.Schedule.
func (t *Thread) MarkRunning() { t.setState(Running) }

// MarkZombie transitions this thread to Zombie, for internal/sched once a
// spawned thread body returns.
func (t *Thread) MarkZombie() { t.setState(Zombie) }

// MarkRunnable transitions this thread back to Runnable without touching
// any ready queue, for internal/sched's plain voluntary-yield path.
func (t *Thread) MarkRunnable() { t.setState(Runnable) }

// MarkReady implements klock.ThreadRef: transitions to Runnable and hands
// the thread to the scheduler's re-enqueue hook.
func (t *Thread) MarkReady() {
	t.setState(Runnable)
	if enqueueHook != nil {
		enqueueHook(t)
	}
}

// enqueueHook is installed by sched.Init so MarkReady can push a woken
// thread back onto a ready queue without task importing sched (which
// would cycle back through klock.ThreadRef), the same indirection klock
// itself uses for SchedHooks.
var enqueueHook func(*Thread)

// InstallEnqueueHook registers the ready-queue push callback. Called once
// by sched.Init.
func InstallEnqueueHook(f func(*Thread)) { enqueueHook = f }

// ReadyNext and SetReadyNext expose the intrusive FIFO link for
// internal/sched's ready queue, avoiding a second allocation per
// scheduling decision.
func (t *Thread) ReadyNext() *Thread     { return t.readyNext }
func (t *Thread) SetReadyNext(n *Thread) { t.readyNext = n }

// NewThread allocates a kernel stack and an empty thread for proc.
func NewThread(id Tid, proc *Process, stackSize int) *Thread {
	return &Thread{
		ID:        id,
		Proc:      proc,
		state:     Runnable,
		TrapFrame: &TrapFrame{},
		KStack:    make([]byte, stackSize),
		ResumeCh:  make(chan struct{}),
		ParkedCh:  make(chan struct{}),
	}
}
