package sched

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"rvcore/internal/klock"
	"rvcore/internal/task"
)

// harts maps a hart ID to its scheduler, so task.InstallEnqueueHook can
// route a woken thread back to the hart it belongs to without task or
// klock importing sched.
var (
	hartsMu sync.Mutex
	harts   = map[int]*Hart{}
)

// RegisterHart makes h reachable by ID for MarkReady's re-enqueue hook.
// Called once per hart during board bring-up.
func RegisterHart(h *Hart) {
	hartsMu.Lock()
	harts[h.ID] = h
	hartsMu.Unlock()
}

func hartFor(id int) *Hart {
	hartsMu.Lock()
	defer hartsMu.Unlock()
	return harts[id]
}

// Init wires klock's scheduler hooks and task's ready-queue hook to this
// package. "Who is the current thread" comes from a goroutine-id-keyed
// side table populated by Spawn. Must be called exactly once during boot,
// before any thread runs.
func Init() {
	task.InstallEnqueueHook(func(t *task.Thread) {
		if h := hartFor(t.HartID); h != nil {
			h.Enqueue(t)
		}
	})
	klock.InstallSchedHooks(klock.SchedHooks{
		Current: func() klock.ThreadRef {
			t := CurrentThread()
			if t == nil {
				return nil
			}
			return t
		},
		MarkWaiting: func() {
			if t := CurrentThread(); t != nil {
				t.MarkWaiting()
			}
		},
		YieldToSched: func() {
			if t := CurrentThread(); t != nil {
				YieldToSched(t)
			}
		},
	})
}

var byGoroutine sync.Map // goroutine id (uint64) -> *task.Thread

// goroutineID extracts the calling goroutine's numeric id from its stack
// trace header ("goroutine 123 [running]:"). There is no supported Go API
// for goroutine-local storage; this is the usual substitute.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	b = b[len(prefix):]
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// bindCurrent records t as owning the calling goroutine. Spawn calls this
// once, from inside the new goroutine, before t ever runs its body.
func bindCurrent(t *task.Thread) {
	byGoroutine.Store(goroutineID(), t)
}

// CurrentThread returns the thread bound to the calling goroutine, or nil
// if the caller is not a spawned thread body (e.g. a hart's own scheduler
// loop, or a test harness goroutine).
func CurrentThread() *task.Thread {
	v, ok := byGoroutine.Load(goroutineID())
	if !ok {
		return nil
	}
	return v.(*task.Thread)
}
