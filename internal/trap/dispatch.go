package trap

import (
	"fmt"

	"rvcore/internal/addr"
	"rvcore/internal/klog"
	"rvcore/internal/task"
	"rvcore/internal/timer"
)

// Handler dispatches decoded traps for one hart. Its Syscall field is a
// late-bound hook rather than a direct import of internal/syscall: trap
// sits below syscall in the dependency graph (syscall consumes task/fd/vmm
// the same way trap's page-fault path does), so cmd/kernel wires the two
// together at boot the same way internal/sched.Init wires klock's hooks.
type Handler struct {
	Timer   *timer.Queue
	Now     func() uint64
	Syscall func(th *task.Thread)
}

// NewHandler returns a Handler bound to q for timer-interrupt dispatch.
func NewHandler(q *timer.Queue, now func() uint64) *Handler {
	return &Handler{Timer: q, Now: now}
}

// Handle routes one decoded trap: th is the thread that was running when
// the trap fired, scause/stval/sepc are the CSRs trap entry saved.
func (h *Handler) Handle(th *task.Thread, scause, stval, sepc uint64) {
	cause := Decode(scause)

	if cause.IsInterrupt && cause.Code == InterruptSupervisorTimer {
		h.Timer.Expire(h.Now())
		return
	}

	switch {
	case !cause.IsInterrupt && cause.Code == ExceptionUserEnvCall:
		if h.Syscall == nil {
			h.fatal(th, cause, stval, sepc)
			return
		}
		h.Syscall(th)

	case cause.IsPageFault():
		if th.Proc == nil || th.Proc.AS == nil {
			h.fatal(th, cause, stval, sepc)
			return
		}
		klog.Info("trap: %s stval=%#x sepc=%#x", cause, stval, sepc)
		if err := th.Proc.AS.HandleFault(addr.VA(stval), cause.IsWriteFault()); err != 0 {
			h.fatal(th, cause, stval, sepc)
		}

	default:
		h.fatal(th, cause, stval, sepc)
	}
}

// fatal handles the default arm: no recovery path exists for an
// unhandled trap class, so it logs and panics with the three values that
// identify the trap (cause, stval, sepc).
func (h *Handler) fatal(th *task.Thread, cause Cause, stval, sepc uint64) {
	tid := task.Tid(-1)
	if th != nil {
		tid = th.ID
	}
	klog.Error("fatal trap on tid %d: cause=%s stval=%#x sepc=%#x", tid, cause, stval, sepc)
	panic(fmt.Sprintf("fatal trap on tid %d: cause=%s stval=%#x sepc=%#x", tid, cause, stval, sepc))
}
