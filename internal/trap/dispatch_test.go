package trap

import (
	"testing"

	"rvcore/internal/task"
	"rvcore/internal/timer"
)

func TestDecodeSplitsInterruptBit(t *testing.T) {
	c := Decode(scauseInterruptBit | InterruptSupervisorTimer)
	if !c.IsInterrupt || c.Code != InterruptSupervisorTimer {
		t.Fatalf("Decode = %+v", c)
	}
	c2 := Decode(ExceptionUserEnvCall)
	if c2.IsInterrupt || c2.Code != ExceptionUserEnvCall {
		t.Fatalf("Decode = %+v", c2)
	}
}

func TestIsPageFault(t *testing.T) {
	for _, code := range []uint64{ExceptionInstructionPageFault, ExceptionLoadPageFault, ExceptionStorePageFault} {
		if !Decode(code).IsPageFault() {
			t.Fatalf("code %d should be a page fault", code)
		}
	}
	if Decode(ExceptionIllegalInstruction).IsPageFault() {
		t.Fatal("illegal instruction should not be a page fault")
	}
}

func TestHandleTimerInterruptExpiresQueue(t *testing.T) {
	q := timer.New()
	fired := false
	q.Register(5, func() { fired = true })
	h := NewHandler(q, func() uint64 { return 10 })

	h.Handle(nil, scauseInterruptBit|InterruptSupervisorTimer, 0, 0)
	if !fired {
		t.Fatal("timer callback did not fire")
	}
}

func TestHandleUserEnvCallInvokesSyscallHook(t *testing.T) {
	q := timer.New()
	h := NewHandler(q, func() uint64 { return 0 })
	called := false
	th := &task.Thread{}
	h.Syscall = func(got *task.Thread) {
		called = true
		if got != th {
			t.Fatal("syscall hook received wrong thread")
		}
	}
	h.Handle(th, ExceptionUserEnvCall, 0, 0)
	if !called {
		t.Fatal("syscall hook was not invoked")
	}
}

func TestHandleFatalOnUnhandledExceptionPanics(t *testing.T) {
	q := timer.New()
	h := NewHandler(q, func() uint64 { return 0 })
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unhandled exception")
		}
	}()
	h.Handle(&task.Thread{}, ExceptionIllegalInstruction, 0, 0)
}

func TestHandleMissingSyscallHookIsFatal(t *testing.T) {
	q := timer.New()
	h := NewHandler(q, func() uint64 { return 0 })
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when no syscall hook installed")
		}
	}()
	h.Handle(&task.Thread{}, ExceptionUserEnvCall, 0, 0)
}
