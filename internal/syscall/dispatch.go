package syscall

import (
	"time"

	"rvcore/internal/abi"
	"rvcore/internal/task"
	"rvcore/internal/timer"
	"rvcore/internal/vfs"
	"rvcore/internal/vfs/fatfs"
)

// Kernel bundles the kernel-wide services a syscall handler needs beyond
// what hangs directly off the calling thread/process: the mounted
// filesystem façade, the deadline timer queue, and the scheduling hooks
// installed at boot. An explicit bundle rather than package globals, since
// this kernel supports more than one of several of these in principle.
type Kernel struct {
	VFS   *vfs.Facade
	Timer *timer.Queue

	// Ticks returns the current timer-queue clock, for nanosleep deadline
	// math; Wall returns the current wall-clock time for gettimeofday.
	Ticks func() uint64
	Wall  func() (sec, nsec int64)

	// Yield hands the calling thread's baton back to its hart without
	// touching its scheduling state beyond Runnable, for sched_yield.
	Yield func(th *task.Thread)

	// Block marks th Waiting and parks it off the ready queue entirely,
	// for nanosleep: the caller is responsible for arranging a later
	// MarkReady (a timer callback) to resume it. wait4 blocks on the
	// parent process's Condvar instead.
	Block func(th *task.Thread)

	// Exec replaces th's process image in place, the execve hook bound to
	// internal/elfload at boot.
	Exec func(th *task.Thread, path string, argv, envp []string) abi.Err_t

	// Clone creates a new thread or process from th per the clone(2)
	// flags word, the hook bound to internal/sched's thread/process
	// spawning machinery at boot. ctid is the user address the
	// CLONE_CHILD_SETTID/CLONE_CHILD_CLEARTID flags act on.
	Clone func(th *task.Thread, flags, childStack, ctid uint64) (task.Tid, abi.Err_t)

	// MountFS opens the filesystem mount(2) names by its source argument,
	// bound at boot to the board's block device. Nil leaves mount(2)
	// failing with EPERM.
	MountFS func(source string) (*fatfs.FS, abi.Err_t)

	HartID func() int
}

// Dispatch decodes th's trapframe (a7 = syscall number, a0..a5 = args),
// runs the matching handler, and writes its return value into a0. Cycle
// accounting brackets the call: (now - th's last-recorded timestamp) is
// added to user time on entry and to system time on exit.
func (k *Kernel) Dispatch(th *task.Thread) {
	tf := th.TrapFrame
	nr := tf.X[17] // a7

	now := time.Now()
	th.Accnt.Utadd(now.Sub(th.LastTick))
	th.LastTick = now

	ret := k.call(th, nr, tf.X[10], tf.X[11], tf.X[12], tf.X[13], tf.X[14], tf.X[15])
	tf.SetReturnValue(uint64(ret))

	after := time.Now()
	th.Accnt.Systadd(after.Sub(th.LastTick))
	th.LastTick = after
}

// call is the actual number-to-handler switch. Every handler returns an
// int64: non-negative is the syscall's own successful return value,
// negative is -errno, matching the raw a0 convention real riscv64 Linux
// binaries expect.
func (k *Kernel) call(th *task.Thread, nr, a0, a1, a2, a3, a4, a5 uint64) int64 {
	switch nr {
	case sysGetcwd:
		return k.sysGetcwd(th, a0, a1)
	case sysOpenat:
		return k.sysOpenat(th, a0, a1, a2, a3)
	case sysClose:
		return k.sysClose(th, a0)
	case sysRead:
		return k.sysRead(th, a0, a1, a2)
	case sysWrite:
		return k.sysWrite(th, a0, a1, a2)
	case sysWritev:
		return k.sysWritev(th, a0, a1, a2)
	case sysLseek:
		return k.sysLseek(th, a0, a1, a2)
	case sysPipe2:
		return k.sysPipe2(th, a0, a1)
	case sysDup:
		return k.sysDup(th, a0)
	case sysDup3:
		return k.sysDup3(th, a0, a1)
	case sysChdir:
		return k.sysChdir(th, a0)
	case sysMkdirat:
		return k.sysMkdirat(th, a0, a1)
	case sysUnlinkat:
		return k.sysUnlinkat(th, a0, a1)
	case sysMount:
		return k.sysMount(th, a0, a1)
	case sysUmount2:
		return k.sysUmount2(th, a0)
	case sysFstat:
		return k.sysFstat(th, a0, a1)
	case sysFstatat:
		return k.sysFstatat(th, a0, a1, a2)
	case sysGetdents64:
		return k.sysGetdents64(th, a0, a1, a2)
	case sysFcntl:
		return k.sysFcntl(th, a0, a1, a2)
	case sysSendfile:
		return k.sysSendfile(th, a0, a1, a2, a3)

	case sysClone:
		return k.sysClone(th, a0, a1, a4)
	case sysExecve:
		return k.sysExecve(th, a0, a1, a2)
	case sysWait4:
		return k.sysWait4(th, a0, a1, a2)
	case sysExit:
		return k.sysExit(th, a0)
	case sysGetpid:
		return int64(th.Proc.PID)
	case sysGetppid:
		if parent := th.Proc.Parent(); parent != nil {
			return int64(parent.PID)
		}
		return 0
	case sysSchedYield:
		k.Yield(th)
		return 0
	case sysSetTidAddr:
		th.ClearChildTid = a0
		return int64(th.ID)

	case sysBrk:
		return k.sysBrk(th, a0)
	case sysMmap:
		return k.sysMmap(th, a0, a1, a2, a3, a4, a5)
	case sysMunmap:
		return k.sysMunmap(th, a0)
	case sysMprotect:
		return k.sysMprotect(th, a0, a1, a2)

	case sysUname:
		return k.sysUname(th, a0)
	case sysTimes:
		return k.sysTimes(th, a0)
	case sysGettimeofday:
		return k.sysGettimeofday(th, a0)
	case sysNanosleep:
		return k.sysNanosleep(th, a0, a1)
	case sysFaccessat:
		return 0
	case sysGetuid, sysGeteuid, sysGetgid, sysGetegid:
		return 0

	default:
		return int64(-abi.EINVAL)
	}
}
