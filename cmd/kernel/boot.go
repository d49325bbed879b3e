// Command kernel wires every internal package into a bootable image:
// board bring-up, the frame allocator, the init process's address space,
// the VFS façade, the timer queue, the trap handler, and the syscall
// dispatcher's Exec/Clone hooks, following the hook-installation idiom
// used throughout the tree (board.Init, sched.Init,
// trap.Handler.Syscall).
package main

import (
	"sync/atomic"
	"time"

	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/board"
	"rvcore/internal/elfload"
	"rvcore/internal/frame"
	"rvcore/internal/klog"
	"rvcore/internal/pagetable"
	"rvcore/internal/sched"
	"rvcore/internal/syscall"
	"rvcore/internal/task"
	"rvcore/internal/timer"
	"rvcore/internal/trap"
	"rvcore/internal/vfs"
	"rvcore/internal/vfs/fatfs"
	"rvcore/internal/vmm"
)

// userStackTop is the fixed top-of-stack address every user process's
// initial thread gets, chosen well above vmm's mmap region
// (vmm.defaultMmapBase) and comfortably inside SV39's 38-bit user half.
const userStackTop = addr.VA(0x3f_ffff_f000)

// Kernel bundles every subsystem Boot wires together, plus the PID/TID
// counters clone and exec draw from.
type Kernel struct {
	Board    board.Config
	Mem      *frame.Allocator
	Template *pagetable.Table
	VFS      *vfs.Facade
	Timer    *timer.Queue
	Trap     *trap.Handler
	Sys      *syscall.Kernel
	Harts    []*sched.Hart

	pidSeq int64
	tidSeq int64
}

func (k *Kernel) allocPid() task.Pid { return task.Pid(atomic.AddInt64(&k.pidSeq, 1)) }
func (k *Kernel) allocTid() task.Tid { return task.Tid(atomic.AddInt64(&k.tidSeq, 1)) }

// ticks stands in for reading the hart's rdtime CSR, which plain Go
// cannot do portably: wall-clock nanoseconds serve the same role every
// caller (internal/timer's deadlines, nanosleep) needs from it.
func ticks() uint64 { return uint64(time.Now().UnixNano()) }

func wallClock() (sec, nsec int64) {
	now := time.Now()
	return now.Unix(), int64(now.Nanosecond())
}

// Boot brings up every subsystem for cfg/hw and, if disk is non-nil,
// mounts a FAT filesystem at "/". Returns a fully wired Kernel; nothing
// is scheduled to run until Start is called.
func Boot(cfg board.Config, hw board.HardwareHooks, disk fatfs.BlockDevice) *Kernel {
	board.Init(cfg, hw)

	frames := cfg.PhysMemBytes / addr.PageSize
	mem := frame.New(addr.PPN(0), addr.PPN(frames))

	template, ok := pagetable.NewTable(mem)
	if !ok {
		panic("kernel: out of memory building the kernel page table template")
	}

	vfsFacade := vfs.New()
	if disk != nil {
		fs, err := fatfs.Mount(disk)
		if err != nil {
			klog.Warn("root filesystem mount failed: %v", err)
		} else {
			vfsFacade.Mount("/", fs)
		}
	}

	// mount(2) always opens the board's one block device regardless of the
	// source string: there is no device namespace to resolve it in.
	mountFS := func(string) (*fatfs.FS, abi.Err_t) {
		if disk == nil {
			return nil, abi.ENODEV
		}
		fs, err := fatfs.Mount(disk)
		if err != nil {
			return nil, abi.EIO
		}
		return fs, 0
	}

	timerQ := timer.New()
	trapHandler := trap.NewHandler(timerQ, ticks)

	k := &Kernel{
		Board:    cfg,
		Mem:      mem,
		Template: template,
		VFS:      vfsFacade,
		Timer:    timerQ,
		Trap:     trapHandler,
	}

	k.Sys = &syscall.Kernel{
		VFS:     vfsFacade,
		Timer:   timerQ,
		Ticks:   ticks,
		Wall:    wallClock,
		Yield:   sched.Yield,
		Block: func(th *task.Thread) {
			th.MarkWaiting()
			sched.YieldToSched(th)
		},
		HartID:  board.CurrentHartID,
		Exec:    k.exec,
		Clone:   k.clone,
		MountFS: mountFS,
	}
	trapHandler.Syscall = k.Sys.Dispatch

	sched.Init()
	for i := 0; i < cfg.NumHarts; i++ {
		h := sched.NewHart(i)
		sched.RegisterHart(h)
		k.Harts = append(k.Harts, h)
	}
	return k
}

// Start creates the init process rooted at "/", starts every hart's
// scheduler loop on its own goroutine, and enqueues init's only thread.
// stop, when closed, ends every hart's Run loop.
func (k *Kernel) Start(stop <-chan struct{}) *task.Thread {
	as, ok := vmm.New(k.Mem, k.Template)
	if !ok {
		panic("kernel: out of memory creating the init process")
	}
	proc := task.NewProcess(k.allocPid(), as, "/")
	th := task.NewThread(k.allocTid(), proc, int(k.Board.KernelStackSize))
	th.HartID = 0
	proc.AddThread(th)

	for _, h := range k.Harts {
		go h.Run(stop)
	}
	k.spawn(th)
	return th
}

// spawn starts t's body on its hart and marks it ready. There is no
// RISC-V instruction executor in this tree: once a hart hands t the
// baton there is no user code here for it to run on its own, so the body
// returns immediately and the thread goes Zombie on its first turn. Real
// progress for a thread happens through trap.Handler.Handle/Dispatch,
// which a caller (a test, or a real trap-entry stub) invokes directly
// against t whenever its hart traps.
func (k *Kernel) spawn(t *task.Thread) {
	sched.Spawn(t, func() {})
	t.MarkReady()
}

// exec is the Exec hook: it validates path as a loadable ELF binary
// before touching th's state, builds a fresh address space mapping every
// PT_LOAD segment, lays out the initial stack per argv/envp, and finally
// swings th onto it — replacing the process's address space and
// rewriting the current thread's trap frame in place.
func (k *Kernel) exec(th *task.Thread, path string, argv, envp []string) abi.Err_t {
	f, err := k.VFS.FileOpen(path, th.Proc.Cwd.GetPath(), abi.O_RDONLY)
	if err != 0 {
		return err
	}
	defer f.Close()

	if verr := elfload.Validate(f); verr != nil {
		return abi.ENOEXEC
	}

	as, ok := vmm.New(k.Mem, k.Template)
	if !ok {
		return abi.ENOMEM
	}
	img, lerr := elfload.Load(as, f)
	if lerr != nil {
		as.Free()
		return abi.ENOEXEC
	}

	stackBottom := userStackTop.Add(-int64(k.Board.UserStackSize))
	if as.AddAnon(stackBottom, int(k.Board.UserStackSize), pagetable.READABLE|pagetable.WRITABLE|pagetable.USER) == nil {
		as.Free()
		return abi.ENOMEM
	}

	sp, serr := elfload.BuildStack(as, userStackTop, argv, envp, img)
	if serr != 0 {
		as.Free()
		return serr
	}

	old := th.Proc.AS
	th.Proc.AS = as
	old.Free()

	th.TrapFrame.Init(uint64(sp), uint64(img.Entry), nil, true, th.TrapFrame.Sstatus)
	return 0
}

// clone implements clone(2)'s two shapes: CLONE_VM creates a
// second thread sharing th's process and address space; its absence
// forks a whole new process via vmm.AddressSpace.Fork's copy-on-write
// semantics and fd.Table.ForkCopy's descriptor duplication.
func (k *Kernel) clone(th *task.Thread, flags, childStack, ctid uint64) (task.Tid, abi.Err_t) {
	if flags&uint64(abi.CLONE_VM) != 0 {
		child := task.NewThread(k.allocTid(), th.Proc, int(k.Board.KernelStackSize))
		child.HartID = th.HartID
		*child.TrapFrame = *th.TrapFrame
		if childStack != 0 {
			child.TrapFrame.SetSP(childStack)
		}
		child.TrapFrame.SetReturnValue(0)
		th.Proc.AddThread(child)
		childTid(child, th.Proc.AS, flags, ctid)
		k.spawn(child)
		return child.ID, 0
	}

	childAS, aerr := th.Proc.AS.Fork(k.Template)
	if aerr != 0 {
		return 0, aerr
	}
	childFiles, ferr := th.Proc.Files.ForkCopy()
	if ferr != 0 {
		childAS.Free()
		return 0, ferr
	}

	childProc := task.NewProcess(k.allocPid(), childAS, th.Proc.Cwd.GetPath())
	childProc.Files = childFiles
	childProc.SetParent(th.Proc)
	th.Proc.AddChild(childProc)

	childThread := task.NewThread(k.allocTid(), childProc, int(k.Board.KernelStackSize))
	childThread.HartID = th.HartID
	*childThread.TrapFrame = *th.TrapFrame
	childThread.TrapFrame.SetReturnValue(0)
	childProc.AddThread(childThread)
	childTid(childThread, childAS, flags, ctid)

	k.spawn(childThread)
	return childThread.ID, 0
}

// childTid applies the CLONE_CHILD_SETTID/CLONE_CHILD_CLEARTID flags to a
// freshly created thread: store the new tid at ctid in the child's address
// space, and/or remember ctid so exit can zero it. The store happens
// before the child is enqueued, so no lock is held when it faults.
func childTid(child *task.Thread, as *vmm.AddressSpace, flags, ctid uint64) {
	if ctid == 0 {
		return
	}
	if flags&uint64(abi.CLONE_CHILD_SETTID) != 0 {
		as.WriteUint(addr.VA(ctid), 4, uint64(child.ID))
	}
	if flags&uint64(abi.CLONE_CHILD_CLEARTID) != 0 {
		child.ClearChildTid = ctid
	}
}
