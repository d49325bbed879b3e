package syscall

import (
	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/task"
)

// readStringVector reads a NUL-terminated, NULL-pointer-terminated array
// of C strings starting at vecVA, the argv/envp convention execve(2)
// shares with every other exec-family call.
func readStringVector(th *task.Thread, vecVA uint64) ([]string, abi.Err_t) {
	if vecVA == 0 {
		return nil, 0
	}
	var out []string
	for i := 0; ; i++ {
		ptr, err := th.Proc.AS.ReadUint(addr.VA(vecVA+uint64(i)*8), 8)
		if err != 0 {
			return nil, err
		}
		if ptr == 0 {
			return out, 0
		}
		s, err := th.Proc.AS.ReadCString(addr.VA(ptr), 4096)
		if err != 0 {
			return nil, err
		}
		out = append(out, s)
	}
}

func (k *Kernel) sysExecve(th *task.Thread, pathVA, argvVA, envpVA uint64) int64 {
	path, err := pathArg(th, pathVA)
	if err != 0 {
		return int64(-err)
	}
	argv, err := readStringVector(th, argvVA)
	if err != 0 {
		return int64(-err)
	}
	envp, err := readStringVector(th, envpVA)
	if err != 0 {
		return int64(-err)
	}
	if k.Exec == nil {
		return int64(-abi.ENOEXEC)
	}
	if eerr := k.Exec(th, path, argv, envp); eerr != 0 {
		return int64(-eerr)
	}
	// A successful execve never returns to its caller; the new entry
	// point is already live in th.TrapFrame by the time Exec returns.
	// Every descriptor opened O_CLOEXEC must not survive into the new
	// image, per the close-on-exec contract every exec(2) honors.
	th.Proc.Files.CloseExec()
	return 0
}

func (k *Kernel) sysClone(th *task.Thread, flags, childStack, ctid uint64) int64 {
	if k.Clone == nil {
		return int64(-abi.EINVAL)
	}
	tid, err := k.Clone(th, flags, childStack, ctid)
	if err != 0 {
		return int64(-err)
	}
	return int64(tid)
}

func (k *Kernel) sysWait4(th *task.Thread, pid, statusVA, options uint64) int64 {
	nohang := options&abi.WNOHANG != 0
	child, err := th.Proc.ReapChild(task.Pid(int64(pid)), nohang)
	if err != 0 {
		return int64(-err)
	}
	if child == nil {
		return 0
	}
	th.Proc.Accnt.Add(&child.Accnt)
	if statusVA != 0 {
		// wait(2) status word: the exit status sits in bits 8-15, the
		// WEXITSTATUS convention every libc decodes with (status >> 8) & 0xff.
		_, status := child.Exited()
		if werr := th.Proc.AS.WriteUint(addr.VA(statusVA), 4, uint64(uint32(status&0xFF)<<8)); werr != 0 {
			return int64(-werr)
		}
	}
	return int64(child.PID)
}

func (k *Kernel) sysExit(th *task.Thread, status uint64) int64 {
	// A pthread join in user space watches the word set_tid_address or
	// CLONE_CHILD_CLEARTID recorded; zero it before the thread goes away.
	// This write happens outside every spinlock, since it may fault.
	if th.ClearChildTid != 0 {
		th.Proc.AS.WriteUint(addr.VA(th.ClearChildTid), 4, 0)
	}
	th.MarkZombie()
	if th.Proc.RemoveThread(th.ID) {
		th.Proc.Exit(int(int32(status)))
	}
	return 0
}
