package syscall

import (
	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/task"
	"rvcore/internal/vmm"
)

func (k *Kernel) sysBrk(th *task.Thread, newBrk uint64) int64 {
	if newBrk == 0 {
		return int64(th.Proc.AS.Brk())
	}
	if err := th.Proc.AS.Sbrk(addr.VA(newBrk)); err != 0 {
		return int64(th.Proc.AS.Brk())
	}
	return int64(th.Proc.AS.Brk())
}

// sysMmap only backs anonymous mappings: nothing in internal/vfs
// implements vmm.FileBackend (its Page(foff) frame-token contract), since
// the FAT façade hands out whole-file ReadAt/WriteAt handles rather than
// page-addressable ones, so a file-backed request fails with ENODEV
// instead of mapping garbage.
func (k *Kernel) sysMmap(th *task.Thread, hint, length, prot, flags, fdnum, offset uint64) int64 {
	var backend vmm.FileBackend
	if flags&uint64(abi.MAP_ANONYMOUS) == 0 {
		return int64(-abi.ENODEV)
	}
	va, err := th.Proc.AS.Mmap(addr.VA(hint), int(length), int(prot), backend, int64(offset))
	if err != 0 {
		return int64(-err)
	}
	return int64(va)
}

func (k *Kernel) sysMunmap(th *task.Thread, vaEnd uint64) int64 {
	return int64(-th.Proc.AS.Munmap(addr.VA(vaEnd)))
}

func (k *Kernel) sysMprotect(th *task.Thread, va, length, prot uint64) int64 {
	return int64(-th.Proc.AS.Mprotect(addr.VA(va), int(length), int(prot)))
}
